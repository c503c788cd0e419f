package pool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Ordered runs fn for every index in [0, n) on p and returns the results in
// index order. Submissions are spaced by at least spacing. The first error
// cancels the context passed to the remaining tasks and is returned.
func Ordered[T any](
	ctx context.Context,
	p *Pool,
	n int,
	spacing time.Duration,
	fn func(ctx context.Context, i int) (T, error),
) ([]T, error) {
	if n == 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		results  = make([]T, n)
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < n; i++ {
		if i > 0 && spacing > 0 {
			timer := time.NewTimer(spacing)
			select {
			case <-timer.C:
			case <-runCtx.Done():
				timer.Stop()
			}
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("task %d panicked: %v", i, r))
				}
			}()
			if runCtx.Err() != nil {
				return
			}
			v, err := fn(runCtx, i)
			if err != nil {
				fail(err)
				return
			}
			results[i] = v
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit task %d: %w", i, err))
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
