package id

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDMonotonic(t *testing.T) {
	g := NewULIDGenerator(nil)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = g.Generate()
	}

	assert.True(t, sort.StringsAreSorted(ids), "ULIDs from one generator must sort in creation order")
	for _, s := range ids {
		assert.Len(t, s, 26)
	}
}

func TestULIDConcurrentUnique(t *testing.T) {
	g := NewULIDGenerator(nil)

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := g.Generate()
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 400)
}

func TestParseULID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := ParseULID(NewULID())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = ParseULID("not-a-ulid")
	assert.ErrorIs(t, err, ErrInvalidULID)
}

func TestUUID(t *testing.T) {
	assert.NoError(t, ValidUUID(NewUUID()))
	assert.ErrorIs(t, ValidUUID("xyz"), ErrInvalidUUID)
	assert.NotEqual(t, NewUUID(), NewUUID())
}
