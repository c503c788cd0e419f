package redis

import (
	"context"
	"sync"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// loggingAdapter routes go-redis internal logs to the unified logger.
type loggingAdapter struct{}

// Printf logs messages using the unified logger.
func (l *loggingAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	logger.Global().WithCtx(ctx).Warnf("redis: "+format, v...)
}

var setLoggerOnce sync.Once

func installLogger() {
	setLoggerOnce.Do(func() {
		goredis.SetLogger(&loggingAdapter{})
	})
}
