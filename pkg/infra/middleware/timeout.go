package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/response"
)

// Timeout bounds the request context. Handlers are expected to honour
// cancellation; if the deadline passed and nothing was written, an
// ErrTimeout response is sent. A zero timeout disables the middleware.
func Timeout(timeout time.Duration, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if timeout <= 0 || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			response.Fail(c, errors.ErrTimeout)
		}
	}
}
