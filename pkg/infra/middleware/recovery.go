package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/response"
)

// Recovery returns a middleware that turns a panic into an ErrInternal
// response and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Panic recovered",
					"panic", fmt.Sprintf("%v", r),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(response.RequestIDKey),
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					response.Fail(c, errors.ErrInternal.WithMessagef("panic: %v", r))
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
