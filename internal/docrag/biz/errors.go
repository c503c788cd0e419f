package biz

import (
	"context"

	"github.com/kart-io/docrag/pkg/utils/errors"
)

// wrapExternal 将外部依赖错误包装为对应错误码。
// 已携带错误码的错误原样返回，上下文超时或取消映射为 ErrTimeout / ErrCancelled。
func wrapExternal(errno *errors.Errno, err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Errno
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout.WithCause(err)
	case errors.Is(err, context.Canceled):
		return errors.ErrCancelled.WithCause(err)
	}
	return errno.WithCause(err)
}
