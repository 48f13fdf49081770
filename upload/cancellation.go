package upload

import (
	"context"

	"github.com/dataplatform-io/go-uploadutils/upload/registry"
)

type cancellation struct {
	abort    context.CancelFunc
	canceler Canceler
}

func newCancellation(abort context.CancelFunc, server Server) *cancellation {
	canceler, _ := server.(Canceler)
	return &cancellation{
		abort:    abort,
		canceler: canceler,
	}
}

func (c *cancellation) Abort() {
	c.abort()
}

func (c *cancellation) NotifyServer(ctx context.Context, requestID int64) error {
	if c.canceler == nil || requestID == registry.NoRequestID {
		return nil
	}
	return c.canceler.CancelUpload(ctx, requestID)
}
