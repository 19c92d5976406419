package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/shandysiswandi/gotp/internal/pkg/stacktrace"
)

func callHandlerWithRecover(ctx context.Context, driver string, fn func() error) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", paths)
			} else {
				slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", string(stack))
			}
			err = fmt.Errorf("messaging: panic in %s handler: %v", driver, rvr)
		}
	}()

	return fn()
}

// responder tracks whether a message was acked or nacked already.
type responder struct {
	done atomic.Bool
}

// claim returns true on the first call only.
func (r *responder) claim() bool {
	return !r.done.Swap(true)
}

func (r *responder) responded() bool {
	return r.done.Load()
}

type ackable interface {
	Message
	responded() bool
}

// dispatch runs handler on msg and applies auto ack.
func dispatch(ctx context.Context, driver string, handler Handler, msg ackable, autoAck bool) error {
	herr := callHandlerWithRecover(ctx, driver, func() error {
		return handler(ctx, msg)
	})
	if herr != nil {
		slog.WarnContext(ctx, "messaging handler failed", "driver", driver, "destination", msg.Destination(), "error", herr)
	}

	if !autoAck || msg.responded() {
		return nil
	}
	if herr != nil {
		return msg.Nack(ctx)
	}
	return msg.Ack(ctx)
}
