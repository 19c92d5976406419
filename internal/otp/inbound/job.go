package inbound

import (
	"context"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/goroutine"
)

type sweeper interface {
	Sweep(ctx context.Context) (*entity.SweepResult, error)
}

// RegisterSweeperJob runs the retention sweep every interval until ctx is
// done. It reports false when the manager no longer accepts work.
func RegisterSweeperJob(ctx context.Context, gm *goroutine.Manager, interval time.Duration, uc sweeper) bool {
	return gm.Tick(ctx, "otp.sweeper", interval, func(ctx context.Context) error {
		_, err := uc.Sweep(ctx)
		return err
	})
}
