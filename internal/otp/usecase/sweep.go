package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
)

// Sweep deletes codes and rate limit windows past their retention.
func (s *Usecase) Sweep(ctx context.Context) (*entity.SweepResult, error) {
	ctx, span := s.startSpan(ctx, "Sweep")
	defer span.End()

	res, err := s.repoDB.Sweep(ctx, s.policy.Retention, s.clock.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo sweep", "error", err)
		return nil, storageError(err)
	}

	slog.InfoContext(ctx, "otp retention sweep done", "deleted_codes", res.DeletedCodes, "deleted_windows", res.DeletedWindows)

	return res, nil
}
