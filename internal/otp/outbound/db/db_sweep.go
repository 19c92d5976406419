package db

import (
	"context"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
)

// Sweep deletes codes and windows past their retention horizons.
func (s *DB) Sweep(ctx context.Context, policy entity.RetentionPolicy, now time.Time) (res *entity.SweepResult, err error) {
	ctx, span := s.startSpan(ctx, "Sweep")
	defer func() { s.endSpan(span, err) }()

	codes, err := s.query.DeleteStaleCodes(ctx, now.Add(-policy.ExpiredFor), now.Add(-policy.VerifiedFor))
	if err != nil {
		return nil, s.mapError(err)
	}

	windows, err := s.query.DeleteStaleWindows(ctx, now.Add(-policy.WindowFor))
	if err != nil {
		return &entity.SweepResult{DeletedCodes: codes}, s.mapError(err)
	}

	return &entity.SweepResult{DeletedCodes: codes, DeletedWindows: windows}, nil
}
