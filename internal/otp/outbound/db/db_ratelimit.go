package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/gotp/internal/otp/entity"
)

func windowFromRow(r rateLimitRow, id entity.RateLimitIdentifier) entity.RateLimitWindow {
	return entity.RateLimitWindow{
		ID:              r.ID,
		Identifier:      id.Value,
		IdentifierClass: id.Class,
		WindowStart:     r.WindowStart,
		WindowEnd:       r.WindowEnd,
		RequestCount:    r.RequestCount,
	}
}

// ReserveRateLimit finds the identifier's current window, creating it when
// absent, and spends one request from it if the policy allows. The lookup,
// the decision and the increment happen under a per-identifier transaction
// lock, so concurrent callers never create duplicate windows or exceed the
// limit.
func (s *DB) ReserveRateLimit(ctx context.Context, id entity.RateLimitIdentifier, policy entity.RateLimitPolicy, now time.Time) (res *entity.Reservation, err error) {
	ctx, span := s.startSpan(ctx, "ReserveRateLimit")
	defer func() { s.endSpan(span, err) }()

	class := id.Class.String()

	err = s.inTx(ctx, func(q *queries) error {
		if err := q.LockKey(ctx, "otp_rate_limits:"+class+":"+id.Value); err != nil {
			return err
		}

		current, err := q.SelectCurrentWindow(ctx, id.Value, class, now)
		if errors.Is(err, pgx.ErrNoRows) {
			row, err := q.InsertWindow(ctx, insertWindowParams{
				ID:          s.uuid.Generate(),
				Identifier:  id.Value,
				Class:       class,
				WindowStart: now,
				WindowEnd:   now.Add(policy.Window),
			})
			if err != nil {
				return err
			}

			res = &entity.Reservation{
				Allowed:   row.RequestCount <= policy.MaxRequests,
				Remaining: max(policy.MaxRequests-row.RequestCount, 0),
				ResetAt:   row.WindowEnd,
				Window:    windowFromRow(row, id),
			}
			return nil
		}
		if err != nil {
			return err
		}

		count, err := q.IncrementWindow(ctx, current.ID, policy.MaxRequests)
		if errors.Is(err, pgx.ErrNoRows) {
			res = &entity.Reservation{
				Allowed: false,
				ResetAt: current.WindowEnd,
				Window:  windowFromRow(current, id),
			}
			return nil
		}
		if err != nil {
			return err
		}

		current.RequestCount = count
		res = &entity.Reservation{
			Allowed:   true,
			Remaining: max(policy.MaxRequests-count, 0),
			ResetAt:   current.WindowEnd,
			Window:    windowFromRow(current, id),
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	return res, nil
}
