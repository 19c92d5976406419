package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shandysiswandi/gotp/internal/otp/entity"
)

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// IssueCode closes every pending code of the record's (subject, purpose) and
// inserts rec as the only pending one, in a single transaction. Concurrent
// issuances for the same key are serialized by a transaction lock so each
// supersession observes the previous insert.
func (s *DB) IssueCode(ctx context.Context, rec entity.Record) (superseded int64, err error) {
	ctx, span := s.startSpan(ctx, "IssueCode")
	defer func() { s.endSpan(span, err) }()

	key := rec.Key()

	err = s.inTx(ctx, func(q *queries) error {
		if err := q.LockKey(ctx, "otp_codes:"+key.String()); err != nil {
			return err
		}

		n, err := q.SupersedePending(ctx, key.CountryCode, key.PhoneNumber, key.Purpose.Column(), rec.CreatedAt)
		if err != nil {
			return err
		}
		superseded = n

		return q.InsertCode(ctx, insertCodeParams{
			ID:          rec.ID,
			CountryCode: rec.Subject.CountryCode,
			PhoneNumber: rec.Subject.PhoneNumber,
			Email:       text(rec.Subject.Email),
			Code:        rec.Code,
			Purpose:     rec.Purpose.Column(),
			ExpiresAt:   rec.ExpiresAt,
			MaxAttempts: rec.MaxAttempts,
			IPAddress:   text(rec.Request.IPAddress),
			UserAgent:   text(rec.Request.UserAgent),
			CreatedAt:   rec.CreatedAt,
		})
	})
	if err != nil {
		return 0, s.mapError(err)
	}

	return superseded, nil
}

func recordFromRow(r codeRow) entity.Record {
	rec := entity.Record{
		ID: r.ID,
		Subject: entity.Subject{
			CountryCode: r.CountryCode,
			PhoneNumber: r.PhoneNumber,
			Email:       r.Email.String,
		},
		Purpose:     entity.ParsePurpose(r.Purpose),
		Code:        r.Code,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		Verified:    r.Verified,
		Request: entity.RequestContext{
			IPAddress: r.IPAddress.String,
			UserAgent: r.UserAgent.String,
		},
	}
	if r.VerifiedAt.Valid {
		t := r.VerifiedAt.Time
		rec.VerifiedAt = &t
	}
	return rec
}
