package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/gotp/internal/otp/entity"
)

// errNoChange rolls back a verification transaction that must not write.
var errNoChange = errors.New("no change")

// VerifyCode applies one verification attempt to the newest pending record
// of the key. The record row stays locked from the read until commit, so
// the attempt counter and the verified flag move exactly once per call and
// only one caller can ever see VerifyResultValid.
//
// matches receives the stored code and reports whether the submitted code
// corresponds to it.
func (s *DB) VerifyCode(ctx context.Context, in entity.VerifyAttempt, matches func(stored string) bool) (out *entity.VerifyOutcome, err error) {
	ctx, span := s.startSpan(ctx, "VerifyCode")
	defer func() { s.endSpan(span, err) }()

	key := in.Key

	err = s.inTx(ctx, func(q *queries) error {
		row, err := q.SelectPendingForUpdate(ctx, key.CountryCode, key.PhoneNumber, key.Purpose.Column(), in.Now)
		if errors.Is(err, pgx.ErrNoRows) {
			out = &entity.VerifyOutcome{Result: entity.VerifyResultNotFoundOrExpired}
			return errNoChange
		}
		if err != nil {
			return err
		}

		rec := recordFromRow(row)
		next, result := rec.Attempt(in.Now, matches)
		out = &entity.VerifyOutcome{Result: result, Record: &next}

		switch result {
		case entity.VerifyResultCodeMismatch:
			attempts, err := q.SpendAttempt(ctx, rec.ID)
			if err != nil {
				return err
			}
			next.Attempts = attempts
			return nil

		case entity.VerifyResultValid:
			attempts, err := q.MarkVerified(ctx, rec.ID, in.Now)
			if errors.Is(err, pgx.ErrNoRows) {
				out = &entity.VerifyOutcome{Result: entity.VerifyResultNotFoundOrExpired}
				return errNoChange
			}
			if err != nil {
				return err
			}
			next.Attempts = attempts
			return nil

		default:
			return errNoChange
		}
	})
	if errors.Is(err, errNoChange) {
		return out, nil
	}
	if err != nil {
		return nil, s.mapError(err)
	}

	return out, nil
}
