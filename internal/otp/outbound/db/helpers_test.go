package db

import (
	"context"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
)

const listCodesByKeySQL = `
SELECT ` + codeColumns + `
FROM otp_codes
WHERE country_code = $1 AND phone_number = $2 AND purpose = $3
ORDER BY created_at DESC`

func (q *queries) listCodesByKey(ctx context.Context, countryCode, phoneNumber, purpose string) ([]codeRow, error) {
	rows, err := q.db.Query(ctx, listCodesByKeySQL, countryCode, phoneNumber, purpose)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []codeRow
	for rows.Next() {
		r, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectWindowCountSQL = `
SELECT COALESCE(SUM(request_count), 0)::int
FROM otp_rate_limits
WHERE identifier = $1 AND identifier_type = $2`

func (q *queries) selectWindowCount(ctx context.Context, identifier, class string) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, selectWindowCountSQL, identifier, class).Scan(&n)
	return n, err
}

// listCodes returns every stored record of key, newest first.
func (s *DB) listCodes(ctx context.Context, key entity.Key) ([]entity.Record, error) {
	rows, err := s.query.listCodesByKey(ctx, key.CountryCode, key.PhoneNumber, key.Purpose.Column())
	if err != nil {
		return nil, err
	}

	out := make([]entity.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordFromRow(r))
	}
	return out, nil
}

// pendingCount returns how many records of key are pending at now.
func (s *DB) pendingCount(ctx context.Context, key entity.Key, now time.Time) (int, error) {
	recs, err := s.listCodes(ctx, key)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, r := range recs {
		if r.IsPending(now) {
			n++
		}
	}
	return n, nil
}

// requestCount sums the accepted requests across every window of id.
func (s *DB) requestCount(ctx context.Context, id entity.RateLimitIdentifier) (int32, error) {
	return s.query.selectWindowCount(ctx, id.Value, id.Class.String())
}
