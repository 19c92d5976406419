package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds the statements of the otp tables. Each method is one round
// trip; transactional grouping is done by the caller through WithTx.
type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

func (q *queries) WithTx(tx pgx.Tx) *queries {
	return &queries{db: tx}
}

const lockKey = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

// LockKey serializes transactions that share key until the current
// transaction ends. It covers rows that do not exist yet, which row locks
// cannot.
func (q *queries) LockKey(ctx context.Context, key string) error {
	_, err := q.db.Exec(ctx, lockKey, key)
	return err
}

const selectCurrentWindow = `
SELECT id::text, window_start, window_end, request_count
FROM otp_rate_limits
WHERE identifier = $1 AND identifier_type = $2 AND window_end > $3
ORDER BY window_start DESC
LIMIT 1
FOR UPDATE`

type rateLimitRow struct {
	ID           string
	WindowStart  time.Time
	WindowEnd    time.Time
	RequestCount int32
}

func (q *queries) SelectCurrentWindow(ctx context.Context, identifier, class string, now time.Time) (rateLimitRow, error) {
	var r rateLimitRow
	err := q.db.QueryRow(ctx, selectCurrentWindow, identifier, class, now).
		Scan(&r.ID, &r.WindowStart, &r.WindowEnd, &r.RequestCount)
	return r, err
}

const insertWindow = `
INSERT INTO otp_rate_limits (id, identifier, identifier_type, request_count, window_start, window_end, created_at)
VALUES ($1, $2, $3, 1, $4, $5, $4)
ON CONFLICT (identifier, identifier_type, window_start)
DO UPDATE SET request_count = otp_rate_limits.request_count + 1
RETURNING id::text, window_start, window_end, request_count`

type insertWindowParams struct {
	ID          string
	Identifier  string
	Class       string
	WindowStart time.Time
	WindowEnd   time.Time
}

func (q *queries) InsertWindow(ctx context.Context, arg insertWindowParams) (rateLimitRow, error) {
	var r rateLimitRow
	err := q.db.QueryRow(ctx, insertWindow, arg.ID, arg.Identifier, arg.Class, arg.WindowStart, arg.WindowEnd).
		Scan(&r.ID, &r.WindowStart, &r.WindowEnd, &r.RequestCount)
	return r, err
}

const incrementWindow = `
UPDATE otp_rate_limits
SET request_count = request_count + 1
WHERE id = $1 AND request_count < $2
RETURNING request_count`

// IncrementWindow returns pgx.ErrNoRows when the window is already full.
func (q *queries) IncrementWindow(ctx context.Context, id string, limit int32) (int32, error) {
	var count int32
	err := q.db.QueryRow(ctx, incrementWindow, id, limit).Scan(&count)
	return count, err
}

const supersedePending = `
UPDATE otp_codes
SET verified = TRUE
WHERE country_code = $1 AND phone_number = $2 AND purpose = $3
  AND verified = FALSE AND expires_at > $4`

func (q *queries) SupersedePending(ctx context.Context, countryCode, phoneNumber, purpose string, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, supersedePending, countryCode, phoneNumber, purpose, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertCode = `
INSERT INTO otp_codes (
    id, country_code, phone_number, email, code, purpose,
    expires_at, attempts, max_attempts, verified, ip_address, user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, FALSE, $9, $10, $11)`

type insertCodeParams struct {
	ID          string
	CountryCode string
	PhoneNumber string
	Email       pgtype.Text
	Code        string
	Purpose     string
	ExpiresAt   time.Time
	MaxAttempts int32
	IPAddress   pgtype.Text
	UserAgent   pgtype.Text
	CreatedAt   time.Time
}

func (q *queries) InsertCode(ctx context.Context, arg insertCodeParams) error {
	_, err := q.db.Exec(ctx, insertCode,
		arg.ID, arg.CountryCode, arg.PhoneNumber, arg.Email, arg.Code, arg.Purpose,
		arg.ExpiresAt, arg.MaxAttempts, arg.IPAddress, arg.UserAgent, arg.CreatedAt,
	)
	return err
}

const codeColumns = `id::text, country_code, phone_number, email, code, purpose,
    created_at, expires_at, attempts, max_attempts, verified, verified_at, ip_address, user_agent`

const selectPendingForUpdate = `
SELECT ` + codeColumns + `
FROM otp_codes
WHERE country_code = $1 AND phone_number = $2 AND purpose = $3
  AND verified = FALSE AND expires_at > $4
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE`

type codeRow struct {
	ID          string
	CountryCode string
	PhoneNumber string
	Email       pgtype.Text
	Code        string
	Purpose     string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int32
	MaxAttempts int32
	Verified    bool
	VerifiedAt  pgtype.Timestamptz
	IPAddress   pgtype.Text
	UserAgent   pgtype.Text
}

func scanCode(row pgx.Row) (codeRow, error) {
	var r codeRow
	err := row.Scan(
		&r.ID, &r.CountryCode, &r.PhoneNumber, &r.Email, &r.Code, &r.Purpose,
		&r.CreatedAt, &r.ExpiresAt, &r.Attempts, &r.MaxAttempts, &r.Verified, &r.VerifiedAt,
		&r.IPAddress, &r.UserAgent,
	)
	return r, err
}

func (q *queries) SelectPendingForUpdate(ctx context.Context, countryCode, phoneNumber, purpose string, now time.Time) (codeRow, error) {
	return scanCode(q.db.QueryRow(ctx, selectPendingForUpdate, countryCode, phoneNumber, purpose, now))
}

const spendAttempt = `
UPDATE otp_codes
SET attempts = attempts + 1
WHERE id = $1 AND verified = FALSE AND attempts < max_attempts
RETURNING attempts`

func (q *queries) SpendAttempt(ctx context.Context, id string) (int32, error) {
	var attempts int32
	err := q.db.QueryRow(ctx, spendAttempt, id).Scan(&attempts)
	return attempts, err
}

const markVerified = `
UPDATE otp_codes
SET attempts = attempts + 1, verified = TRUE, verified_at = $2
WHERE id = $1 AND verified = FALSE AND attempts < max_attempts
RETURNING attempts`

// MarkVerified spends the winning attempt and closes the record in one
// statement. It returns pgx.ErrNoRows when another caller closed it first.
func (q *queries) MarkVerified(ctx context.Context, id string, now time.Time) (int32, error) {
	var attempts int32
	err := q.db.QueryRow(ctx, markVerified, id, now).Scan(&attempts)
	return attempts, err
}

const deleteStaleCodes = `
DELETE FROM otp_codes
WHERE expires_at < $1 OR (verified AND verified_at IS NOT NULL AND verified_at < $2)`

func (q *queries) DeleteStaleCodes(ctx context.Context, expiredBefore, verifiedBefore time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteStaleCodes, expiredBefore, verifiedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteStaleWindows = `DELETE FROM otp_rate_limits WHERE window_end < $1`

func (q *queries) DeleteStaleWindows(ctx context.Context, endedBefore time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteStaleWindows, endedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
