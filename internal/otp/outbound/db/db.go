package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	txMaxRetries = 3
	txRetryBase  = 10 * time.Millisecond
)

type DB struct {
	conn  *pgxpool.Pool
	query *queries
	uuid  uid.StringID
	ins   instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, uuid uid.StringID, ins instrument.Instrumentation) *DB {
	return &DB{
		conn:  conn,
		query: newQueries(conn),
		uuid:  uuid,
		ins:   ins,
	}
}

// mapError translates driver errors:
// - no rows → goerror.ErrNotFound
// - 23505 unique violation → goerror.ErrConflict
// - connection loss, timeouts, class 08/53/57P → wraps goerror.ErrUnavailable
// - anything else → as is, it means a bug in the caller
func (s *DB) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return goerror.ErrConflict
	}

	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", goerror.ErrUnavailable, err)
	}

	return err
}

func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "57P")
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	return errors.As(err, &connErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		pgconn.SafeToRetry(err) ||
		pgconn.Timeout(err)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// inTx runs fn inside a read committed transaction, committing when fn
// returns nil. Serialization failures and deadlocks restart the whole
// transaction with exponential backoff.
func (s *DB) inTx(ctx context.Context, fn func(q *queries) error) error {
	backoff := retry.WithMaxRetries(txMaxRetries, retry.WithJitterPercent(20, retry.NewExponential(txRetryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.runTx(ctx, fn)
		if isRetryable(err) {
			slog.WarnContext(ctx, "retrying transaction", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *DB) runTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rolback", "error", rErr)
		}
	}()

	if err := fn(s.query.WithTx(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
