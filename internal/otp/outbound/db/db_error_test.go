package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
	"github.com/stretchr/testify/assert"
)

func TestDB_mapError(t *testing.T) {
	s := &DB{}
	errBug := errors.New("syntax error")

	tests := []struct {
		name        string
		err         error
		want        error
		unavailable bool
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no rows", err: pgx.ErrNoRows, want: goerror.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: goerror.ErrConflict},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, unavailable: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, unavailable: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, unavailable: true},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), unavailable: true},
		{name: "eof", err: io.ErrUnexpectedEOF, unavailable: true},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}},
		{name: "other", err: errBug, want: errBug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.mapError(tt.err)
			if tt.unavailable {
				assert.ErrorIs(t, got, goerror.ErrUnavailable)
				assert.ErrorIs(t, got, tt.err)
				return
			}
			assert.NotErrorIs(t, got, goerror.ErrUnavailable)
			if tt.want != nil || tt.err == nil {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(errors.New("boom")))
}
