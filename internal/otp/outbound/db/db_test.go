package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/testkit"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newRecord(id uid.StringID, phone string, purpose entity.Purpose, code string, now time.Time) entity.Record {
	return entity.Record{
		ID:          id.Generate(),
		Subject:     entity.Subject{CountryCode: "+62", PhoneNumber: phone, Email: "user@example.com"},
		Purpose:     purpose,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
		MaxAttempts: 5,
		Request:     entity.RequestContext{IPAddress: "203.0.113.7", UserAgent: "test"},
	}
}

func equal(code string) func(string) bool {
	return func(stored string) bool { return stored == code }
}

func TestDB(t *testing.T) {
	pool := testkit.Postgres(t)
	ids := uid.NewUUID()
	s := NewDB(pool, ids, instrument.NewNoop())
	ctx := context.Background()

	t.Run("rate limit boundary", func(t *testing.T) {
		id := entity.RateLimitIdentifier{Value: "+628100000001", Class: entity.IdentifierClassPhone}
		policy := entity.RateLimitPolicy{Window: 15 * time.Minute, MaxRequests: 3}

		for i := range 3 {
			res, err := s.ReserveRateLimit(ctx, id, policy, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i+1)
			assert.Equal(t, int32(2-i), res.Remaining)
		}

		res, err := s.ReserveRateLimit(ctx, id, policy, base.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.True(t, res.ResetAt.Equal(base.Add(15*time.Minute)))

		n, err := s.requestCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int32(3), n)

		res, err = s.ReserveRateLimit(ctx, id, policy, base.Add(16*time.Minute))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.True(t, res.Window.WindowStart.Equal(base.Add(16*time.Minute)))
	})

	t.Run("identifiers are independent", func(t *testing.T) {
		policy := entity.RateLimitPolicy{Window: time.Minute, MaxRequests: 1}
		phone := entity.RateLimitIdentifier{Value: "shared", Class: entity.IdentifierClassPhone}
		ip := entity.RateLimitIdentifier{Value: "shared", Class: entity.IdentifierClassIP}

		res, err := s.ReserveRateLimit(ctx, phone, policy, base)
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = s.ReserveRateLimit(ctx, ip, policy, base)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("concurrent reservations are all counted", func(t *testing.T) {
		id := entity.RateLimitIdentifier{Value: "+628100000002", Class: entity.IdentifierClassPhone}
		policy := entity.RateLimitPolicy{Window: 15 * time.Minute, MaxRequests: 1000}

		var wg sync.WaitGroup
		var failed atomic.Int32
		for range 50 {
			wg.Go(func() {
				if _, err := s.ReserveRateLimit(ctx, id, policy, base); err != nil {
					failed.Add(1)
				}
			})
		}
		wg.Wait()

		require.Zero(t, failed.Load())
		n, err := s.requestCount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int32(50), n)
	})

	t.Run("concurrent reservations never exceed the limit", func(t *testing.T) {
		id := entity.RateLimitIdentifier{Value: "203.0.113.9", Class: entity.IdentifierClassIP}
		policy := entity.RateLimitPolicy{Window: 15 * time.Minute, MaxRequests: 10}

		var wg sync.WaitGroup
		var allowed atomic.Int32
		for i := range 50 {
			wg.Go(func() {
				res, err := s.ReserveRateLimit(ctx, id, policy, base.Add(time.Duration(i)*time.Millisecond))
				if err == nil && res.Allowed {
					allowed.Add(1)
				}
			})
		}
		wg.Wait()

		assert.Equal(t, int32(10), allowed.Load())
	})

	t.Run("issue supersedes previous pending code", func(t *testing.T) {
		first := newRecord(ids, "8100000003", entity.PurposeLogin, "111111", base)
		n, err := s.IssueCode(ctx, first)
		require.NoError(t, err)
		assert.Zero(t, n)

		second := newRecord(ids, "8100000003", entity.PurposeLogin, "222222", base.Add(time.Second))
		n, err = s.IssueCode(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		other := newRecord(ids, "8100000003", entity.PurposeSignup, "333333", base.Add(time.Second))
		_, err = s.IssueCode(ctx, other)
		require.NoError(t, err)

		recs, err := s.listCodes(ctx, first.Key())
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, second.ID, recs[0].ID)
		assert.True(t, recs[0].IsPending(base.Add(time.Second)))
		assert.True(t, recs[1].Verified)
		assert.Nil(t, recs[1].VerifiedAt)

		out, err := s.VerifyCode(ctx, entity.VerifyAttempt{Key: first.Key(), Now: base.Add(2 * time.Second)}, equal("111111"))
		require.NoError(t, err)
		assert.Equal(t, entity.VerifyResultCodeMismatch, out.Result)

		pending, err := s.pendingCount(ctx, other.Key(), base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
	})

	t.Run("concurrent issuance leaves one pending code", func(t *testing.T) {
		var wg sync.WaitGroup
		var failed atomic.Int32
		key := entity.Key{CountryCode: "+62", PhoneNumber: "8100000004", Purpose: entity.PurposeVerifyPhone}
		for i := range 50 {
			wg.Go(func() {
				rec := newRecord(ids, key.PhoneNumber, key.Purpose, fmt.Sprintf("%06d", i), base.Add(time.Duration(i)*time.Millisecond))
				if _, err := s.IssueCode(ctx, rec); err != nil {
					failed.Add(1)
				}
			})
		}
		wg.Wait()

		require.Zero(t, failed.Load())
		n, err := s.pendingCount(ctx, key, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("attempts are exhausted", func(t *testing.T) {
		rec := newRecord(ids, "8100000005", entity.PurposeLogin, "123456", base)
		rec.MaxAttempts = 3
		_, err := s.IssueCode(ctx, rec)
		require.NoError(t, err)

		attempt := entity.VerifyAttempt{Key: rec.Key(), Now: base.Add(time.Minute)}
		for i := range 3 {
			out, err := s.VerifyCode(ctx, attempt, equal("000000"))
			require.NoError(t, err)
			assert.Equal(t, entity.VerifyResultCodeMismatch, out.Result)
			assert.Equal(t, int32(i+1), out.Record.Attempts)
		}

		out, err := s.VerifyCode(ctx, attempt, equal("123456"))
		require.NoError(t, err)
		assert.Equal(t, entity.VerifyResultMaxAttemptsExceeded, out.Result)

		recs, err := s.listCodes(ctx, rec.Key())
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int32(3), recs[0].Attempts)
		assert.False(t, recs[0].Verified)
	})

	t.Run("expired code is not found", func(t *testing.T) {
		rec := newRecord(ids, "8100000006", entity.PurposeLogin, "123456", base)
		_, err := s.IssueCode(ctx, rec)
		require.NoError(t, err)

		out, err := s.VerifyCode(ctx, entity.VerifyAttempt{Key: rec.Key(), Now: rec.ExpiresAt}, equal("123456"))
		require.NoError(t, err)
		assert.Equal(t, entity.VerifyResultNotFoundOrExpired, out.Result)

		recs, err := s.listCodes(ctx, rec.Key())
		require.NoError(t, err)
		assert.Zero(t, recs[0].Attempts)
	})

	t.Run("valid code cannot be replayed", func(t *testing.T) {
		rec := newRecord(ids, "8100000007", entity.PurposeSignup, "654321", base)
		_, err := s.IssueCode(ctx, rec)
		require.NoError(t, err)

		now := base.Add(time.Minute)
		out, err := s.VerifyCode(ctx, entity.VerifyAttempt{Key: rec.Key(), Now: now}, equal("654321"))
		require.NoError(t, err)
		assert.Equal(t, entity.VerifyResultValid, out.Result)
		require.NotNil(t, out.Record.VerifiedAt)
		assert.True(t, out.Record.VerifiedAt.Equal(now))

		out, err = s.VerifyCode(ctx, entity.VerifyAttempt{Key: rec.Key(), Now: now}, equal("654321"))
		require.NoError(t, err)
		assert.Equal(t, entity.VerifyResultNotFoundOrExpired, out.Result)
	})

	t.Run("concurrent verification has one winner", func(t *testing.T) {
		rec := newRecord(ids, "8100000008", entity.PurposeLogin, "777777", base)
		rec.MaxAttempts = 100
		_, err := s.IssueCode(ctx, rec)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var valid, notFound atomic.Int32
		for range 20 {
			wg.Go(func() {
				out, err := s.VerifyCode(ctx, entity.VerifyAttempt{Key: rec.Key(), Now: base.Add(time.Minute)}, equal("777777"))
				if err != nil {
					return
				}
				switch out.Result {
				case entity.VerifyResultValid:
					valid.Add(1)
				case entity.VerifyResultNotFoundOrExpired:
					notFound.Add(1)
				}
			})
		}
		wg.Wait()

		assert.Equal(t, int32(1), valid.Load())
		assert.Equal(t, int32(19), notFound.Load())
	})

	t.Run("sweep removes stale rows", func(t *testing.T) {
		old := base.Add(-48 * time.Hour)
		stale := newRecord(ids, "8100000009", entity.PurposeLogin, "123123", old)
		_, err := s.IssueCode(ctx, stale)
		require.NoError(t, err)

		fresh := newRecord(ids, "8100000010", entity.PurposeLogin, "321321", base)
		_, err = s.IssueCode(ctx, fresh)
		require.NoError(t, err)

		window := entity.RateLimitIdentifier{Value: "sweep@example.com", Class: entity.IdentifierClassEmail}
		_, err = s.ReserveRateLimit(ctx, window, entity.RateLimitPolicy{Window: time.Minute, MaxRequests: 3}, old)
		require.NoError(t, err)

		res, err := s.Sweep(ctx, entity.RetentionPolicy{
			ExpiredFor:  24 * time.Hour,
			VerifiedFor: 7 * 24 * time.Hour,
			WindowFor:   time.Hour,
		}, base)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.DeletedCodes, int64(1))
		assert.GreaterOrEqual(t, res.DeletedWindows, int64(1))

		recs, err := s.listCodes(ctx, stale.Key())
		require.NoError(t, err)
		assert.Empty(t, recs)

		recs, err = s.listCodes(ctx, fresh.Key())
		require.NoError(t, err)
		assert.Len(t, recs, 1)

		n, err := s.requestCount(ctx, window)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
