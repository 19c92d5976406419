package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/config"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginInput() RequestOtpInput {
	return RequestOtpInput{CountryCode: "+1", PhoneNumber: "5551234567", Purpose: "LOGIN"}
}

func verifyInput(code string) VerifyOtpInput {
	return VerifyOtpInput{CountryCode: "+1", PhoneNumber: "5551234567", Purpose: "LOGIN", Code: code}
}

var loginKey = entity.Key{CountryCode: "+1", PhoneNumber: "5551234567", Purpose: entity.PurposeLogin}

func wrong(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func assertCode(t *testing.T, err error, code goerror.Code) *goerror.Error {
	t.Helper()
	var gerr *goerror.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, code, gerr.Code())
	return gerr
}

func TestUsecase_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	assert.Equal(t, int64(600), out.ExpiresInSeconds)
	assert.True(t, out.ExpiresAt.Equal(base.Add(10*time.Minute)))
	assert.True(t, out.DeliveryQueued)

	sent := f.outbox.last(t)
	assert.Len(t, sent.Code, 6)

	res, err := f.uc.VerifyOtp(ctx, verifyInput(sent.Code))
	require.NoError(t, err)
	assert.Equal(t, &VerifyOtpOutput{Verified: true, Purpose: "LOGIN"}, res)

	_, err = f.uc.VerifyOtp(ctx, verifyInput(sent.Code))
	assert.ErrorIs(t, err, entity.ErrNotFoundOrExpired)
	gerr := assertCode(t, err, goerror.CodeUnauthorized)
	assert.Equal(t, "NOT_FOUND_OR_EXPIRED", gerr.Fields()["reason"])
}

func TestUsecase_RequestOtp_SinglePending(t *testing.T) {
	f := newFixture(t, func(p *Policy) { p.RateLimit.MaxRequests = 100 })
	ctx := context.Background()

	var codes []string
	for i := range 4 {
		f.clock.Advance(time.Second)
		_, err := f.uc.RequestOtp(ctx, loginInput())
		require.NoError(t, err, "request %d", i+1)
		codes = append(codes, f.outbox.last(t).Code)

		pending := f.store.pending(loginKey, f.clock.Now())
		require.Len(t, pending, 1)
		assert.Equal(t, f.outbox.last(t).Record.ID, pending[0].ID)
	}

	_, err := f.uc.VerifyOtp(ctx, verifyInput(codes[0]))
	if codes[0] != codes[3] {
		assert.ErrorIs(t, err, entity.ErrCodeMismatch)
	}

	_, err = f.uc.VerifyOtp(ctx, verifyInput(codes[3]))
	assert.NoError(t, err)
}

func TestUsecase_RequestOtp_PurposesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)

	in := loginInput()
	in.Purpose = "signup"
	_, err = f.uc.RequestOtp(ctx, in)
	require.NoError(t, err)

	assert.Len(t, f.store.pending(loginKey, base), 1)
	signup := loginKey
	signup.Purpose = entity.PurposeSignup
	assert.Len(t, f.store.pending(signup, base), 1)
}

func TestUsecase_RequestOtp_RateLimitBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := range 3 {
		_, err := f.uc.RequestOtp(ctx, loginInput())
		require.NoError(t, err, "request %d", i+1)
		f.clock.Advance(time.Minute)
	}

	sentBefore := len(f.outbox.sent)
	_, err := f.uc.RequestOtp(ctx, loginInput())
	assert.ErrorIs(t, err, entity.ErrRateLimited)
	gerr := assertCode(t, err, goerror.CodeTooManyRequest)
	assert.Equal(t, "RATE_LIMITED", gerr.Fields()["reason"])
	assert.Equal(t, base.Add(15*time.Minute).Format(time.RFC3339), gerr.Fields()["reset_at"])
	assert.Len(t, f.outbox.sent, sentBefore, "no code may be issued when rate limited")

	f.clock.Set(base.Add(15 * time.Minute))
	_, err = f.uc.RequestOtp(ctx, loginInput())
	assert.NoError(t, err)
}

func TestUsecase_RequestOtp_EveryIdentifierIsLimited(t *testing.T) {
	f := newFixture(t, func(p *Policy) { p.RateLimit.MaxRequests = 1 })
	ctx := context.Background()

	in := loginInput()
	in.Email = "User@Example.com "
	in.IPAddress = "203.0.113.5"
	_, err := f.uc.RequestOtp(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.store.count(entity.RateLimitIdentifier{Value: "+15551234567", Class: entity.IdentifierClassPhone}))
	assert.Equal(t, int32(1), f.store.count(entity.RateLimitIdentifier{Value: "user@example.com", Class: entity.IdentifierClassEmail}))
	assert.Equal(t, int32(1), f.store.count(entity.RateLimitIdentifier{Value: "203.0.113.5", Class: entity.IdentifierClassIP}))

	other := RequestOtpInput{CountryCode: "+62", PhoneNumber: "81234567890", Purpose: "LOGIN", IPAddress: "203.0.113.5"}
	_, err = f.uc.RequestOtp(ctx, other)
	assert.ErrorIs(t, err, entity.ErrRateLimited, "shared source ip must be limited")
}

func TestUsecase_RequestOtp_Concurrent(t *testing.T) {
	f := newFixture(t, func(p *Policy) { p.RateLimit.MaxRequests = 1000 })
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for range 50 {
		wg.Go(func() {
			if _, err := f.uc.RequestOtp(ctx, loginInput()); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Len(t, f.store.pending(loginKey, base), 1)
	assert.Equal(t, int32(50), f.store.count(entity.RateLimitIdentifier{Value: "+15551234567", Class: entity.IdentifierClassPhone}))
}

func TestUsecase_VerifyOtp_AttemptExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	code := f.outbox.last(t).Code

	for i := range 5 {
		_, err := f.uc.VerifyOtp(ctx, verifyInput(wrong(code)))
		assert.ErrorIs(t, err, entity.ErrCodeMismatch, "attempt %d", i+1)
		gerr := assertCode(t, err, goerror.CodeUnauthorized)
		assert.Equal(t, fmt.Sprint(4-i), gerr.Fields()["remaining_attempts"])
	}

	_, err = f.uc.VerifyOtp(ctx, verifyInput(code))
	assert.ErrorIs(t, err, entity.ErrMaxAttemptsExceeded)
	gerr := assertCode(t, err, goerror.CodeUnauthorized)
	assert.NotContains(t, gerr.Fields(), "remaining_attempts")
}

func TestUsecase_VerifyOtp_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	code := f.outbox.last(t).Code

	f.clock.Advance(10 * time.Minute)
	_, err = f.uc.VerifyOtp(ctx, verifyInput(code))
	assert.ErrorIs(t, err, entity.ErrNotFoundOrExpired)
}

func TestUsecase_VerifyOtp_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	code := f.outbox.last(t).Code

	var mu sync.Mutex
	var valid int
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			if _, err := f.uc.VerifyOtp(ctx, verifyInput(code)); err == nil {
				mu.Lock()
				valid++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, valid)
}

func TestUsecase_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RequestOtpInput
	}{
		{name: "unknown purpose", in: RequestOtpInput{CountryCode: "+1", PhoneNumber: "5551234567", Purpose: "RESET"}},
		{name: "missing purpose", in: RequestOtpInput{CountryCode: "+1", PhoneNumber: "5551234567"}},
		{name: "bad country code", in: RequestOtpInput{CountryCode: "1", PhoneNumber: "5551234567", Purpose: "LOGIN"}},
		{name: "letters in phone", in: RequestOtpInput{CountryCode: "+1", PhoneNumber: "555-CALL", Purpose: "LOGIN"}},
		{name: "bad email", in: RequestOtpInput{CountryCode: "+1", PhoneNumber: "5551234567", Email: "nope", Purpose: "LOGIN"}},
		{name: "bad ip", in: RequestOtpInput{CountryCode: "+1", PhoneNumber: "5551234567", Purpose: "LOGIN", IPAddress: "300.1.1.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.RequestOtp(ctx, tt.in)
			assertCode(t, err, goerror.CodeInvalidInput)
		})
	}

	_, err := f.uc.VerifyOtp(ctx, verifyInput("12345"))
	assertCode(t, err, goerror.CodeInvalidInput)

	assert.Empty(t, f.outbox.sent)
}

func TestUsecase_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	code := f.outbox.last(t).Code

	f.store.err = fmt.Errorf("%w: dial tcp: connection refused", goerror.ErrUnavailable)

	_, err = f.uc.VerifyOtp(ctx, verifyInput(code))
	gerr := assertCode(t, err, goerror.CodeUnavailable)
	assert.Equal(t, "Service unavailable", gerr.Msg())
	assert.NotErrorIs(t, err, entity.ErrCodeMismatch)
	assert.NotErrorIs(t, err, entity.ErrNotFoundOrExpired)

	_, err = f.uc.RequestOtp(ctx, loginInput())
	assertCode(t, err, goerror.CodeUnavailable)

	f.store.err = errors.New("column does not exist")
	_, err = f.uc.VerifyOtp(ctx, verifyInput(code))
	assertCode(t, err, goerror.CodeInternal)

	f.store.err = nil
	_, err = f.uc.VerifyOtp(ctx, verifyInput(code))
	assert.NoError(t, err, "failed calls must not spend attempts")
}

func TestUsecase_RequestOtp_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outbox.err = errors.New("broker down")

	out, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	assert.False(t, out.DeliveryQueued)

	_, err = f.uc.VerifyOtp(ctx, verifyInput(f.outbox.last(t).Code))
	assert.NoError(t, err, "the code stays valid when delivery fails")
}

func TestUsecase_ResendOtp(t *testing.T) {
	f := newFixture(t, func(p *Policy) { p.RateLimit.MaxRequests = 10 })
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)
	first := f.outbox.last(t)

	_, err = f.uc.ResendOtp(ctx, loginInput())
	assert.ErrorIs(t, err, entity.ErrResendCooldown)
	gerr := assertCode(t, err, goerror.CodeTooManyRequest)
	assert.Equal(t, "RESEND_COOLDOWN", gerr.Fields()["reason"])
	assert.Equal(t, base.Add(time.Minute).Format(time.RFC3339), gerr.Fields()["reset_at"])

	f.clock.Advance(61 * time.Second)
	out, err := f.uc.ResendOtp(ctx, loginInput())
	require.NoError(t, err)
	assert.True(t, out.DeliveryQueued)
	second := f.outbox.last(t)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)

	pending := f.store.pending(loginKey, f.clock.Now())
	require.Len(t, pending, 1)
	assert.Equal(t, second.Record.ID, pending[0].ID)

	_, err = f.uc.ResendOtp(ctx, loginInput())
	assert.ErrorIs(t, err, entity.ErrResendCooldown)
}

func TestUsecase_ResendOtp_ReleasesCooldownOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.err = fmt.Errorf("%w: timeout", goerror.ErrUnavailable)
	_, err := f.uc.ResendOtp(ctx, loginInput())
	assertCode(t, err, goerror.CodeUnavailable)

	f.store.err = nil
	_, err = f.uc.ResendOtp(ctx, loginInput())
	assert.NoError(t, err)
}

func TestUsecase_ResendOtp_CacheUnavailable(t *testing.T) {
	f := newFixture(t)
	f.cache.err = fmt.Errorf("%w: redis down", goerror.ErrUnavailable)

	_, err := f.uc.ResendOtp(context.Background(), loginInput())
	assertCode(t, err, goerror.CodeUnavailable)
	assert.Empty(t, f.outbox.sent)
}

func TestUsecase_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.RequestOtp(ctx, loginInput())
	require.NoError(t, err)

	res, err := f.uc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Total())

	f.clock.Advance(25 * time.Hour)
	res, err = f.uc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCodes)
	assert.Equal(t, int64(1), res.DeletedWindows)

	f.store.err = fmt.Errorf("%w: gone", goerror.ErrUnavailable)
	_, err = f.uc.Sweep(ctx)
	assertCode(t, err, goerror.CodeUnavailable)
}

func TestPolicyFromConfig(t *testing.T) {
	cfg, err := config.NewViperFromBytes("yaml", []byte(`
modules:
  otp:
    code_ttl: 5m
    max_attempts: 3
    rate_limit:
      max_requests: 0
    sweeper:
      window_retention: 2h
`))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cfg.Close() })

	p := PolicyFromConfig(cfg)
	assert.Equal(t, 5*time.Minute, p.CodeTTL)
	assert.Equal(t, int32(3), p.MaxAttempts)
	assert.Equal(t, defaultRateLimitWindow, p.RateLimit.Window)
	assert.Equal(t, int32(defaultRateLimitRequests), p.RateLimit.MaxRequests)
	assert.Equal(t, defaultResendCooldown, p.ResendCooldown)
	assert.Equal(t, defaultExpiredRetention, p.Retention.ExpiredFor)
	assert.Equal(t, 2*time.Hour, p.Retention.WindowFor)
}

func TestUsecase_RequestOtp_UserAgentTruncation(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{name: "short is kept", ua: "curl/8.5.0", want: "curl/8.5.0"},
		{name: "ascii cut at limit", ua: strings.Repeat("a", 600), want: strings.Repeat("a", maxUserAgent)},
		{name: "multi byte cut on rune boundary", ua: "a" + strings.Repeat("é", 300), want: "a" + strings.Repeat("é", 255)},
		{name: "invalid bytes dropped", ua: "Mozilla\xff/5.0", want: "Mozilla/5.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			in := loginInput()
			in.UserAgent = tt.ua
			_, err := f.uc.RequestOtp(context.Background(), in)
			require.NoError(t, err)

			f.store.mu.Lock()
			defer f.store.mu.Unlock()
			require.Len(t, f.store.records, 1)
			got := f.store.records[0].Request.UserAgent
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), maxUserAgent)
		})
	}
}
