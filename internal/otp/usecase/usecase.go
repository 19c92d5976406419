package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/clock"
	"github.com/shandysiswandi/gotp/internal/pkg/config"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
	"github.com/shandysiswandi/gotp/internal/pkg/hash"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/otp"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"github.com/shandysiswandi/gotp/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCodeTTL           = 10 * time.Minute
	defaultMaxAttempts       = 5
	defaultRateLimitWindow   = 15 * time.Minute
	defaultRateLimitRequests = 3
	defaultResendCooldown    = 60 * time.Second
	defaultExpiredRetention  = 24 * time.Hour
	defaultVerifiedRetention = 7 * 24 * time.Hour
	defaultWindowRetention   = time.Hour
)

type repoDB interface {
	ReserveRateLimit(ctx context.Context, id entity.RateLimitIdentifier, policy entity.RateLimitPolicy, now time.Time) (*entity.Reservation, error)
	IssueCode(ctx context.Context, rec entity.Record) (int64, error)
	VerifyCode(ctx context.Context, in entity.VerifyAttempt, matches func(stored string) bool) (*entity.VerifyOutcome, error)
	Sweep(ctx context.Context, policy entity.RetentionPolicy, now time.Time) (*entity.SweepResult, error)
}

type repoCache interface {
	ClaimCooldown(ctx context.Context, key entity.Key, ttl time.Duration) (bool, time.Duration, error)
	ReleaseCooldown(ctx context.Context, key entity.Key) error
}

type repoMessaging interface {
	PublishDelivery(ctx context.Context, rec entity.Record, plainCode string) error
}

// Policy holds the tunables of issuance, verification and retention.
type Policy struct {
	CodeTTL        time.Duration
	MaxAttempts    int32
	RateLimit      entity.RateLimitPolicy
	ResendCooldown time.Duration
	Retention      entity.RetentionPolicy
}

func durationOr(cfg config.Config, key string, def time.Duration) time.Duration {
	if d := cfg.GetDuration(key); d > 0 {
		return d
	}
	return def
}

func int32Or(cfg config.Config, key string, def int32) int32 {
	if n := cfg.GetInt32(key); n > 0 {
		return n
	}
	return def
}

// PolicyFromConfig reads modules.otp.* and fills missing or non-positive
// values with the defaults.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		CodeTTL:     durationOr(cfg, "modules.otp.code_ttl", defaultCodeTTL),
		MaxAttempts: int32Or(cfg, "modules.otp.max_attempts", defaultMaxAttempts),
		RateLimit: entity.RateLimitPolicy{
			Window:      durationOr(cfg, "modules.otp.rate_limit.window", defaultRateLimitWindow),
			MaxRequests: int32Or(cfg, "modules.otp.rate_limit.max_requests", defaultRateLimitRequests),
		},
		ResendCooldown: durationOr(cfg, "modules.otp.resend_cooldown", defaultResendCooldown),
		Retention: entity.RetentionPolicy{
			ExpiredFor:  durationOr(cfg, "modules.otp.sweeper.expired_retention", defaultExpiredRetention),
			VerifiedFor: durationOr(cfg, "modules.otp.sweeper.verified_retention", defaultVerifiedRetention),
			WindowFor:   durationOr(cfg, "modules.otp.sweeper.window_retention", defaultWindowRetention),
		},
	}
}

type Usecase struct {
	repoDB        repoDB
	repoCache     repoCache
	repoMessaging repoMessaging
	validator     validator.Validator
	generator     otp.Generator
	hash          hash.Hash
	uuid          uid.StringID
	clock         clock.Clocker
	ins           instrument.Instrumentation
	policy        Policy
}

type Dependency struct {
	RepoDB        repoDB
	RepoCache     repoCache
	RepoMessaging repoMessaging
	Validator     validator.Validator
	Generator     otp.Generator
	Hash          hash.Hash
	UUID          uid.StringID
	Clock         clock.Clocker
	Instrument    instrument.Instrumentation
	Policy        Policy
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:        dep.RepoDB,
		repoCache:     dep.RepoCache,
		repoMessaging: dep.RepoMessaging,
		validator:     dep.Validator,
		generator:     dep.Generator,
		hash:          dep.Hash,
		uuid:          dep.UUID,
		clock:         dep.Clock,
		ins:           dep.Instrument,
		policy:        dep.Policy,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.usecase").Start(ctx, name)
}

// storageError keeps outages apart from programming errors. Neither is
// ever reported as a verification outcome.
func storageError(err error) error {
	if errors.Is(err, goerror.ErrUnavailable) {
		return goerror.NewUnavailable(err)
	}
	return goerror.NewServer(err)
}

func errRateLimited(resetAt time.Time) error {
	return goerror.NewBusinessCause(entity.ErrRateLimited,
		"Too many OTP requests. Please try again later.", goerror.CodeTooManyRequest,
		"reason", "RATE_LIMITED", "reset_at", resetAt.UTC().Format(time.RFC3339))
}

func errResendCooldown(resetAt time.Time) error {
	return goerror.NewBusinessCause(entity.ErrResendCooldown,
		"Please wait before requesting a new OTP.", goerror.CodeTooManyRequest,
		"reason", "RESEND_COOLDOWN", "reset_at", resetAt.UTC().Format(time.RFC3339))
}

func errVerify(result entity.VerifyResult, remaining int32) error {
	switch result {
	case entity.VerifyResultMaxAttemptsExceeded:
		return goerror.NewBusinessCause(result.Err(),
			"Maximum verification attempts exceeded. Please request a new OTP.", goerror.CodeUnauthorized,
			"reason", result.String())
	case entity.VerifyResultCodeMismatch:
		return goerror.NewBusinessCause(result.Err(),
			"Invalid OTP code. Please try again.", goerror.CodeUnauthorized,
			"reason", result.String(), "remaining_attempts", strconv.Itoa(int(remaining)))
	default:
		return goerror.NewBusinessCause(entity.ErrNotFoundOrExpired,
			"OTP not found or expired. Please request a new OTP.", goerror.CodeUnauthorized,
			"reason", entity.VerifyResultNotFoundOrExpired.String())
	}
}

func errUnknownPurpose() error {
	return goerror.NewInvalidInput(nil, "purpose", "purpose must be one of LOGIN, SIGNUP, VERIFY_PHONE, VERIFY_EMAIL")
}
