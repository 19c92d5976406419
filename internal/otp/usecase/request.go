package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
)

const maxUserAgent = 512

type RequestOtpInput struct {
	CountryCode string `validate:"required,countrycode"`
	PhoneNumber string `validate:"required,phonedigits"`
	Email       string `validate:"omitempty,email,max=255"`
	Purpose     string `validate:"required"`
	IPAddress   string `validate:"omitempty,ip"`
	UserAgent   string
}

type RequestOtpOutput struct {
	ExpiresInSeconds int64
	ExpiresAt        time.Time
	DeliveryQueued   bool
}

func (in *RequestOtpInput) normalize() {
	in.CountryCode = strings.TrimSpace(in.CountryCode)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	in.UserAgent = truncateUTF8(in.UserAgent, maxUserAgent)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune. Invalid
// sequences are dropped since the column only accepts valid UTF-8.
func truncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (in RequestOtpInput) subject() entity.Subject {
	return entity.Subject{CountryCode: in.CountryCode, PhoneNumber: in.PhoneNumber, Email: in.Email}
}

// issued is what the issuance engine hands back to its direct caller. Code
// is the plaintext and leaves the process only through the delivery event.
type issued struct {
	Record     entity.Record
	Code       string
	Superseded int64
}

func (s *Usecase) RequestOtp(ctx context.Context, in RequestOtpInput) (*RequestOtpOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestOtp")
	defer span.End()

	in.normalize()
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	purpose := entity.ParsePurpose(in.Purpose)
	if purpose.IsUnknown() {
		return nil, errUnknownPurpose()
	}

	out, err := s.issue(ctx, in, purpose)
	if err != nil {
		return nil, err
	}

	// a resend right after a fresh request waits for the cooldown too
	key := out.Record.Key()
	if _, _, err := s.repoCache.ClaimCooldown(ctx, key, s.policy.ResendCooldown); err != nil {
		slog.WarnContext(ctx, "failed to repo claim resend cooldown", "purpose", purpose.String(), "error", err)
	}

	return s.deliver(ctx, out), nil
}

// issue reserves a request on every identifier, then closes the pending
// codes of the key and stores a new one.
func (s *Usecase) issue(ctx context.Context, in RequestOtpInput, purpose entity.Purpose) (*issued, error) {
	now := s.clock.Now()
	subject := in.subject()

	ids := lo.Filter([]entity.RateLimitIdentifier{
		{Value: subject.Phone(), Class: entity.IdentifierClassPhone},
		{Value: subject.NormalizedEmail(), Class: entity.IdentifierClassEmail},
		{Value: in.IPAddress, Class: entity.IdentifierClassIP},
	}, func(id entity.RateLimitIdentifier, _ int) bool {
		return id.Value != ""
	})

	for _, id := range ids {
		res, err := s.repoDB.ReserveRateLimit(ctx, id, s.policy.RateLimit, now)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo reserve rate limit", "class", id.Class.String(), "error", err)
			return nil, storageError(err)
		}
		if !res.Allowed {
			slog.WarnContext(ctx, "otp request rate limited", "class", id.Class.String(), "purpose", purpose.String(), "reset_at", res.ResetAt)
			return nil, errRateLimited(res.ResetAt)
		}
	}

	code, err := s.generator.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate otp code", "error", err)
		return nil, goerror.NewServer(err)
	}

	stored, err := s.hash.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash otp code", "error", err)
		return nil, goerror.NewServer(err)
	}

	rec := entity.Record{
		ID:          s.uuid.Generate(),
		Subject:     subject,
		Purpose:     purpose,
		Code:        string(stored),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.policy.CodeTTL),
		MaxAttempts: s.policy.MaxAttempts,
		Request:     entity.RequestContext{IPAddress: in.IPAddress, UserAgent: in.UserAgent},
	}

	superseded, err := s.repoDB.IssueCode(ctx, rec)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo issue code", "purpose", purpose.String(), "error", err)
		return nil, storageError(err)
	}

	slog.InfoContext(ctx, "otp issued", "otp_id", rec.ID, "purpose", purpose.String(), "superseded", superseded, "expires_at", rec.ExpiresAt)

	return &issued{Record: rec, Code: code, Superseded: superseded}, nil
}

// deliver hands the code to the transport. A failure leaves the code valid.
func (s *Usecase) deliver(ctx context.Context, out *issued) *RequestOtpOutput {
	queued := true
	if err := s.repoMessaging.PublishDelivery(ctx, out.Record, out.Code); err != nil {
		slog.ErrorContext(ctx, "failed to publish otp delivery", "otp_id", out.Record.ID, "error", err)
		queued = false
	}

	return &RequestOtpOutput{
		ExpiresInSeconds: int64(s.policy.CodeTTL / time.Second),
		ExpiresAt:        out.Record.ExpiresAt,
		DeliveryQueued:   queued,
	}
}
