package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
)

// ResendOtp issues a replacement code like RequestOtp, unless the previous
// one for the same key was issued less than the cooldown ago.
func (s *Usecase) ResendOtp(ctx context.Context, in RequestOtpInput) (*RequestOtpOutput, error) {
	ctx, span := s.startSpan(ctx, "ResendOtp")
	defer span.End()

	in.normalize()
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	purpose := entity.ParsePurpose(in.Purpose)
	if purpose.IsUnknown() {
		return nil, errUnknownPurpose()
	}

	key := entity.Key{CountryCode: in.CountryCode, PhoneNumber: in.PhoneNumber, Purpose: purpose}

	ok, remaining, err := s.repoCache.ClaimCooldown(ctx, key, s.policy.ResendCooldown)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo claim resend cooldown", "purpose", purpose.String(), "error", err)
		return nil, storageError(err)
	}
	if !ok {
		slog.WarnContext(ctx, "otp resend in cooldown", "purpose", purpose.String(), "remaining", remaining)
		return nil, errResendCooldown(s.clock.Now().Add(remaining))
	}

	out, err := s.issue(ctx, in, purpose)
	if err != nil {
		if rErr := s.repoCache.ReleaseCooldown(ctx, key); rErr != nil {
			slog.WarnContext(ctx, "failed to repo release resend cooldown", "purpose", purpose.String(), "error", rErr)
		}
		return nil, err
	}

	return s.deliver(ctx, out), nil
}
