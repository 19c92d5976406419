package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
)

type VerifyOtpInput struct {
	CountryCode string `validate:"required,countrycode"`
	PhoneNumber string `validate:"required,phonedigits"`
	Purpose     string `validate:"required"`
	Code        string `validate:"required,otpcode"`
}

type VerifyOtpOutput struct {
	Verified bool
	Purpose  string
}

func (s *Usecase) VerifyOtp(ctx context.Context, in VerifyOtpInput) (*VerifyOtpOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyOtp")
	defer span.End()

	in.CountryCode = strings.TrimSpace(in.CountryCode)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Code = strings.TrimSpace(in.Code)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	purpose := entity.ParsePurpose(in.Purpose)
	if purpose.IsUnknown() {
		return nil, errUnknownPurpose()
	}

	attempt := entity.VerifyAttempt{
		Key: entity.Key{CountryCode: in.CountryCode, PhoneNumber: in.PhoneNumber, Purpose: purpose},
		Now: s.clock.Now(),
	}

	outcome, err := s.repoDB.VerifyCode(ctx, attempt, func(stored string) bool {
		return s.hash.Verify(stored, in.Code)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo verify code", "purpose", purpose.String(), "error", err)
		return nil, storageError(err)
	}

	if outcome.Result != entity.VerifyResultValid {
		var remaining int32
		if outcome.Record != nil {
			remaining = outcome.Record.RemainingAttempts()
		}
		slog.WarnContext(ctx, "otp verification rejected", "purpose", purpose.String(), "reason", outcome.Result.String())
		return nil, errVerify(outcome.Result, remaining)
	}

	slog.InfoContext(ctx, "otp verified", "otp_id", outcome.Record.ID, "purpose", purpose.String(), "attempts", outcome.Record.Attempts)

	return &VerifyOtpOutput{Verified: true, Purpose: purpose.String()}, nil
}
