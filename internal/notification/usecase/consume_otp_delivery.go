package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shandysiswandi/gotp/internal/notification/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/idempotency"
	"github.com/shandysiswandi/gotp/internal/pkg/mail"
	"github.com/shandysiswandi/gotp/internal/pkg/sms"
)

const purposeSignup = "SIGNUP"

type ConsumeOtpDeliveryInput struct {
	OtpID       string    `validate:"required"`
	CountryCode string    `validate:"required,countrycode"`
	PhoneNumber string    `validate:"required,phonedigits"`
	Email       string    `validate:"omitempty,email"`
	Purpose     string    `validate:"required"`
	Code        string    `validate:"required"`
	ExpiresAt   time.Time
}

// ConsumeOtpDelivery sends an issued code to its owner at most once per
// otp id. Malformed and already expired deliveries are dropped; an SMS
// failure is returned so the broker redelivers.
func (s *Usecase) ConsumeOtpDelivery(ctx context.Context, in ConsumeOtpDeliveryInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeOtpDelivery")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "otp_id", in.OtpID, "error", err)
		return nil
	}

	d := entity.Delivery{
		OtpID:       in.OtpID,
		CountryCode: in.CountryCode,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
		Purpose:     in.Purpose,
		Code:        in.Code,
		ExpiresAt:   in.ExpiresAt,
	}

	now := s.clock.Now()
	if d.Expired(now) {
		slog.WarnContext(ctx, "skip delivery of expired otp", "otp_id", d.OtpID, "expires_at", d.ExpiresAt)
		return nil
	}

	err := s.idempotency.Exec(ctx, "otp_delivery:"+d.OtpID, func(ctx context.Context) error {
		return s.deliver(ctx, d, now)
	},
		idempotency.WithReleaseOnFailure(),
		idempotency.WithStateTTL(d.ExpiresAt.Sub(now)+time.Minute),
	)
	if idempotency.IsDuplicate(err) {
		slog.InfoContext(ctx, "skip duplicate otp delivery", "otp_id", d.OtpID, "because", err)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to deliver otp", "otp_id", d.OtpID, "error", err)
		return err
	}

	return nil
}

func (s *Usecase) deliver(ctx context.Context, d entity.Delivery, now time.Time) error {
	minutes := d.ValidMinutes(now)

	for _, ch := range d.Channels() {
		switch ch {
		case entity.ChannelSMS:
			id, err := s.repoSMS.Send(ctx, sms.Message{To: d.Phone(), Body: s.smsBody(d.Code, minutes)})
			if err != nil {
				return fmt.Errorf("send sms: %w", err)
			}
			slog.InfoContext(ctx, "otp sms sent", "otp_id", d.OtpID, "message_id", id)

		case entity.ChannelEmail:
			msg, err := s.emailMessage(d, minutes)
			if err != nil {
				slog.ErrorContext(ctx, "failed to render otp email", "otp_id", d.OtpID, "error", err)
				continue
			}
			// The SMS already went out, a redelivery would send it twice.
			if err := s.repoMail.Send(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "failed to repo send otp email", "otp_id", d.OtpID, "error", err)
				continue
			}
			slog.InfoContext(ctx, "otp email sent", "otp_id", d.OtpID)
		}
	}

	return nil
}

func (s *Usecase) smsBody(code string, minutes int) string {
	return fmt.Sprintf("Your verification code is %s. Valid for %d minutes. Do not share this code with anyone. - %s",
		code, minutes, s.appName)
}

type emailData struct {
	Heading string
	Lead    string
	Code    string
	Minutes int
	AppName string
}

func (s *Usecase) emailMessage(d entity.Delivery, minutes int) (mail.Message, error) {
	subject := "Your verification code"
	data := emailData{
		Heading: "Verification Code",
		Lead:    "Your verification code is:",
		Code:    d.Code,
		Minutes: minutes,
		AppName: s.appName,
	}
	if d.Purpose == purposeSignup {
		subject = "Welcome! Verify your email address"
		data.Heading = "Welcome to " + s.appName + "!"
		data.Lead = "Thank you for signing up! Please use the code below to verify your email address:"
	}

	var html, text bytes.Buffer
	if err := emailHTML.Execute(&html, data); err != nil {
		return mail.Message{}, err
	}
	if err := emailText.Execute(&text, data); err != nil {
		return mail.Message{}, err
	}

	return mail.Message{
		To:       []string{d.Email},
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
