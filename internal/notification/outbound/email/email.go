package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Mail delivers OTP emails through the configured mail driver.
type Mail struct {
	client mail.Mail
	ins    instrument.Instrumentation
}

func New(client mail.Mail, ins instrument.Instrumentation) *Mail {
	return &Mail{client: client, ins: ins}
}

func (m *Mail) Send(ctx context.Context, msg mail.Message) error {
	ctx, span := m.ins.Tracer("notification.outbound.email").Start(ctx, "Send")
	defer span.End()

	span.SetAttributes(
		attribute.Int("mail.recipients", len(msg.To)),
		attribute.Bool("mail.html", msg.HTMLBody != ""),
	)

	if len(msg.To) == 0 {
		err := errors.New("email: message has no recipient")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := m.client.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("email: send: %w", err)
	}

	return nil
}
