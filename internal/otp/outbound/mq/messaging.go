package mq

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/messaging"
	"github.com/shandysiswandi/gotp/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

type Messaging struct {
	client messaging.Publisher
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

// PublishDelivery hands a freshly issued code to the transport. plainCode
// is the code as sent to the user, rec.Code may be a hash.
func (m *Messaging) PublishDelivery(ctx context.Context, rec entity.Record, plainCode string) error {
	ctx, span := m.ins.Tracer("otp.outbound.mq").Start(ctx, "PublishDelivery")
	defer span.End()

	body, err := json.Marshal(event.OtpDeliveryRequestedMessage{
		OtpID:       rec.ID,
		CountryCode: rec.Subject.CountryCode,
		PhoneNumber: rec.Subject.PhoneNumber,
		Email:       rec.Subject.Email,
		Purpose:     rec.Purpose.String(),
		Code:        plainCode,
		ExpiresAt:   rec.ExpiresAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.OtpDeliveryRequestedDestination, messaging.OutgoingMessage{
		Body:    body,
		Key:     []byte(rec.Key().String()),
		Headers: []messaging.Header{{Key: event.HeaderCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
