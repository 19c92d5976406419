package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/gotp/internal/notification/usecase"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/messaging"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"github.com/shandysiswandi/gotp/internal/shared/event"
)

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID := messaging.HeaderValue(msg, event.HeaderCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// OtpDeliveryRequested sends a freshly issued code. The body carries the
// code, so only the message id and destination are logged.
func (h *MQHandler) OtpDeliveryRequested(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "OtpDeliveryRequested")
	defer span.End()

	slog.InfoContext(ctx, "consume: otp delivery requested", "msg_id", msg.ID(), "destination", msg.Destination())

	var payload event.OtpDeliveryRequestedMessage
	if err := json.Unmarshal(msg.Body(), &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of otp delivery requested", "msg_id", msg.ID(), "error", err)
		return nil
	}

	if err := h.uc.ConsumeOtpDelivery(ctx, usecase.ConsumeOtpDeliveryInput{
		OtpID:       payload.OtpID,
		CountryCode: payload.CountryCode,
		PhoneNumber: payload.PhoneNumber,
		Email:       payload.Email,
		Purpose:     payload.Purpose,
		Code:        payload.Code,
		ExpiresAt:   payload.ExpiresAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume otp delivery requested", "msg_id", msg.ID(), "otp_id", payload.OtpID, "error", err)
		return err
	}

	return nil
}
