package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/messaging"
	"github.com/shandysiswandi/gotp/internal/shared/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	destination string
	msg         messaging.OutgoingMessage
	err         error
}

func (p *recordingPublisher) Publish(_ context.Context, destination string, msg messaging.OutgoingMessage) (messaging.PublishResult, error) {
	p.destination = destination
	p.msg = msg
	return messaging.PublishResult{Destination: destination}, p.err
}

func TestMessaging_PublishDelivery(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewMessaging(pub, instrument.NewNoop())

	expiresAt := time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC)
	rec := entity.Record{
		ID:        "0190e0f2-0000-7000-8000-000000000001",
		Subject:   entity.Subject{CountryCode: "+1", PhoneNumber: "5551234567", Email: "a@example.com"},
		Purpose:   entity.PurposeSignup,
		Code:      "hashed-value",
		ExpiresAt: expiresAt,
	}

	ctx := instrument.SetCorrelationID(context.Background(), "corr-1")
	require.NoError(t, m.PublishDelivery(ctx, rec, "123456"))

	assert.Equal(t, event.OtpDeliveryRequestedDestination, pub.destination)
	assert.Equal(t, "+15551234567:signup", string(pub.msg.Key))
	require.Len(t, pub.msg.Headers, 1)
	assert.Equal(t, event.HeaderCorrelationID, pub.msg.Headers[0].Key)
	assert.Equal(t, "corr-1", string(pub.msg.Headers[0].Value))

	var got event.OtpDeliveryRequestedMessage
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, event.OtpDeliveryRequestedMessage{
		OtpID:       rec.ID,
		CountryCode: "+1",
		PhoneNumber: "5551234567",
		Email:       "a@example.com",
		Purpose:     "SIGNUP",
		Code:        "123456",
		ExpiresAt:   expiresAt,
	}, got)
}

func TestMessaging_PublishDeliveryError(t *testing.T) {
	errBroker := errors.New("broker down")
	m := NewMessaging(&recordingPublisher{err: errBroker}, instrument.NewNoop())

	err := m.PublishDelivery(context.Background(), entity.Record{Purpose: entity.PurposeLogin}, "123456")
	assert.ErrorIs(t, err, errBroker)
}
