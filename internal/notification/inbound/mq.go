package inbound

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/gotp/internal/pkg/config"
	"github.com/shandysiswandi/gotp/internal/pkg/goroutine"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/messaging"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"github.com/shandysiswandi/gotp/internal/shared/event"
)

const defaultConcurrency = 10

// RegisterMQConsumer starts one goroutine per enabled consumer. An empty
// modules.notification.consumer_names enables every consumer.
func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Consumer,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enabled := cfg.GetArray("modules.notification.consumer_names")
	group := cfg.GetString("modules.notification.consumer_group")
	concurrency := cfg.GetInt("modules.notification.concurrency")
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	var consumers = []struct {
		name    string
		topic   string // destination where publisher sent message
		group   string
		handler messaging.Handler
	}{
		{
			name:    event.OtpDeliveryRequestedConsumerNotification,
			topic:   event.OtpDeliveryRequestedDestination,
			group:   event.OtpDeliveryRequestedConsumerNotification,
			handler: mqHandler.OtpDeliveryRequested,
		},
	}

	for _, consumer := range consumers {
		if len(enabled) > 0 && !slices.Contains(enabled, consumer.name) {
			continue
		}
		if group != "" {
			consumer.group = group
		}

		routine.Go(ctx, func(pCtx context.Context) error {
			slog.InfoContext(ctx, "Running job for handling consumer", "consumer", consumer.name, "group", consumer.group)
			err := messenger.Consume(pCtx,
				consumer.topic,
				consumer.handler,
				messaging.WithGroup(consumer.group),
				messaging.WithAutoAck(true),
				messaging.WithConcurrency(concurrency),
			)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
}
