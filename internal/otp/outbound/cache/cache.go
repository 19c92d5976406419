package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const cooldownPrefix = "otp:cooldown:"

type Cache struct {
	client redis.Cmdable
	ins    instrument.Instrumentation
}

func NewCache(client redis.Cmdable, ins instrument.Instrumentation) *Cache {
	return &Cache{client: client, ins: ins}
}

func cooldownKey(key entity.Key) string {
	return cooldownPrefix + key.String()
}

// ClaimCooldown sets the resend marker of key for ttl. When the marker is
// already set it returns ok=false and the time left on it.
func (c *Cache) ClaimCooldown(ctx context.Context, key entity.Key, ttl time.Duration) (ok bool, remaining time.Duration, err error) {
	ctx, span := c.startSpan(ctx, "ClaimCooldown")
	defer func() { c.endSpan(span, err) }()

	k := cooldownKey(key)

	ok, err = c.client.SetNX(ctx, k, "1", ttl).Result()
	if err != nil {
		return false, 0, unavailable(err)
	}
	if ok {
		return true, 0, nil
	}

	remaining, err = c.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, unavailable(err)
	}
	// -1 no expiry, -2 expired between the two calls
	if remaining < 0 {
		remaining = 0
	}

	return false, remaining, nil
}

// ReleaseCooldown removes the resend marker of key.
func (c *Cache) ReleaseCooldown(ctx context.Context, key entity.Key) (err error) {
	ctx, span := c.startSpan(ctx, "ReleaseCooldown")
	defer func() { c.endSpan(span, err) }()

	err = c.client.Del(ctx, cooldownKey(key)).Err()
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return unavailable(err)
}

// every command failure of the cooldown store counts as an outage
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", goerror.ErrUnavailable, err)
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("otp.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
