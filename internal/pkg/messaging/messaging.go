package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrDestinationRequired is returned when the topic or subject is empty.
	ErrDestinationRequired = errors.New("messaging: destination is required")
	// ErrHandlerRequired is returned when Consume is called with a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
)

// Messaging is a broker client that can publish and consume.
type Messaging interface {
	io.Closer

	Publisher
	Consumer
}

// Publisher sends messages to a destination (topic or subject).
type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

// Consumer blocks delivering messages of source to handler until ctx is
// done or the broker fails.
type Consumer interface {
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes one received message. With auto ack enabled a nil
// return acks the message and an error nacks it.
type Handler func(ctx context.Context, msg Message) error

// OutgoingMessage is a message to publish.
type OutgoingMessage struct {
	// Body is the payload.
	Body []byte
	// Key selects the partition on Kafka. Ignored elsewhere.
	Key []byte
	// Headers allow duplicate keys.
	Headers []Header
}

// Header is a message header.
type Header struct {
	Key   string
	Value []byte
}

// PublishResult describes where a message landed.
type PublishResult struct {
	Destination string
	Partition   int32
	Offset      int64
	Timestamp   time.Time
}

// Message is a received message.
type Message interface {
	Body() []byte
	Key() []byte
	Headers() []Header
	// ID is unique per broker delivery position, not per payload.
	ID() string
	Destination() string
	Timestamp() time.Time

	Ack(ctx context.Context) error
	Nack(ctx context.Context) error
}

// HeaderValue returns the first value of header key on msg, or "".
func HeaderValue(msg Message, key string) string {
	for _, h := range msg.Headers() {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
