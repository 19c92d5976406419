package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consumeInBackground(t *testing.T, m *Memory, source string, handler Handler, opts ...ConsumeOption) context.CancelFunc {
	t.Helper()

	before := members(m, source)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Consume(ctx, source, handler, opts...)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// wait for this consumer to join its group
	require.Eventually(t, func() bool {
		return members(m, source) > before
	}, time.Second, 5*time.Millisecond)

	return cancel
}

func members(m *Memory, source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, g := range m.topics[source] {
		n += g.members
	}
	return n
}

func TestMemory_PublishConsume(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got := make(chan Message, 1)
	consumeInBackground(t, m, "topic", func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	}, WithGroup("g1"), WithAutoAck(true))

	res, err := m.Publish(ctx, "topic", OutgoingMessage{
		Body:    []byte(`{"a":1}`),
		Headers: []Header{{Key: "cID", Value: []byte("abc")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "topic", res.Destination)

	select {
	case msg := <-got:
		assert.Equal(t, `{"a":1}`, string(msg.Body()))
		assert.Equal(t, "abc", HeaderValue(msg, "cID"))
		assert.Empty(t, HeaderValue(msg, "missing"))
		assert.Equal(t, "topic", msg.Destination())
		assert.NotEmpty(t, msg.ID())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemory_GroupSharesStream(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var a, b atomic.Int32
	consumeInBackground(t, m, "topic", func(context.Context, Message) error { a.Add(1); return nil }, WithGroup("workers"))
	consumeInBackground(t, m, "topic", func(context.Context, Message) error { b.Add(1); return nil }, WithGroup("workers"))

	var other atomic.Int32
	consumeInBackground(t, m, "topic", func(context.Context, Message) error { other.Add(1); return nil }, WithGroup("audit"))
	require.Equal(t, 2, m.Subscribers("topic"))

	for range 10 {
		_, err := m.Publish(ctx, "topic", OutgoingMessage{Body: []byte("x")})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return a.Load()+b.Load() == 10 && other.Load() == 10
	}, time.Second, 5*time.Millisecond)
}

func TestMemory_NackRedelivers(t *testing.T) {
	m := NewMemory()

	var calls atomic.Int32
	consumeInBackground(t, m, "topic", func(context.Context, Message) error {
		calls.Add(1)
		return errors.New("temporary")
	}, WithGroup("g"), WithAutoAck(true))

	_, err := m.Publish(context.Background(), "topic", OutgoingMessage{Body: []byte("x")})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return calls.Load() == memoryMaxRedeliver }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(memoryMaxRedeliver), calls.Load())
}

func TestMemory_PanicIsRecovered(t *testing.T) {
	m := NewMemory()

	var mu sync.Mutex
	var seen []string
	consumeInBackground(t, m, "topic", func(_ context.Context, msg Message) error {
		if string(msg.Body()) == "boom" {
			panic("boom")
		}
		mu.Lock()
		seen = append(seen, string(msg.Body()))
		mu.Unlock()
		return nil
	}, WithGroup("g"))

	ctx := context.Background()
	_, err := m.Publish(ctx, "topic", OutgoingMessage{Body: []byte("boom")})
	require.NoError(t, err)
	_, err = m.Publish(ctx, "topic", OutgoingMessage{Body: []byte("ok")})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "ok"
	}, time.Second, 5*time.Millisecond)
}

func TestMemory_Validation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Publish(ctx, "", OutgoingMessage{})
	assert.ErrorIs(t, err, ErrDestinationRequired)

	assert.ErrorIs(t, m.Consume(ctx, "topic", nil), ErrHandlerRequired)

	require.NoError(t, m.Close())
	_, err = m.Publish(ctx, "topic", OutgoingMessage{})
	assert.Error(t, err)
}

func TestNewFromDriver(t *testing.T) {
	m, err := NewFromDriver("memory", FactoryOptions{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	_, err = NewFromDriver("rabbit", FactoryOptions{})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = NewFromDriver(DriverKafka, FactoryOptions{})
	assert.ErrorIs(t, err, ErrKafkaBrokersRequired)

	_, err = NewFromDriver(DriverNATS, FactoryOptions{})
	assert.ErrorIs(t, err, ErrNATSURLRequired)
}
