package messaging

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	memoryBuffer       = 256
	memoryMaxRedeliver = 3
)

// Memory is an in-process broker. Messages are fanned out to every group
// subscribed to the destination and each group delivers a message to one
// of its consumers. A message published with no subscriber is dropped, as
// on NATS core. Nacked messages are redelivered a few times.
type Memory struct {
	mu     sync.Mutex
	topics map[string]map[string]*memoryGroup
	closed bool
	seq    atomic.Int64
	anon   atomic.Int64
}

type memoryGroup struct {
	ch      chan *memoryMessage
	members int
}

func NewMemory() *Memory {
	return &Memory{topics: map[string]map[string]*memoryGroup{}}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrDestinationRequired
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return PublishResult{}, io.ErrClosedPipe
	}
	groups := make([]*memoryGroup, 0, len(m.topics[destination]))
	for _, g := range m.topics[destination] {
		groups = append(groups, g)
	}
	m.mu.Unlock()

	offset := m.seq.Add(1)
	now := time.Now()
	for _, g := range groups {
		mm := &memoryMessage{
			out:         msg,
			destination: destination,
			offset:      offset,
			at:          now,
			group:       g,
		}
		select {
		case g.ch <- mm:
		case <-ctx.Done():
			return PublishResult{}, ctx.Err()
		}
	}

	return PublishResult{Destination: destination, Offset: offset, Timestamp: now}, nil
}

func (m *Memory) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if source == "" {
		return ErrDestinationRequired
	}
	if handler == nil {
		return ErrHandlerRequired
	}

	co := newConsumeOptions(opts...)
	name := co.group
	if name == "" {
		name = fmt.Sprintf("anonymous-%d", m.anon.Add(1))
	}

	g, err := m.join(source, name)
	if err != nil {
		return err
	}
	defer m.leave(source, name)

	var wg sync.WaitGroup
	for range co.concurrency {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case mm := <-g.ch:
					_ = dispatch(ctx, DriverMemory, handler, mm, co.autoAck)
				}
			}
		})
	}
	wg.Wait()

	return ctx.Err()
}

// Subscribers reports how many groups currently consume destination.
func (m *Memory) Subscribers(destination string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[destination])
}

func (m *Memory) join(source, name string) (*memoryGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, io.ErrClosedPipe
	}
	if m.topics[source] == nil {
		m.topics[source] = map[string]*memoryGroup{}
	}
	g, ok := m.topics[source][name]
	if !ok {
		g = &memoryGroup{ch: make(chan *memoryMessage, memoryBuffer)}
		m.topics[source][name] = g
	}
	g.members++
	return g, nil
}

func (m *Memory) leave(source, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.topics[source][name]
	if !ok {
		return
	}
	g.members--
	if g.members <= 0 {
		delete(m.topics[source], name)
	}
}

type memoryMessage struct {
	responder

	out         OutgoingMessage
	destination string
	offset      int64
	at          time.Time
	delivery    int
	group       *memoryGroup
}

func (mm *memoryMessage) Body() []byte         { return mm.out.Body }
func (mm *memoryMessage) Key() []byte          { return mm.out.Key }
func (mm *memoryMessage) Headers() []Header    { return mm.out.Headers }
func (mm *memoryMessage) ID() string           { return fmt.Sprintf("%s/%d", mm.destination, mm.offset) }
func (mm *memoryMessage) Destination() string  { return mm.destination }
func (mm *memoryMessage) Timestamp() time.Time { return mm.at }

func (mm *memoryMessage) Ack(ctx context.Context) error {
	mm.claim()
	return ctx.Err()
}

func (mm *memoryMessage) Nack(ctx context.Context) error {
	if !mm.claim() || mm.delivery+1 >= memoryMaxRedeliver {
		return ctx.Err()
	}

	next := &memoryMessage{
		out:         mm.out,
		destination: mm.destination,
		offset:      mm.offset,
		at:          mm.at,
		delivery:    mm.delivery + 1,
		group:       mm.group,
	}
	select {
	case mm.group.ch <- next:
	default:
	}
	return ctx.Err()
}
