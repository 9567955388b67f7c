// Package bus implements the in-process message bus: four bounded FIFO
// queues (inbound, outbound, tool events, state changes) with blocking
// backpressure and best-effort fan-out to registered subscribers.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pocketrb/core/pkg/models"
)

// Stream names one of the four queues.
type Stream string

const (
	StreamInbound      Stream = "inbound"
	StreamOutbound     Stream = "outbound"
	StreamToolEvents   Stream = "tool_events"
	StreamStateChanges Stream = "state_changes"
)

// ErrShutdown is returned/signaled to consumers blocked on a closed queue.
// It is not an error condition the caller should alarm on.
var ErrShutdown = fmt.Errorf("bus: shutdown")

// Handler is a subscriber callback. A handler that panics is recovered and
// logged; it never blocks the publisher or other subscribers beyond its
// own synchronous run time.
type Handler func(event any)

// Stats holds the monotonic per-stream counters. Counters only reset via
// Clear.
type Stats struct {
	Published uint64
	Consumed  uint64
}

const defaultCapacity = 256

type queue struct {
	mu        sync.Mutex
	ch        chan any
	capacity  int
	closed    bool
	published uint64
	consumed  uint64
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &queue{ch: make(chan any, capacity), capacity: capacity}
}

func (q *queue) publish(ctx context.Context, v any) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShutdown
	}
	q.mu.Unlock()

	select {
	case q.ch <- v:
		q.mu.Lock()
		q.published++
		q.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consume blocks until a value is available, the queue is closed, or ctx
// is cancelled. ok is false only on shutdown.
func (q *queue) consume(ctx context.Context) (v any, ok bool, err error) {
	select {
	case v, open := <-q.ch:
		if !open {
			return nil, false, nil
		}
		q.mu.Lock()
		q.consumed++
		q.mu.Unlock()
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (q *queue) stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Published: q.published, Consumed: q.consumed}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

type subscriberList struct {
	mu       sync.Mutex
	handlers []Handler
}

func (s *subscriberList) add(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *subscriberList) fanOut(logger *slog.Logger, stream Stream, event any) {
	s.mu.Lock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		dispatch(logger, stream, h, event)
	}
}

func dispatch(logger *slog.Logger, stream Stream, h Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("bus subscriber panicked", "stream", string(stream), "panic", r)
			}
		}
	}()
	h(event)
}

// Bus is the single-process coordination substrate described by the
// agent core: four typed FIFO queues plus pub/sub fan-out. All methods are
// safe for concurrent use.
type Bus struct {
	logger *slog.Logger

	inbound      *queue
	outbound     *queue
	toolEvents   *queue
	stateChanges *queue

	subs map[Stream]*subscriberList
}

// New constructs a Bus with the default queue capacity per stream.
func New(logger *slog.Logger) *Bus {
	return NewWithCapacity(logger, defaultCapacity)
}

// NewWithCapacity constructs a Bus whose queues each hold up to capacity
// pending items before Publish* blocks.
func NewWithCapacity(logger *slog.Logger, capacity int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:       logger.With("component", "bus"),
		inbound:      newQueue(capacity),
		outbound:     newQueue(capacity),
		toolEvents:   newQueue(capacity),
		stateChanges: newQueue(capacity),
		subs: map[Stream]*subscriberList{
			StreamInbound:      {},
			StreamOutbound:     {},
			StreamToolEvents:   {},
			StreamStateChanges: {},
		},
	}
}

func (b *Bus) queueFor(s Stream) *queue {
	switch s {
	case StreamInbound:
		return b.inbound
	case StreamOutbound:
		return b.outbound
	case StreamToolEvents:
		return b.toolEvents
	case StreamStateChanges:
		return b.stateChanges
	default:
		return nil
	}
}

func (b *Bus) publish(ctx context.Context, stream Stream, v any) error {
	q := b.queueFor(stream)
	if q == nil {
		return fmt.Errorf("bus: unknown stream %q", stream)
	}
	if err := q.publish(ctx, v); err != nil {
		return err
	}
	b.subs[stream].fanOut(b.logger, stream, v)
	return nil
}

// PublishInbound enqueues an InboundMessage, blocking if the inbound queue
// is full.
func (b *Bus) PublishInbound(ctx context.Context, m models.InboundMessage) error {
	return b.publish(ctx, StreamInbound, m)
}

// ConsumeInbound blocks until an InboundMessage is available or the bus is
// shut down.
func (b *Bus) ConsumeInbound(ctx context.Context) (models.InboundMessage, bool, error) {
	v, ok, err := b.inbound.consume(ctx)
	if !ok || err != nil {
		return models.InboundMessage{}, ok, err
	}
	return v.(models.InboundMessage), true, nil
}

// PublishOutbound enqueues an OutboundMessage, blocking if the outbound
// queue is full.
func (b *Bus) PublishOutbound(ctx context.Context, m models.OutboundMessage) error {
	return b.publish(ctx, StreamOutbound, m)
}

// ConsumeOutbound blocks until an OutboundMessage is available or the bus
// is shut down.
func (b *Bus) ConsumeOutbound(ctx context.Context) (models.OutboundMessage, bool, error) {
	v, ok, err := b.outbound.consume(ctx)
	if !ok || err != nil {
		return models.OutboundMessage{}, ok, err
	}
	return v.(models.OutboundMessage), true, nil
}

// PublishToolEvent enqueues a ToolExecutionEvent.
func (b *Bus) PublishToolEvent(ctx context.Context, e models.ToolExecutionEvent) error {
	return b.publish(ctx, StreamToolEvents, e)
}

// ConsumeToolEvent blocks until a ToolExecutionEvent is available or the
// bus is shut down.
func (b *Bus) ConsumeToolEvent(ctx context.Context) (models.ToolExecutionEvent, bool, error) {
	v, ok, err := b.toolEvents.consume(ctx)
	if !ok || err != nil {
		return models.ToolExecutionEvent{}, ok, err
	}
	return v.(models.ToolExecutionEvent), true, nil
}

// PublishStateChange enqueues a StateChangeEvent.
func (b *Bus) PublishStateChange(ctx context.Context, e models.StateChangeEvent) error {
	if e.From == e.To {
		return fmt.Errorf("bus: %w: state change from and to must differ", ErrValidation)
	}
	return b.publish(ctx, StreamStateChanges, e)
}

// ConsumeStateChange blocks until a StateChangeEvent is available or the
// bus is shut down.
func (b *Bus) ConsumeStateChange(ctx context.Context) (models.StateChangeEvent, bool, error) {
	v, ok, err := b.stateChanges.consume(ctx)
	if !ok || err != nil {
		return models.StateChangeEvent{}, ok, err
	}
	return v.(models.StateChangeEvent), true, nil
}

// Subscribe registers handler to be invoked synchronously, in publish
// order, whenever a value is published on stream. Subscribers observe a
// strict superset of what Consume* dequeues: fan-out never drains the
// queue.
func (b *Bus) Subscribe(stream Stream, handler Handler) error {
	list, ok := b.subs[stream]
	if !ok {
		return fmt.Errorf("bus: unknown stream %q", stream)
	}
	list.add(handler)
	return nil
}

// Stats returns a snapshot of the running counters for every stream.
func (b *Bus) Stats() map[Stream]Stats {
	return map[Stream]Stats{
		StreamInbound:      b.inbound.stats(),
		StreamOutbound:     b.outbound.stats(),
		StreamToolEvents:   b.toolEvents.stats(),
		StreamStateChanges: b.stateChanges.stats(),
	}
}

// Shutdown closes all four queues. Blocked consumers observe ok=false
// (ErrShutdown semantics), not an error.
func (b *Bus) Shutdown() {
	b.inbound.close()
	b.outbound.close()
	b.toolEvents.close()
	b.stateChanges.close()
}

// Clear resets every queue and its counters. Intended for test harnesses
// only: callers must ensure no concurrent publisher/consumer is active.
func (b *Bus) Clear() {
	capacity := b.inbound.capacity
	b.inbound = newQueue(capacity)
	b.outbound = newQueue(capacity)
	b.toolEvents = newQueue(capacity)
	b.stateChanges = newQueue(capacity)
}
