// Package events provides the in-process event bus for claim notifications.
package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	"github.com/blackms/claimflow/internal/logging"
)

// Wildcard subscribes to every event type.
const Wildcard domainClaims.ClaimEventType = "*"

// DefaultHistorySize is the default capacity of the history buffer.
const DefaultHistorySize = 1000

// Handler handles a published event. A returned error is logged and never
// reaches the emitter.
type Handler func(ctx context.Context, event *domainClaims.ClaimEvent) error

type subscription struct {
	id        string
	eventType domainClaims.ClaimEventType
	handler   Handler
	onRemove  func()
}

// EventBus is a publish-subscribe bus keyed by event type. It is safe for
// concurrent use.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[domainClaims.ClaimEventType][]*subscription
	byID        map[string]*subscription
	history     []*domainClaims.ClaimEvent
	historySize int
	logger      *logging.Logger
	closed      bool
}

// Option configures the EventBus.
type Option func(*EventBus)

// WithHistorySize sets the history capacity.
func WithHistorySize(size int) Option {
	return func(eb *EventBus) {
		if size > 0 {
			eb.historySize = size
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *logging.Logger) Option {
	return func(eb *EventBus) {
		if logger != nil {
			eb.logger = logger
		}
	}
}

// New creates a new EventBus.
func New(opts ...Option) *EventBus {
	eb := &EventBus{
		subscribers: make(map[domainClaims.ClaimEventType][]*subscription),
		byID:        make(map[string]*subscription),
		historySize: DefaultHistorySize,
		logger:      logging.NopLogger(),
	}

	for _, opt := range opts {
		opt(eb)
	}
	eb.logger = eb.logger.WithComponent("event-bus")

	return eb
}

// Subscribe registers handler for events of the given type and returns the
// subscription id.
func (eb *EventBus) Subscribe(eventType domainClaims.ClaimEventType, handler Handler) string {
	return eb.subscribe(eventType, handler, nil)
}

// SubscribeAll registers handler for every event.
func (eb *EventBus) SubscribeAll(handler Handler) string {
	return eb.subscribe(Wildcard, handler, nil)
}

func (eb *EventBus) subscribe(eventType domainClaims.ClaimEventType, handler Handler, onRemove func()) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscription{
		id:        uuid.New().String(),
		eventType: eventType,
		handler:   handler,
		onRemove:  onRemove,
	}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], sub)
	eb.byID[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether the id was known.
func (eb *EventBus) Unsubscribe(id string) bool {
	eb.mu.Lock()
	sub, ok := eb.byID[id]
	if ok {
		delete(eb.byID, id)
		subs := eb.subscribers[sub.eventType]
		for i, s := range subs {
			if s.id == id {
				eb.subscribers[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(eb.subscribers[sub.eventType]) == 0 {
			delete(eb.subscribers, sub.eventType)
		}
	}
	eb.mu.Unlock()

	if ok && sub.onRemove != nil {
		sub.onRemove()
	}
	return ok
}

// Stream returns a buffered channel receiving events of the given type (or
// Wildcard) together with its subscription id. Delivery is non-blocking: when
// the buffer is full the event is dropped for this stream. Unsubscribe closes
// the channel.
func (eb *EventBus) Stream(eventType domainClaims.ClaimEventType, buffer int) (<-chan *domainClaims.ClaimEvent, string) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan *domainClaims.ClaimEvent, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	send := func(_ context.Context, event *domainClaims.ClaimEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case ch <- event:
		default:
		}
		return nil
	}
	closeCh := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
	return ch, eb.subscribe(eventType, send, closeCh)
}

// Emit records the event in history and delivers it to every matching
// handler concurrently, returning once all have finished. Handler errors and
// panics are logged and isolated from each other and from the caller.
func (eb *EventBus) Emit(ctx context.Context, event *domainClaims.ClaimEvent) {
	if event == nil {
		return
	}

	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.record(event)
	typed := eb.subscribers[event.Type]
	wildcard := eb.subscribers[Wildcard]
	targets := make([]*subscription, 0, len(typed)+len(wildcard))
	targets = append(targets, typed...)
	targets = append(targets, wildcard...)
	eb.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, sub := range targets {
		sub := sub
		wg.Go(func() {
			eb.safeCall(ctx, sub, event)
		})
	}
	wg.Wait()
}

// EmitAll emits events in order.
func (eb *EventBus) EmitAll(ctx context.Context, events ...*domainClaims.ClaimEvent) {
	for _, event := range events {
		eb.Emit(ctx, event)
	}
}

func (eb *EventBus) safeCall(ctx context.Context, sub *subscription, event *domainClaims.ClaimEvent) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panicked",
				"subscription", sub.id,
				"event_type", string(event.Type),
				"issue_id", event.IssueID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		eb.logger.Error("event handler failed",
			"subscription", sub.id,
			"event_type", string(event.Type),
			"issue_id", event.IssueID,
			"error", err,
		)
	}
}

// record appends to history, halving it once capacity is exceeded.
// Caller holds eb.mu.
func (eb *EventBus) record(event *domainClaims.ClaimEvent) {
	eb.history = append(eb.history, event)
	if len(eb.history) > eb.historySize {
		keep := eb.historySize / 2
		trimmed := make([]*domainClaims.ClaimEvent, keep)
		copy(trimmed, eb.history[len(eb.history)-keep:])
		eb.history = trimmed
	}
}

// History returns recorded events matching filter, oldest first.
func (eb *EventBus) History(filter domainClaims.EventFilter) []*domainClaims.ClaimEvent {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	result := make([]*domainClaims.ClaimEvent, 0)
	for _, e := range eb.history {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result
}

// ClearHistory drops all recorded events.
func (eb *EventBus) ClearHistory() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.history = nil
}

// SubscriptionCount returns the number of subscriptions for eventType, or the
// total across all types when eventType is empty.
func (eb *EventBus) SubscriptionCount(eventType domainClaims.ClaimEventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eventType == "" {
		return len(eb.byID)
	}
	return len(eb.subscribers[eventType])
}

// Close removes all subscriptions and stops delivery. Streams are closed.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	subs := make([]*subscription, 0, len(eb.byID))
	for _, s := range eb.byID {
		subs = append(subs, s)
	}
	eb.subscribers = make(map[domainClaims.ClaimEventType][]*subscription)
	eb.byID = make(map[string]*subscription)
	eb.mu.Unlock()

	for _, s := range subs {
		if s.onRemove != nil {
			s.onRemove()
		}
	}
}

// IsClosed reports whether Close has been called.
func (eb *EventBus) IsClosed() bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.closed
}
