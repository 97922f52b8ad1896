package claims

import (
	"context"
	"sync"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// EventStore is the append-only log of claim events.
type EventStore interface {
	// Append writes events atomically, assigning each a per-aggregate
	// sequence number in Version.
	Append(ctx context.Context, events ...*domainClaims.ClaimEvent) error
	// GetEvents returns an aggregate's events in sequence order.
	GetEvents(ctx context.Context, aggregateID string) ([]*domainClaims.ClaimEvent, error)
	// Query returns events matching the filter in append order.
	Query(ctx context.Context, filter domainClaims.EventFilter) ([]*domainClaims.ClaimEvent, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// InMemoryEventStore provides an in-memory event store implementation.
type InMemoryEventStore struct {
	mu          sync.RWMutex
	events      []*domainClaims.ClaimEvent
	byAggregate map[string][]*domainClaims.ClaimEvent
	versions    map[string]int
	closed      bool
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events:      make([]*domainClaims.ClaimEvent, 0),
		byAggregate: make(map[string][]*domainClaims.ClaimEvent),
		versions:    make(map[string]int),
	}
}

// Append appends events to the store.
func (s *InMemoryEventStore) Append(ctx context.Context, events ...*domainClaims.ClaimEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, event := range events {
		s.versions[event.AggregateID]++
		event.Version = s.versions[event.AggregateID]
		stored := copyEvent(event)
		s.events = append(s.events, stored)
		s.byAggregate[event.AggregateID] = append(s.byAggregate[event.AggregateID], stored)
	}
	return nil
}

// GetEvents returns all events for an aggregate.
func (s *InMemoryEventStore) GetEvents(ctx context.Context, aggregateID string) ([]*domainClaims.ClaimEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byAggregate[aggregateID]
	result := make([]*domainClaims.ClaimEvent, 0, len(events))
	for _, e := range events {
		result = append(result, copyEvent(e))
	}
	return result, nil
}

// Query returns events matching the filter.
func (s *InMemoryEventStore) Query(ctx context.Context, filter domainClaims.EventFilter) ([]*domainClaims.ClaimEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domainClaims.ClaimEvent, 0)
	for _, e := range s.events {
		if filter.Matches(e) {
			result = append(result, copyEvent(e))
		}
	}
	return applyLimit(result, filter.Limit), nil
}

// Count returns the number of stored events.
func (s *InMemoryEventStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

// Close marks the store closed.
func (s *InMemoryEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyEvent(e *domainClaims.ClaimEvent) *domainClaims.ClaimEvent {
	cp := *e
	if e.Payload != nil {
		cp.Payload = make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			cp.Payload[k] = v
		}
	}
	if e.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// applyLimit keeps the most recent limit events.
func applyLimit(events []*domainClaims.ClaimEvent, limit int) []*domainClaims.ClaimEvent {
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:]
	}
	return events
}
