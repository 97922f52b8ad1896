package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

func TestEventStore_AppendAssignsVersions(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			c1 := newClaim("c1", "I1", "a1", t0)
			c2 := newClaim("c2", "I2", "a2", t0)

			created := domainClaims.NewClaimCreatedEvent(c1, t0)
			other := domainClaims.NewClaimCreatedEvent(c2, t0.Add(time.Second))
			if err := b.events.Append(ctx, created, other); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			c1.Progress = 25
			progress := domainClaims.NewClaimProgressUpdatedEvent(c1, t0.Add(2*time.Second), 0).WithSource("test")
			if err := b.events.Append(ctx, progress); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			if created.Version != 1 || other.Version != 1 || progress.Version != 2 {
				t.Errorf("versions = %d, %d, %d; want 1, 1, 2", created.Version, other.Version, progress.Version)
			}

			evts, err := b.events.GetEvents(ctx, "c1")
			if err != nil {
				t.Fatalf("GetEvents() error = %v", err)
			}
			if len(evts) != 2 {
				t.Fatalf("GetEvents(c1) returned %d events, want 2", len(evts))
			}
			last := evts[1]
			if last.Type != domainClaims.EventClaimProgressUpdated || last.ClaimID != "c1" || last.Source != "test" {
				t.Errorf("last event = %+v", last)
			}
			if getInt(last.Payload, "progress") != 25 {
				t.Errorf("payload progress = %v, want 25", last.Payload["progress"])
			}
			if !last.Timestamp.Equal(t0.Add(2 * time.Second)) {
				t.Errorf("Timestamp = %v", last.Timestamp)
			}

			if n, _ := b.events.Count(ctx); n != 3 {
				t.Errorf("Count() = %d, want 3", n)
			}
		})
	}
}

func TestEventStore_Query(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			c1 := newClaim("c1", "I1", "a1", t0)
			c2 := newClaim("c2", "I2", "a2", t0)
			seed := []*domainClaims.ClaimEvent{
				domainClaims.NewClaimCreatedEvent(c1, t0),
				domainClaims.NewClaimCreatedEvent(c2, t0.Add(time.Minute)),
				domainClaims.NewClaimStatusChangedEvent(c1, t0.Add(2*time.Minute), domainClaims.StatusActive, domainClaims.StatusPaused, ""),
				domainClaims.NewClaimReleasedEvent(c1, t0.Add(3*time.Minute), "a1"),
			}
			if err := b.events.Append(ctx, seed...); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			from := t0.Add(90 * time.Second)
			to := t0.Add(150 * time.Second)
			tests := []struct {
				name   string
				filter domainClaims.EventFilter
				want   []domainClaims.ClaimEventType
			}{
				{"all", domainClaims.EventFilter{}, []domainClaims.ClaimEventType{
					domainClaims.EventClaimCreated, domainClaims.EventClaimCreated,
					domainClaims.EventClaimStatusChanged, domainClaims.EventClaimReleased,
				}},
				{"issue", domainClaims.EventFilter{IssueID: "I2"}, []domainClaims.ClaimEventType{
					domainClaims.EventClaimCreated,
				}},
				{"types", domainClaims.EventFilter{EventTypes: []domainClaims.ClaimEventType{
					domainClaims.EventClaimReleased, domainClaims.EventClaimStatusChanged,
				}}, []domainClaims.ClaimEventType{
					domainClaims.EventClaimStatusChanged, domainClaims.EventClaimReleased,
				}},
				{"window", domainClaims.EventFilter{FromTimestamp: &from, ToTimestamp: &to}, []domainClaims.ClaimEventType{
					domainClaims.EventClaimStatusChanged,
				}},
				{"limit keeps newest", domainClaims.EventFilter{AggregateID: "c1", Limit: 1}, []domainClaims.ClaimEventType{
					domainClaims.EventClaimReleased,
				}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := b.events.Query(ctx, tt.filter)
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					if len(got) != len(tt.want) {
						t.Fatalf("Query() returned %d events, want %d", len(got), len(tt.want))
					}
					for i, e := range got {
						if e.Type != tt.want[i] {
							t.Errorf("event[%d] = %s, want %s", i, e.Type, tt.want[i])
						}
					}
				})
			}

			changed, _ := b.events.Query(ctx, domainClaims.EventFilter{EventTypes: []domainClaims.ClaimEventType{domainClaims.EventClaimStatusChanged}})
			if s := getStatus(changed[0].Payload, "newStatus"); s != domainClaims.StatusPaused {
				t.Errorf("newStatus payload = %q, want paused", s)
			}
		})
	}
}

func TestInMemoryEventStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore()
	e := domainClaims.NewClaimCreatedEvent(newClaim("c1", "I1", "a1", t0), t0)
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	e.Payload["claimantId"] = "mutated"
	got, _ := store.GetEvents(ctx, "c1")
	if got[0].Payload["claimantId"] != "a1" {
		t.Error("stored event shares its payload with the caller")
	}

	got[0].Payload["claimantId"] = "mutated"
	again, _ := store.GetEvents(ctx, "c1")
	if again[0].Payload["claimantId"] != "a1" {
		t.Error("returned event shares its payload with the store")
	}
}

func TestEventStore_Closed(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			if err := b.events.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			e := domainClaims.NewClaimCreatedEvent(newClaim("c1", "I1", "a1", t0), t0)
			if err := b.events.Append(ctx, e); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Append() after Close error = %v, want ErrStoreClosed", err)
			}
		})
	}
}
