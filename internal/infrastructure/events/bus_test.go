package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	"github.com/blackms/claimflow/internal/logging"
)

func newEvent(eventType domainClaims.ClaimEventType, issueID string) *domainClaims.ClaimEvent {
	claim := domainClaims.NewClaim("c-"+issueID, issueID, *domainClaims.NewHuman("h1", "Human"), time.Now())
	return domainClaims.NewClaimEvent(eventType, claim, time.Now(), nil)
}

func TestEmitDeliversToTypedAndWildcard(t *testing.T) {
	bus := New()
	var typed, all int32

	bus.Subscribe(domainClaims.EventIssueStolen, func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		atomic.AddInt32(&typed, 1)
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		atomic.AddInt32(&all, 1)
		return nil
	})

	ctx := context.Background()
	bus.Emit(ctx, newEvent(domainClaims.EventIssueStolen, "I1"))
	bus.Emit(ctx, newEvent(domainClaims.EventClaimCreated, "I2"))

	if got := atomic.LoadInt32(&typed); got != 1 {
		t.Errorf("typed handler calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&all); got != 2 {
		t.Errorf("wildcard handler calls = %d, want 2", got)
	}
}

func TestEmitIsolatesFailures(t *testing.T) {
	var buf bytes.Buffer
	bus := New(WithLogger(logging.New(&buf, logging.LevelError)))
	var delivered int32

	bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		panic("boom")
	})
	bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		return errors.New("handler failed")
	})
	bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	bus.Emit(context.Background(), newEvent(domainClaims.EventClaimCreated, "I1"))

	if got := atomic.LoadInt32(&delivered); got != 1 {
		t.Fatalf("healthy handler calls = %d, want 1", got)
	}
	out := buf.String()
	if !strings.Contains(out, "event handler panicked") {
		t.Errorf("panic not logged: %s", out)
	}
	if !strings.Contains(out, "handler failed") {
		t.Errorf("handler error not logged: %s", out)
	}
}

func TestEmitWaitsForAllHandlers(t *testing.T) {
	bus := New()
	var done int32
	for i := 0; i < 5; i++ {
		bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		})
	}

	bus.Emit(context.Background(), newEvent(domainClaims.EventClaimCreated, "I1"))

	if got := atomic.LoadInt32(&done); got != 5 {
		t.Errorf("completed handlers after Emit = %d, want 5", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	var calls int32
	id := bus.Subscribe(domainClaims.EventClaimCreated, func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if got := bus.SubscriptionCount(domainClaims.EventClaimCreated); got != 1 {
		t.Fatalf("SubscriptionCount = %d, want 1", got)
	}
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for known id")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe returned true for removed id")
	}

	bus.Emit(context.Background(), newEvent(domainClaims.EventClaimCreated, "I1"))
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("handler called %d times after unsubscribe", got)
	}
	if got := bus.SubscriptionCount(""); got != 0 {
		t.Errorf("total SubscriptionCount = %d, want 0", got)
	}
}

func TestHistoryHalvesWhenFull(t *testing.T) {
	bus := New(WithHistorySize(10))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		bus.Emit(ctx, newEvent(domainClaims.EventClaimCreated, "I"))
	}
	if got := len(bus.History(domainClaims.EventFilter{})); got != 10 {
		t.Fatalf("history at capacity = %d, want 10", got)
	}

	last := newEvent(domainClaims.EventClaimReleased, "LAST")
	bus.Emit(ctx, last)

	history := bus.History(domainClaims.EventFilter{})
	if len(history) != 5 {
		t.Fatalf("history after overflow = %d, want 5", len(history))
	}
	if history[len(history)-1].ID != last.ID {
		t.Error("most recent event was not retained")
	}
}

func TestHistoryFilter(t *testing.T) {
	bus := New()
	ctx := context.Background()
	bus.Emit(ctx, newEvent(domainClaims.EventClaimCreated, "I1"))
	bus.Emit(ctx, newEvent(domainClaims.EventIssueStolen, "I1"))
	bus.Emit(ctx, newEvent(domainClaims.EventIssueStolen, "I2"))

	tests := []struct {
		name   string
		filter domainClaims.EventFilter
		want   int
	}{
		{"all", domainClaims.EventFilter{}, 3},
		{"by issue", domainClaims.EventFilter{IssueID: "I1"}, 2},
		{"by type", domainClaims.EventFilter{EventTypes: []domainClaims.ClaimEventType{domainClaims.EventIssueStolen}}, 2},
		{"limit", domainClaims.EventFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(bus.History(tt.filter)); got != tt.want {
				t.Errorf("History() len = %d, want %d", got, tt.want)
			}
		})
	}

	bus.ClearHistory()
	if got := len(bus.History(domainClaims.EventFilter{})); got != 0 {
		t.Errorf("history after clear = %d, want 0", got)
	}
}

func TestStream(t *testing.T) {
	bus := New()
	ch, id := bus.Stream(domainClaims.EventIssueStolen, 1)

	ctx := context.Background()
	bus.Emit(ctx, newEvent(domainClaims.EventIssueStolen, "I1"))
	// Buffer is full; this one is dropped rather than blocking.
	bus.Emit(ctx, newEvent(domainClaims.EventIssueStolen, "I2"))

	select {
	case e := <-ch:
		if e.IssueID != "I1" {
			t.Errorf("streamed issue = %s, want I1", e.IssueID)
		}
	default:
		t.Fatal("expected a buffered event")
	}

	bus.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("stream not closed after unsubscribe")
	}
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	bus := New(WithHistorySize(50))
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error { return nil })
			bus.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			bus.Emit(ctx, newEvent(domainClaims.EventClaimCreated, "I"))
		}()
	}
	wg.Wait()

	if got := len(bus.History(domainClaims.EventFilter{})); got == 0 || got > 50 {
		t.Errorf("history len = %d, want within (0, 50]", got)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := New()
	var calls int32
	bus.SubscribeAll(func(ctx context.Context, e *domainClaims.ClaimEvent) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	bus.Close()
	bus.Emit(context.Background(), newEvent(domainClaims.EventClaimCreated, "I1"))

	if !bus.IsClosed() {
		t.Error("IsClosed = false after Close")
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("handler called %d times after Close", got)
	}
}
