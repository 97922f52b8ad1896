package claims

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	infraClaims "github.com/blackms/claimflow/internal/infrastructure/claims"
	"github.com/blackms/claimflow/internal/infrastructure/events"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx      context.Context
	clock    *fakeClock
	stores   Stores
	bus      *events.EventBus
	claims   *ClaimService
	stealing *WorkStealingService
	balancer *LoadBalancer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStores(t, NewInMemoryStores())
}

func newFixtureWithStores(t *testing.T, stores Stores) *fixture {
	t.Helper()
	clock := newFakeClock()
	bus := events.New()
	locker := NewIssueLocker()
	opts := []Option{WithClock(clock.Now), WithBus(bus), WithLocker(locker)}

	return &fixture{
		ctx:      context.Background(),
		clock:    clock,
		stores:   stores,
		bus:      bus,
		claims:   NewClaimService(stores, opts...),
		stealing: NewWorkStealingService(stores, domainClaims.DefaultWorkStealingConfig(), opts...),
		balancer: NewLoadBalancer(stores, domainClaims.DefaultLoadBalanceConfig(), opts...),
	}
}

func (f *fixture) addIssue(t *testing.T, id string, caps ...string) *domainClaims.Issue {
	t.Helper()
	issue := domainClaims.NewIssue(id, "Issue "+id)
	issue.RequiredCapabilities = caps
	if err := f.claims.RegisterIssue(f.ctx, issue); err != nil {
		t.Fatalf("RegisterIssue(%s): %v", id, err)
	}
	return issue
}

func (f *fixture) addAgent(t *testing.T, id string, agentType domainClaims.AgentType, caps ...string) *domainClaims.Claimant {
	t.Helper()
	agent := domainClaims.NewAgent(id, id, agentType, caps...)
	if err := f.claims.RegisterClaimant(f.ctx, agent); err != nil {
		t.Fatalf("RegisterClaimant(%s): %v", id, err)
	}
	return agent
}

func (f *fixture) addHuman(t *testing.T, id string) *domainClaims.Claimant {
	t.Helper()
	human := domainClaims.NewHuman(id, id)
	if err := f.claims.RegisterClaimant(f.ctx, human); err != nil {
		t.Fatalf("RegisterClaimant(%s): %v", id, err)
	}
	return human
}

func (f *fixture) mustClaim(t *testing.T, issueID string, claimant *domainClaims.Claimant) *domainClaims.Claim {
	t.Helper()
	claim, err := f.claims.Claim(f.ctx, issueID, claimant)
	if err != nil {
		t.Fatalf("Claim(%s, %s): %v", issueID, claimant.ID, err)
	}
	return claim
}

func (f *fixture) mustGet(t *testing.T, issueID string) *domainClaims.Claim {
	t.Helper()
	claim, err := f.claims.GetClaim(f.ctx, issueID)
	if err != nil {
		t.Fatalf("GetClaim(%s): %v", issueID, err)
	}
	if claim == nil {
		t.Fatalf("GetClaim(%s) = nil, want open claim", issueID)
	}
	return claim
}

// eventTypes returns the bus history types for an issue in order.
func (f *fixture) eventTypes(issueID string) []domainClaims.ClaimEventType {
	history := f.bus.History(domainClaims.EventFilter{IssueID: issueID})
	types := make([]domainClaims.ClaimEventType, len(history))
	for i, e := range history {
		types[i] = e.Type
	}
	return types
}

func assertCode(t *testing.T, err error, want domainClaims.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", want)
	}
	if got := domainClaims.CodeOf(err); got != want {
		t.Fatalf("error code = %q, want %q (err: %v)", got, want, err)
	}
}

func assertEventTypes(t *testing.T, got []domainClaims.ClaimEventType, want ...domainClaims.ClaimEventType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

// failingEventStore rejects appends while fail is set.
type failingEventStore struct {
	infraClaims.EventStore
	mu   sync.Mutex
	fail bool
}

func (s *failingEventStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *failingEventStore) Append(ctx context.Context, evts ...*domainClaims.ClaimEvent) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("event log unavailable")
	}
	return s.EventStore.Append(ctx, evts...)
}
