package claims

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ClaimStatus
		ok   bool
	}{
		{"active", StatusActive, true},
		{" Paused ", StatusPaused, true},
		{"pending_handoff", StatusPendingHandoff, true},
		{"handoff-pending", StatusPendingHandoff, true},
		{"review-requested", StatusInReview, true},
		{"in-review", StatusInReview, true},
		{"done", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}

	if StatusPendingHandoff.DisplayName() != "handoff-pending" || StatusActive.DisplayName() != "active" {
		t.Error("unexpected display names")
	}
}

func TestStatusClasses(t *testing.T) {
	tests := []struct {
		status   ClaimStatus
		active   bool
		terminal bool
	}{
		{StatusActive, true, false},
		{StatusPaused, true, false},
		{StatusBlocked, true, false},
		{StatusPendingHandoff, true, false},
		{StatusInReview, true, false},
		{StatusStealable, false, false},
		{StatusCompleted, false, true},
		{StatusReleased, false, true},
		{StatusExpired, false, true},
	}
	for _, tt := range tests {
		if tt.status.IsActive() != tt.active {
			t.Errorf("%s.IsActive() = %v, want %v", tt.status, !tt.active, tt.active)
		}
		if tt.status.IsTerminal() != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, !tt.terminal, tt.terminal)
		}
		if tt.status.IsOpen() == tt.terminal {
			t.Errorf("%s.IsOpen() should be the inverse of IsTerminal", tt.status)
		}
	}
}

func TestInferAgentType(t *testing.T) {
	tests := []struct {
		name  string
		caps  []string
		specs []string
		want  AgentType
	}{
		{"qa tester", nil, nil, AgentTester},
		{"helper", []string{"code-review"}, nil, AgentReviewer},
		{"helper", []string{"docs"}, []string{"security"}, AgentSecurity},
		{"Senior Engineer", nil, nil, AgentCoder},
		{"deploy-bot", nil, nil, AgentDevOps},
		{"mystery", []string{"testing"}, nil, AgentCoder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferAgentType(tt.name, tt.caps, tt.specs); got != tt.want {
				t.Errorf("InferAgentType(%q, %v, %v) = %s, want %s", tt.name, tt.caps, tt.specs, got, tt.want)
			}
		})
	}
}

func TestClaimantNormalize(t *testing.T) {
	c := &Claimant{ID: "x", Name: "research assistant", CurrentWorkload: 140}
	c.Normalize()

	if c.Type != ClaimantTypeAgent || c.AgentType != AgentResearcher {
		t.Errorf("expected an inferred researcher agent, got %s/%s", c.Type, c.AgentType)
	}
	if c.MaxConcurrent != DefaultMaxConcurrentClaims {
		t.Errorf("MaxConcurrent = %d, want %d", c.MaxConcurrent, DefaultMaxConcurrentClaims)
	}
	if c.CurrentWorkload != 100 {
		t.Errorf("CurrentWorkload = %d, want clamped to 100", c.CurrentWorkload)
	}

	h := NewHuman("alice", "Alice")
	h.Normalize()
	if h.AgentType != "" || h.StealerType() != "human" {
		t.Errorf("humans carry no agent type, got %q / %q", h.AgentType, h.StealerType())
	}
}

func TestClaimantCapabilities(t *testing.T) {
	c := NewAgent("a1", "A1", AgentCoder, "Go", "sql")
	if !c.HasCapability("go") {
		t.Error("capability match should ignore case")
	}
	if !c.HasAllCapabilities([]string{"GO", "SQL"}) {
		t.Error("expected all capabilities present")
	}
	missing := c.MissingCapabilities([]string{"go", "rust", "k8s"})
	if fmt.Sprint(missing) != "[rust k8s]" {
		t.Errorf("MissingCapabilities = %v, want [rust k8s]", missing)
	}
}

func TestClaimError_Is(t *testing.T) {
	err := NewClaimError(CodeAlreadyClaimed, "issue %s is taken", "I1").WithDetail("claimantId", "a1")
	wrapped := fmt.Errorf("claim failed: %w", err)

	if !errors.Is(wrapped, ErrAlreadyClaimed) {
		t.Error("expected errors.Is to match on code through wrapping")
	}
	if errors.Is(wrapped, ErrNotClaimed) {
		t.Error("different codes must not match")
	}
	if CodeOf(wrapped) != CodeAlreadyClaimed {
		t.Errorf("CodeOf = %q", CodeOf(wrapped))
	}
	if CodeOf(errors.New("boom")) != "" {
		t.Error("CodeOf should be empty for plain errors")
	}
	if err.Error() != "ALREADY_CLAIMED: issue I1 is taken" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClaimClone(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	owner := NewAgent("a1", "A1", AgentCoder, "go")
	c := NewClaim("c1", "I1", *owner, now)
	c.AddNote("a1", "started", now)
	c.StealInfo = &StealableInfo{Reason: StealReasonStale, AllowedStealerTypes: []string{"tester"}}
	c.StealableAt = &now
	c.ContestInfo = &ContestInfo{WindowEndsAt: now, Resolution: &ContestResolution{Reason: "timeout"}}

	cp := c.Clone()
	cp.Claimant.Capabilities[0] = "rust"
	cp.Notes[0].Text = "changed"
	cp.StealInfo.AllowedStealerTypes[0] = "coder"
	*cp.StealableAt = now.Add(time.Hour)
	cp.ContestInfo.Resolution.Reason = "changed"

	if c.Claimant.Capabilities[0] != "go" || c.Notes[0].Text != "started" {
		t.Error("clone shares claimant or notes")
	}
	if c.StealInfo.AllowedStealerTypes[0] != "tester" || !c.StealableAt.Equal(now) {
		t.Error("clone shares steal state")
	}
	if c.ContestInfo.Resolution.Reason != "timeout" {
		t.Error("clone shares contest resolution")
	}
}

func TestClaimSetStatus_BlockedBookkeeping(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewClaim("c1", "I1", *NewAgent("a1", "A1", AgentCoder), now)

	c.SetStatus(StatusBlocked, "waiting on API", now.Add(time.Minute))
	if c.BlockedAt == nil || c.BlockedReason != "waiting on API" {
		t.Fatalf("expected blocked bookkeeping, got %v %q", c.BlockedAt, c.BlockedReason)
	}
	first := *c.BlockedAt

	c.SetStatus(StatusBlocked, "still waiting", now.Add(2*time.Minute))
	if !c.BlockedAt.Equal(first) {
		t.Error("re-blocking must keep the original BlockedAt")
	}

	c.SetStatus(StatusActive, "", now.Add(3*time.Minute))
	if c.BlockedAt != nil || c.BlockedReason != "" {
		t.Error("leaving blocked must clear bookkeeping")
	}
	if !c.LastActivityAt.Equal(now.Add(3 * time.Minute)) {
		t.Errorf("LastActivityAt = %v", c.LastActivityAt)
	}
}

func TestEventFilterMatches(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	e := &ClaimEvent{Type: EventClaimCreated, AggregateID: "c1", IssueID: "I1", Timestamp: now}

	before := now.Add(-time.Minute)
	after := now.Add(time.Minute)
	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty", EventFilter{}, true},
		{"issue", EventFilter{IssueID: "I1"}, true},
		{"other issue", EventFilter{IssueID: "I2"}, false},
		{"aggregate", EventFilter{AggregateID: "c2"}, false},
		{"type", EventFilter{EventTypes: []ClaimEventType{EventClaimReleased, EventClaimCreated}}, true},
		{"other type", EventFilter{EventTypes: []ClaimEventType{EventClaimReleased}}, false},
		{"window", EventFilter{FromTimestamp: &before, ToTimestamp: &after}, true},
		{"too early", EventFilter{FromTimestamp: &after}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(e); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
