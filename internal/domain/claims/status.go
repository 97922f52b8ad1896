// Package claims provides domain types and rules for issue claiming and work stealing.
package claims

import "strings"

// ClaimStatus represents the status of a claim.
type ClaimStatus string

const (
	StatusActive         ClaimStatus = "active"
	StatusPaused         ClaimStatus = "paused"
	StatusBlocked        ClaimStatus = "blocked"
	StatusPendingHandoff ClaimStatus = "pending_handoff"
	StatusInReview       ClaimStatus = "in_review"
	StatusStealable      ClaimStatus = "stealable"
	StatusCompleted      ClaimStatus = "completed"
	StatusReleased       ClaimStatus = "released"
	StatusExpired        ClaimStatus = "expired"
)

// statusAliases maps the hyphenated display names onto canonical statuses.
var statusAliases = map[string]ClaimStatus{
	"handoff-pending":  StatusPendingHandoff,
	"review-requested": StatusInReview,
	"in-review":        StatusInReview,
	"pending-handoff":  StatusPendingHandoff,
}

// ParseStatus resolves a canonical status name or one of its aliases.
func ParseStatus(s string) (ClaimStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := statusAliases[s]; ok {
		return alias, true
	}
	status := ClaimStatus(s)
	if IsValidStatus(status) {
		return status, true
	}
	return "", false
}

// DisplayName returns the hyphenated alias used by external tooling.
func (s ClaimStatus) DisplayName() string {
	switch s {
	case StatusPendingHandoff:
		return "handoff-pending"
	case StatusInReview:
		return "review-requested"
	default:
		return string(s)
	}
}

// IsActive reports whether the status occupies one of the claimant's slots.
// A stealable claim is still owned but no longer counts against capacity.
func (s ClaimStatus) IsActive() bool {
	switch s {
	case StatusActive, StatusPaused, StatusBlocked, StatusPendingHandoff, StatusInReview:
		return true
	}
	return false
}

// IsTerminal returns true if the status is terminal (no more transitions).
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusReleased || s == StatusExpired
}

// IsOpen reports whether the claim still holds the issue.
func (s ClaimStatus) IsOpen() bool {
	return s != "" && !s.IsTerminal()
}

// ClaimantType represents the type of claimant.
type ClaimantType string

const (
	ClaimantTypeHuman ClaimantType = "human"
	ClaimantTypeAgent ClaimantType = "agent"
)

// AgentType is the specialization of an agent claimant.
type AgentType string

const (
	AgentCoder      AgentType = "coder"
	AgentTester     AgentType = "tester"
	AgentReviewer   AgentType = "reviewer"
	AgentResearcher AgentType = "researcher"
	AgentArchitect  AgentType = "architect"
	AgentSecurity   AgentType = "security"
	AgentDevOps     AgentType = "devops"
	AgentDocumenter AgentType = "documenter"
	AgentPlanner    AgentType = "planner"
	AgentAnalyst    AgentType = "analyst"
)

// Priority represents issue priority.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight returns a numeric weight for priority comparison.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Complexity represents issue complexity.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityEpic     Complexity = "epic"
)

// HandoffStatus represents the status of a handoff request.
type HandoffStatus string

const (
	HandoffStatusPending  HandoffStatus = "pending"
	HandoffStatusAccepted HandoffStatus = "accepted"
	HandoffStatusRejected HandoffStatus = "rejected"
)

// StealReason explains why a claim became stealable.
type StealReason string

const (
	StealReasonStale      StealReason = "stale"
	StealReasonBlocked    StealReason = "blocked"
	StealReasonOverloaded StealReason = "overloaded"
	StealReasonManual     StealReason = "manual"
	StealReasonTimeout    StealReason = "timeout"
)

// ContestResolver identifies who settled a steal contest.
type ContestResolver string

const (
	ResolvedByQueen   ContestResolver = "queen"
	ResolvedByHuman   ContestResolver = "human"
	ResolvedByTimeout ContestResolver = "timeout"
)

// IsValidPriority checks if a priority value is valid.
func IsValidPriority(p Priority) bool {
	return p == PriorityCritical || p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// IsValidComplexity checks if a complexity value is valid.
func IsValidComplexity(c Complexity) bool {
	return c == ComplexityTrivial || c == ComplexitySimple || c == ComplexityModerate ||
		c == ComplexityComplex || c == ComplexityEpic
}

// IsValidStatus checks if a claim status value is canonical.
func IsValidStatus(s ClaimStatus) bool {
	return s == StatusActive || s == StatusPaused || s == StatusBlocked ||
		s == StatusPendingHandoff || s == StatusInReview || s == StatusStealable ||
		s == StatusCompleted || s == StatusReleased || s == StatusExpired
}

// IsValidClaimantType checks if a claimant type is valid.
func IsValidClaimantType(t ClaimantType) bool {
	return t == ClaimantTypeHuman || t == ClaimantTypeAgent
}

// IsValidStealReason checks if a steal reason is known.
func IsValidStealReason(r StealReason) bool {
	switch r {
	case StealReasonStale, StealReasonBlocked, StealReasonOverloaded, StealReasonManual, StealReasonTimeout:
		return true
	}
	return false
}
