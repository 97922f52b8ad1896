package claims

import (
	"time"

	"github.com/google/uuid"
)

// ClaimEventType represents the type of a claim domain event.
type ClaimEventType string

const (
	// Core claim events
	EventClaimCreated         ClaimEventType = "claim:created"
	EventClaimReleased        ClaimEventType = "claim:released"
	EventClaimExpired         ClaimEventType = "claim:expired"
	EventClaimStatusChanged   ClaimEventType = "claim:status-changed"
	EventClaimNoteAdded       ClaimEventType = "claim:note-added"
	EventClaimProgressUpdated ClaimEventType = "claim:progress-updated"

	// Handoff events
	EventHandoffRequested ClaimEventType = "handoff:requested"
	EventHandoffAccepted  ClaimEventType = "handoff:accepted"
	EventHandoffRejected  ClaimEventType = "handoff:rejected"

	// Review events
	EventReviewRequested ClaimEventType = "review:requested"
	EventReviewCompleted ClaimEventType = "review:completed"

	// Work stealing events
	EventIssueMarkedStealable ClaimEventType = "steal:issue-marked-stealable"
	EventIssueStolen          ClaimEventType = "steal:issue-stolen"
	EventStealContested       ClaimEventType = "steal:contested"
	EventStealContestResolved ClaimEventType = "steal:contest-resolved"

	// Load balancing events
	EventClaimRebalanced ClaimEventType = "balance:claim-moved"
)

// AllEventTypes lists every event type the services emit.
var AllEventTypes = []ClaimEventType{
	EventClaimCreated, EventClaimReleased, EventClaimExpired, EventClaimStatusChanged,
	EventClaimNoteAdded, EventClaimProgressUpdated,
	EventHandoffRequested, EventHandoffAccepted, EventHandoffRejected,
	EventReviewRequested, EventReviewCompleted,
	EventIssueMarkedStealable, EventIssueStolen, EventStealContested, EventStealContestResolved,
	EventClaimRebalanced,
}

// ClaimEvent represents a domain event in the claims system.
type ClaimEvent struct {
	ID            string         `json:"id"`
	Type          ClaimEventType `json:"type"`
	AggregateID   string         `json:"aggregateId"`
	AggregateType string         `json:"aggregateType"`
	IssueID       string         `json:"issueId"`
	ClaimID       string         `json:"claimId"`
	// Version is the per-aggregate sequence number assigned by the event store.
	Version       int                    `json:"version"`
	Timestamp     time.Time              `json:"timestamp"`
	Payload       map[string]interface{} `json:"payload"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	CausationID   string                 `json:"causationId,omitempty"`
	Source        string                 `json:"source,omitempty"`
}

// NewClaimEvent creates a claim event for the given claim.
func NewClaimEvent(eventType ClaimEventType, claim *Claim, now time.Time, payload map[string]interface{}) *ClaimEvent {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &ClaimEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		AggregateID:   claim.ID,
		AggregateType: "claim",
		IssueID:       claim.IssueID,
		ClaimID:       claim.ID,
		Timestamp:     now,
		Payload:       payload,
	}
}

// WithCorrelation sets the correlation ID.
func (e *ClaimEvent) WithCorrelation(correlationID string) *ClaimEvent {
	e.CorrelationID = correlationID
	return e
}

// WithCausation sets the causation ID.
func (e *ClaimEvent) WithCausation(causationID string) *ClaimEvent {
	e.CausationID = causationID
	return e
}

// WithSource sets the source.
func (e *ClaimEvent) WithSource(source string) *ClaimEvent {
	e.Source = source
	return e
}

// WithMetadata adds metadata.
func (e *ClaimEvent) WithMetadata(key string, value interface{}) *ClaimEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Event factory functions

// NewClaimCreatedEvent creates a claim created event.
func NewClaimCreatedEvent(claim *Claim, now time.Time) *ClaimEvent {
	return NewClaimEvent(EventClaimCreated, claim, now, map[string]interface{}{
		"claimantId":   claim.Claimant.ID,
		"claimantType": claim.Claimant.Type,
		"status":       claim.Status,
		"claimedAt":    claim.ClaimedAt,
	})
}

// NewClaimReleasedEvent creates a claim released event.
func NewClaimReleasedEvent(claim *Claim, now time.Time, releasedBy string) *ClaimEvent {
	return NewClaimEvent(EventClaimReleased, claim, now, map[string]interface{}{
		"releasedBy": releasedBy,
		"progress":   claim.Progress,
	})
}

// NewClaimExpiredEvent creates a claim expired event.
func NewClaimExpiredEvent(claim *Claim, now time.Time, inactiveFor time.Duration) *ClaimEvent {
	return NewClaimEvent(EventClaimExpired, claim, now, map[string]interface{}{
		"claimantId":    claim.Claimant.ID,
		"inactiveForMs": inactiveFor.Milliseconds(),
	})
}

// NewClaimStatusChangedEvent creates a status changed event.
func NewClaimStatusChangedEvent(claim *Claim, now time.Time, oldStatus, newStatus ClaimStatus, note string) *ClaimEvent {
	return NewClaimEvent(EventClaimStatusChanged, claim, now, map[string]interface{}{
		"oldStatus": oldStatus,
		"newStatus": newStatus,
		"note":      note,
	})
}

// NewClaimNoteAddedEvent creates a note added event.
func NewClaimNoteAddedEvent(claim *Claim, now time.Time, note ClaimNote) *ClaimEvent {
	return NewClaimEvent(EventClaimNoteAdded, claim, now, map[string]interface{}{
		"authorId": note.AuthorID,
		"text":     note.Text,
	})
}

// NewClaimProgressUpdatedEvent creates a progress updated event.
func NewClaimProgressUpdatedEvent(claim *Claim, now time.Time, oldProgress int) *ClaimEvent {
	return NewClaimEvent(EventClaimProgressUpdated, claim, now, map[string]interface{}{
		"oldProgress": oldProgress,
		"progress":    claim.Progress,
	})
}

// NewHandoffRequestedEvent creates a handoff requested event.
func NewHandoffRequestedEvent(claim *Claim, now time.Time, handoff HandoffRecord) *ClaimEvent {
	return NewClaimEvent(EventHandoffRequested, claim, now, map[string]interface{}{
		"handoffId":   handoff.ID,
		"fromId":      handoff.From.ID,
		"toId":        handoff.To.ID,
		"reason":      handoff.Reason,
		"requestedAt": handoff.RequestedAt,
	})
}

// NewHandoffAcceptedEvent creates a handoff accepted event.
func NewHandoffAcceptedEvent(claim *Claim, now time.Time, handoff HandoffRecord) *ClaimEvent {
	return NewClaimEvent(EventHandoffAccepted, claim, now, map[string]interface{}{
		"handoffId": handoff.ID,
		"fromId":    handoff.From.ID,
		"toId":      handoff.To.ID,
	})
}

// NewHandoffRejectedEvent creates a handoff rejected event.
func NewHandoffRejectedEvent(claim *Claim, now time.Time, handoff HandoffRecord, rejectedBy string) *ClaimEvent {
	return NewClaimEvent(EventHandoffRejected, claim, now, map[string]interface{}{
		"handoffId":  handoff.ID,
		"rejectedBy": rejectedBy,
		"reason":     handoff.RejectionReason,
	})
}

// NewReviewRequestedEvent creates a review requested event.
func NewReviewRequestedEvent(claim *Claim, now time.Time) *ClaimEvent {
	ids := make([]string, 0, len(claim.Reviewers))
	for _, r := range claim.Reviewers {
		ids = append(ids, r.ID)
	}
	return NewClaimEvent(EventReviewRequested, claim, now, map[string]interface{}{
		"reviewerIds": ids,
	})
}

// NewReviewCompletedEvent creates a review completed event.
func NewReviewCompletedEvent(claim *Claim, now time.Time, reviewerID string, approved bool, comment string) *ClaimEvent {
	return NewClaimEvent(EventReviewCompleted, claim, now, map[string]interface{}{
		"reviewerId": reviewerID,
		"approved":   approved,
		"comment":    comment,
	})
}

// NewIssueMarkedStealableEvent creates an issue marked stealable event.
func NewIssueMarkedStealableEvent(claim *Claim, now time.Time) *ClaimEvent {
	payload := map[string]interface{}{
		"claimantId": claim.Claimant.ID,
	}
	if claim.StealInfo != nil {
		payload["reason"] = claim.StealInfo.Reason
		payload["originalProgress"] = claim.StealInfo.OriginalProgress
		payload["allowedStealerTypes"] = claim.StealInfo.AllowedStealerTypes
	}
	return NewClaimEvent(EventIssueMarkedStealable, claim, now, payload)
}

// NewIssueStolenEvent creates an issue stolen event.
func NewIssueStolenEvent(claim *Claim, now time.Time, previous Claimant, reason StealReason) *ClaimEvent {
	payload := map[string]interface{}{
		"newClaimantId":      claim.Claimant.ID,
		"previousClaimantId": previous.ID,
		"reason":             reason,
	}
	if claim.ContestInfo != nil {
		payload["contestWindowEndsAt"] = claim.ContestInfo.WindowEndsAt
	}
	return NewClaimEvent(EventIssueStolen, claim, now, payload)
}

// NewStealContestedEvent creates a steal contested event.
func NewStealContestedEvent(claim *Claim, now time.Time) *ClaimEvent {
	ci := claim.ContestInfo
	return NewClaimEvent(EventStealContested, claim, now, map[string]interface{}{
		"contestedBy":  ci.ContestedBy.ID,
		"stolenBy":     ci.StolenBy.ID,
		"reason":       ci.ObjectionReason,
		"windowEndsAt": ci.WindowEndsAt,
	})
}

// NewStealContestResolvedEvent creates a contest resolved event.
func NewStealContestResolvedEvent(claim *Claim, now time.Time) *ClaimEvent {
	r := claim.ContestInfo.Resolution
	return NewClaimEvent(EventStealContestResolved, claim, now, map[string]interface{}{
		"winnerId":   r.Winner.ID,
		"resolvedBy": r.ResolvedBy,
		"reason":     r.Reason,
		"reverted":   r.Winner.ID == claim.ContestInfo.ContestedBy.ID,
	})
}

// NewClaimRebalancedEvent creates a claim moved event.
func NewClaimRebalancedEvent(claim *Claim, now time.Time, move RebalanceMove) *ClaimEvent {
	return NewClaimEvent(EventClaimRebalanced, claim, now, map[string]interface{}{
		"fromClaimantId": move.FromClaimantID,
		"toClaimantId":   move.ToClaimantID,
		"fromLoad":       move.FromLoad,
		"toLoad":         move.ToLoad,
	})
}

// RebalanceMove represents a claim move during rebalancing.
type RebalanceMove struct {
	IssueID        string  `json:"issueId"`
	ClaimID        string  `json:"claimId"`
	FromClaimantID string  `json:"fromClaimantId"`
	ToClaimantID   string  `json:"toClaimantId"`
	FromLoad       float64 `json:"fromLoad"`
	ToLoad         float64 `json:"toLoad"`
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	AggregateID   string
	IssueID       string
	EventTypes    []ClaimEventType
	FromTimestamp *time.Time
	ToTimestamp   *time.Time
	Limit         int
}

// Matches returns true if the event matches the filter.
func (f EventFilter) Matches(event *ClaimEvent) bool {
	if f.AggregateID != "" && event.AggregateID != f.AggregateID {
		return false
	}
	if f.IssueID != "" && event.IssueID != f.IssueID {
		return false
	}

	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.FromTimestamp != nil && event.Timestamp.Before(*f.FromTimestamp) {
		return false
	}

	if f.ToTimestamp != nil && event.Timestamp.After(*f.ToTimestamp) {
		return false
	}

	return true
}
