package claims

import (
	"time"
)

// HandoffRecord represents a handoff request between claimants.
type HandoffRecord struct {
	ID              string        `json:"id"`
	From            Claimant      `json:"from"`
	To              Claimant      `json:"to"`
	Reason          string        `json:"reason"`
	Status          HandoffStatus `json:"status"`
	RequestedAt     time.Time     `json:"requestedAt"`
	ResolvedAt      *time.Time    `json:"resolvedAt,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
}

// NewHandoffRecord creates a pending handoff record.
func NewHandoffRecord(id string, from, to Claimant, reason string, now time.Time) HandoffRecord {
	return HandoffRecord{
		ID:          id,
		From:        from,
		To:          to,
		Reason:      reason,
		Status:      HandoffStatusPending,
		RequestedAt: now,
	}
}

// Accept accepts the handoff.
func (h *HandoffRecord) Accept(now time.Time) {
	h.Status = HandoffStatusAccepted
	h.ResolvedAt = &now
}

// Reject rejects the handoff with a reason.
func (h *HandoffRecord) Reject(reason string, now time.Time) {
	h.Status = HandoffStatusRejected
	h.ResolvedAt = &now
	h.RejectionReason = reason
}

// IsPending returns true if the handoff is pending.
func (h *HandoffRecord) IsPending() bool {
	return h.Status == HandoffStatusPending
}

// IsResolved returns true if the handoff has been resolved.
func (h *HandoffRecord) IsResolved() bool {
	return h.Status != HandoffStatusPending
}
