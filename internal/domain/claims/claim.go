package claims

import (
	"time"
)

// ClaimNote is one entry of a claim's append-only note log.
type ClaimNote struct {
	At       time.Time `json:"at"`
	AuthorID string    `json:"authorId,omitempty"`
	Text     string    `json:"text"`
}

// Claim is a claimant's current or past ownership of an issue.
type Claim struct {
	ID             string          `json:"id"`
	IssueID        string          `json:"issueId"`
	Claimant       Claimant        `json:"claimant"`
	Status         ClaimStatus     `json:"status"`
	ClaimedAt      time.Time       `json:"claimedAt"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	Progress       int             `json:"progress"`
	Notes          []ClaimNote     `json:"notes,omitempty"`
	HandoffChain   []HandoffRecord `json:"handoffChain,omitempty"`
	Reviewers      []Claimant      `json:"reviewers,omitempty"`
	StealInfo      *StealableInfo  `json:"stealInfo,omitempty"`
	StealableAt    *time.Time      `json:"stealableAt,omitempty"`
	ContestInfo    *ContestInfo    `json:"contestInfo,omitempty"`
	BlockedAt      *time.Time      `json:"blockedAt,omitempty"`
	BlockedReason  string          `json:"blockedReason,omitempty"`
	// Version is bumped by the repository on every successful update.
	Version int `json:"version"`
}

// NewClaim creates an active claim.
func NewClaim(id, issueID string, claimant Claimant, now time.Time) *Claim {
	return &Claim{
		ID:             id,
		IssueID:        issueID,
		Claimant:       claimant,
		Status:         StatusActive,
		ClaimedAt:      now,
		LastActivityAt: now,
	}
}

// SetStatus moves the claim to status, maintaining blocked bookkeeping. It
// performs no legality check.
func (c *Claim) SetStatus(status ClaimStatus, reason string, now time.Time) {
	if status == StatusBlocked && c.Status != StatusBlocked {
		c.BlockedAt = &now
		c.BlockedReason = reason
	} else if status != StatusBlocked {
		c.BlockedAt = nil
		c.BlockedReason = ""
	}
	c.Status = status
	c.LastActivityAt = now
}

// AddNote appends to the note log.
func (c *Claim) AddNote(authorID, text string, now time.Time) {
	c.Notes = append(c.Notes, ClaimNote{At: now, AuthorID: authorID, Text: text})
	c.LastActivityAt = now
}

// PendingHandoff returns the pending handoff if any.
func (c *Claim) PendingHandoff() *HandoffRecord {
	for i := len(c.HandoffChain) - 1; i >= 0; i-- {
		if c.HandoffChain[i].IsPending() {
			return &c.HandoffChain[i]
		}
	}
	return nil
}

// HasPendingHandoff returns true if there's a pending handoff.
func (c *Claim) HasPendingHandoff() bool {
	return c.PendingHandoff() != nil
}

// IsActive reports whether the claim occupies a capacity slot.
func (c *Claim) IsActive() bool {
	return c.Status.IsActive()
}

// IsTerminal returns true if the claim is in a terminal state.
func (c *Claim) IsTerminal() bool {
	return c.Status.IsTerminal()
}

// IsOwnedBy returns true if the claim is owned by the given claimant.
func (c *Claim) IsOwnedBy(claimantID string) bool {
	return c.Claimant.ID == claimantID
}

// IsStealable reports whether the claim has been flagged for theft.
func (c *Claim) IsStealable() bool {
	return c.StealInfo != nil || c.Status == StatusStealable
}

// HasOpenContest reports whether a contest exists and is unresolved.
func (c *Claim) HasOpenContest() bool {
	return c.ContestInfo != nil && !c.ContestInfo.IsResolved()
}

// HasReviewer checks whether claimantID was asked to review.
func (c *Claim) HasReviewer(claimantID string) bool {
	for _, r := range c.Reviewers {
		if r.ID == claimantID {
			return true
		}
	}
	return false
}

// InactiveFor returns the idle time at now.
func (c *Claim) InactiveFor(now time.Time) time.Duration {
	return now.Sub(c.LastActivityAt)
}

// Clone returns a deep copy so callers never share state with a repository.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Claimant = *c.Claimant.Clone()
	cp.Notes = append([]ClaimNote(nil), c.Notes...)
	cp.HandoffChain = append([]HandoffRecord(nil), c.HandoffChain...)
	for i := range cp.HandoffChain {
		if t := cp.HandoffChain[i].ResolvedAt; t != nil {
			v := *t
			cp.HandoffChain[i].ResolvedAt = &v
		}
	}
	cp.Reviewers = append([]Claimant(nil), c.Reviewers...)
	if c.StealInfo != nil {
		si := *c.StealInfo
		si.AllowedStealerTypes = append([]string(nil), c.StealInfo.AllowedStealerTypes...)
		cp.StealInfo = &si
	}
	cp.StealableAt = cloneTime(c.StealableAt)
	cp.BlockedAt = cloneTime(c.BlockedAt)
	if c.ContestInfo != nil {
		ci := *c.ContestInfo
		ci.ObjectedAt = cloneTime(c.ContestInfo.ObjectedAt)
		if c.ContestInfo.Resolution != nil {
			r := *c.ContestInfo.Resolution
			ci.Resolution = &r
		}
		cp.ContestInfo = &ci
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
