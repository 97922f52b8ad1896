package claims

import "time"

// StealableInfo flags a claim as eligible for theft.
type StealableInfo struct {
	Reason              StealReason `json:"reason"`
	MarkedAt            time.Time   `json:"markedAt"`
	OriginalProgress    int         `json:"originalProgress"`
	AllowedStealerTypes []string    `json:"allowedStealerTypes,omitempty"`
}

// Allows reports whether a stealer type passes the allow-list. An empty list
// places no restriction.
func (s *StealableInfo) Allows(stealerType string) bool {
	if len(s.AllowedStealerTypes) == 0 {
		return true
	}
	for _, t := range s.AllowedStealerTypes {
		if t == stealerType {
			return true
		}
	}
	return false
}

// ContestInfo is opened by a successful steal and records any objection
// raised by the previous owner.
type ContestInfo struct {
	ContestedAt     time.Time          `json:"contestedAt"`
	ContestedBy     Claimant           `json:"contestedBy"`
	StolenBy        Claimant           `json:"stolenBy"`
	Reason          string             `json:"reason"`
	WindowEndsAt    time.Time          `json:"windowEndsAt"`
	ObjectedAt      *time.Time         `json:"objectedAt,omitempty"`
	ObjectionReason string             `json:"objectionReason,omitempty"`
	Resolution      *ContestResolution `json:"resolution,omitempty"`
}

// IsResolved reports whether the contest has been settled.
func (c *ContestInfo) IsResolved() bool {
	return c.Resolution != nil
}

// IsObjected reports whether the previous owner raised an objection.
func (c *ContestInfo) IsObjected() bool {
	return c.ObjectedAt != nil
}

// WindowOpen reports whether the contest window is still running at now.
func (c *ContestInfo) WindowOpen(now time.Time) bool {
	return !now.After(c.WindowEndsAt)
}

// ContestResolution is the terminal outcome of a contest.
type ContestResolution struct {
	ResolvedAt time.Time       `json:"resolvedAt"`
	Winner     Claimant        `json:"winner"`
	ResolvedBy ContestResolver `json:"resolvedBy"`
	Reason     string          `json:"reason"`
}

// StealResult is returned by a successful steal.
type StealResult struct {
	IssueID             string         `json:"issueId"`
	Claim               *Claim         `json:"claim"`
	PreviousClaimant    Claimant       `json:"previousClaimant"`
	PreviousStealInfo   *StealableInfo `json:"previousStealInfo,omitempty"`
	ContestWindowEndsAt time.Time      `json:"contestWindowEndsAt"`
	// ContestRequired mirrors RequiresStealContest for the stolen claim.
	ContestRequired bool `json:"contestRequired"`
}

// StealCandidate is a claim found eligible by stale-work detection.
type StealCandidate struct {
	Claim  *Claim      `json:"claim"`
	Reason StealReason `json:"reason"`
}

// AutoMarkResult summarizes a best-effort auto-mark sweep.
type AutoMarkResult struct {
	Candidates int               `json:"candidates"`
	Marked     []string          `json:"marked"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}
