package claims

import (
	"time"
)

// Default load percentages for overload/underload classification.
const (
	DefaultOverloadLoad  = 90.0
	DefaultUnderloadLoad = 30.0
)

// ========================================================================
// Claim Eligibility Rules
// ========================================================================

// IsActiveClaim reports whether a claim with this status occupies a slot.
func IsActiveClaim(status ClaimStatus) bool {
	return status.IsActive()
}

// CountActiveClaims counts the slot-occupying claims owned by claimantID.
func CountActiveClaims(claimantID string, claims []*Claim) int {
	n := 0
	for _, c := range claims {
		if c.Claimant.ID == claimantID && IsActiveClaim(c.Status) {
			n++
		}
	}
	return n
}

// CanClaimIssue checks the claimant's capacity against its existing claims.
func CanClaimIssue(claimant *Claimant, existingClaims []*Claim) error {
	active := CountActiveClaims(claimant.ID, existingClaims)
	if active >= claimant.MaxClaims() {
		return NewClaimError(CodeClaimantAtCapacity, "claimant %s holds %d of %d claims", claimant.ID, active, claimant.MaxClaims()).
			WithDetail("activeClaims", active).
			WithDetail("maxConcurrentClaims", claimant.MaxClaims())
	}
	if claimant.CurrentWorkload >= 100 {
		return NewClaimError(CodeClaimantAtCapacity, "claimant %s workload is %d%%", claimant.ID, claimant.CurrentWorkload).
			WithDetail("currentWorkload", claimant.CurrentWorkload)
	}
	return nil
}

// ========================================================================
// Status Transition Rules
// ========================================================================

var validTransitions = map[ClaimStatus][]ClaimStatus{
	StatusActive: {
		StatusPendingHandoff,
		StatusInReview,
		StatusCompleted,
		StatusReleased,
		StatusPaused,
		StatusBlocked,
		StatusStealable,
	},
	StatusPendingHandoff: {
		StatusActive,
		StatusCompleted,
		StatusReleased,
	},
	StatusInReview: {
		StatusActive,
		StatusCompleted,
	},
	StatusPaused: {
		StatusActive,
		StatusBlocked,
		StatusStealable,
		StatusCompleted,
	},
	StatusBlocked: {
		StatusActive,
		StatusPaused,
		StatusStealable,
		StatusCompleted,
	},
	StatusStealable: {
		StatusActive,
		StatusCompleted,
	},
	StatusCompleted: {},
	StatusReleased:  {},
	StatusExpired:   {},
}

// CanTransitionStatus checks a status transition. Staying in place is always legal.
func CanTransitionStatus(from, to ClaimStatus) error {
	if from == to {
		return nil
	}
	for _, valid := range validTransitions[from] {
		if valid == to {
			return nil
		}
	}
	return NewClaimError(CodeInvalidStatusTransition, "cannot transition from %s to %s", from, to).
		WithDetail("from", from).
		WithDetail("to", to).
		WithDetail("allowed", ValidStatusTransitions(from))
}

// ValidStatusTransitions returns the legal targets from a status.
func ValidStatusTransitions(from ClaimStatus) []ClaimStatus {
	return append([]ClaimStatus(nil), validTransitions[from]...)
}

// ========================================================================
// Work Stealing Rules
// ========================================================================

// IsInGracePeriod reports whether the claim is still shielded at now. The
// shield ends inclusively at both claimedAt+grace and stealableAt.
func IsInGracePeriod(claim *Claim, config WorkStealingConfig, now time.Time) bool {
	if now.Before(claim.ClaimedAt.Add(config.GracePeriod())) {
		return true
	}
	return claim.StealableAt != nil && now.Before(*claim.StealableAt)
}

// IsProtectedByProgress reports whether progress shields the claim.
func IsProtectedByProgress(claim *Claim, config WorkStealingConfig) bool {
	return claim.Progress >= config.MinProgressToProtect
}

// CanMarkAsStealable returns the detection reason for a claim that should be
// flagged, or false. Stale wins over blocked.
func CanMarkAsStealable(claim *Claim, config WorkStealingConfig, now time.Time) (StealReason, bool) {
	if claim.Status == StatusStealable || claim.IsTerminal() || claim.StealInfo != nil {
		return "", false
	}
	if now.Sub(claim.LastActivityAt) >= config.StaleThreshold() {
		return StealReasonStale, true
	}
	if claim.BlockedAt != nil && now.Sub(*claim.BlockedAt) >= config.BlockedThreshold() {
		return StealReasonBlocked, true
	}
	return "", false
}

// CanFlagStealable checks whether a claim may receive steal info at now.
func CanFlagStealable(claim *Claim, config WorkStealingConfig, now time.Time) error {
	if claim.IsTerminal() {
		return NewClaimError(CodeNotClaimed, "claim for %s is %s", claim.IssueID, claim.Status)
	}
	if IsInGracePeriod(claim, config, now) {
		return NewClaimError(CodeInGracePeriod, "claim for %s is within its grace period", claim.IssueID).
			WithDetail("graceEndsAt", claim.ClaimedAt.Add(config.GracePeriod()))
	}
	if IsProtectedByProgress(claim, config) {
		return NewClaimError(CodeProtectedByProgress, "claim for %s is %d%% complete", claim.IssueID, claim.Progress).
			WithDetail("progress", claim.Progress).
			WithDetail("minProgressToProtect", config.MinProgressToProtect)
	}
	return nil
}

// CrossTypeAllowed applies the cross-type steal policy. Same-type steals are
// always allowed.
func CrossTypeAllowed(claim *Claim, challenger *Claimant, config WorkStealingConfig) bool {
	ownerType := claim.Claimant.StealerType()
	stealerType := challenger.StealerType()
	if ownerType == stealerType {
		return true
	}
	if !config.AllowCrossTypeSteal {
		return false
	}
	if claim.StealInfo != nil && len(claim.StealInfo.AllowedStealerTypes) > 0 && claim.StealInfo.Allows(stealerType) {
		return true
	}
	return config.PairAllowed(ownerType, stealerType)
}

// CanStealClaim checks whether challenger may take the claim at now. The
// checks run in a fixed order so callers get the earliest applicable reason.
func CanStealClaim(claim *Claim, challenger *Claimant, config WorkStealingConfig, now time.Time) error {
	if !claim.IsStealable() || claim.IsTerminal() {
		return NewClaimError(CodeNotStealable, "claim for %s is not stealable", claim.IssueID)
	}
	if IsInGracePeriod(claim, config, now) {
		return NewClaimError(CodeInGracePeriod, "claim for %s is within its grace period", claim.IssueID)
	}
	if IsProtectedByProgress(claim, config) {
		return NewClaimError(CodeProtectedByProgress, "claim for %s is %d%% complete", claim.IssueID, claim.Progress).
			WithDetail("progress", claim.Progress)
	}
	if !CrossTypeAllowed(claim, challenger, config) {
		return NewClaimError(CodeCrossTypeNotAllowed, "%s may not steal from %s", challenger.StealerType(), claim.Claimant.StealerType()).
			WithDetail("stealerType", challenger.StealerType()).
			WithDetail("ownerType", claim.Claimant.StealerType())
	}
	if claim.IsOwnedBy(challenger.ID) {
		return NewClaimError(CodeUnauthorized, "%s already owns %s", challenger.ID, claim.IssueID)
	}
	if claim.HasOpenContest() {
		return NewClaimError(CodeContestPending, "claim for %s has an unresolved contest", claim.IssueID)
	}
	if claim.Status == StatusPendingHandoff || claim.HasPendingHandoff() {
		return NewClaimError(CodeHandoffPending, "claim for %s has a pending handoff", claim.IssueID)
	}
	if claim.Status == StatusInReview {
		return NewClaimError(CodeNotStealable, "claim for %s is in review", claim.IssueID)
	}
	return nil
}

// inTransfer reports whether the owner is already passing the claim on,
// either through a handoff or a review.
func inTransfer(claim *Claim) bool {
	return claim.Status == StatusPendingHandoff || claim.Status == StatusInReview || claim.HasPendingHandoff()
}

// RequiresStealContest reports whether taking the claim deserves a contest:
// stale, timed out and manually released work does not; anything else with
// progress does.
func RequiresStealContest(claim *Claim, config WorkStealingConfig) bool {
	if claim.StealInfo != nil {
		switch claim.StealInfo.Reason {
		case StealReasonStale, StealReasonTimeout, StealReasonManual:
			return false
		}
	}
	return claim.Progress > 0
}

// IsStealableBy reports whether an eligible claim may be offered to agentType.
// An empty agentType matches every claim.
func IsStealableBy(claim *Claim, agentType string, config WorkStealingConfig, now time.Time) bool {
	if claim.StealInfo == nil || claim.IsTerminal() || inTransfer(claim) {
		return false
	}
	if IsInGracePeriod(claim, config, now) || IsProtectedByProgress(claim, config) {
		return false
	}
	if agentType == "" {
		return true
	}
	return claim.StealInfo.Allows(agentType)
}

// ========================================================================
// Handoff Rules
// ========================================================================

// CanInitiateHandoff checks whether from may hand the claim to to.
func CanInitiateHandoff(claim *Claim, from, to *Claimant) error {
	if claim.IsTerminal() {
		return NewClaimError(CodeNotClaimed, "claim for %s is %s", claim.IssueID, claim.Status)
	}
	if !claim.IsOwnedBy(from.ID) {
		return NewClaimError(CodeUnauthorized, "%s does not own %s", from.ID, claim.IssueID)
	}
	if claim.Status == StatusPendingHandoff || claim.HasPendingHandoff() {
		return NewClaimError(CodeHandoffPending, "claim for %s already has a pending handoff", claim.IssueID)
	}
	if from.ID == to.ID {
		return NewClaimError(CodeValidationError, "cannot hand off to self")
	}
	return CanTransitionStatus(claim.Status, StatusPendingHandoff)
}

// CanAcceptHandoff checks whether acceptor may take the pending handoff.
func CanAcceptHandoff(claim *Claim, acceptor *Claimant, acceptorClaims []*Claim) error {
	handoff := claim.PendingHandoff()
	if handoff == nil {
		return NewClaimError(CodeHandoffNotFound, "no pending handoff for %s", claim.IssueID)
	}
	if handoff.To.ID != acceptor.ID {
		return NewClaimError(CodeUnauthorized, "handoff for %s is addressed to %s", claim.IssueID, handoff.To.ID)
	}
	if err := CanClaimIssue(acceptor, acceptorClaims); err != nil {
		return NewClaimError(CodeMaxClaimsExceeded, "%s", err.(*ClaimError).Message)
	}
	return nil
}

// CanRejectHandoff checks whether rejecterID may decline the pending handoff.
// Either party may reject.
func CanRejectHandoff(claim *Claim, rejecterID string) error {
	handoff := claim.PendingHandoff()
	if handoff == nil {
		return NewClaimError(CodeHandoffNotFound, "no pending handoff for %s", claim.IssueID)
	}
	if handoff.To.ID != rejecterID && handoff.From.ID != rejecterID {
		return NewClaimError(CodeUnauthorized, "%s is not a party to the handoff", rejecterID)
	}
	return nil
}

// ========================================================================
// Load Balancing Rules
// ========================================================================

// IsAgentOverloaded reports load above threshold; zero means the default.
func IsAgentOverloaded(load, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultOverloadLoad
	}
	return load > threshold
}

// IsAgentUnderloaded reports load below threshold; zero means the default.
func IsAgentUnderloaded(load, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultUnderloadLoad
	}
	return load < threshold
}

// NeedsRebalancing triggers when overloaded and underloaded agents coexist or
// the spread between the busiest and idlest agent exceeds the threshold.
func NeedsRebalancing(loads []AgentLoad, config LoadBalanceConfig) bool {
	if len(loads) < 2 {
		return false
	}
	var over, under bool
	lo, hi := loads[0].Load, loads[0].Load
	for _, l := range loads {
		if IsAgentOverloaded(l.Load, config.OverloadThreshold) {
			over = true
		}
		if IsAgentUnderloaded(l.Load, config.UnderloadThreshold) {
			under = true
		}
		if l.Load < lo {
			lo = l.Load
		}
		if l.Load > hi {
			hi = l.Load
		}
	}
	if over && under {
		return true
	}
	return config.RebalanceThreshold > 0 && hi-lo > config.RebalanceThreshold
}

// CanMoveClaim reports whether rebalancing may reassign the claim.
func CanMoveClaim(claim *Claim, maxProgress int) bool {
	if maxProgress <= 0 {
		maxProgress = 75
	}
	switch claim.Status {
	case StatusCompleted, StatusReleased, StatusExpired, StatusPendingHandoff, StatusInReview:
		return false
	}
	if claim.Progress > maxProgress {
		return false
	}
	return !claim.HasOpenContest()
}
