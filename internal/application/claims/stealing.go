package claims

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	infraClaims "github.com/blackms/claimflow/internal/infrastructure/claims"
)

// WorkStealingService provides the stealing protocol: mark, steal, contest
// and resolve, plus best-effort stale-work detection.
type WorkStealingService struct {
	base

	cfgMu  sync.RWMutex
	config domainClaims.WorkStealingConfig

	marked    atomic.Int64
	stolen    atomic.Int64
	contested atomic.Int64
	resolved  atomic.Int64
}

// StealStats summarizes stealing activity since the service started.
type StealStats struct {
	Marked       int64 `json:"marked"`
	Stolen       int64 `json:"stolen"`
	Contested    int64 `json:"contested"`
	Resolved     int64 `json:"resolved"`
	Stealable    int   `json:"stealable"`
	OpenContests int   `json:"openContests"`
}

// NewWorkStealingService creates a new work stealing service.
func NewWorkStealingService(stores Stores, config domainClaims.WorkStealingConfig, opts ...Option) *WorkStealingService {
	return &WorkStealingService{
		base:   newBase(stores, "work-stealing", opts),
		config: config,
	}
}

// Config returns the active stealing configuration.
func (s *WorkStealingService) Config() domainClaims.WorkStealingConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.config
}

// SetConfig replaces the stealing configuration.
func (s *WorkStealingService) SetConfig(config domainClaims.WorkStealingConfig) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.config = config
}

func (s *WorkStealingService) loadClaim(ctx context.Context, issueID string) (*domainClaims.Claim, error) {
	claim, err := s.stores.Claims.FindByIssueID(ctx, issueID)
	if errors.Is(err, infraClaims.ErrNotFound) {
		return nil, domainClaims.NewClaimError(domainClaims.CodeIssueNotFound, "no open claim for issue %s", issueID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	return claim, nil
}

// MarkStealable flags the issue's claim as eligible for theft. Marking an
// already flagged claim is a no-op.
func (s *WorkStealingService) MarkStealable(ctx context.Context, issueID string, reason domainClaims.StealReason, allowedStealerTypes []string) (err error) {
	ctx, span := s.startSpan(ctx, "stealing.MarkStealable", issueID)
	defer func() { endSpan(span, err) }()

	if reason == "" {
		reason = domainClaims.StealReasonManual
	}
	if !domainClaims.IsValidStealReason(reason) {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "unknown steal reason %q", reason)
	}

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if prior.StealInfo != nil {
		return nil
	}

	config := s.Config()
	now := s.now()
	if err := domainClaims.CanFlagStealable(prior, config, now); err != nil {
		return err
	}

	claim := prior.Clone()
	claim.StealInfo = &domainClaims.StealableInfo{
		Reason:              reason,
		MarkedAt:            now,
		OriginalProgress:    claim.Progress,
		AllowedStealerTypes: append([]string(nil), allowedStealerTypes...),
	}
	stealableAt := now
	claim.StealableAt = &stealableAt

	if err := s.commit(ctx, prior, claim, domainClaims.NewIssueMarkedStealableEvent(claim, now)); err != nil {
		return err
	}

	s.marked.Add(1)
	s.logger.WithIssue(issueID).Info("claim marked stealable", "reason", string(reason), "claimant_id", claim.Claimant.ID)
	return nil
}

// Steal transfers a stealable claim to stealer and opens a contest window for
// the previous owner.
func (s *WorkStealingService) Steal(ctx context.Context, issueID string, stealer *domainClaims.Claimant) (result *domainClaims.StealResult, err error) {
	ctx, span := s.startSpan(ctx, "stealing.Steal", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadClaim(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !prior.IsStealable() {
		return nil, domainClaims.NewClaimError(domainClaims.CodeNotStealable, "claim for %s is not stealable", issueID)
	}
	if prior.HasOpenContest() {
		return nil, domainClaims.NewClaimError(domainClaims.CodeContestPending, "claim for %s has an unresolved contest", issueID)
	}

	thief, err := s.resolveClaimant(ctx, stealer)
	if err != nil {
		return nil, err
	}

	config := s.Config()
	now := s.now()
	if err := domainClaims.CanStealClaim(prior, thief, config, now); err != nil {
		return nil, err
	}

	held, err := s.stores.Claims.CountByClaimant(ctx, thief.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count claims for %s: %w", thief.ID, err)
	}
	if config.OverloadThreshold > 0 && held >= config.OverloadThreshold {
		return nil, domainClaims.NewClaimError(domainClaims.CodeStealerOverloaded, "%s already holds %d claims", thief.ID, held).
			WithDetail("activeClaims", held).
			WithDetail("overloadThreshold", config.OverloadThreshold)
	}

	previous := prior.Claimant
	previousInfo := prior.StealInfo
	reason := domainClaims.StealReasonManual
	if previousInfo != nil {
		reason = previousInfo.Reason
	}

	claim := prior.Clone()
	claim.Claimant = *thief
	claim.Reviewers = nil
	claim.StealInfo = nil
	claim.StealableAt = nil
	claim.ClaimedAt = now
	claim.SetStatus(domainClaims.StatusActive, "", now)
	claim.ContestInfo = &domainClaims.ContestInfo{
		ContestedAt:  now,
		ContestedBy:  previous,
		StolenBy:     *thief,
		Reason:       string(reason),
		WindowEndsAt: now.Add(config.ContestWindow()),
	}

	evts := []*domainClaims.ClaimEvent{domainClaims.NewIssueStolenEvent(claim, now, previous, reason)}
	if prior.Status != claim.Status {
		evts = append(evts, domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, "stolen"))
	}
	if err := s.commit(ctx, prior, claim, evts...); err != nil {
		return nil, err
	}

	s.stolen.Add(1)
	s.logger.WithIssue(issueID).Info("claim stolen", "from", previous.ID, "to", thief.ID, "reason", string(reason))

	var prevInfo *domainClaims.StealableInfo
	if previousInfo != nil {
		cp := *previousInfo
		prevInfo = &cp
	}
	return &domainClaims.StealResult{
		IssueID:             issueID,
		Claim:               claim.Clone(),
		PreviousClaimant:    previous,
		PreviousStealInfo:   prevInfo,
		ContestWindowEndsAt: claim.ContestInfo.WindowEndsAt,
		ContestRequired:     domainClaims.RequiresStealContest(prior, config),
	}, nil
}

// GetStealable returns claims that may be stolen now, optionally limited to
// those open to agentType.
func (s *WorkStealingService) GetStealable(ctx context.Context, agentType string) ([]*domainClaims.Claim, error) {
	candidates, err := s.stores.Claims.FindStealable(ctx, agentType)
	if err != nil {
		return nil, fmt.Errorf("failed to find stealable claims: %w", err)
	}
	config := s.Config()
	now := s.now()

	result := make([]*domainClaims.Claim, 0, len(candidates))
	for _, c := range candidates {
		if domainClaims.IsStealableBy(c, agentType, config, now) {
			result = append(result, c)
		}
	}
	return result, nil
}

// ContestSteal records the previous owner's objection on the contest opened
// by the steal.
func (s *WorkStealingService) ContestSteal(ctx context.Context, issueID, originalClaimantID, reason string) (err error) {
	ctx, span := s.startSpan(ctx, "stealing.ContestSteal", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadClaim(ctx, issueID)
	if err != nil {
		return err
	}
	contest := prior.ContestInfo
	if contest == nil {
		return domainClaims.NewClaimError(domainClaims.CodeNoContest, "claim for %s was not stolen", issueID)
	}
	if contest.IsResolved() {
		return domainClaims.NewClaimError(domainClaims.CodeContestResolved, "contest for %s is already resolved", issueID)
	}
	now := s.now()
	if !contest.WindowOpen(now) {
		return domainClaims.NewClaimError(domainClaims.CodeContestWindowExpired, "contest window for %s closed at %s", issueID, contest.WindowEndsAt.Format("15:04:05")).
			WithDetail("windowEndsAt", contest.WindowEndsAt)
	}
	if contest.ContestedBy.ID != originalClaimantID {
		return domainClaims.NewClaimError(domainClaims.CodeUnauthorized, "only %s may contest the steal of %s", contest.ContestedBy.ID, issueID)
	}
	if contest.IsObjected() {
		return domainClaims.NewClaimError(domainClaims.CodeContestPending, "steal of %s is already contested", issueID)
	}

	claim := prior.Clone()
	objectedAt := now
	claim.ContestInfo.ObjectedAt = &objectedAt
	claim.ContestInfo.ObjectionReason = reason

	if err := s.commit(ctx, prior, claim, domainClaims.NewStealContestedEvent(claim, now)); err != nil {
		return err
	}

	s.contested.Add(1)
	s.logger.WithIssue(issueID).Info("steal contested", "by", originalClaimantID)
	return nil
}

// ResolveContest settles the contest in favour of winnerID, which must be
// one of the two parties. A win for the previous owner reverts ownership and
// cancels any handoff or review the thief started.
func (s *WorkStealingService) ResolveContest(ctx context.Context, issueID, winnerID, reason string) (resolution *domainClaims.ContestResolution, err error) {
	ctx, span := s.startSpan(ctx, "stealing.ResolveContest", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadClaim(ctx, issueID)
	if err != nil {
		return nil, err
	}
	contest := prior.ContestInfo
	if contest == nil {
		return nil, domainClaims.NewClaimError(domainClaims.CodeNoContest, "claim for %s was not stolen", issueID)
	}
	if contest.IsResolved() {
		return nil, domainClaims.NewClaimError(domainClaims.CodeContestResolved, "contest for %s is already resolved", issueID)
	}

	var winner domainClaims.Claimant
	switch winnerID {
	case contest.ContestedBy.ID:
		winner = contest.ContestedBy
	case contest.StolenBy.ID:
		winner = contest.StolenBy
	default:
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "%s is not a party to the contest for %s", winnerID, issueID)
	}

	now := s.now()
	resolvedBy := domainClaims.ResolvedByQueen
	switch {
	case now.After(contest.WindowEndsAt):
		resolvedBy = domainClaims.ResolvedByTimeout
	case winner.IsHuman():
		resolvedBy = domainClaims.ResolvedByHuman
	}

	claim := prior.Clone()
	claim.ContestInfo.Resolution = &domainClaims.ContestResolution{
		ResolvedAt: now,
		Winner:     winner,
		ResolvedBy: resolvedBy,
		Reason:     reason,
	}
	claim.LastActivityAt = now
	var dropped *domainClaims.HandoffRecord
	if winner.ID == contest.ContestedBy.ID {
		claim.Claimant = winner
		claim.Reviewers = nil
		// Anything the thief started passing on dies with the revert.
		if h := claim.PendingHandoff(); h != nil {
			h.Reject("contest resolved for "+winner.ID, now)
			dropped = h
		}
		if claim.Status == domainClaims.StatusPendingHandoff || claim.Status == domainClaims.StatusInReview {
			claim.SetStatus(domainClaims.StatusActive, "", now)
		}
	}

	evts := []*domainClaims.ClaimEvent{domainClaims.NewStealContestResolvedEvent(claim, now)}
	if dropped != nil {
		evts = append(evts, domainClaims.NewHandoffRejectedEvent(claim, now, *dropped, winner.ID))
	}
	if prior.Status != claim.Status {
		evts = append(evts, domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, "contest reverted"))
	}

	if err := s.commit(ctx, prior, claim, evts...); err != nil {
		return nil, err
	}

	s.resolved.Add(1)
	s.logger.WithIssue(issueID).Info("contest resolved", "winner", winner.ID, "resolved_by", string(resolvedBy))
	r := *claim.ContestInfo.Resolution
	return &r, nil
}

// DetectStaleWork finds claims that should be flagged: stale or long-blocked
// claims first, then the least advanced claim of each overloaded claimant.
func (s *WorkStealingService) DetectStaleWork(ctx context.Context) ([]domainClaims.StealCandidate, error) {
	all, err := s.stores.Claims.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}
	config := s.Config()
	now := s.now()

	candidates := make([]domainClaims.StealCandidate, 0)
	flagged := make(map[string]bool)
	for _, c := range all {
		if reason, ok := domainClaims.CanMarkAsStealable(c, config, now); ok {
			candidates = append(candidates, domainClaims.StealCandidate{Claim: c, Reason: reason})
			flagged[c.ID] = true
		}
	}

	if config.OverloadThreshold <= 0 {
		return candidates, nil
	}

	byClaimant := make(map[string][]*domainClaims.Claim)
	for _, c := range all {
		if c.IsActive() {
			byClaimant[c.Claimant.ID] = append(byClaimant[c.Claimant.ID], c)
		}
	}
	owners := make([]string, 0, len(byClaimant))
	for id := range byClaimant {
		owners = append(owners, id)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		held := byClaimant[owner]
		if len(held) <= config.OverloadThreshold {
			continue
		}
		var pick *domainClaims.Claim
		for _, c := range held {
			if flagged[c.ID] || c.StealInfo != nil || c.Status == domainClaims.StatusStealable {
				continue
			}
			if pick == nil || c.Progress < pick.Progress {
				pick = c
			}
		}
		if pick != nil {
			candidates = append(candidates, domainClaims.StealCandidate{Claim: pick, Reason: domainClaims.StealReasonOverloaded})
			flagged[pick.ID] = true
		}
	}
	return candidates, nil
}

// AutoMarkStealable marks every detected candidate. Individual failures, such
// as a claim gaining progress protection since detection, are counted and
// logged rather than returned.
func (s *WorkStealingService) AutoMarkStealable(ctx context.Context) (*domainClaims.AutoMarkResult, error) {
	candidates, err := s.DetectStaleWork(ctx)
	if err != nil {
		return nil, err
	}

	result := &domainClaims.AutoMarkResult{
		Candidates: len(candidates),
		Marked:     make([]string, 0, len(candidates)),
		Errors:     make(map[string]string),
	}
	config := s.Config()
	now := s.now()
	for _, cand := range candidates {
		reason := markReason(cand, config, now)
		if err := s.MarkStealable(ctx, cand.Claim.IssueID, reason, nil); err != nil {
			result.Failed++
			result.Errors[cand.Claim.IssueID] = err.Error()
			s.logger.WithIssue(cand.Claim.IssueID).Warn("auto-mark skipped", "reason", string(reason), "error", err)
			continue
		}
		result.Marked = append(result.Marked, cand.Claim.IssueID)
	}
	return result, nil
}

// markReason orders reasons blocked, then stale, then overloaded.
func markReason(cand domainClaims.StealCandidate, config domainClaims.WorkStealingConfig, now time.Time) domainClaims.StealReason {
	c := cand.Claim
	if c.BlockedAt != nil && now.Sub(*c.BlockedAt) >= config.BlockedThreshold() {
		return domainClaims.StealReasonBlocked
	}
	if now.Sub(c.LastActivityAt) >= config.StaleThreshold() {
		return domainClaims.StealReasonStale
	}
	if cand.Reason != "" {
		return cand.Reason
	}
	return domainClaims.StealReasonOverloaded
}

// Stats returns activity counters plus current stealable and contest counts.
func (s *WorkStealingService) Stats(ctx context.Context) (StealStats, error) {
	stats := StealStats{
		Marked:    s.marked.Load(),
		Stolen:    s.stolen.Load(),
		Contested: s.contested.Load(),
		Resolved:  s.resolved.Load(),
	}
	all, err := s.stores.Claims.FindAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load claims: %w", err)
	}
	for _, c := range all {
		if c.StealInfo != nil && !c.IsTerminal() {
			stats.Stealable++
		}
		if c.HasOpenContest() && !c.IsTerminal() {
			stats.OpenContests++
		}
	}
	return stats, nil
}
