package claims

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	infraClaims "github.com/blackms/claimflow/internal/infrastructure/claims"
)

// ClaimService provides claim lifecycle operations. Every mutation holds the
// issue's lock and writes under an optimistic version check.
type ClaimService struct {
	base
}

// NewClaimService creates a new claim service.
func NewClaimService(stores Stores, opts ...Option) *ClaimService {
	return &ClaimService{base: newBase(stores, "claim-service", opts)}
}

// ========================================================================
// Registration
// ========================================================================

// RegisterIssue stores or replaces an issue.
func (s *ClaimService) RegisterIssue(ctx context.Context, issue *domainClaims.Issue) error {
	if issue == nil || strings.TrimSpace(issue.ID) == "" {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "issue id is required")
	}
	if issue.Priority != "" && !domainClaims.IsValidPriority(issue.Priority) {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "invalid priority %q", issue.Priority)
	}
	if issue.Complexity != "" && !domainClaims.IsValidComplexity(issue.Complexity) {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "invalid complexity %q", issue.Complexity)
	}
	cp := issue.Clone()
	cp.Normalize(s.now())
	if err := s.stores.Issues.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save issue: %w", err)
	}
	s.logger.Debug("issue registered", "issue_id", cp.ID)
	return nil
}

// RegisterClaimant stores or replaces a claimant.
func (s *ClaimService) RegisterClaimant(ctx context.Context, claimant *domainClaims.Claimant) error {
	if claimant == nil || strings.TrimSpace(claimant.ID) == "" {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "claimant id is required")
	}
	if claimant.Type != "" && !domainClaims.IsValidClaimantType(claimant.Type) {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "invalid claimant type %q", claimant.Type)
	}
	cp := claimant.Clone()
	cp.Normalize()
	if err := s.stores.Claimants.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save claimant: %w", err)
	}
	s.logger.Debug("claimant registered", "claimant_id", cp.ID, "agent_type", string(cp.AgentType))
	return nil
}

// ========================================================================
// Claiming
// ========================================================================

// Claim creates an active claim on an issue for claimant.
func (s *ClaimService) Claim(ctx context.Context, issueID string, claimant *domainClaims.Claimant) (claim *domainClaims.Claim, err error) {
	ctx, span := s.startSpan(ctx, "claims.Claim", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	issue, err := s.stores.Issues.FindByID(ctx, issueID)
	if errors.Is(err, infraClaims.ErrNotFound) {
		return nil, domainClaims.NewClaimError(domainClaims.CodeIssueNotFound, "issue %s not found", issueID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load issue: %w", err)
	}

	owner, err := s.resolveClaimant(ctx, claimant)
	if err != nil {
		return nil, err
	}

	existing, err := s.stores.Claims.FindByIssueID(ctx, issueID)
	if err == nil {
		return nil, domainClaims.NewClaimError(domainClaims.CodeAlreadyClaimed, "issue %s is already claimed by %s", issueID, existing.Claimant.ID).
			WithDetail("claimantId", existing.Claimant.ID).
			WithDetail("status", existing.Status)
	}
	if !errors.Is(err, infraClaims.ErrNotFound) {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}

	active, err := s.activeClaimsOf(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if err := domainClaims.CanClaimIssue(owner, active); err != nil {
		return nil, asMaxClaimsExceeded(err)
	}

	if missing := owner.MissingCapabilities(issue.RequiredCapabilities); len(missing) > 0 {
		return nil, domainClaims.NewClaimError(domainClaims.CodeCapabilityMismatch, "%s lacks capabilities %s", owner.ID, strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}

	now := s.now()
	claim = domainClaims.NewClaim(uuid.New().String(), issueID, *owner, now)
	if err := s.insert(ctx, claim, domainClaims.NewClaimCreatedEvent(claim, now)); err != nil {
		return nil, err
	}

	s.logger.WithIssue(issueID).Debug("issue claimed", "claimant_id", owner.ID, "claim_id", claim.ID)
	return claim.Clone(), nil
}

// asMaxClaimsExceeded re-codes a capacity failure for callers of Claim.
func asMaxClaimsExceeded(err error) error {
	var ce *domainClaims.ClaimError
	if !errors.As(err, &ce) || ce.Code != domainClaims.CodeClaimantAtCapacity {
		return err
	}
	out := domainClaims.NewClaimError(domainClaims.CodeMaxClaimsExceeded, "%s", ce.Message)
	for k, v := range ce.Details {
		out.WithDetail(k, v)
	}
	return out
}

// Release gives up claimantID's claim on the issue.
func (s *ClaimService) Release(ctx context.Context, issueID, claimantID string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.Release", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if !prior.IsOwnedBy(claimantID) {
		return domainClaims.NewClaimError(domainClaims.CodeUnauthorized, "%s does not own %s", claimantID, issueID)
	}
	if prior.Status == domainClaims.StatusPendingHandoff || prior.HasPendingHandoff() {
		return domainClaims.NewClaimError(domainClaims.CodeHandoffPending, "claim for %s has a pending handoff", issueID)
	}

	now := s.now()
	claim := prior.Clone()
	claim.SetStatus(domainClaims.StatusReleased, "", now)

	evts := []*domainClaims.ClaimEvent{domainClaims.NewClaimReleasedEvent(claim, now, claimantID)}
	if prior.Status != claim.Status {
		evts = append(evts, domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, ""))
	}
	if err := s.commit(ctx, prior, claim, evts...); err != nil {
		return err
	}

	s.logger.WithIssue(issueID).Debug("claim released", "claimant_id", claimantID)
	return nil
}

// ========================================================================
// Handoff
// ========================================================================

// RequestHandoff asks toID to take over the claim currently held by fromID.
func (s *ClaimService) RequestHandoff(ctx context.Context, issueID, fromID, toID, reason string) (record *domainClaims.HandoffRecord, err error) {
	ctx, span := s.startSpan(ctx, "claims.RequestHandoff", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := domainClaims.CanInitiateHandoff(prior, &domainClaims.Claimant{ID: fromID}, &domainClaims.Claimant{ID: toID}); err != nil {
		return nil, err
	}
	to, err := s.loadClaimant(ctx, toID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	claim := prior.Clone()
	handoff := domainClaims.NewHandoffRecord(uuid.New().String(), claim.Claimant, *to, reason, now)
	claim.HandoffChain = append(claim.HandoffChain, handoff)
	claim.SetStatus(domainClaims.StatusPendingHandoff, "", now)

	err = s.commit(ctx, prior, claim,
		domainClaims.NewHandoffRequestedEvent(claim, now, handoff),
		domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, reason),
	)
	if err != nil {
		return nil, err
	}

	s.logger.WithIssue(issueID).Debug("handoff requested", "from", fromID, "to", toID)
	return &handoff, nil
}

// AcceptHandoff transfers the claim to claimantID, the handoff's addressee.
func (s *ClaimService) AcceptHandoff(ctx context.Context, issueID, claimantID string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.AcceptHandoff", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	pending := prior.PendingHandoff()
	if pending == nil {
		return domainClaims.NewClaimError(domainClaims.CodeHandoffNotFound, "no pending handoff for %s", issueID)
	}

	acceptor, err := s.stores.Claimants.FindByID(ctx, claimantID)
	if errors.Is(err, infraClaims.ErrNotFound) && pending.To.ID == claimantID {
		acceptor, err = pending.To.Clone(), nil
	}
	if errors.Is(err, infraClaims.ErrNotFound) {
		return domainClaims.NewClaimError(domainClaims.CodeUnauthorized, "handoff for %s is addressed to %s", issueID, pending.To.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load claimant: %w", err)
	}

	acceptorClaims, err := s.activeClaimsOf(ctx, acceptor.ID)
	if err != nil {
		return err
	}
	if err := domainClaims.CanAcceptHandoff(prior, acceptor, acceptorClaims); err != nil {
		return err
	}

	now := s.now()
	claim := prior.Clone()
	handoff := claim.PendingHandoff()
	handoff.Accept(now)
	accepted := *handoff
	claim.Claimant = *acceptor
	claim.SetStatus(domainClaims.StatusActive, "", now)

	err = s.commit(ctx, prior, claim,
		domainClaims.NewHandoffAcceptedEvent(claim, now, accepted),
		domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, ""),
	)
	if err != nil {
		return err
	}

	s.logger.WithIssue(issueID).Debug("handoff accepted", "from", accepted.From.ID, "to", acceptor.ID)
	return nil
}

// RejectHandoff declines the pending handoff; either party may reject.
func (s *ClaimService) RejectHandoff(ctx context.Context, issueID, claimantID, reason string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.RejectHandoff", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if err := domainClaims.CanRejectHandoff(prior, claimantID); err != nil {
		return err
	}

	now := s.now()
	claim := prior.Clone()
	handoff := claim.PendingHandoff()
	handoff.Reject(reason, now)
	rejected := *handoff
	claim.SetStatus(domainClaims.StatusActive, "", now)

	err = s.commit(ctx, prior, claim,
		domainClaims.NewHandoffRejectedEvent(claim, now, rejected, claimantID),
		domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, reason),
	)
	if err != nil {
		return err
	}

	s.logger.WithIssue(issueID).Debug("handoff rejected", "by", claimantID)
	return nil
}

// ========================================================================
// Status, progress and notes
// ========================================================================

// UpdateStatus moves the claim to status, appending note when given. Handoff
// state is owned by the handoff operations and cannot be set here.
func (s *ClaimService) UpdateStatus(ctx context.Context, issueID string, status domainClaims.ClaimStatus, note string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.UpdateStatus", issueID)
	defer func() { endSpan(span, err) }()

	if !domainClaims.IsValidStatus(status) {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "unknown status %q", status)
	}

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if prior.Status != status &&
		(status == domainClaims.StatusPendingHandoff || prior.Status == domainClaims.StatusPendingHandoff) {
		return domainClaims.NewClaimError(domainClaims.CodeInvalidStatusTransition, "use the handoff operations to change %s from %s to %s", issueID, prior.Status, status).
			WithDetail("from", prior.Status).
			WithDetail("to", status)
	}
	if err := domainClaims.CanTransitionStatus(prior.Status, status); err != nil {
		return err
	}
	if prior.Status == status && note == "" {
		return nil
	}

	now := s.now()
	claim := prior.Clone()
	claim.SetStatus(status, note, now)
	if note != "" {
		claim.AddNote(claim.Claimant.ID, note, now)
	}

	if err := s.commit(ctx, prior, claim, domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, status, note)); err != nil {
		return err
	}

	s.logger.WithIssue(issueID).Debug("claim status changed", "from", string(prior.Status), "to", string(status))
	return nil
}

// UpdateProgress records the owner's progress. Progress is clamped to 0-100
// and never moves backwards.
func (s *ClaimService) UpdateProgress(ctx context.Context, issueID, claimantID string, progress int) (err error) {
	ctx, span := s.startSpan(ctx, "claims.UpdateProgress", issueID)
	defer func() { endSpan(span, err) }()

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if !prior.IsOwnedBy(claimantID) {
		return domainClaims.NewClaimError(domainClaims.CodeUnauthorized, "%s does not own %s", claimantID, issueID)
	}
	if progress < prior.Progress {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "progress cannot decrease from %d to %d", prior.Progress, progress).
			WithDetail("current", prior.Progress).
			WithDetail("requested", progress)
	}
	if progress == prior.Progress {
		return nil
	}

	now := s.now()
	claim := prior.Clone()
	claim.Progress = progress
	claim.LastActivityAt = now

	return s.commit(ctx, prior, claim, domainClaims.NewClaimProgressUpdatedEvent(claim, now, prior.Progress))
}

// AddNote appends a note to the claim's log.
func (s *ClaimService) AddNote(ctx context.Context, issueID, authorID, text string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.AddNote", issueID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(text) == "" {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "note text is required")
	}

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}

	now := s.now()
	claim := prior.Clone()
	claim.AddNote(authorID, text, now)
	note := claim.Notes[len(claim.Notes)-1]

	return s.commit(ctx, prior, claim, domainClaims.NewClaimNoteAddedEvent(claim, now, note))
}

// ========================================================================
// Review
// ========================================================================

// RequestReview moves the claim into review by the given reviewers.
func (s *ClaimService) RequestReview(ctx context.Context, issueID string, reviewerIDs []string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.RequestReview", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if len(reviewerIDs) == 0 {
		return domainClaims.NewClaimError(domainClaims.CodeValidationError, "at least one reviewer is required")
	}

	reviewers := make([]domainClaims.Claimant, 0, len(reviewerIDs))
	for _, id := range reviewerIDs {
		r, err := s.loadClaimant(ctx, id)
		if err != nil {
			return err
		}
		reviewers = append(reviewers, *r)
	}
	if err := domainClaims.CanTransitionStatus(prior.Status, domainClaims.StatusInReview); err != nil {
		return err
	}

	now := s.now()
	claim := prior.Clone()
	claim.Reviewers = reviewers
	claim.SetStatus(domainClaims.StatusInReview, "", now)

	err = s.commit(ctx, prior, claim,
		domainClaims.NewReviewRequestedEvent(claim, now),
		domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, ""),
	)
	if err != nil {
		return err
	}

	s.logger.WithIssue(issueID).Debug("review requested", "reviewers", reviewerIDs)
	return nil
}

// CompleteReview records a reviewer's verdict. Approval completes the claim;
// rejection returns it to active.
func (s *ClaimService) CompleteReview(ctx context.Context, issueID, reviewerID string, approved bool, comment string) (err error) {
	ctx, span := s.startSpan(ctx, "claims.CompleteReview", issueID)
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.loadOpenClaim(ctx, issueID)
	if err != nil {
		return err
	}
	if prior.Status != domainClaims.StatusInReview {
		return domainClaims.NewClaimError(domainClaims.CodeInvalidStatusTransition, "claim for %s is %s, not in review", issueID, prior.Status)
	}
	if !prior.HasReviewer(reviewerID) {
		return domainClaims.NewClaimError(domainClaims.CodeUnauthorized, "%s is not a reviewer of %s", reviewerID, issueID)
	}

	next := domainClaims.StatusActive
	if approved {
		next = domainClaims.StatusCompleted
	}

	now := s.now()
	claim := prior.Clone()
	claim.SetStatus(next, "", now)
	if comment != "" {
		claim.AddNote(reviewerID, comment, now)
	}

	return s.commit(ctx, prior, claim,
		domainClaims.NewReviewCompletedEvent(claim, now, reviewerID, approved, comment),
		domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, next, comment),
	)
}

// ========================================================================
// Expiry
// ========================================================================

// ExpireStale expires active claims idle for longer than maxAge and returns
// them. Claims that change underneath the sweep are skipped.
func (s *ClaimService) ExpireStale(ctx context.Context, maxAge time.Duration) (expired []*domainClaims.Claim, err error) {
	ctx, span := s.tracer.Start(ctx, "claims.ExpireStale")
	defer func() { endSpan(span, err) }()

	now := s.now()
	stale, err := s.stores.Claims.FindStaleClaims(ctx, now.Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("failed to find stale claims: %w", err)
	}

	expired = make([]*domainClaims.Claim, 0)
	for _, candidate := range stale {
		if candidate.Status != domainClaims.StatusActive {
			continue
		}
		claim, err := s.expireOne(ctx, candidate.IssueID, candidate.ID, maxAge)
		if err != nil {
			s.logger.WithIssue(candidate.IssueID).Warn("failed to expire claim", "claim_id", candidate.ID, "error", err)
			continue
		}
		if claim != nil {
			expired = append(expired, claim)
		}
	}
	return expired, nil
}

func (s *ClaimService) expireOne(ctx context.Context, issueID, claimID string, maxAge time.Duration) (*domainClaims.Claim, error) {
	unlock := s.locks.Lock(issueID)
	defer unlock()

	prior, err := s.stores.Claims.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if prior.Status != domainClaims.StatusActive || prior.InactiveFor(now) <= maxAge {
		return nil, nil
	}

	inactive := prior.InactiveFor(now)
	claim := prior.Clone()
	claim.SetStatus(domainClaims.StatusExpired, "", now)
	err = s.commit(ctx, prior, claim,
		domainClaims.NewClaimExpiredEvent(claim, now, inactive),
		domainClaims.NewClaimStatusChangedEvent(claim, now, prior.Status, claim.Status, ""),
	)
	if err != nil {
		return nil, err
	}
	s.logger.WithIssue(issueID).Info("claim expired", "claimant_id", claim.Claimant.ID, "inactive_for", inactive.String())
	return claim.Clone(), nil
}

// ========================================================================
// Auto-assignment
// ========================================================================

// Assignment scoring weights.
const (
	scorePerCapability     = 10
	scoreAllCapabilities   = 20
	scorePerSpecialization = 5
	penaltyUtilization     = 15
	scoreAgentNonEpic      = 3
)

// AssignmentCandidate is a scored claimant considered by AutoAssign.
type AssignmentCandidate struct {
	Claimant     *domainClaims.Claimant `json:"claimant"`
	Score        float64                `json:"score"`
	ActiveClaims int                    `json:"activeClaims"`
	Qualified    bool                   `json:"qualified"`
}

// ScoreCandidates scores every available claimant for the issue, best first.
func (s *ClaimService) ScoreCandidates(ctx context.Context, issue *domainClaims.Issue) ([]AssignmentCandidate, error) {
	if issue == nil {
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "issue is required")
	}
	available, err := s.stores.Claimants.FindAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimants: %w", err)
	}

	candidates := make([]AssignmentCandidate, 0, len(available))
	for _, c := range available {
		active, err := s.stores.Claims.CountByClaimant(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count claims for %s: %w", c.ID, err)
		}
		if active >= c.MaxClaims() {
			continue
		}
		candidates = append(candidates, AssignmentCandidate{
			Claimant:     c,
			Score:        scoreClaimant(c, issue, active),
			ActiveClaims: active,
			Qualified:    c.HasAllCapabilities(issue.RequiredCapabilities),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ActiveClaims != b.ActiveClaims {
			return a.ActiveClaims < b.ActiveClaims
		}
		return a.Claimant.ID < b.Claimant.ID
	})
	return candidates, nil
}

func scoreClaimant(c *domainClaims.Claimant, issue *domainClaims.Issue, active int) float64 {
	var score float64
	matched := 0
	for _, req := range issue.RequiredCapabilities {
		if c.HasCapability(req) {
			matched++
		}
	}
	score += float64(scorePerCapability * matched)
	if len(issue.RequiredCapabilities) > 0 && matched == len(issue.RequiredCapabilities) {
		score += scoreAllCapabilities
	}
	for _, label := range issue.Labels {
		if c.HasSpecialization(label) {
			score += scorePerSpecialization
		}
	}
	score -= penaltyUtilization * float64(active) / float64(c.MaxClaims())
	if c.IsAgent() && issue.Complexity != domainClaims.ComplexityEpic {
		score += scoreAgentNonEpic
	}
	return score
}

// AutoAssign picks the best claimant for issue, or nil when nobody is
// available or the top scorer lacks a required capability.
func (s *ClaimService) AutoAssign(ctx context.Context, issue *domainClaims.Issue) (best *domainClaims.Claimant, err error) {
	if issue == nil {
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "issue is required")
	}
	ctx, span := s.startSpan(ctx, "claims.AutoAssign", issue.ID)
	defer func() { endSpan(span, err) }()

	candidates, err := s.ScoreCandidates(ctx, issue)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 || !candidates[0].Qualified {
		return nil, nil
	}
	return candidates[0].Claimant, nil
}

// ========================================================================
// Queries
// ========================================================================

// GetClaim returns the issue's open claim, or nil.
func (s *ClaimService) GetClaim(ctx context.Context, issueID string) (*domainClaims.Claim, error) {
	claim, err := s.stores.Claims.FindByIssueID(ctx, issueID)
	if errors.Is(err, infraClaims.ErrNotFound) {
		return nil, nil
	}
	return claim, err
}

// GetClaimsByClaimant returns every claim ever held by claimantID.
func (s *ClaimService) GetClaimsByClaimant(ctx context.Context, claimantID string) ([]*domainClaims.Claim, error) {
	return s.stores.Claims.FindByClaimant(ctx, claimantID)
}

// GetClaimsByStatus returns claims in status.
func (s *ClaimService) GetClaimsByStatus(ctx context.Context, status domainClaims.ClaimStatus) ([]*domainClaims.Claim, error) {
	return s.stores.Claims.FindByStatus(ctx, status)
}

// GetAllClaims returns every stored claim, terminal ones included.
func (s *ClaimService) GetAllClaims(ctx context.Context) ([]*domainClaims.Claim, error) {
	return s.stores.Claims.FindAll(ctx)
}

// GetIssue returns an issue, or nil.
func (s *ClaimService) GetIssue(ctx context.Context, issueID string) (*domainClaims.Issue, error) {
	issue, err := s.stores.Issues.FindByID(ctx, issueID)
	if errors.Is(err, infraClaims.ErrNotFound) {
		return nil, nil
	}
	return issue, err
}

// GetIssues returns all registered issues.
func (s *ClaimService) GetIssues(ctx context.Context) ([]*domainClaims.Issue, error) {
	return s.stores.Issues.FindAll(ctx)
}

// GetClaimants returns all registered claimants.
func (s *ClaimService) GetClaimants(ctx context.Context) ([]*domainClaims.Claimant, error) {
	return s.stores.Claimants.FindAll(ctx)
}

// GetEventHistory returns the persisted events for an issue, or all events
// when issueID is empty.
func (s *ClaimService) GetEventHistory(ctx context.Context, issueID string, limit int) ([]*domainClaims.ClaimEvent, error) {
	return s.stores.EventStore.Query(ctx, domainClaims.EventFilter{IssueID: issueID, Limit: limit})
}
