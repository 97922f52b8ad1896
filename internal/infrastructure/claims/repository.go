// Package claims provides storage backends for claims, issues, claimants and
// claim events.
package claims

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// Storage errors. Backends wrap these with driver detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate")
	ErrStoreClosed     = errors.New("store is closed")
	ErrStoreInit       = errors.New("store initialization failed")
)

// ClaimRepository defines the interface for claim persistence. Reads always
// return copies; writes never retain the caller's pointer.
type ClaimRepository interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	// Save inserts a new claim at version 1. It fails with ErrDuplicate if the
	// issue already has an open claim.
	Save(ctx context.Context, claim *domainClaims.Claim) error
	// Update replaces a claim whose stored version equals expectedVersion and
	// sets claim.Version to expectedVersion+1.
	Update(ctx context.Context, claim *domainClaims.Claim, expectedVersion int) error
	FindByID(ctx context.Context, id string) (*domainClaims.Claim, error)
	// FindByIssueID returns the open claim for the issue or ErrNotFound.
	FindByIssueID(ctx context.Context, issueID string) (*domainClaims.Claim, error)
	FindAll(ctx context.Context) ([]*domainClaims.Claim, error)
	FindByClaimant(ctx context.Context, claimantID string) ([]*domainClaims.Claim, error)
	FindByStatus(ctx context.Context, status domainClaims.ClaimStatus) ([]*domainClaims.Claim, error)
	// FindStealable returns open claims carrying steal info, optionally
	// limited to those whose allow-list admits agentType.
	FindStealable(ctx context.Context, agentType string) ([]*domainClaims.Claim, error)
	// CountByClaimant counts slot-occupying claims.
	CountByClaimant(ctx context.Context, claimantID string) (int, error)
	// FindStaleClaims returns open claims with no activity since the cutoff.
	FindStaleClaims(ctx context.Context, since time.Time) ([]*domainClaims.Claim, error)
}

// IssueRepository defines the interface for issue persistence.
type IssueRepository interface {
	Save(ctx context.Context, issue *domainClaims.Issue) error
	FindByID(ctx context.Context, id string) (*domainClaims.Issue, error)
	FindAll(ctx context.Context) ([]*domainClaims.Issue, error)
}

// ClaimantRepository defines the interface for claimant persistence.
type ClaimantRepository interface {
	Save(ctx context.Context, claimant *domainClaims.Claimant) error
	FindByID(ctx context.Context, id string) (*domainClaims.Claimant, error)
	Exists(ctx context.Context, id string) (bool, error)
	// FindAvailable returns claimants whose self-reported workload is below 100.
	FindAvailable(ctx context.Context) ([]*domainClaims.Claimant, error)
	FindAll(ctx context.Context) ([]*domainClaims.Claimant, error)
}

// InMemoryClaimRepository provides an in-memory claim repository.
type InMemoryClaimRepository struct {
	mu     sync.RWMutex
	claims map[string]*domainClaims.Claim
	// open indexes the open claim id per issue.
	open   map[string]string
	closed bool
}

// NewInMemoryClaimRepository creates a new in-memory claim repository.
func NewInMemoryClaimRepository() *InMemoryClaimRepository {
	return &InMemoryClaimRepository{
		claims: make(map[string]*domainClaims.Claim),
		open:   make(map[string]string),
	}
}

// Initialize is a no-op for the in-memory store.
func (r *InMemoryClaimRepository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = false
	return nil
}

// Shutdown marks the store closed.
func (r *InMemoryClaimRepository) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Save inserts a new claim.
func (r *InMemoryClaimRepository) Save(ctx context.Context, claim *domainClaims.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}
	if _, exists := r.claims[claim.ID]; exists {
		return fmt.Errorf("%w: claim %s", ErrDuplicate, claim.ID)
	}
	if id, exists := r.open[claim.IssueID]; exists && id != claim.ID {
		return fmt.Errorf("%w: issue %s already has open claim %s", ErrDuplicate, claim.IssueID, id)
	}

	claim.Version = 1
	r.claims[claim.ID] = claim.Clone()
	if claim.Status.IsOpen() {
		r.open[claim.IssueID] = claim.ID
	}
	return nil
}

// Update replaces a claim under an optimistic version check.
func (r *InMemoryClaimRepository) Update(ctx context.Context, claim *domainClaims.Claim, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}
	stored, exists := r.claims[claim.ID]
	if !exists {
		return fmt.Errorf("%w: claim %s", ErrNotFound, claim.ID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: claim %s is at version %d, expected %d", ErrVersionConflict, claim.ID, stored.Version, expectedVersion)
	}
	if claim.Status.IsOpen() {
		if id, exists := r.open[claim.IssueID]; exists && id != claim.ID {
			return fmt.Errorf("%w: issue %s already has open claim %s", ErrDuplicate, claim.IssueID, id)
		}
	}

	claim.Version = expectedVersion + 1
	r.claims[claim.ID] = claim.Clone()
	if claim.Status.IsOpen() {
		r.open[claim.IssueID] = claim.ID
	} else if r.open[claim.IssueID] == claim.ID {
		delete(r.open, claim.IssueID)
	}
	return nil
}

// FindByID finds a claim by ID.
func (r *InMemoryClaimRepository) FindByID(ctx context.Context, id string) (*domainClaims.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	claim, exists := r.claims[id]
	if !exists {
		return nil, fmt.Errorf("%w: claim %s", ErrNotFound, id)
	}
	return claim.Clone(), nil
}

// FindByIssueID finds the open claim for an issue.
func (r *InMemoryClaimRepository) FindByIssueID(ctx context.Context, issueID string) (*domainClaims.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.open[issueID]
	if !exists {
		return nil, fmt.Errorf("%w: no open claim for issue %s", ErrNotFound, issueID)
	}
	return r.claims[id].Clone(), nil
}

// FindAll returns every claim, oldest first.
func (r *InMemoryClaimRepository) FindAll(ctx context.Context) ([]*domainClaims.Claim, error) {
	return r.filter(func(*domainClaims.Claim) bool { return true }), nil
}

// FindByClaimant finds all claims owned by a claimant.
func (r *InMemoryClaimRepository) FindByClaimant(ctx context.Context, claimantID string) ([]*domainClaims.Claim, error) {
	return r.filter(func(c *domainClaims.Claim) bool { return c.Claimant.ID == claimantID }), nil
}

// FindByStatus finds claims by status.
func (r *InMemoryClaimRepository) FindByStatus(ctx context.Context, status domainClaims.ClaimStatus) ([]*domainClaims.Claim, error) {
	return r.filter(func(c *domainClaims.Claim) bool { return c.Status == status }), nil
}

// FindStealable finds open claims carrying steal info.
func (r *InMemoryClaimRepository) FindStealable(ctx context.Context, agentType string) ([]*domainClaims.Claim, error) {
	return r.filter(func(c *domainClaims.Claim) bool {
		if c.StealInfo == nil || !c.Status.IsOpen() {
			return false
		}
		return agentType == "" || c.StealInfo.Allows(agentType)
	}), nil
}

// CountByClaimant counts slot-occupying claims for a claimant.
func (r *InMemoryClaimRepository) CountByClaimant(ctx context.Context, claimantID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, claim := range r.claims {
		if claim.Claimant.ID == claimantID && claim.IsActive() {
			count++
		}
	}
	return count, nil
}

// FindStaleClaims returns open claims idle since before the cutoff.
func (r *InMemoryClaimRepository) FindStaleClaims(ctx context.Context, since time.Time) ([]*domainClaims.Claim, error) {
	return r.filter(func(c *domainClaims.Claim) bool {
		return c.Status.IsOpen() && c.LastActivityAt.Before(since)
	}), nil
}

func (r *InMemoryClaimRepository) filter(keep func(*domainClaims.Claim) bool) []*domainClaims.Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domainClaims.Claim, 0)
	for _, claim := range r.claims {
		if keep(claim) {
			result = append(result, claim.Clone())
		}
	}
	sortClaims(result)
	return result
}

func sortClaims(claims []*domainClaims.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		if claims[i].ClaimedAt.Equal(claims[j].ClaimedAt) {
			return claims[i].ID < claims[j].ID
		}
		return claims[i].ClaimedAt.Before(claims[j].ClaimedAt)
	})
}

// InMemoryIssueRepository provides an in-memory issue repository.
type InMemoryIssueRepository struct {
	mu     sync.RWMutex
	issues map[string]*domainClaims.Issue
}

// NewInMemoryIssueRepository creates a new in-memory issue repository.
func NewInMemoryIssueRepository() *InMemoryIssueRepository {
	return &InMemoryIssueRepository{
		issues: make(map[string]*domainClaims.Issue),
	}
}

// Save upserts an issue.
func (r *InMemoryIssueRepository) Save(ctx context.Context, issue *domainClaims.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issues[issue.ID] = issue.Clone()
	return nil
}

// FindByID finds an issue by ID.
func (r *InMemoryIssueRepository) FindByID(ctx context.Context, id string) (*domainClaims.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	issue, exists := r.issues[id]
	if !exists {
		return nil, fmt.Errorf("%w: issue %s", ErrNotFound, id)
	}
	return issue.Clone(), nil
}

// FindAll returns every issue ordered by id.
func (r *InMemoryIssueRepository) FindAll(ctx context.Context) ([]*domainClaims.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domainClaims.Issue, 0, len(r.issues))
	for _, issue := range r.issues {
		result = append(result, issue.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// InMemoryClaimantRepository provides an in-memory claimant repository.
type InMemoryClaimantRepository struct {
	mu        sync.RWMutex
	claimants map[string]*domainClaims.Claimant
}

// NewInMemoryClaimantRepository creates a new in-memory claimant repository.
func NewInMemoryClaimantRepository() *InMemoryClaimantRepository {
	return &InMemoryClaimantRepository{
		claimants: make(map[string]*domainClaims.Claimant),
	}
}

// Save upserts a claimant.
func (r *InMemoryClaimantRepository) Save(ctx context.Context, claimant *domainClaims.Claimant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimants[claimant.ID] = claimant.Clone()
	return nil
}

// FindByID finds a claimant by ID.
func (r *InMemoryClaimantRepository) FindByID(ctx context.Context, id string) (*domainClaims.Claimant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	claimant, exists := r.claimants[id]
	if !exists {
		return nil, fmt.Errorf("%w: claimant %s", ErrNotFound, id)
	}
	return claimant.Clone(), nil
}

// Exists reports whether a claimant is registered.
func (r *InMemoryClaimantRepository) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.claimants[id]
	return exists, nil
}

// FindAvailable returns claimants below full workload.
func (r *InMemoryClaimantRepository) FindAvailable(ctx context.Context) ([]*domainClaims.Claimant, error) {
	all, _ := r.FindAll(ctx)
	result := make([]*domainClaims.Claimant, 0, len(all))
	for _, c := range all {
		if c.CurrentWorkload < 100 {
			result = append(result, c)
		}
	}
	return result, nil
}

// FindAll returns every claimant ordered by id.
func (r *InMemoryClaimantRepository) FindAll(ctx context.Context) ([]*domainClaims.Claimant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domainClaims.Claimant, 0, len(r.claimants))
	for _, c := range r.claimants {
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
