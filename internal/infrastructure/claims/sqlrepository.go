package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// SQLClaimRepository stores claims as JSON documents with indexed columns.
type SQLClaimRepository struct {
	store *SQLStore
}

// Initialize ensures the schema exists.
func (r *SQLClaimRepository) Initialize(ctx context.Context) error {
	if r.store.isClosed() {
		return ErrStoreClosed
	}
	return r.store.initSchema(ctx)
}

// Shutdown closes the underlying store.
func (r *SQLClaimRepository) Shutdown(ctx context.Context) error {
	return r.store.Close()
}

// Save inserts a new claim at version 1.
func (r *SQLClaimRepository) Save(ctx context.Context, claim *domainClaims.Claim) error {
	if r.store.isClosed() {
		return ErrStoreClosed
	}
	claim.Version = 1
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	_, err = r.store.exec(ctx, `
		INSERT INTO claims (id, issue_id, claimant_id, status, is_open, is_active, stealable, claimed_at, last_activity_at, version, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		claim.ID,
		claim.IssueID,
		claim.Claimant.ID,
		string(claim.Status),
		boolInt(claim.Status.IsOpen()),
		boolInt(claim.IsActive()),
		boolInt(claim.StealInfo != nil),
		claim.ClaimedAt.UnixMilli(),
		claim.LastActivityAt.UnixMilli(),
		claim.Version,
		string(data),
	)
	if err != nil {
		claim.Version = 0
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: issue %s already has an open claim", ErrDuplicate, claim.IssueID)
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// Update replaces a claim under an optimistic version check.
func (r *SQLClaimRepository) Update(ctx context.Context, claim *domainClaims.Claim, expectedVersion int) error {
	if r.store.isClosed() {
		return ErrStoreClosed
	}
	next := *claim
	next.Version = expectedVersion + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	res, err := r.store.exec(ctx, `
		UPDATE claims
		SET claimant_id = ?, status = ?, is_open = ?, is_active = ?, stealable = ?, claimed_at = ?, last_activity_at = ?, version = ?, data = ?
		WHERE id = ? AND version = ?
	`,
		claim.Claimant.ID,
		string(claim.Status),
		boolInt(claim.Status.IsOpen()),
		boolInt(claim.IsActive()),
		boolInt(claim.StealInfo != nil),
		claim.ClaimedAt.UnixMilli(),
		claim.LastActivityAt.UnixMilli(),
		next.Version,
		string(data),
		claim.ID,
		expectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: issue %s already has an open claim", ErrDuplicate, claim.IssueID)
		}
		return fmt.Errorf("failed to update claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n == 0 {
		var version int
		err := r.store.queryRow(ctx, `SELECT version FROM claims WHERE id = ?`, claim.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: claim %s", ErrNotFound, claim.ID)
		}
		return fmt.Errorf("%w: claim %s is at version %d, expected %d", ErrVersionConflict, claim.ID, version, expectedVersion)
	}
	claim.Version = next.Version
	return nil
}

// FindByID finds a claim by ID.
func (r *SQLClaimRepository) FindByID(ctx context.Context, id string) (*domainClaims.Claim, error) {
	return r.findOne(ctx, `SELECT data FROM claims WHERE id = ?`, id)
}

// FindByIssueID finds the open claim for an issue.
func (r *SQLClaimRepository) FindByIssueID(ctx context.Context, issueID string) (*domainClaims.Claim, error) {
	return r.findOne(ctx, `SELECT data FROM claims WHERE issue_id = ? AND is_open = 1`, issueID)
}

// FindAll returns every claim, oldest first.
func (r *SQLClaimRepository) FindAll(ctx context.Context) ([]*domainClaims.Claim, error) {
	return r.findMany(ctx, `SELECT data FROM claims ORDER BY claimed_at, id`)
}

// FindByClaimant finds all claims owned by a claimant.
func (r *SQLClaimRepository) FindByClaimant(ctx context.Context, claimantID string) ([]*domainClaims.Claim, error) {
	return r.findMany(ctx, `SELECT data FROM claims WHERE claimant_id = ? ORDER BY claimed_at, id`, claimantID)
}

// FindByStatus finds claims by status.
func (r *SQLClaimRepository) FindByStatus(ctx context.Context, status domainClaims.ClaimStatus) ([]*domainClaims.Claim, error) {
	return r.findMany(ctx, `SELECT data FROM claims WHERE status = ? ORDER BY claimed_at, id`, string(status))
}

// FindStealable finds open claims carrying steal info.
func (r *SQLClaimRepository) FindStealable(ctx context.Context, agentType string) ([]*domainClaims.Claim, error) {
	claims, err := r.findMany(ctx, `SELECT data FROM claims WHERE stealable = 1 AND is_open = 1 ORDER BY claimed_at, id`)
	if err != nil || agentType == "" {
		return claims, err
	}
	result := make([]*domainClaims.Claim, 0, len(claims))
	for _, c := range claims {
		if c.StealInfo.Allows(agentType) {
			result = append(result, c)
		}
	}
	return result, nil
}

// CountByClaimant counts slot-occupying claims for a claimant.
func (r *SQLClaimRepository) CountByClaimant(ctx context.Context, claimantID string) (int, error) {
	var n int
	err := r.store.queryRow(ctx, `SELECT COUNT(*) FROM claims WHERE claimant_id = ? AND is_active = 1`, claimantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return n, nil
}

// FindStaleClaims returns open claims idle since before the cutoff.
func (r *SQLClaimRepository) FindStaleClaims(ctx context.Context, since time.Time) ([]*domainClaims.Claim, error) {
	return r.findMany(ctx, `SELECT data FROM claims WHERE is_open = 1 AND last_activity_at < ? ORDER BY claimed_at, id`, since.UnixMilli())
}

func (r *SQLClaimRepository) findOne(ctx context.Context, query string, args ...interface{}) (*domainClaims.Claim, error) {
	if r.store.isClosed() {
		return nil, ErrStoreClosed
	}
	var data string
	err := r.store.queryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim %v", ErrNotFound, args)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query claim: %w", err)
	}
	var claim domainClaims.Claim
	if err := json.Unmarshal([]byte(data), &claim); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}
	return &claim, nil
}

func (r *SQLClaimRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*domainClaims.Claim, error) {
	if r.store.isClosed() {
		return nil, ErrStoreClosed
	}
	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	result := make([]*domainClaims.Claim, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var claim domainClaims.Claim
		if err := json.Unmarshal([]byte(data), &claim); err != nil {
			return nil, fmt.Errorf("failed to decode claim: %w", err)
		}
		result = append(result, &claim)
	}
	return result, rows.Err()
}

// SQLIssueRepository stores issues as JSON documents.
type SQLIssueRepository struct {
	store *SQLStore
}

// Save upserts an issue.
func (r *SQLIssueRepository) Save(ctx context.Context, issue *domainClaims.Issue) error {
	data, err := json.Marshal(issue)
	if err != nil {
		return fmt.Errorf("failed to encode issue: %w", err)
	}
	_, err = r.store.exec(ctx, `
		INSERT INTO issues (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, issue.ID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save issue: %w", err)
	}
	return nil
}

// FindByID finds an issue by ID.
func (r *SQLIssueRepository) FindByID(ctx context.Context, id string) (*domainClaims.Issue, error) {
	var data string
	err := r.store.queryRow(ctx, `SELECT data FROM issues WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: issue %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query issue: %w", err)
	}
	var issue domainClaims.Issue
	if err := json.Unmarshal([]byte(data), &issue); err != nil {
		return nil, fmt.Errorf("failed to decode issue: %w", err)
	}
	return &issue, nil
}

// FindAll returns every issue ordered by id.
func (r *SQLIssueRepository) FindAll(ctx context.Context) ([]*domainClaims.Issue, error) {
	rows, err := r.store.query(ctx, `SELECT data FROM issues ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	result := make([]*domainClaims.Issue, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var issue domainClaims.Issue
		if err := json.Unmarshal([]byte(data), &issue); err != nil {
			return nil, fmt.Errorf("failed to decode issue: %w", err)
		}
		result = append(result, &issue)
	}
	return result, rows.Err()
}

// SQLClaimantRepository stores claimants as JSON documents.
type SQLClaimantRepository struct {
	store *SQLStore
}

// Save upserts a claimant.
func (r *SQLClaimantRepository) Save(ctx context.Context, claimant *domainClaims.Claimant) error {
	data, err := json.Marshal(claimant)
	if err != nil {
		return fmt.Errorf("failed to encode claimant: %w", err)
	}
	_, err = r.store.exec(ctx, `
		INSERT INTO claimants (id, workload, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET workload = excluded.workload, data = excluded.data
	`, claimant.ID, claimant.CurrentWorkload, string(data))
	if err != nil {
		return fmt.Errorf("failed to save claimant: %w", err)
	}
	return nil
}

// FindByID finds a claimant by ID.
func (r *SQLClaimantRepository) FindByID(ctx context.Context, id string) (*domainClaims.Claimant, error) {
	var data string
	err := r.store.queryRow(ctx, `SELECT data FROM claimants WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claimant %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query claimant: %w", err)
	}
	var claimant domainClaims.Claimant
	if err := json.Unmarshal([]byte(data), &claimant); err != nil {
		return nil, fmt.Errorf("failed to decode claimant: %w", err)
	}
	return &claimant, nil
}

// Exists reports whether a claimant is registered.
func (r *SQLClaimantRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.store.queryRow(ctx, `SELECT COUNT(*) FROM claimants WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query claimant: %w", err)
	}
	return n > 0, nil
}

// FindAvailable returns claimants below full workload.
func (r *SQLClaimantRepository) FindAvailable(ctx context.Context) ([]*domainClaims.Claimant, error) {
	return r.findMany(ctx, `SELECT data FROM claimants WHERE workload < 100 ORDER BY id`)
}

// FindAll returns every claimant ordered by id.
func (r *SQLClaimantRepository) FindAll(ctx context.Context) ([]*domainClaims.Claimant, error) {
	return r.findMany(ctx, `SELECT data FROM claimants ORDER BY id`)
}

func (r *SQLClaimantRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*domainClaims.Claimant, error) {
	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claimants: %w", err)
	}
	defer rows.Close()

	result := make([]*domainClaims.Claimant, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var claimant domainClaims.Claimant
		if err := json.Unmarshal([]byte(data), &claimant); err != nil {
			return nil, fmt.Errorf("failed to decode claimant: %w", err)
		}
		result = append(result, &claimant)
	}
	return result, rows.Err()
}
