package claims

import (
	"context"
	"sort"
	"sync"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// Projection defines the interface for event projections.
type Projection interface {
	Apply(event *domainClaims.ClaimEvent)
	Reset()
}

// ClaimSummary is a read model for the claim board.
type ClaimSummary struct {
	ClaimID        string                   `json:"claimId"`
	IssueID        string                   `json:"issueId"`
	ClaimantID     string                   `json:"claimantId"`
	Status         domainClaims.ClaimStatus `json:"status"`
	Progress       int                      `json:"progress"`
	Stealable      bool                     `json:"stealable"`
	Contested      bool                     `json:"contested"`
	HandoffCount   int                      `json:"handoffCount"`
	StealCount     int                      `json:"stealCount"`
	ClaimedAt      time.Time                `json:"claimedAt"`
	LastActivityAt time.Time                `json:"lastActivityAt"`
}

// ClaimantStats is a read model for claimant statistics.
type ClaimantStats struct {
	ClaimantID       string    `json:"claimantId"`
	TotalClaims      int       `json:"totalClaims"`
	ActiveClaims     int       `json:"activeClaims"`
	CompletedClaims  int       `json:"completedClaims"`
	ReleasedClaims   int       `json:"releasedClaims"`
	ExpiredClaims    int       `json:"expiredClaims"`
	HandoffsReceived int       `json:"handoffsReceived"`
	StealsGained     int       `json:"stealsGained"`
	StealsLost       int       `json:"stealsLost"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
}

// SystemStats is a read model for system-wide statistics.
type SystemStats struct {
	TotalClaims     int       `json:"totalClaims"`
	ActiveClaims    int       `json:"activeClaims"`
	CompletedClaims int       `json:"completedClaims"`
	StealableClaims int       `json:"stealableClaims"`
	OpenContests    int       `json:"openContests"`
	TotalHandoffs   int       `json:"totalHandoffs"`
	TotalSteals     int       `json:"totalSteals"`
	TotalEvents     int       `json:"totalEvents"`
	LastEventAt     time.Time `json:"lastEventAt"`
}

// ClaimSummaryProjection maintains one summary per claim.
type ClaimSummaryProjection struct {
	mu        sync.RWMutex
	summaries map[string]*ClaimSummary
}

// NewClaimSummaryProjection creates a new claim summary projection.
func NewClaimSummaryProjection() *ClaimSummaryProjection {
	return &ClaimSummaryProjection{
		summaries: make(map[string]*ClaimSummary),
	}
}

// Apply applies an event to the projection.
func (p *ClaimSummaryProjection) Apply(event *domainClaims.ClaimEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Type == domainClaims.EventClaimCreated {
		p.summaries[event.ClaimID] = &ClaimSummary{
			ClaimID:        event.ClaimID,
			IssueID:        event.IssueID,
			ClaimantID:     getString(event.Payload, "claimantId"),
			Status:         domainClaims.StatusActive,
			ClaimedAt:      event.Timestamp,
			LastActivityAt: event.Timestamp,
		}
		return
	}

	summary, exists := p.summaries[event.ClaimID]
	if !exists {
		return
	}
	summary.LastActivityAt = event.Timestamp

	switch event.Type {
	case domainClaims.EventClaimStatusChanged:
		if s := getStatus(event.Payload, "newStatus"); s != "" {
			summary.Status = s
		}
	case domainClaims.EventClaimReleased:
		summary.Status = domainClaims.StatusReleased
	case domainClaims.EventClaimExpired:
		summary.Status = domainClaims.StatusExpired
	case domainClaims.EventClaimProgressUpdated:
		summary.Progress = getInt(event.Payload, "progress")
	case domainClaims.EventHandoffAccepted:
		summary.ClaimantID = getString(event.Payload, "toId")
		summary.HandoffCount++
	case domainClaims.EventIssueMarkedStealable:
		summary.Stealable = true
	case domainClaims.EventIssueStolen:
		summary.ClaimantID = getString(event.Payload, "newClaimantId")
		summary.Status = domainClaims.StatusActive
		summary.Stealable = false
		summary.Contested = true
		summary.StealCount++
	case domainClaims.EventStealContestResolved:
		summary.Contested = false
		summary.ClaimantID = getString(event.Payload, "winnerId")
	case domainClaims.EventClaimRebalanced:
		summary.ClaimantID = getString(event.Payload, "toClaimantId")
	}
}

// Reset resets the projection.
func (p *ClaimSummaryProjection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = make(map[string]*ClaimSummary)
}

// Get returns the summary for a claim.
func (p *ClaimSummaryProjection) Get(claimID string) (*ClaimSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	summary, exists := p.summaries[claimID]
	if !exists {
		return nil, false
	}
	summaryCopy := *summary
	return &summaryCopy, true
}

// GetAll returns all summaries ordered by claim time.
func (p *ClaimSummaryProjection) GetAll() []*ClaimSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]*ClaimSummary, 0, len(p.summaries))
	for _, s := range p.summaries {
		summaryCopy := *s
		result = append(result, &summaryCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ClaimedAt.Equal(result[j].ClaimedAt) {
			return result[i].ClaimID < result[j].ClaimID
		}
		return result[i].ClaimedAt.Before(result[j].ClaimedAt)
	})
	return result
}

// GetOpen returns summaries for claims that still hold their issue.
func (p *ClaimSummaryProjection) GetOpen() []*ClaimSummary {
	all := p.GetAll()
	result := make([]*ClaimSummary, 0, len(all))
	for _, s := range all {
		if s.Status.IsOpen() {
			result = append(result, s)
		}
	}
	return result
}

// ClaimantStatsProjection maintains per-claimant statistics.
type ClaimantStatsProjection struct {
	mu     sync.RWMutex
	stats  map[string]*ClaimantStats
	owners map[string]string
	status map[string]domainClaims.ClaimStatus
}

// NewClaimantStatsProjection creates a new claimant stats projection.
func NewClaimantStatsProjection() *ClaimantStatsProjection {
	p := &ClaimantStatsProjection{}
	p.Reset()
	return p
}

// Apply applies an event to the projection.
func (p *ClaimantStatsProjection) Apply(event *domainClaims.ClaimEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	claimID := event.ClaimID
	switch event.Type {
	case domainClaims.EventClaimCreated:
		owner := getString(event.Payload, "claimantId")
		p.owners[claimID] = owner
		p.status[claimID] = domainClaims.StatusActive
		s := p.getOrCreate(owner)
		s.TotalClaims++
		s.ActiveClaims++
		s.LastActivityAt = event.Timestamp

	case domainClaims.EventClaimStatusChanged:
		p.setStatus(claimID, getStatus(event.Payload, "newStatus"), event.Timestamp)

	case domainClaims.EventClaimExpired:
		p.setStatus(claimID, domainClaims.StatusExpired, event.Timestamp)

	case domainClaims.EventClaimReleased:
		p.setStatus(claimID, domainClaims.StatusReleased, event.Timestamp)

	case domainClaims.EventHandoffAccepted:
		p.transfer(claimID, getString(event.Payload, "toId"), event.Timestamp)
		p.getOrCreate(getString(event.Payload, "toId")).HandoffsReceived++

	case domainClaims.EventIssueStolen:
		prev := p.owners[claimID]
		next := getString(event.Payload, "newClaimantId")
		p.transfer(claimID, next, event.Timestamp)
		p.getOrCreate(next).StealsGained++
		if prev != "" {
			p.getOrCreate(prev).StealsLost++
		}

	case domainClaims.EventStealContestResolved:
		p.transfer(claimID, getString(event.Payload, "winnerId"), event.Timestamp)

	case domainClaims.EventClaimRebalanced:
		p.transfer(claimID, getString(event.Payload, "toClaimantId"), event.Timestamp)
	}
}

func (p *ClaimantStatsProjection) setStatus(claimID string, next domainClaims.ClaimStatus, at time.Time) {
	prev, known := p.status[claimID]
	if !known || next == "" || prev == next {
		return
	}
	s := p.getOrCreate(p.owners[claimID])
	if prev.IsActive() && !next.IsActive() {
		s.ActiveClaims--
	} else if !prev.IsActive() && next.IsActive() {
		s.ActiveClaims++
	}
	switch next {
	case domainClaims.StatusCompleted:
		s.CompletedClaims++
	case domainClaims.StatusReleased:
		s.ReleasedClaims++
	case domainClaims.StatusExpired:
		s.ExpiredClaims++
	}
	s.LastActivityAt = at
	p.status[claimID] = next
}

func (p *ClaimantStatsProjection) transfer(claimID, to string, at time.Time) {
	from, known := p.owners[claimID]
	if !known || to == "" || from == to {
		return
	}
	if p.status[claimID].IsActive() {
		p.getOrCreate(from).ActiveClaims--
		p.getOrCreate(to).ActiveClaims++
	}
	p.owners[claimID] = to
	p.getOrCreate(to).LastActivityAt = at
}

// getOrCreate returns existing stats or creates new ones.
func (p *ClaimantStatsProjection) getOrCreate(claimantID string) *ClaimantStats {
	if stats, exists := p.stats[claimantID]; exists {
		return stats
	}
	stats := &ClaimantStats{ClaimantID: claimantID}
	p.stats[claimantID] = stats
	return stats
}

// Reset resets the projection.
func (p *ClaimantStatsProjection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = make(map[string]*ClaimantStats)
	p.owners = make(map[string]string)
	p.status = make(map[string]domainClaims.ClaimStatus)
}

// Get returns stats for a claimant.
func (p *ClaimantStatsProjection) Get(claimantID string) (*ClaimantStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stats, exists := p.stats[claimantID]
	if !exists {
		return nil, false
	}
	statsCopy := *stats
	return &statsCopy, true
}

// GetAll returns all claimant stats ordered by id.
func (p *ClaimantStatsProjection) GetAll() []*ClaimantStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]*ClaimantStats, 0, len(p.stats))
	for _, stats := range p.stats {
		statsCopy := *stats
		result = append(result, &statsCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClaimantID < result[j].ClaimantID })
	return result
}

// SystemStatsProjection maintains system-wide statistics.
type SystemStatsProjection struct {
	mu        sync.RWMutex
	stats     SystemStats
	status    map[string]domainClaims.ClaimStatus
	stealable map[string]bool
	contested map[string]bool
}

// NewSystemStatsProjection creates a new system stats projection.
func NewSystemStatsProjection() *SystemStatsProjection {
	p := &SystemStatsProjection{}
	p.Reset()
	return p
}

// Apply applies an event to the projection.
func (p *SystemStatsProjection) Apply(event *domainClaims.ClaimEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalEvents++
	p.stats.LastEventAt = event.Timestamp
	id := event.ClaimID

	switch event.Type {
	case domainClaims.EventClaimCreated:
		p.stats.TotalClaims++
		p.status[id] = domainClaims.StatusActive
	case domainClaims.EventClaimStatusChanged:
		if s := getStatus(event.Payload, "newStatus"); s != "" {
			p.status[id] = s
		}
	case domainClaims.EventClaimReleased:
		p.status[id] = domainClaims.StatusReleased
	case domainClaims.EventClaimExpired:
		p.status[id] = domainClaims.StatusExpired
	case domainClaims.EventIssueMarkedStealable:
		p.stealable[id] = true
	case domainClaims.EventIssueStolen:
		delete(p.stealable, id)
		p.contested[id] = true
		p.stats.TotalSteals++
	case domainClaims.EventStealContestResolved:
		delete(p.contested, id)
	case domainClaims.EventHandoffAccepted:
		p.stats.TotalHandoffs++
	}
}

// Reset resets the projection.
func (p *SystemStatsProjection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = SystemStats{}
	p.status = make(map[string]domainClaims.ClaimStatus)
	p.stealable = make(map[string]bool)
	p.contested = make(map[string]bool)
}

// Get returns the current system stats.
func (p *SystemStatsProjection) Get() SystemStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := p.stats
	for id, s := range p.status {
		if s.IsActive() {
			stats.ActiveClaims++
		}
		if s == domainClaims.StatusCompleted {
			stats.CompletedClaims++
		}
		if p.stealable[id] && s.IsOpen() {
			stats.StealableClaims++
		}
	}
	stats.OpenContests = len(p.contested)
	return stats
}

// ProjectionManager fans events out to registered projections.
type ProjectionManager struct {
	mu          sync.RWMutex
	projections []Projection
	eventStore  EventStore
}

// NewProjectionManager creates a new projection manager.
func NewProjectionManager(eventStore EventStore) *ProjectionManager {
	return &ProjectionManager{
		projections: make([]Projection, 0),
		eventStore:  eventStore,
	}
}

// Register registers a projection.
func (m *ProjectionManager) Register(projection Projection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projections = append(m.projections, projection)
}

// Handle applies one event to every projection. It matches the event bus
// handler signature.
func (m *ProjectionManager) Handle(ctx context.Context, event *domainClaims.ClaimEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projections {
		p.Apply(event)
	}
	return nil
}

// RebuildAll rebuilds all projections from the event store.
func (m *ProjectionManager) RebuildAll(ctx context.Context) error {
	events, err := m.eventStore.Query(ctx, domainClaims.EventFilter{})
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projections {
		p.Reset()
	}
	for _, event := range events {
		for _, p := range m.projections {
			p.Apply(event)
		}
	}
	return nil
}

func getString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// getStatus accepts both typed statuses and the plain strings produced by a
// JSON round trip through a durable store.
func getStatus(payload map[string]interface{}, key string) domainClaims.ClaimStatus {
	switch v := payload[key].(type) {
	case domainClaims.ClaimStatus:
		return v
	case string:
		return domainClaims.ClaimStatus(v)
	}
	return ""
}

func getInt(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
