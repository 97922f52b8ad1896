package claims

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	infraClaims "github.com/blackms/claimflow/internal/infrastructure/claims"
)

// LoadBalancer redistributes claims from overloaded to underloaded agents.
// Agents may be grouped into swarms that are balanced independently.
type LoadBalancer struct {
	base

	cfgMu  sync.RWMutex
	config domainClaims.LoadBalanceConfig

	swarmMu sync.RWMutex
	swarms  map[string]*Swarm
}

// Swarm represents a group of agents that can share work.
type Swarm struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ClaimantIDs []string  `json:"claimantIds"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SwarmLoad represents the load information for a swarm.
type SwarmLoad struct {
	SwarmID          string                   `json:"swarmId,omitempty"`
	AgentCount       int                      `json:"agentCount"`
	AverageLoad      float64                  `json:"averageLoad"`
	Overloaded       int                      `json:"overloaded"`
	Underloaded      int                      `json:"underloaded"`
	Gini             float64                  `json:"gini"`
	NeedsRebalancing bool                     `json:"needsRebalancing"`
	Loads            []domainClaims.AgentLoad `json:"loads"`
}

// RebalanceResult represents the result of a rebalancing operation.
type RebalanceResult struct {
	SwarmID     string                       `json:"swarmId,omitempty"`
	Triggered   bool                         `json:"triggered"`
	Moves       []domainClaims.RebalanceMove `json:"moves"`
	MovesFailed int                          `json:"movesFailed"`
	Duration    time.Duration                `json:"duration"`
}

// NewLoadBalancer creates a new load balancer.
func NewLoadBalancer(stores Stores, config domainClaims.LoadBalanceConfig, opts ...Option) *LoadBalancer {
	return &LoadBalancer{
		base:   newBase(stores, "load-balancer", opts),
		config: config,
		swarms: make(map[string]*Swarm),
	}
}

// Config returns the active load balancing configuration.
func (lb *LoadBalancer) Config() domainClaims.LoadBalanceConfig {
	lb.cfgMu.RLock()
	defer lb.cfgMu.RUnlock()
	return lb.config
}

// SetConfig replaces the load balancing configuration.
func (lb *LoadBalancer) SetConfig(config domainClaims.LoadBalanceConfig) {
	lb.cfgMu.Lock()
	defer lb.cfgMu.Unlock()
	lb.config = config
}

// CreateSwarm registers a named group of claimants.
func (lb *LoadBalancer) CreateSwarm(id, name string, claimantIDs []string) (*Swarm, error) {
	if id == "" {
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "swarm id is required")
	}
	lb.swarmMu.Lock()
	defer lb.swarmMu.Unlock()

	if _, exists := lb.swarms[id]; exists {
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "swarm %s already exists", id)
	}
	swarm := &Swarm{
		ID:          id,
		Name:        name,
		ClaimantIDs: append([]string(nil), claimantIDs...),
		CreatedAt:   lb.now(),
	}
	lb.swarms[id] = swarm
	return swarm, nil
}

// GetSwarm returns a swarm by ID.
func (lb *LoadBalancer) GetSwarm(id string) (*Swarm, bool) {
	lb.swarmMu.RLock()
	defer lb.swarmMu.RUnlock()
	s, ok := lb.swarms[id]
	if !ok {
		return nil, false
	}
	cp := *s
	cp.ClaimantIDs = append([]string(nil), s.ClaimantIDs...)
	return &cp, true
}

// DeleteSwarm deletes a swarm.
func (lb *LoadBalancer) DeleteSwarm(id string) bool {
	lb.swarmMu.Lock()
	defer lb.swarmMu.Unlock()
	_, ok := lb.swarms[id]
	delete(lb.swarms, id)
	return ok
}

// members returns the agents of a swarm, or every agent when swarmID is empty.
func (lb *LoadBalancer) members(ctx context.Context, swarmID string) ([]*domainClaims.Claimant, error) {
	if swarmID == "" {
		all, err := lb.stores.Claimants.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load claimants: %w", err)
		}
		agents := all[:0]
		for _, c := range all {
			if c.IsAgent() {
				agents = append(agents, c)
			}
		}
		return agents, nil
	}

	swarm, ok := lb.GetSwarm(swarmID)
	if !ok {
		return nil, domainClaims.NewClaimError(domainClaims.CodeValidationError, "swarm %s not found", swarmID)
	}
	agents := make([]*domainClaims.Claimant, 0, len(swarm.ClaimantIDs))
	for _, id := range swarm.ClaimantIDs {
		c, err := lb.stores.Claimants.FindByID(ctx, id)
		if errors.Is(err, infraClaims.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load claimant %s: %w", id, err)
		}
		agents = append(agents, c)
	}
	return agents, nil
}

// GetLoads returns a load reading for each agent in scope, busiest first.
func (lb *LoadBalancer) GetLoads(ctx context.Context, swarmID string) ([]domainClaims.AgentLoad, error) {
	agents, err := lb.members(ctx, swarmID)
	if err != nil {
		return nil, err
	}
	loads := make([]domainClaims.AgentLoad, 0, len(agents))
	for _, a := range agents {
		active, err := lb.stores.Claims.CountByClaimant(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count claims for %s: %w", a.ID, err)
		}
		loads = append(loads, domainClaims.AgentLoad{
			ClaimantID:   a.ID,
			Claimant:     *a,
			ActiveClaims: active,
			MaxClaims:    a.MaxClaims(),
			Load:         domainClaims.ComputeLoad(a, active),
		})
	}
	sort.SliceStable(loads, func(i, j int) bool {
		if loads[i].Load != loads[j].Load {
			return loads[i].Load > loads[j].Load
		}
		return loads[i].ClaimantID < loads[j].ClaimantID
	})
	return loads, nil
}

// NeedsRebalancing reports whether the agents in scope are imbalanced.
func (lb *LoadBalancer) NeedsRebalancing(ctx context.Context, swarmID string) (bool, error) {
	loads, err := lb.GetLoads(ctx, swarmID)
	if err != nil {
		return false, err
	}
	return domainClaims.NeedsRebalancing(loads, lb.Config()), nil
}

// GetSwarmLoad summarizes load for the agents in scope.
func (lb *LoadBalancer) GetSwarmLoad(ctx context.Context, swarmID string) (*SwarmLoad, error) {
	loads, err := lb.GetLoads(ctx, swarmID)
	if err != nil {
		return nil, err
	}
	config := lb.Config()
	summary := &SwarmLoad{
		SwarmID:          swarmID,
		AgentCount:       len(loads),
		Gini:             giniCoefficient(loads),
		NeedsRebalancing: domainClaims.NeedsRebalancing(loads, config),
		Loads:            loads,
	}
	var total float64
	for _, l := range loads {
		total += l.Load
		if domainClaims.IsAgentOverloaded(l.Load, config.OverloadThreshold) {
			summary.Overloaded++
		}
		if domainClaims.IsAgentUnderloaded(l.Load, config.UnderloadThreshold) {
			summary.Underloaded++
		}
	}
	if len(loads) > 0 {
		summary.AverageLoad = total / float64(len(loads))
	}
	return summary, nil
}

// Rebalance moves movable claims, least advanced first, from the busiest
// agents to the idlest until the imbalance clears or the move budget runs out.
func (lb *LoadBalancer) Rebalance(ctx context.Context, swarmID string) (result *RebalanceResult, err error) {
	ctx, span := lb.tracer.Start(ctx, "balance.Rebalance")
	defer func() { endSpan(span, err) }()

	start := time.Now()
	result = &RebalanceResult{SwarmID: swarmID, Moves: make([]domainClaims.RebalanceMove, 0)}
	defer func() {
		if result != nil {
			result.Duration = time.Since(start)
		}
	}()

	config := lb.Config()
	loads, err := lb.GetLoads(ctx, swarmID)
	if err != nil {
		return nil, err
	}
	if !domainClaims.NeedsRebalancing(loads, config) {
		return result, nil
	}
	result.Triggered = true

	byID := make(map[string]*domainClaims.AgentLoad, len(loads))
	for i := range loads {
		byID[loads[i].ClaimantID] = &loads[i]
	}

	donors := pickDonors(loads, config)
	budget := config.MaxMovesPerRun
	if budget <= 0 {
		budget = math.MaxInt
	}

	for _, donorID := range donors {
		donor := byID[donorID]
		owned, err := lb.activeClaimsOf(ctx, donorID)
		if err != nil {
			return nil, err
		}
		movable := make([]*domainClaims.Claim, 0, len(owned))
		for _, c := range owned {
			if domainClaims.CanMoveClaim(c, config.MaxMovableProgress) {
				movable = append(movable, c)
			}
		}
		sort.SliceStable(movable, func(i, j int) bool {
			return movable[i].Progress < movable[j].Progress
		})

		for _, claim := range movable {
			if len(result.Moves) >= budget || !stillImbalanced(donor, loads, config) {
				break
			}
			target := pickReceiver(loads, donor, claim)
			if target == nil {
				break
			}
			move, err := lb.executeMove(ctx, claim, donor, target)
			if err != nil {
				result.MovesFailed++
				lb.logger.WithIssue(claim.IssueID).Warn("rebalance move failed", "from", donorID, "to", target.ClaimantID, "error", err)
				continue
			}
			result.Moves = append(result.Moves, *move)
		}
		if len(result.Moves) >= budget {
			break
		}
	}

	if len(result.Moves) > 0 {
		lb.logger.Info("rebalanced claims", "swarm", swarmID, "moves", len(result.Moves), "failed", result.MovesFailed)
	}
	return result, nil
}

// pickDonors returns overloaded agents busiest first, or the single busiest
// agent when only the spread triggered rebalancing.
func pickDonors(loads []domainClaims.AgentLoad, config domainClaims.LoadBalanceConfig) []string {
	donors := make([]string, 0)
	for _, l := range loads {
		if domainClaims.IsAgentOverloaded(l.Load, config.OverloadThreshold) {
			donors = append(donors, l.ClaimantID)
		}
	}
	if len(donors) == 0 && len(loads) > 0 {
		donors = append(donors, loads[0].ClaimantID)
	}
	return donors
}

func stillImbalanced(donor *domainClaims.AgentLoad, loads []domainClaims.AgentLoad, config domainClaims.LoadBalanceConfig) bool {
	if domainClaims.IsAgentOverloaded(donor.Load, config.OverloadThreshold) {
		return true
	}
	lo := donor.Load
	for _, l := range loads {
		if l.Load < lo {
			lo = l.Load
		}
	}
	return config.RebalanceThreshold > 0 && donor.Load-lo > config.RebalanceThreshold
}

// pickReceiver returns the idlest agent with spare capacity whose load stays
// below the donor's after taking the claim.
func pickReceiver(loads []domainClaims.AgentLoad, donor *domainClaims.AgentLoad, claim *domainClaims.Claim) *domainClaims.AgentLoad {
	var best *domainClaims.AgentLoad
	for i := range loads {
		l := &loads[i]
		if l.ClaimantID == donor.ClaimantID || l.ActiveClaims >= l.MaxClaims {
			continue
		}
		after := domainClaims.ComputeLoad(&l.Claimant, l.ActiveClaims+1)
		if after >= donor.Load {
			continue
		}
		if best == nil || l.Load < best.Load {
			best = l
		}
	}
	return best
}

// executeMove reassigns one claim under its issue lock and updates the
// in-memory load readings on success.
func (lb *LoadBalancer) executeMove(ctx context.Context, candidate *domainClaims.Claim, from, to *domainClaims.AgentLoad) (*domainClaims.RebalanceMove, error) {
	unlock := lb.locks.Lock(candidate.IssueID)
	defer unlock()

	prior, err := lb.stores.Claims.FindByID(ctx, candidate.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload claim: %w", err)
	}
	if !prior.IsOwnedBy(from.ClaimantID) || !domainClaims.CanMoveClaim(prior, lb.Config().MaxMovableProgress) {
		return nil, domainClaims.NewClaimError(domainClaims.CodeConcurrentModification, "claim %s changed before it could be moved", prior.ID)
	}

	issue, err := lb.stores.Issues.FindByID(ctx, prior.IssueID)
	if err == nil && !to.Claimant.HasAllCapabilities(issue.RequiredCapabilities) {
		return nil, domainClaims.NewClaimError(domainClaims.CodeCapabilityMismatch, "%s lacks capabilities for %s", to.ClaimantID, prior.IssueID)
	}

	now := lb.now()
	move := domainClaims.RebalanceMove{
		IssueID:        prior.IssueID,
		ClaimID:        prior.ID,
		FromClaimantID: from.ClaimantID,
		ToClaimantID:   to.ClaimantID,
		FromLoad:       from.Load,
		ToLoad:         to.Load,
	}

	claim := prior.Clone()
	claim.Claimant = to.Claimant
	claim.AddNote("", fmt.Sprintf("moved from %s to %s by load balancer", from.ClaimantID, to.ClaimantID), now)

	if err := lb.commit(ctx, prior, claim, domainClaims.NewClaimRebalancedEvent(claim, now, move)); err != nil {
		return nil, err
	}

	from.ActiveClaims--
	from.Load = domainClaims.ComputeLoad(&from.Claimant, from.ActiveClaims)
	to.ActiveClaims++
	to.Load = domainClaims.ComputeLoad(&to.Claimant, to.ActiveClaims)
	return &move, nil
}

// giniCoefficient measures load inequality, 0 for perfectly even.
func giniCoefficient(loads []domainClaims.AgentLoad) float64 {
	if len(loads) < 2 {
		return 0
	}
	n := float64(len(loads))
	var sumDiff, sum float64
	for i := range loads {
		sum += loads[i].Load
		for j := range loads {
			if i != j {
				sumDiff += math.Abs(loads[i].Load - loads[j].Load)
			}
		}
	}
	if sum == 0 {
		return 0
	}
	return sumDiff / (2 * n * sum)
}
