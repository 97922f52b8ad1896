package claims

import "time"

// WorkStealingConfig holds the thresholds governing stale detection and theft.
type WorkStealingConfig struct {
	StaleThresholdMinutes   int         `json:"staleThresholdMinutes" yaml:"staleThresholdMinutes" mapstructure:"staleThresholdMinutes"`
	BlockedThresholdMinutes int         `json:"blockedThresholdMinutes" yaml:"blockedThresholdMinutes" mapstructure:"blockedThresholdMinutes"`
	GracePeriodMinutes      int         `json:"gracePeriodMinutes" yaml:"gracePeriodMinutes" mapstructure:"gracePeriodMinutes"`
	MinProgressToProtect    int         `json:"minProgressToProtect" yaml:"minProgressToProtect" mapstructure:"minProgressToProtect"`
	OverloadThreshold       int         `json:"overloadThreshold" yaml:"overloadThreshold" mapstructure:"overloadThreshold"`
	ContestWindowMinutes    int         `json:"contestWindowMinutes" yaml:"contestWindowMinutes" mapstructure:"contestWindowMinutes"`
	AllowCrossTypeSteal     bool        `json:"allowCrossTypeSteal" yaml:"allowCrossTypeSteal" mapstructure:"allowCrossTypeSteal"`
	CrossTypeStealRules     [][2]string `json:"crossTypeStealRules" yaml:"crossTypeStealRules" mapstructure:"crossTypeStealRules"`
}

// DefaultWorkStealingConfig returns the default stealing thresholds.
func DefaultWorkStealingConfig() WorkStealingConfig {
	return WorkStealingConfig{
		StaleThresholdMinutes:   30,
		BlockedThresholdMinutes: 60,
		GracePeriodMinutes:      5,
		MinProgressToProtect:    50,
		OverloadThreshold:       5,
		ContestWindowMinutes:    30,
		AllowCrossTypeSteal:     true,
		CrossTypeStealRules: [][2]string{
			{string(AgentCoder), string(AgentTester)},
			{string(AgentTester), string(AgentReviewer)},
			{string(AgentResearcher), string(AgentAnalyst)},
		},
	}
}

// StaleThreshold returns the stale threshold as a duration.
func (c WorkStealingConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMinutes) * time.Minute
}

// BlockedThreshold returns the blocked threshold as a duration.
func (c WorkStealingConfig) BlockedThreshold() time.Duration {
	return time.Duration(c.BlockedThresholdMinutes) * time.Minute
}

// GracePeriod returns the grace period as a duration.
func (c WorkStealingConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMinutes) * time.Minute
}

// ContestWindow returns the contest window as a duration.
func (c WorkStealingConfig) ContestWindow() time.Duration {
	return time.Duration(c.ContestWindowMinutes) * time.Minute
}

// PairAllowed reports whether a configured rule links the two types, in
// either order.
func (c WorkStealingConfig) PairAllowed(a, b string) bool {
	for _, rule := range c.CrossTypeStealRules {
		if (rule[0] == a && rule[1] == b) || (rule[0] == b && rule[1] == a) {
			return true
		}
	}
	return false
}

// LoadBalanceConfig holds the thresholds governing rebalancing. Loads are
// percentages in the range 0-100.
type LoadBalanceConfig struct {
	OverloadThreshold  float64 `json:"overloadThreshold" yaml:"overloadThreshold" mapstructure:"overloadThreshold"`
	UnderloadThreshold float64 `json:"underloadThreshold" yaml:"underloadThreshold" mapstructure:"underloadThreshold"`
	RebalanceThreshold float64 `json:"rebalanceThreshold" yaml:"rebalanceThreshold" mapstructure:"rebalanceThreshold"`
	MaxMovableProgress int     `json:"maxMovableProgress" yaml:"maxMovableProgress" mapstructure:"maxMovableProgress"`
	MaxMovesPerRun     int     `json:"maxMovesPerRun" yaml:"maxMovesPerRun" mapstructure:"maxMovesPerRun"`
}

// DefaultLoadBalanceConfig returns the default rebalancing thresholds.
func DefaultLoadBalanceConfig() LoadBalanceConfig {
	return LoadBalanceConfig{
		OverloadThreshold:  DefaultOverloadLoad,
		UnderloadThreshold: DefaultUnderloadLoad,
		RebalanceThreshold: 50,
		MaxMovableProgress: 75,
		MaxMovesPerRun:     10,
	}
}

// AgentLoad is a point-in-time load reading for one claimant.
type AgentLoad struct {
	ClaimantID   string   `json:"claimantId"`
	Claimant     Claimant `json:"claimant"`
	ActiveClaims int      `json:"activeClaims"`
	MaxClaims    int      `json:"maxClaims"`
	Load         float64  `json:"load"`
}

// ComputeLoad blends slot utilization with self-reported workload.
func ComputeLoad(c *Claimant, activeClaims int) float64 {
	util := float64(activeClaims) / float64(c.MaxClaims()) * 100
	if w := float64(c.CurrentWorkload); w > util {
		util = w
	}
	if util > 100 {
		util = 100
	}
	return util
}
