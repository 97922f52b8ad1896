package claims

import "strings"

// DefaultMaxConcurrentClaims is applied when a claimant declares no limit.
const DefaultMaxConcurrentClaims = 5

// Claimant represents a human or agent that can own claims.
type Claimant struct {
	ID              string       `json:"id" yaml:"id"`
	Type            ClaimantType `json:"type" yaml:"type"`
	Name            string       `json:"name" yaml:"name"`
	AgentType       AgentType    `json:"agentType,omitempty" yaml:"agentType,omitempty"`
	Capabilities    []string     `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Specializations []string     `json:"specializations,omitempty" yaml:"specializations,omitempty"`
	MaxConcurrent   int          `json:"maxConcurrentClaims" yaml:"maxConcurrentClaims"`
	// CurrentWorkload is a 0-100 self-reported load figure.
	CurrentWorkload int `json:"currentWorkload" yaml:"currentWorkload"`
}

// NewClaimant creates a claimant with the default claim limit.
func NewClaimant(id, name string, claimantType ClaimantType) *Claimant {
	return &Claimant{
		ID:            id,
		Type:          claimantType,
		Name:          name,
		MaxConcurrent: DefaultMaxConcurrentClaims,
	}
}

// NewAgent creates an agent claimant of the given type.
func NewAgent(id, name string, agentType AgentType, capabilities ...string) *Claimant {
	c := NewClaimant(id, name, ClaimantTypeAgent)
	c.AgentType = agentType
	c.Capabilities = append(c.Capabilities, capabilities...)
	return c
}

// NewHuman creates a human claimant.
func NewHuman(id, name string, capabilities ...string) *Claimant {
	c := NewClaimant(id, name, ClaimantTypeHuman)
	c.Capabilities = append(c.Capabilities, capabilities...)
	return c
}

// MaxClaims returns the effective concurrent claim limit.
func (c *Claimant) MaxClaims() int {
	if c.MaxConcurrent <= 0 {
		return DefaultMaxConcurrentClaims
	}
	return c.MaxConcurrent
}

// HasCapability checks if the claimant has a specific capability.
func (c *Claimant) HasCapability(capability string) bool {
	for _, cp := range c.Capabilities {
		if strings.EqualFold(cp, capability) {
			return true
		}
	}
	return false
}

// HasAllCapabilities checks if the claimant has all required capabilities.
func (c *Claimant) HasAllCapabilities(required []string) bool {
	for _, req := range required {
		if !c.HasCapability(req) {
			return false
		}
	}
	return true
}

// MissingCapabilities lists the required capabilities the claimant lacks.
func (c *Claimant) MissingCapabilities(required []string) []string {
	var missing []string
	for _, req := range required {
		if !c.HasCapability(req) {
			missing = append(missing, req)
		}
	}
	return missing
}

// HasSpecialization checks specializations case-insensitively.
func (c *Claimant) HasSpecialization(s string) bool {
	for _, sp := range c.Specializations {
		if strings.EqualFold(sp, s) {
			return true
		}
	}
	return false
}

// IsHuman returns true if the claimant is human.
func (c *Claimant) IsHuman() bool {
	return c.Type == ClaimantTypeHuman
}

// IsAgent returns true if the claimant is an agent.
func (c *Claimant) IsAgent() bool {
	return c.Type == ClaimantTypeAgent
}

// StealerType is the key used by cross-type steal rules: "human" for humans,
// the agent type for agents.
func (c *Claimant) StealerType() string {
	if c.IsHuman() {
		return string(ClaimantTypeHuman)
	}
	if c.AgentType == "" {
		return string(AgentCoder)
	}
	return string(c.AgentType)
}

// Clone returns a deep copy.
func (c *Claimant) Clone() *Claimant {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Capabilities = append([]string(nil), c.Capabilities...)
	cp.Specializations = append([]string(nil), c.Specializations...)
	return &cp
}

// agentKeywords is scanned in order; the first hit wins.
var agentKeywords = []struct {
	agentType AgentType
	keywords  []string
}{
	{AgentSecurity, []string{"security", "auditor", "pentest", "vulnerability"}},
	{AgentTester, []string{"tester", "test", "qa"}},
	{AgentReviewer, []string{"reviewer", "review"}},
	{AgentResearcher, []string{"researcher", "research"}},
	{AgentArchitect, []string{"architect", "design"}},
	{AgentDevOps, []string{"devops", "deploy", "infra", "ci"}},
	{AgentDocumenter, []string{"documenter", "docs", "documentation", "writer"}},
	{AgentPlanner, []string{"planner", "plan", "coordinator"}},
	{AgentAnalyst, []string{"analyst", "analysis", "analyze"}},
	{AgentCoder, []string{"coder", "developer", "engineer", "code"}},
}

// InferAgentType guesses an agent type from free-text attributes. It exists for
// legacy inputs that carry no explicit agent type; specializations are
// consulted first, then capabilities, then the name.
func InferAgentType(name string, capabilities, specializations []string) AgentType {
	sources := make([]string, 0, len(specializations)+len(capabilities)+1)
	sources = append(sources, specializations...)
	sources = append(sources, capabilities...)
	sources = append(sources, name)

	for _, src := range sources {
		words := strings.FieldsFunc(strings.ToLower(src), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})
		for _, entry := range agentKeywords {
			for _, kw := range entry.keywords {
				for _, w := range words {
					if w == kw {
						return entry.agentType
					}
				}
			}
		}
	}
	return AgentCoder
}

// Normalize fills defaults for a claimant read from an external source.
func (c *Claimant) Normalize() {
	if c.Type == "" {
		c.Type = ClaimantTypeAgent
	}
	if c.IsAgent() && c.AgentType == "" {
		c.AgentType = InferAgentType(c.Name, c.Capabilities, c.Specializations)
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrentClaims
	}
	if c.CurrentWorkload < 0 {
		c.CurrentWorkload = 0
	}
	if c.CurrentWorkload > 100 {
		c.CurrentWorkload = 100
	}
}
