package claims

import (
	"strings"
	"time"
)

// Issue represents a unit of work that can be claimed.
type Issue struct {
	ID                   string     `json:"id" yaml:"id"`
	Title                string     `json:"title" yaml:"title"`
	Description          string     `json:"description,omitempty" yaml:"description,omitempty"`
	Priority             Priority   `json:"priority" yaml:"priority"`
	Complexity           Complexity `json:"complexity" yaml:"complexity"`
	Labels               []string   `json:"labels,omitempty" yaml:"labels,omitempty"`
	RequiredCapabilities []string   `json:"requiredCapabilities,omitempty" yaml:"requiredCapabilities,omitempty"`
	CreatedAt            time.Time  `json:"createdAt" yaml:"createdAt,omitempty"`
}

// NewIssue creates a medium-priority, moderate-complexity issue.
func NewIssue(id, title string) *Issue {
	return &Issue{
		ID:         id,
		Title:      title,
		Priority:   PriorityMedium,
		Complexity: ComplexityModerate,
		CreatedAt:  time.Now(),
	}
}

// HasLabel checks if the issue has a specific label.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Normalize fills defaults for an issue read from an external source.
func (i *Issue) Normalize(now time.Time) {
	if i.Priority == "" {
		i.Priority = PriorityMedium
	}
	if i.Complexity == "" {
		i.Complexity = ComplexityModerate
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = now
	}
}

// Clone returns a deep copy.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	cp := *i
	cp.Labels = append([]string(nil), i.Labels...)
	cp.RequiredCapabilities = append([]string(nil), i.RequiredCapabilities...)
	return &cp
}
