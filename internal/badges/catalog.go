package badges

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ecopoints/internal/models"
)

// Metrics a criterion may reference. Anything else is a configuration
// error, rejected when the catalog loads, never during gameplay.
const (
	MetricBalance = "balance"
	MetricStreak  = "streak"
)

// Criterion is a threshold over ledger state.
type Criterion struct {
	Metric  string `yaml:"metric" json:"metric"`
	AtLeast int    `yaml:"at_least" json:"at_least"`
}

// Met reports whether the actor's state satisfies the criterion.
func (c Criterion) Met(a models.Actor) bool {
	switch c.Metric {
	case MetricBalance:
		return a.Balance >= c.AtLeast
	case MetricStreak:
		return a.Streak >= c.AtLeast
	}
	return false
}

// Badge is a named achievement unlocked when an actor's ledger state
// crosses its criterion.
type Badge struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Criterion   Criterion `yaml:"criterion" json:"criterion"`
}

// Catalog is the validated badge registry.
type Catalog struct {
	badges []Badge
}

type catalogFile struct {
	Badges []Badge `yaml:"badges"`
}

// LoadCatalog reads and validates the YAML badge catalog. Any malformed
// definition fails the load; a bad catalog must stop startup rather than
// surface mid-game.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badge catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates a raw YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse badge catalog: %w", err)
	}

	seen := make(map[string]bool)
	for i, b := range f.Badges {
		if b.ID == "" {
			return nil, fmt.Errorf("badge catalog: entry %d has no id", i)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("badge catalog: duplicate badge id %q", b.ID)
		}
		seen[b.ID] = true
		if b.Name == "" {
			return nil, fmt.Errorf("badge catalog: badge %q has no name", b.ID)
		}
		switch b.Criterion.Metric {
		case MetricBalance, MetricStreak:
		default:
			return nil, fmt.Errorf("badge catalog: badge %q references unknown metric %q", b.ID, b.Criterion.Metric)
		}
		if b.Criterion.AtLeast <= 0 {
			return nil, fmt.Errorf("badge catalog: badge %q has non-positive threshold %d", b.ID, b.Criterion.AtLeast)
		}
	}

	return &Catalog{badges: f.Badges}, nil
}

// All returns every badge in catalog order.
func (c *Catalog) All() []Badge {
	out := make([]Badge, len(c.badges))
	copy(out, c.badges)
	return out
}

// Get returns a badge by id.
func (c *Catalog) Get(id string) (Badge, bool) {
	for _, b := range c.badges {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// Evaluate returns the badges whose criterion was not met by the prior
// state and is met by the current one. A criterion that stays true across
// many events produces nothing here; the stored unlock record is the
// second guard against re-firing when a balance oscillates around a
// threshold.
func (c *Catalog) Evaluate(prior, current models.Actor) []Badge {
	var crossed []Badge
	for _, b := range c.badges {
		if !b.Criterion.Met(prior) && b.Criterion.Met(current) {
			crossed = append(crossed, b)
		}
	}
	return crossed
}
