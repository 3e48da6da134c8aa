// Package rewards holds the versioned reward-multiplier rule table used to
// score cards. The table is read-mostly: lookups run against an immutable
// snapshot, and a reload swaps the whole snapshot atomically so it is never
// mutated mid-request.
package rewards

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Card describes one card's reward rules.
type Card struct {
	Base       float64            `yaml:"base"`
	Categories map[string]float64 `yaml:"categories"`
}

// Table is an immutable snapshot of the reward rules.
type Table struct {
	Version       string            `yaml:"version"`
	Cards         map[string]Card   `yaml:"cards"`
	MCCCategories map[string]string `yaml:"mcc_categories"`
}

// Multiplier returns the reward multiplier for card in category and whether
// a category rule raised it above the card's base. A category rule that only
// matches the base earns the base label. Unknown cards earn the default 1x base.
func (t *Table) Multiplier(card, category string) (float64, bool) {
	rules, ok := t.Cards[card]
	if !ok {
		rules = Card{Base: defaultBaseMultiplier}
	}
	if rules.Base == 0 {
		rules.Base = defaultBaseMultiplier
	}
	if category != "" {
		if m, ok := rules.Categories[strings.ToLower(category)]; ok {
			return m, m > rules.Base
		}
	}
	return rules.Base, false
}

// CategoryForMCC derives a reward category from a merchant category code.
// Returns "" when the MCC is unmapped.
func (t *Table) CategoryForMCC(mcc string) string {
	return t.MCCCategories[mcc]
}

// CardNames returns every card in the table in a stable order.
func (t *Table) CardNames() []string {
	names := make([]string, 0, len(t.Cards))
	for name := range t.Cards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const defaultBaseMultiplier = 1.0

// Store hands out the active rule table and supports hot reload from a YAML
// file. Readers always see a complete table.
type Store struct {
	path    string
	current atomic.Pointer[Table]
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithPath sets the YAML file the store loads tables from.
func WithPath(path string) Option {
	return func(s *Store) {
		s.path = path
	}
}

// WithTable seeds the store with an explicit table. Used by tests and by
// deployments that ship rules inline rather than on disk.
func WithTable(t *Table) Option {
	return func(s *Store) {
		if t != nil {
			s.current.Store(t)
		}
	}
}

// NewStore creates a rule table store. Without options it serves the
// built-in default table.
func NewStore(opts ...Option) *Store {
	s := &Store{}
	s.current.Store(DefaultTable())

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load reads the configured YAML file and atomically swaps in the new table.
// In-flight requests keep the snapshot they started with.
func (s *Store) Load(_ context.Context) error {
	if s.path == "" {
		return nil // nothing to load; keep the seeded table
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadTable, err)
	}

	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("%w: %w", ErrParseTable, err)
	}
	if err := validate(&t); err != nil {
		return err
	}

	normalize(&t)
	s.current.Store(&t)
	return nil
}

// Current returns the active table snapshot.
func (s *Store) Current() *Table {
	return s.current.Load()
}

// Version returns the version tag of the active table.
func (s *Store) Version() string {
	return s.current.Load().Version
}

func validate(t *Table) error {
	if strings.TrimSpace(t.Version) == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidTable)
	}
	if len(t.Cards) == 0 {
		return fmt.Errorf("%w: no cards defined", ErrInvalidTable)
	}
	for name, card := range t.Cards {
		if card.Base < 0 {
			return fmt.Errorf("%w: card %q has negative base multiplier", ErrInvalidTable, name)
		}
		for category, mult := range card.Categories {
			if mult < 0 {
				return fmt.Errorf("%w: card %q category %q has negative multiplier", ErrInvalidTable, name, category)
			}
		}
	}
	return nil
}

// normalize lowercases category keys so lookups are case-insensitive.
func normalize(t *Table) {
	for name, card := range t.Cards {
		categories := make(map[string]float64, len(card.Categories))
		for category, mult := range card.Categories {
			categories[strings.ToLower(category)] = mult
		}
		card.Categories = categories
		t.Cards[name] = card
	}
}

// DefaultTable returns the built-in rule table used when no file is
// configured.
func DefaultTable() *Table {
	return &Table{
		Version: "1.0",
		Cards: map[string]Card{
			"Amex Gold": {
				Base:       1.0,
				Categories: map[string]float64{"dining": 4.0, "grocery": 4.0},
			},
			"Chase Freedom": {
				Base:       1.0,
				Categories: map[string]float64{"rotating": 5.0},
			},
			"Citi Custom Cash": {
				Base:       1.0,
				Categories: map[string]float64{"dining": 5.0, "gas": 5.0},
			},
		},
		MCCCategories: map[string]string{
			"5812": "dining",
			"5813": "dining",
			"5814": "dining",
			"5411": "grocery",
			"5541": "gas",
		},
	}
}
