package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RoleConfig describes one role entry of the permission configuration.
type RoleConfig struct {
	Inherit []string `yaml:"inherit" json:"inherit"`
}

// Config is the `permissions` configuration tree: roles.<index>.inherit.
type Config struct {
	Roles map[string]RoleConfig `yaml:"roles" json:"roles"`
}

// Inheritance maps a role index to the role indices it implies.
//
// Entries are registered during initialization; after [Inheritance.Freeze]
// the table is read-only and safe for concurrent use.
type Inheritance struct {
	mu       sync.RWMutex
	inherits map[string][]string
	frozen   bool
}

// NewInheritance returns an empty inheritance table.
func NewInheritance() *Inheritance {
	return &Inheritance{
		inherits: make(map[string][]string),
	}
}

// NewInheritanceFromConfig builds and freezes a table from cfg.
func NewInheritanceFromConfig(cfg Config) (*Inheritance, error) {
	t := NewInheritance()

	indices := make([]string, 0, len(cfg.Roles))
	for idx := range cfg.Roles {
		indices = append(indices, idx)
	}
	sort.Strings(indices)

	for _, idx := range indices {
		if err := t.Register(idx, cfg.Roles[idx].Inherit...); err != nil {
			return nil, fmt.Errorf("role %q: %w", idx, err)
		}
	}
	t.Freeze()
	return t, nil
}

// LoadInheritanceYAML parses a document holding a top-level `permissions` key.
func LoadInheritanceYAML(data []byte) (*Inheritance, error) {
	var doc struct {
		Permissions Config `yaml:"permissions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}
	return NewInheritanceFromConfig(doc.Permissions)
}

// Register records that index implies each of inherits. Repeated calls for the
// same index accumulate. Must be called before [Inheritance.Freeze].
func (t *Inheritance) Register(index string, inherits ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return errors.New("inheritance table frozen")
	}
	index = strings.TrimSpace(index)
	if index == "" {
		return errors.New("role index cannot be empty")
	}

	existing := t.inherits[index]
	for _, inh := range inherits {
		inh = strings.TrimSpace(inh)
		if inh == "" {
			return errors.New("inherited role index cannot be empty")
		}
		existing = append(existing, inh)
	}
	t.inherits[index] = existing
	return nil
}

// Lookup returns the indices directly implied by index.
func (t *Inheritance) Lookup(index string) []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inherits[index]
}

// Freeze prevents further registrations.
func (t *Inheritance) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Count returns the number of roles with inheritance entries.
func (t *Inheritance) Count() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.inherits)
}

// Expand walks the table starting from start and returns every reachable index
// (start included). fetch is called once per iteration with the indices first
// discovered in that iteration; an error from fetch aborts the walk.
//
// Each index is processed at most once, so cyclic entries terminate.
func (t *Inheritance) Expand(start []string, fetch func(discovered []string) error) (Set, error) {
	known := NewSet(start...)
	processed := make(Set, len(start))
	worklist := append([]string(nil), start...)

	for len(worklist) > 0 {
		var discovered []string
		for _, idx := range worklist {
			if processed.Has(idx) {
				continue
			}
			processed.Add(idx)
			for _, inh := range t.Lookup(idx) {
				if known.Has(inh) {
					continue
				}
				known.Add(inh)
				discovered = append(discovered, inh)
			}
		}
		if len(discovered) > 0 && fetch != nil {
			if err := fetch(discovered); err != nil {
				return known, err
			}
		}
		worklist = discovered
	}

	return known, nil
}
