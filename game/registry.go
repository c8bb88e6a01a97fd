package game

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh rule set.
type Factory func() Rules

// RuleRegistry maps stable rule identifiers to factories.
type RuleRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{factories: make(map[string]Factory)}
}

// Register adds f under id.
func (r *RuleRegistry) Register(id string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRules, id)
	}
	r.factories[id] = f
	return nil
}

// Lookup builds the rules registered under id.
func (r *RuleRegistry) Lookup(id string) (Rules, bool) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return f(), true
}

// Resolve returns the registered implementation for desc.Type, falling back
// to StubRules when the type is unknown.
func (r *RuleRegistry) Resolve(desc RulesDescriptor) Rules {
	if rules, ok := r.Lookup(desc.Type); ok {
		return rules
	}
	return NewStubRules(desc)
}

// IDs lists the registered identifiers in sorted order.
func (r *RuleRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
