package backend

import (
	"fmt"
	"sort"
	"sync"
)

// StrategyInfo pairs a strategy kind with its capabilities.
type StrategyInfo struct {
	Kind         Kind         `json:"kind"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered strategies and resolves the one selected by a
// pool configuration.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Kind]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[Kind]Strategy),
	}
}

// Register adds a strategy under its own kind, replacing any previous one.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Kind()] = s
}

// Resolve returns the strategy for kind. An empty kind resolves to DefaultKind.
func (r *Registry) Resolve(kind Kind) (Strategy, error) {
	if kind == "" {
		kind = DefaultKind
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", kind, ErrUnknownStrategy)
	}
	return s, nil
}

// List returns information about all registered strategies, sorted by kind
// for a stable API response.
func (r *Registry) List() []StrategyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]StrategyInfo, 0, len(r.strategies))
	for kind, s := range r.strategies {
		infos = append(infos, StrategyInfo{
			Kind:         kind,
			Capabilities: s.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}
