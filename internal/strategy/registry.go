package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/dispatch"
)

// StrategyInfo describes a registered strategy for status APIs.
type StrategyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	factory     Factory
	description string
}

// Registry maps strategy names to factories. It is safe for concurrent use.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Builtin returns a registry holding the strategies shipped with tradeloop.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("scheduled_buy", "buy a fixed quantity on a calendar rule", NewScheduledBuy)
	r.Register("mean_reversion", "trade deviations from a trailing mean", NewMeanReversion)
	r.Register("dip_buy", "buy sharp drops below the trailing average", NewDipBuy)
	return r
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name, description string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{factory: f, description: description}
}

// New builds the strategy registered under cfg.Name.
func (r *Registry) New(cfg Config, logger *slog.Logger) (dispatch.Strategy, error) {
	r.mu.RLock()
	e, ok := r.entries[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", cfg.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return e.factory(cfg, logger)
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListInfo returns the registered strategies in name order.
func (r *Registry) ListInfo() []StrategyInfo {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]StrategyInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, StrategyInfo{Name: n, Description: r.entries[n].description})
	}
	return infos
}
