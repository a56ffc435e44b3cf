package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/dankbot/internal/logging"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string // insertion order for deterministic lifecycle
	started []string
	env     Env
	log     *logging.Logger
}

// NewRegistry creates a plugin registry sharing env with every plugin.
func NewRegistry(env Env, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		env:     env,
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin to the registry without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}

	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())

	r.log.Debug().
		Str("id", p.ID()).
		Str("name", p.Name()).
		Str("version", p.Version()).
		Msg("plugin registered")

	return nil
}

// InitAll initializes registered plugins in registration order, skipping
// those disabled in configuration.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		cfg := r.env.Features[id]
		if cfg.Disabled {
			r.log.Info().Str("id", id).Msg("plugin disabled")
			continue
		}

		api := API{
			Env:    r.env,
			Log:    r.log.Sub(id),
			Config: cfg,
		}
		r.log.Info().Str("id", id).Msg("initializing plugin")
		if err := r.plugins[id].Init(ctx, api); err != nil {
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.started = append(r.started, id)
	}
	return nil
}

// CloseAll shuts down initialized plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.started) - 1; i >= 0; i-- {
		id := r.started[i]
		r.log.Debug().Str("id", id).Msg("closing plugin")
		if err := r.plugins[id].Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
	r.started = nil
}

// Get returns a plugin by ID, or nil if not found.
func (r *Registry) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[id]
}

// List returns all registered plugin IDs in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Info returns summary information about all registered plugins.
func (r *Registry) Info() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[string]bool, len(r.started))
	for _, id := range r.started {
		active[id] = true
	}
	infos := make([]PluginInfo, 0, len(r.order))
	for _, id := range r.order {
		p := r.plugins[id]
		infos = append(infos, PluginInfo{
			ID:      p.ID(),
			Name:    p.Name(),
			Version: p.Version(),
			Active:  active[id],
		})
	}
	return infos
}

// PluginInfo holds summary data about a plugin.
type PluginInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Active  bool   `json:"active"`
}
