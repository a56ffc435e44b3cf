// Package plugin provides the feature-module interface and lifecycle
// management for dankbot.
package plugin

import (
	"context"
	"slices"

	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/hooks"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/reaction"
	"github.com/soyeahso/dankbot/internal/store"
)

// Plugin is the interface that all feature modules implement.
type Plugin interface {
	// ID returns a unique identifier for the plugin (e.g., "binder").
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init registers the plugin's commands and loads its state.
	Init(ctx context.Context, api API) error

	// Close shuts down the plugin and releases resources.
	Close() error
}

// Env holds the shared services handed to every plugin.
type Env struct {
	Commands  *command.Registry
	Hooks     *hooks.Manager
	DB        *store.DB
	Reactions *reaction.Table
	Directory *directory.Directory
	Admins    []string
	// MaxMessageLength caps text a plugin stores for later sends.
	MaxMessageLength int
	Features         map[string]config.FeatureConfig
}

// API is what a plugin sees during Init.
type API struct {
	Env
	Log    *logging.Logger
	Config config.FeatureConfig
}

// IsAdmin reports whether user is in the admin allow-list.
func (a API) IsAdmin(user string) bool {
	return slices.Contains(a.Admins, user)
}

// Channels returns the configured channel restriction, or nil when the
// plugin may run everywhere.
func (a API) Channels() []string {
	if len(a.Config.Channels) == 0 {
		return nil
	}
	return a.Config.Channels
}

// Register adds a command restricted to the plugin's channels unless the
// command sets its own restriction.
func (a API) Register(cmd command.Command) error {
	if cmd.Channels == nil {
		cmd.Channels = a.Channels()
	}
	return a.Commands.Register(cmd)
}
