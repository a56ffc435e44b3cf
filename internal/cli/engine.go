package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/feature/binder"
	"github.com/soyeahso/dankbot/internal/feature/poll"
	"github.com/soyeahso/dankbot/internal/feature/quote"
	"github.com/soyeahso/dankbot/internal/feature/react"
	"github.com/soyeahso/dankbot/internal/hooks"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/plugin"
	"github.com/soyeahso/dankbot/internal/reaction"
	"github.com/soyeahso/dankbot/internal/store"
	"github.com/soyeahso/dankbot/internal/transport/irc"
	"github.com/soyeahso/dankbot/internal/transport/rtm"
	slacktransport "github.com/soyeahso/dankbot/internal/transport/slack"
)

// engine is the transport independent part of the bot: storage, hooks,
// the address book and the command registries with every feature loaded.
type engine struct {
	db        *store.DB
	history   *store.History
	hooks     *hooks.Manager
	dir       *directory.Directory
	reactions *reaction.Table
	commands  *command.Registry
	plugins   *plugin.Registry
}

// newEngine opens the database at dbPath and initializes every enabled
// feature.
func newEngine(ctx context.Context, cfg config.Config, dbPath string, log *logging.Logger) (*engine, error) {
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	e := &engine{
		db:        db,
		history:   store.NewHistory(db),
		hooks:     hooks.NewManager(log),
		dir:       directory.New(log),
		reactions: reaction.NewTable(),
		commands:  command.NewRegistry(cfg.Bot.Alert, log),
	}
	registerShellHooks(e.hooks, cfg.Hooks)

	e.plugins = plugin.NewRegistry(plugin.Env{
		Commands:         e.commands,
		Hooks:            e.hooks,
		DB:               db,
		Reactions:        e.reactions,
		Directory:        e.dir,
		Admins:           cfg.Bot.Admins,
		MaxMessageLength: cfg.Bot.MaxMessageLength,
		Features:         cfg.Features.ByID(),
	}, log)
	for _, p := range []plugin.Plugin{binder.New(), react.New(), quote.New(), poll.New()} {
		if err := e.plugins.Register(p); err != nil {
			e.Close()
			return nil, err
		}
	}
	if err := e.plugins.InitAll(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("initializing features: %w", err)
	}
	return e, nil
}

// Close releases features, hooks and the database.
func (e *engine) Close() {
	if e.plugins != nil {
		e.plugins.CloseAll()
	}
	e.hooks.Close()
	e.db.Close()
}

// registerShellHooks binds every configured shell command to its event.
func registerShellHooks(m *hooks.Manager, cfg config.HooksConfig) {
	for event, entries := range cfg.ByEvent() {
		for i, h := range entries {
			name := fmt.Sprintf("shell-%d", i)
			handler := hooks.Shell(h.Command, time.Duration(h.Timeout)*time.Millisecond)
			if h.Async {
				m.OnAsync(event, name, handler)
			} else {
				m.On(event, name, handler)
			}
		}
	}
}

// newTransport builds the configured transport.
func newTransport(cfg config.Config, log *logging.Logger) (domain.Transport, error) {
	switch cfg.Transport {
	case "rtm":
		return rtm.New(cfg.RTM, log), nil
	case "slack":
		return slacktransport.New(cfg.Slack, log), nil
	case "irc":
		return irc.New(cfg.IRC, log), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
