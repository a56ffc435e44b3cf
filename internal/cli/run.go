package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/backfill"
	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/dispatch"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/status"
	"github.com/soyeahso/dankbot/internal/supervisor"
)

// errAlreadyRunning is returned when another instance holds the lock.
var errAlreadyRunning = errors.New("another dankbot instance is running (use --force to ignore)")

func newRunCmd() *cobra.Command {
	var (
		transport   string
		force       bool
		loadHistory bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat server and answer commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Transport = transport
			}
			if loadHistory {
				cfg.Bot.LoadHistory = true
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			unlock, err := acquireLock(paths.Lock, force)
			if err != nil {
				return err
			}
			defer unlock()

			root, closer, err := logging.Open(logging.Options{
				Level:      levelOverride(cfg.Logging.Level),
				Style:      cfg.Logging.Style,
				File:       cfg.Logging.File,
				MaxSizeMB:  cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
			})
			if err != nil {
				return fmt.Errorf("opening log: %w", err)
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, dbPath(cfg), root)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "override the configured transport (rtm, slack, irc)")
	cmd.Flags().BoolVar(&force, "force", false, "start even if another instance holds the lock")
	cmd.Flags().BoolVar(&loadHistory, "load-history", false, "replace the message history with the channel archive after connecting")
	return cmd
}

// run wires the bot together and blocks until ctx is cancelled or the
// supervisor gives up.
func run(ctx context.Context, cfg config.Config, dbPath string, log *logging.Logger) error {
	e, err := newEngine(ctx, cfg, dbPath, log)
	if err != nil {
		return err
	}
	defer e.Close()

	tr, err := newTransport(cfg, log)
	if err != nil {
		return err
	}

	exec := action.NewExecutor(tr, e.dir, e.history, e.reactions, e.hooks, action.Options{
		MaxMessageLength: cfg.Bot.MaxMessageLength,
		MaxDepth:         cfg.Bot.MaxCallbackDepth,
		SendRate:         cfg.Supervisor.SendRate,
		SendBurst:        cfg.Supervisor.SendBurst,
	}, log)
	disp := dispatch.New(e.commands, exec, e.dir, e.history, e.hooks, cfg.Bot.Admins, log)
	sup := supervisor.New(tr, e.dir, disp, exec, e.hooks, supervisor.Options{
		InitialBackoff: cfg.Supervisor.InitialBackoff,
		MaxBackoff:     cfg.Supervisor.MaxBackoff,
		MaxAttempts:    cfg.Supervisor.MaxAttempts,
	}, log)
	sup.Preload(announcements(cfg.Bot.Announce)...)
	if cfg.Bot.LoadHistory {
		if archive, ok := tr.(domain.Archive); ok {
			sup.Once(backfill.New(archive, e.dir, e.history, disp.Addressed, log).Run)
		} else {
			log.Warn().Str("transport", tr.ID()).Msg("transport has no message archive, history not loaded")
		}
	}

	if cfg.Status.Enabled {
		srv := status.New(cfg.Status.Addr, sup, e.commands, log,
			status.WithPlugins(e.plugins),
			status.WithHistory(e.history),
		)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	log.Info().
		Str("transport", tr.ID()).
		Str("alert", cfg.Bot.Alert).
		Int("commands", e.commands.Count()).
		Int("features", e.plugins.Count()).
		Msg("dankbot starting")

	return sup.Run(ctx)
}

// announcements turns configured startup messages into send results.
func announcements(entries []config.AnnounceEntry) []action.Result {
	results := make([]action.Result, 0, len(entries))
	for _, a := range entries {
		results = append(results, action.Send{
			Dest: domain.Destination{Channel: a.Channel, User: a.User},
			Text: a.Text,
		})
	}
	return results
}

// acquireLock takes the single-instance lock. With force a held lock is
// logged and ignored.
func acquireLock(path string, force bool) (func(), error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		if !force {
			return nil, errAlreadyRunning
		}
		log.Warn().Str("lock", path).Msg("another instance holds the lock, starting anyway")
		return func() {}, nil
	}
	return func() { fl.Unlock() }, nil
}

func loadConfig() (config.Config, error) {
	return config.Load(paths.Config)
}

// levelOverride prefers the --log-level flag over the configured level.
func levelOverride(configured string) string {
	if logLevel != "" {
		return logLevel
	}
	return configured
}

func dbPath(cfg config.Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return paths.DB
}
