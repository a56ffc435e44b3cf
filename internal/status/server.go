// Package status serves a read-only HTTP view of the running bot.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/plugin"
	"github.com/soyeahso/dankbot/internal/supervisor"
	"github.com/soyeahso/dankbot/internal/version"
)

// ConnectionSource reports the supervisor state.
type ConnectionSource interface {
	Status() supervisor.Status
}

// PluginSource lists feature modules.
type PluginSource interface {
	Info() []plugin.PluginInfo
}

// HistoryCounter reports how many messages are stored.
type HistoryCounter interface {
	Count(ctx context.Context) (int, error)
}

// Server is the status HTTP server.
type Server struct {
	addr       string
	log        *logging.Logger
	connection ConnectionSource
	commands   *command.Registry
	plugins    PluginSource
	history    HistoryCounter
	startedAt  time.Time

	httpServer *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithPlugins exposes plugin info on /plugins.
func WithPlugins(p PluginSource) Option {
	return func(s *Server) { s.plugins = p }
}

// WithHistory adds the stored message count to /status.
func WithHistory(h HistoryCounter) Option {
	return func(s *Server) { s.history = h }
}

// New creates a status server.
func New(addr string, conn ConnectionSource, commands *command.Registry, log *logging.Logger, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		log:        log.Sub("status"),
		connection: conn,
		commands:   commands,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/commands", s.handleCommands).Methods(http.MethodGet)
	r.HandleFunc("/commands/{name}", s.handleCommand).Methods(http.MethodGet)
	r.HandleFunc("/plugins", s.handlePlugins).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(handleNotFound)
	r.Use(requestIDMiddleware, loggingMiddleware(s.log))
	return r
}

// Start listens on the configured address and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("status server shutdown")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Uptime is the time since the server was created.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// statusResponse is the /status body.
type statusResponse struct {
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Connection supervisor.Status `json:"connection"`
	Commands   int               `json:"commands"`
	Plugins    int               `json:"plugins,omitempty"`
	Messages   *int              `json:"messages,omitempty"`
}

// CommandInfo describes one registered command.
type CommandInfo struct {
	Name       string   `json:"name"`
	Priority   int      `json:"priority"`
	Admin      bool     `json:"admin,omitempty"`
	Unfiltered bool     `json:"unfiltered,omitempty"`
	Channels   []string `json:"channels,omitempty"`
	Help       string   `json:"help,omitempty"`
}

func commandInfo(c *command.Command) CommandInfo {
	return CommandInfo{
		Name:       c.Name,
		Priority:   c.Priority,
		Admin:      c.Admin,
		Unfiltered: !c.Filtered(),
		Channels:   c.Channels,
		Help:       c.Help,
	}
}

func (s *Server) status(ctx context.Context) statusResponse {
	resp := statusResponse{
		Version:    version.Version,
		Uptime:     s.Uptime().Truncate(time.Second).String(),
		Connection: s.connection.Status(),
		Commands:   s.commands.Count(),
	}
	if s.plugins != nil {
		resp.Plugins = len(s.plugins.Info())
	}
	if s.history != nil {
		if n, err := s.history.Count(ctx); err == nil {
			resp.Messages = &n
		} else {
			s.log.Warn().Err(err).Msg("counting history")
		}
	}
	return resp
}
