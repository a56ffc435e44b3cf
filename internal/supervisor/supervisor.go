// Package supervisor keeps the transport connected and drives the dispatch
// loop.
package supervisor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/hooks"
	"github.com/soyeahso/dankbot/internal/logging"
)

// Default reconnect backoff bounds.
const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 2 * time.Minute
)

// ErrGaveUp is returned by Run when MaxAttempts consecutive connects fail.
var ErrGaveUp = errors.New("supervisor: giving up after repeated connect failures")

// State is the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Dispatcher handles one inbound event to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.DispatchEvent) error
}

// Executor runs preloaded results.
type Executor interface {
	Execute(ctx context.Context, r action.Result, origin *domain.DispatchEvent) error
}

// Options tunes reconnect behavior.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts stops Run after this many consecutive failed connects.
	// Zero retries forever.
	MaxAttempts int
}

// Status is a snapshot for the status endpoint.
type Status struct {
	Transport      string    `json:"transport"`
	State          string    `json:"state"`
	Connects       int64     `json:"connects"`
	ConnectedSince time.Time `json:"connectedSince,omitzero"`
	LastError      string    `json:"lastError,omitempty"`
}

// Supervisor owns the transport session. Run is the single goroutine that
// touches the dispatcher, executor and directory.
type Supervisor struct {
	transport  domain.Transport
	dir        *directory.Directory
	dispatcher Dispatcher
	exec       Executor
	hooks      *hooks.Manager
	opts       Options
	log        *logging.Logger

	state    atomic.Int32
	connects atomic.Int64

	mu      sync.Mutex
	preload []action.Result
	tasks   []Task
	since   time.Time
	lastErr string

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a supervisor. hookMgr may be nil.
func New(t domain.Transport, dir *directory.Directory, d Dispatcher, exec Executor, hookMgr *hooks.Manager, opts Options, log *logging.Logger) *Supervisor {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.InitialBackoff)
	}
	return &Supervisor{
		transport:  t,
		dir:        dir,
		dispatcher: d,
		exec:       exec,
		hooks:      hookMgr,
		opts:       opts,
		log:        log.Sub("supervisor"),
		sleep:      sleepCtx,
	}
}

// Task is startup work that needs a live connection, such as backfilling
// history. It sees the roster the transport returned on connect.
type Task func(ctx context.Context, roster *domain.Roster) error

// Once queues tasks to run after the next successful connect, before any
// preloaded results. A task that fails with domain.ErrDisconnected is run
// again on the following connect; other failures are logged and dropped.
func (s *Supervisor) Once(tasks ...Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, tasks...)
}

// Preload queues results to run once after the next successful connect.
func (s *Supervisor) Preload(results ...action.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preload = append(s.preload, results...)
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Connects returns the number of successful connects so far.
func (s *Supervisor) Connects() int64 {
	return s.connects.Load()
}

// Status returns a snapshot of the connection.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Transport: s.transport.ID(),
		State:     s.State().String(),
		Connects:  s.Connects(),
		LastError: s.lastErr,
	}
	if s.State() == StateConnected {
		st.ConnectedSince = s.since
	}
	return st
}

// Run connects and dispatches events until ctx is cancelled. Transport
// failures trigger a reconnect with exponential backoff; registries and the
// directory survive reconnects.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	backoff := s.opts.InitialBackoff
	failures := 0
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			s.closeTransport()
			s.log.Info().Msg("supervisor stopped")
			return nil
		}

		s.recordErr(err)
		s.closeTransport()
		s.setState(StateDisconnected)
		if connected {
			s.emit(ctx, hooks.EventDisconnected, map[string]any{"error": errString(err)})
			backoff = s.opts.InitialBackoff
			failures = 0
			s.log.Warn().Err(err).Msg("connection lost")
		} else {
			failures++
			s.log.Warn().Err(err).Int("attempt", failures).Msg("connect failed")
			if s.opts.MaxAttempts > 0 && failures >= s.opts.MaxAttempts {
				return errors.Join(ErrGaveUp, err)
			}
		}

		s.log.Info().Dur("backoff", backoff).Msg("reconnecting")
		if err := s.sleep(ctx, backoff); err != nil {
			return nil
		}
		backoff = min(backoff*2, s.opts.MaxBackoff)
	}
}

// session runs one connection. It reports whether the connect succeeded
// along with the error that ended the session.
func (s *Supervisor) session(ctx context.Context) (bool, error) {
	s.setState(StateConnecting)
	s.log.Info().Str("transport", s.transport.ID()).Msg("connecting")

	roster, err := s.transport.Connect(ctx)
	if err != nil {
		return false, err
	}
	if roster != nil {
		s.dir.Load(roster)
	}

	s.mu.Lock()
	s.since = time.Now()
	s.lastErr = ""
	s.mu.Unlock()
	s.connects.Add(1)
	s.setState(StateConnected)
	s.log.Info().Int64("connects", s.Connects()).Msg("connected")

	if err := s.runTasks(ctx, roster); err != nil {
		return true, err
	}
	if err := s.runPreload(ctx); err != nil {
		return true, err
	}
	s.emit(ctx, hooks.EventConnected, map[string]any{"transport": s.transport.ID()})

	for {
		ev, err := s.transport.Receive(ctx)
		if err != nil {
			return true, err
		}
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			return true, err
		}
	}
}

func (s *Supervisor) runTasks(ctx context.Context, roster *domain.Roster) error {
	s.mu.Lock()
	queue := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	if roster == nil {
		roster = &domain.Roster{}
	}

	for i, task := range queue {
		err := task(ctx, roster)
		if errors.Is(err, domain.ErrDisconnected) || ctx.Err() != nil {
			s.mu.Lock()
			s.tasks = slices.Concat(queue[i:], s.tasks)
			s.mu.Unlock()
			if err == nil {
				err = ctx.Err()
			}
			return err
		}
		if err != nil {
			s.log.Error().Err(err).Msg("startup task failed")
		}
	}
	return nil
}

// runPreload drains the startup queue. Results run once even if the
// connection drops part way through.
func (s *Supervisor) runPreload(ctx context.Context) error {
	s.mu.Lock()
	queue := s.preload
	s.preload = nil
	s.mu.Unlock()

	for _, r := range queue {
		err := s.exec.Execute(ctx, r, nil)
		if errors.Is(err, domain.ErrDisconnected) {
			return err
		}
		if err != nil {
			s.log.Error().Err(err).Msg("preloaded command failed")
		}
	}
	if len(queue) > 0 {
		s.log.Info().Int("count", len(queue)).Msg("preloaded commands executed")
	}
	return nil
}

func (s *Supervisor) closeTransport() {
	if err := s.transport.Close(); err != nil {
		s.log.Debug().Err(err).Msg("transport close")
	}
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Supervisor) recordErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Supervisor) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
