package action

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/hooks"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/reaction"
)

// DefaultMaxDepth bounds how many callbacks may chain from one result.
const DefaultMaxDepth = 16

// ErrUnknownDestination is logged when a result names a channel or user the
// directory does not know.
var ErrUnknownDestination = errors.New("unknown destination")

// CallbackError wraps an error returned by an OnSent or HistoryFetch
// callback.
type CallbackError struct {
	Err error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback failed: %v", e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Outbound is the part of a transport the executor writes to.
type Outbound interface {
	Send(ctx context.Context, channelID, text string) (domain.MessageRef, error)
	Upload(ctx context.Context, channelID, path string) error
	React(ctx context.Context, ref domain.MessageRef, emoji string) error
	OpenDirect(ctx context.Context, userID string) (string, error)
	MaxMessageLength() int
}

// HistorySource answers HistoryFetch queries.
type HistorySource interface {
	Query(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)
}

// Options tunes an Executor.
type Options struct {
	// MaxMessageLength overrides the transport limit when positive.
	MaxMessageLength int
	// MaxDepth bounds chained callbacks. Zero means DefaultMaxDepth.
	MaxDepth int
	// SendRate is the sustained number of outbound calls per second. Zero
	// disables pacing.
	SendRate  float64
	SendBurst int
}

// Executor resolves results into transport calls. It is driven by the
// dispatch goroutine and is not safe for concurrent use.
type Executor struct {
	out       Outbound
	dir       *directory.Directory
	history   HistorySource
	reactions *reaction.Table
	hooks     *hooks.Manager
	limiter   *rate.Limiter
	maxLength int
	maxDepth  int
	log       *logging.Logger
}

// NewExecutor creates an executor. history and hookMgr may be nil.
func NewExecutor(out Outbound, dir *directory.Directory, history HistorySource, reactions *reaction.Table, hookMgr *hooks.Manager, opts Options, log *logging.Logger) *Executor {
	limit := rate.Inf
	burst := opts.SendBurst
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	if burst <= 0 {
		burst = 1
	}
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &Executor{
		out:       out,
		dir:       dir,
		history:   history,
		reactions: reactions,
		hooks:     hookMgr,
		limiter:   rate.NewLimiter(limit, burst),
		maxLength: opts.MaxMessageLength,
		maxDepth:  depth,
		log:       log.Sub("executor"),
	}
}

type task struct {
	result Result
	origin *domain.DispatchEvent
	depth  int
}

// Execute runs r and everything it produces. Many children run in list
// order, each fully resolved before the next. It returns a *CallbackError
// when a callback fails and a domain.ErrDisconnected error when the
// connection broke; other transport failures drop the action and are
// logged.
func (e *Executor) Execute(ctx context.Context, r Result, origin *domain.DispatchEvent) error {
	stack := []task{{result: r, origin: origin}}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		next, err := e.step(ctx, t)
		if err != nil {
			return err
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return nil
}

func (e *Executor) step(ctx context.Context, t task) ([]task, error) {
	switch r := t.result.(type) {
	case nil:
		return nil, nil
	case Many:
		next := make([]task, 0, len(r))
		for _, child := range r {
			next = append(next, task{result: child, origin: t.origin, depth: t.depth})
		}
		return next, nil
	case Send:
		return e.send(ctx, r, t)
	case Upload:
		return nil, e.upload(ctx, r, t)
	case ReactionEdit:
		e.editReaction(r)
		return nil, nil
	case HistoryFetch:
		return e.fetch(ctx, r, t)
	case React:
		return nil, e.react(ctx, r, t)
	default:
		e.log.Warn().Str("type", fmt.Sprintf("%T", r)).Msg("unknown result type")
		return nil, nil
	}
}

// Limit returns the message length at or above which sends are dropped.
// Zero means unlimited.
func (e *Executor) Limit() int {
	if e.maxLength > 0 {
		return e.maxLength
	}
	return e.out.MaxMessageLength()
}

func (e *Executor) send(ctx context.Context, s Send, t task) ([]task, error) {
	if s.Text == "" {
		return nil, nil
	}
	if limit := e.Limit(); limit > 0 && utf8.RuneCountInString(s.Text) >= limit {
		e.log.Debug().Int("length", utf8.RuneCountInString(s.Text)).Int("limit", limit).Msg("message too long, dropped")
		return nil, nil
	}

	channelID, err := e.resolve(ctx, s.Dest, t.origin)
	if err != nil {
		return nil, e.transportErr("resolve", err)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if e.hooks != nil {
		e.hooks.Emit(ctx, hooks.EventMessageSending, map[string]any{
			"channelId": channelID,
			"text":      s.Text,
		})
	}

	ref, err := e.out.Send(ctx, channelID, s.Text)
	if err != nil {
		return nil, e.transportErr("send", err)
	}
	if s.OnSent == nil {
		return nil, nil
	}
	if !e.allowDepth(t) {
		return nil, nil
	}

	self := e.dir.Self()
	sent := &domain.DispatchEvent{
		Kind:      domain.EventMessage,
		User:      self.Name,
		UserID:    self.ID,
		ChannelID: ref.ChannelID,
		Direct:    e.dir.IsDirect(ref.ChannelID),
		Text:      s.Text,
		Timestamp: time.Now(),
		Ref:       ref,
	}
	sent.Channel, _ = e.dir.ChannelName(ref.ChannelID)

	next, err := s.OnSent(sent)
	if err != nil {
		return nil, &CallbackError{Err: err}
	}
	return []task{{result: next, origin: sent, depth: t.depth + 1}}, nil
}

func (e *Executor) upload(ctx context.Context, u Upload, t task) error {
	if u.DeleteAfter {
		defer func() {
			if err := os.Remove(u.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				e.log.Warn().Err(err).Str("path", u.Path).Msg("failed to remove uploaded file")
			}
		}()
	}

	channelID, err := e.resolve(ctx, u.Dest, t.origin)
	if err != nil {
		return e.transportErr("resolve", err)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := e.out.Upload(ctx, channelID, u.Path); err != nil {
		return e.transportErr("upload", err)
	}
	return nil
}

func (e *Executor) editReaction(r ReactionEdit) {
	if r.Remove {
		removed := e.reactions.Remove(r.Channel, r.Owner, r.Pattern, r.Emoji)
		e.log.Debug().Str("channel", r.Channel).Str("owner", r.Owner).Bool("removed", removed).Msg("reaction rule removed")
		return
	}
	if err := e.reactions.Add(r.Channel, r.Owner, r.Pattern, r.Emoji); err != nil {
		e.log.Warn().Err(err).Str("channel", r.Channel).Str("owner", r.Owner).Msg("reaction rule rejected")
		return
	}
	e.log.Debug().Str("channel", r.Channel).Str("owner", r.Owner).Str("emoji", r.Emoji).Msg("reaction rule added")
}

func (e *Executor) fetch(ctx context.Context, h HistoryFetch, t task) ([]task, error) {
	if e.history == nil {
		e.log.Warn().Msg("history fetch without a history store")
		return nil, nil
	}
	if h.Callback == nil || !e.allowDepth(t) {
		return nil, nil
	}
	records, err := e.history.Query(ctx, h.Filter)
	if err != nil {
		e.log.Error().Err(err).Msg("history query failed")
		return nil, nil
	}
	next, err := h.Callback(records)
	if err != nil {
		return nil, &CallbackError{Err: err}
	}
	return []task{{result: next, origin: t.origin, depth: t.depth + 1}}, nil
}

func (e *Executor) react(ctx context.Context, r React, t task) error {
	if t.origin == nil || t.origin.Ref.IsZero() {
		e.log.Debug().Str("emoji", r.Emoji).Msg("reaction without a message to react to")
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := e.out.React(ctx, t.origin.Ref, r.Emoji); err != nil {
		return e.transportErr("react", err)
	}
	return nil
}

func (e *Executor) allowDepth(t task) bool {
	if t.depth < e.maxDepth {
		return true
	}
	e.log.Error().Int("depth", t.depth).Msg("callback depth limit reached, result dropped")
	return false
}

// resolve maps a destination to a transport channel id.
func (e *Executor) resolve(ctx context.Context, d domain.Destination, origin *domain.DispatchEvent) (string, error) {
	switch {
	case d.Channel != "":
		if id, ok := e.dir.ChannelID(d.Channel); ok {
			return id, nil
		}
		return "", fmt.Errorf("%w: channel %q", ErrUnknownDestination, d.Channel)
	case d.User != "":
		if id, ok := e.dir.DirectID(d.User); ok {
			return id, nil
		}
		userID, ok := e.dir.UserID(d.User)
		if !ok {
			return "", fmt.Errorf("%w: user %q", ErrUnknownDestination, d.User)
		}
		id, err := e.out.OpenDirect(ctx, userID)
		if err != nil {
			return "", err
		}
		e.dir.AddDirect(d.User, id)
		return id, nil
	case origin != nil && origin.ChannelID != "":
		return origin.ChannelID, nil
	default:
		return "", fmt.Errorf("%w: no destination and no originating event", ErrUnknownDestination)
	}
}

// transportErr passes connection failures through and drops the rest.
func (e *Executor) transportErr(op string, err error) error {
	if errors.Is(err, domain.ErrDisconnected) {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.log.Warn().Err(err).Str("op", op).Msg("action dropped")
	return nil
}
