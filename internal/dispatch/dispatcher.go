// Package dispatch routes inbound chat events to registered commands.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/hooks"
	"github.com/soyeahso/dankbot/internal/logging"
)

// Executor runs command results.
type Executor interface {
	Execute(ctx context.Context, r action.Result, origin *domain.DispatchEvent) error
}

// HistoryStore persists unaddressed channel messages.
type HistoryStore interface {
	Store(ctx context.Context, rec domain.HistoryRecord) error
}

// Dispatcher processes one inbound event at a time. It is not safe for
// concurrent use; the supervisor drives it from a single goroutine.
type Dispatcher struct {
	commands *command.Registry
	exec     Executor
	dir      *directory.Directory
	history  HistoryStore
	hooks    *hooks.Manager
	admins   map[string]bool
	log      *logging.Logger
}

// New creates a dispatcher. history and hookMgr may be nil.
func New(commands *command.Registry, exec Executor, dir *directory.Directory, history HistoryStore, hookMgr *hooks.Manager, admins []string, log *logging.Logger) *Dispatcher {
	set := make(map[string]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return &Dispatcher{
		commands: commands,
		exec:     exec,
		dir:      dir,
		history:  history,
		hooks:    hookMgr,
		admins:   set,
		log:      log.Sub("dispatch"),
	}
}

// Dispatch handles ev to completion. It returns an error only when the
// transport connection broke; handler failures are logged and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.DispatchEvent) error {
	switch ev.Kind {
	case domain.EventChannelJoined:
		d.dir.AddChannel(ev.Channel, ev.ChannelID)
		return nil
	case domain.EventUserJoined:
		d.dir.AddUser(ev.User, ev.UserID)
		return nil
	case domain.EventConnected:
		d.log.Debug().Msg("connection acknowledged")
		return nil
	case domain.EventMessage:
		return d.handleMessage(ctx, &ev)
	default:
		d.log.Debug().Str("kind", string(ev.Kind)).Msg("ignoring event")
		return nil
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev *domain.DispatchEvent) error {
	d.resolveNames(ev)
	if d.isSelf(ev) {
		return nil
	}

	if d.hooks != nil {
		d.hooks.Emit(ctx, hooks.EventMessageReceived, map[string]any{
			"user":    ev.User,
			"channel": ev.Channel,
			"direct":  ev.Direct,
			"text":    ev.Text,
		})
	}

	if !ev.Direct && !d.Addressed(ev.Text) {
		if err := d.runUnfiltered(ctx, ev); err != nil {
			return err
		}
		d.store(ctx, ev)
		return nil
	}

	name, caps, ok := d.commands.Parse(ev.Text, ev.Direct)
	if !ok {
		if ev.Direct {
			help := d.commands.Help(d.IsAdmin(ev))
			return d.execute(ctx, "help", ev.User, action.Reply(help), ev)
		}
		return nil
	}

	cmd, ok := d.commands.Lookup(name)
	if !ok {
		d.log.Error().Str("command", name).Msg("matched command has no handler")
		return nil
	}
	if cmd.Admin && !d.IsAdmin(ev) {
		return d.execute(ctx, cmd.Name, ev.User, action.Reply(command.AdminOnlyText), ev)
	}
	if !ev.Direct && !cmd.AllowedIn(ev.Channel) {
		d.log.Debug().Str("command", cmd.Name).Str("channel", ev.Channel).Msg("command not allowed in channel")
		return nil
	}

	if d.hooks != nil {
		d.hooks.Emit(ctx, hooks.EventCommandMatched, map[string]any{
			"command": cmd.Name,
			"user":    ev.User,
			"channel": ev.Channel,
		})
	}

	inv := &command.Invocation{
		User:     ev.User,
		Channel:  ev.Channel,
		Text:     ev.Text,
		Captures: caps,
		Event:    ev,
	}
	if cmd.NeedsTimestamp {
		inv.Timestamp = ev.Timestamp
	}
	return d.invoke(ctx, cmd, inv)
}

func (d *Dispatcher) runUnfiltered(ctx context.Context, ev *domain.DispatchEvent) error {
	for _, cmd := range d.commands.Unfiltered() {
		if !cmd.AllowedIn(ev.Channel) {
			continue
		}
		inv := &command.Invocation{
			User:    ev.User,
			Channel: ev.Channel,
			Text:    ev.Text,
			Event:   ev,
		}
		if cmd.NeedsTimestamp {
			inv.Timestamp = ev.Timestamp
		}
		if err := d.invoke(ctx, cmd, inv); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs a handler and its result. Panics and errors are logged and
// turned into a no-op.
func (d *Dispatcher) invoke(ctx context.Context, cmd *command.Command, inv *command.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("command", cmd.Name).
				Str("user", inv.User).
				Str("panic", fmt.Sprint(r)).
				Msg("handler panicked")
			err = nil
		}
	}()

	res, herr := cmd.Handler(ctx, inv)
	if herr != nil {
		d.log.Error().Err(herr).Str("command", cmd.Name).Str("user", inv.User).Msg("handler failed")
		return nil
	}
	return d.execute(ctx, cmd.Name, inv.User, res, inv.Event)
}

func (d *Dispatcher) execute(ctx context.Context, name, user string, res action.Result, ev *domain.DispatchEvent) error {
	d.log.Debug().Str("command", name).Int("actions", action.Leaves(res)).Msg("executing result")

	err := d.exec.Execute(ctx, res, ev)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrDisconnected) {
		return err
	}
	d.log.Error().Err(err).Str("command", name).Str("user", user).Msg("command failed")
	return nil
}

func (d *Dispatcher) store(ctx context.Context, ev *domain.DispatchEvent) {
	if d.history == nil || ev.Text == "" {
		return
	}
	err := d.history.Store(ctx, domain.HistoryRecord{
		Channel:   ev.Channel,
		User:      ev.User,
		Text:      ev.Text,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("channel", ev.Channel).Msg("failed to store message")
	}
}

// resolveNames fills user and channel names from the directory.
func (d *Dispatcher) resolveNames(ev *domain.DispatchEvent) {
	if ev.User == "" {
		ev.User = ev.UserID
		if name, ok := d.dir.UserName(ev.UserID); ok {
			ev.User = name
		}
	}
	if !ev.Direct && d.dir.IsDirect(ev.ChannelID) {
		ev.Direct = true
	}
	if ev.Direct {
		ev.Channel = ""
		return
	}
	if ev.Channel == "" {
		ev.Channel = ev.ChannelID
		if name, ok := d.dir.ChannelName(ev.ChannelID); ok {
			ev.Channel = name
		}
	}
}

func (d *Dispatcher) isSelf(ev *domain.DispatchEvent) bool {
	self := d.dir.Self()
	if self.ID != "" && ev.UserID == self.ID {
		return true
	}
	return self.Name != "" && ev.User == self.Name
}

// Addressed reports whether text starts with the alert prefix.
func (d *Dispatcher) Addressed(text string) bool {
	alert := d.commands.Alert()
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	return alert != "" && len(text) >= len(alert) && strings.EqualFold(text[:len(alert)], alert)
}

// IsAdmin reports whether the sender of ev is in the admin set.
func (d *Dispatcher) IsAdmin(ev *domain.DispatchEvent) bool {
	return d.admins[ev.User] || (ev.UserID != "" && d.admins[ev.UserID])
}
