// Package binder lets users bind a keyword to a canned reply. Bound
// keywords are matched through a grammar node that changes as binds are
// added and removed.
package binder

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/plugin"
	"github.com/soyeahso/dankbot/internal/store"
)

// DefaultMaxLength bounds bind output when no message limit is configured.
const DefaultMaxLength = 1000

// Plugin implements the binder feature.
type Plugin struct {
	binds  map[string]store.Bind
	keys   *grammar.Alternation
	store  *store.Binds // nil without a database
	admins func(string) bool
	maxLen int
	log    *logging.Logger
}

// New creates the binder plugin.
func New() *Plugin {
	return &Plugin{
		binds: make(map[string]store.Bind),
		keys:  grammar.NewAlternation(),
	}
}

func (p *Plugin) ID() string      { return "binder" }
func (p *Plugin) Name() string    { return "Binder" }
func (p *Plugin) Version() string { return "1.0.0" }

func keyExpr() grammar.Expr {
	return grammar.Named("key", grammar.Word(grammar.Alphanums+"{}"))
}

// Init loads stored binds and registers the commands.
func (p *Plugin) Init(ctx context.Context, api plugin.API) error {
	p.log = api.Log
	p.admins = api.IsAdmin
	p.maxLen = api.MaxMessageLength
	if p.maxLen <= 0 {
		p.maxLen = DefaultMaxLength
	}
	if api.DB != nil {
		p.store = store.NewBinds(api.DB)
		binds, err := p.store.List(ctx)
		if err != nil {
			return err
		}
		for _, b := range binds {
			p.binds[b.Key] = b
			p.keys.Add(b.Key)
		}
		p.log.Debug().Int("count", len(binds)).Msg("binds loaded")
	}

	cmds := []command.Command{
		{
			Name:    "bind",
			Grammar: grammar.Seq(grammar.Caseless("bind"), keyExpr(), grammar.Named("output", grammar.Tail()), grammar.End()),
			Help:    "Bind a word to an output: bind <word> <output>",
			Handler: p.bind,
		},
		{
			Name:    "unbind",
			Grammar: grammar.Seq(grammar.Caseless("unbind"), keyExpr(), grammar.End()),
			Help:    "Unbind a bound word: unbind <word>",
			Handler: p.unbind,
		},
		{
			Name:    "list_binds",
			Grammar: grammar.Seq(grammar.Caseless("list_binds"), grammar.End()),
			Help:    "List the current binds: list_binds",
			Handler: p.list,
		},
		{
			Name:     "print_bind",
			Grammar:  grammar.Seq(grammar.Named("key", p.keys), grammar.End()),
			Priority: -1,
			Handler:  p.print,
		},
	}
	for _, c := range cmds {
		if err := api.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) bind(ctx context.Context, inv *command.Invocation) (action.Result, error) {
	key, output := inv.Captures.Get("key"), inv.Captures.Get("output")

	if utf8.RuneCountInString(output) > p.maxLen {
		return action.Whisper(inv.User, fmt.Sprintf("Binds must be less than %d characters long", p.maxLen)), nil
	}
	if existing, ok := p.binds[key]; ok {
		return action.Whisper(inv.User, fmt.Sprintf("%s is already bound to %s.", key, existing.Text)), nil
	}

	b := store.Bind{Key: key, Text: output, Owner: inv.User}
	if p.store != nil {
		if err := p.store.Put(ctx, b); err != nil {
			return nil, err
		}
	}
	p.binds[key] = b
	p.keys.Add(key)
	p.log.Info().Str("key", key).Str("user", inv.User).Msg("bind added")
	return nil, nil
}

func (p *Plugin) unbind(ctx context.Context, inv *command.Invocation) (action.Result, error) {
	key := inv.Captures.Get("key")
	b, ok := p.binds[key]
	if !ok {
		return action.Whisper(inv.User, fmt.Sprintf("%s is not bound.", key)), nil
	}
	if b.Owner != inv.User && !p.admins(inv.User) {
		return action.Whisper(inv.User, "You may only unbind your own binds."), nil
	}

	if p.store != nil {
		if _, err := p.store.Delete(ctx, key); err != nil {
			return nil, err
		}
	}
	delete(p.binds, key)
	p.keys.Remove(key)
	p.log.Info().Str("key", key).Str("user", inv.User).Msg("bind removed")
	return nil, nil
}

func (p *Plugin) list(_ context.Context, inv *command.Invocation) (action.Result, error) {
	if len(p.binds) == 0 {
		return action.Whisper(inv.User, "Nothing is bound."), nil
	}
	lines := make([]string, 0, len(p.binds))
	for _, k := range slices.Sorted(maps.Keys(p.binds)) {
		lines = append(lines, fmt.Sprintf("%s: %s", k, p.binds[k].Text))
	}
	return action.Whisper(inv.User, strings.Join(lines, "\n")), nil
}

func (p *Plugin) print(_ context.Context, inv *command.Invocation) (action.Result, error) {
	b, ok := p.binds[inv.Captures.Get("key")]
	if !ok {
		return nil, nil
	}
	return action.Reply(b.Text), nil
}
