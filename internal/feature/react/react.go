// Package react lets users register emoji reactions that fire when a
// channel message matches a pattern.
package react

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/plugin"
	"github.com/soyeahso/dankbot/internal/reaction"
	"github.com/soyeahso/dankbot/internal/store"
)

// DefaultLimit is the number of rules one user may own in a channel.
const DefaultLimit = 10

// Plugin implements the react feature. Live rules sit in the shared
// reaction table; the executor applies edits to it and this plugin keeps
// the database in step.
type Plugin struct {
	table    *reaction.Table
	store    *store.ReactionRules // nil without a database
	channels []string
	limit    int
	admins   func(string) bool
	log      *logging.Logger
}

// New creates the react plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string      { return "react" }
func (p *Plugin) Name() string    { return "Reactions" }
func (p *Plugin) Version() string { return "1.0.0" }

// Init loads stored rules into the reaction table and registers the
// commands and the monitor.
func (p *Plugin) Init(ctx context.Context, api plugin.API) error {
	if api.Reactions == nil {
		return fmt.Errorf("react: reaction table is required")
	}
	p.table = api.Reactions
	p.channels = api.Channels()
	p.admins = api.IsAdmin
	p.log = api.Log
	p.limit = api.Config.Limit
	if p.limit <= 0 {
		p.limit = DefaultLimit
	}

	if api.DB != nil {
		p.store = store.NewReactionRules(api.DB)
		rules, err := p.store.List(ctx)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if err := p.table.Add(r.Channel, r.Owner, r.Pattern, r.Emoji); err != nil {
				p.log.Warn().Err(err).Str("channel", r.Channel).Str("owner", r.Owner).Msg("skipping stored rule")
			}
		}
		p.log.Debug().Int("count", len(rules)).Msg("reaction rules loaded")
	}

	channel := grammar.Named("channel", grammar.ChannelName())
	cmds := []command.Command{
		{
			Name: "react",
			Grammar: grammar.Seq(grammar.Caseless("react"), channel,
				grammar.Named("emoji", grammar.Emoji()), grammar.Named("pattern", grammar.Tail())),
			Help:    "Register a reaction for when a pattern occurs in a channel:\n\treact <channel> <emoji> <pattern>",
			Handler: p.create,
		},
		{
			Name: "unreact",
			Grammar: grammar.Seq(grammar.Caseless("unreact"), channel,
				grammar.Named("index", grammar.Integer()), grammar.End()),
			Help:    "Unregister a reaction. See list_react for reaction numbers:\n\tunreact <channel> <reaction number>",
			Handler: p.clear,
		},
		{
			Name: "list_react",
			Grammar: grammar.Seq(grammar.Caseless("list_react"),
				grammar.Optional(grammar.Named("here", grammar.Flag("here"))),
				grammar.Optional(grammar.Seq(grammar.Flag("user"), grammar.Named("user", grammar.Word(grammar.Printables)))),
				grammar.Optional(channel),
				grammar.End()),
			Help:    "List your registered reactions:\n\tlist_react [--here] [<channel>]",
			Handler: p.list,
		},
	}
	for _, c := range cmds {
		if err := api.Commands.Register(c); err != nil {
			return err
		}
	}
	return api.Register(command.Command{Name: "reaction_monitor", Handler: p.monitor})
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) permitted(channel string) bool {
	return p.channels == nil || slices.Contains(p.channels, channel)
}

func (p *Plugin) create(ctx context.Context, inv *command.Invocation) (action.Result, error) {
	channel := inv.Captures.Get("channel")
	emoji := strings.Trim(inv.Captures.Get("emoji"), ":")
	pattern := inv.Captures.Get("pattern")

	switch {
	case !p.permitted(channel):
		return action.Reply(fmt.Sprintf("Reactions in channel %s not permitted.", channel)), nil
	case p.table.Count(channel, inv.User) >= p.limit:
		return action.Reply("Maximum number of reactions per channel reached."), nil
	}
	if _, err := reaction.Compile(pattern); err != nil {
		return action.Reply("Invalid pattern."), nil
	}

	if p.store != nil {
		rule := store.ReactionRule{Channel: channel, Owner: inv.User, Pattern: pattern, Emoji: emoji}
		if err := p.store.Add(ctx, rule); err != nil {
			return nil, err
		}
	}
	return action.Many{
		action.ReactionEdit{Channel: channel, Owner: inv.User, Pattern: pattern, Emoji: emoji},
		action.Reply("Reaction saved."),
	}, nil
}

func (p *Plugin) clear(ctx context.Context, inv *command.Invocation) (action.Result, error) {
	channel := inv.Captures.Get("channel")
	index, _ := inv.Captures.Int("index")

	rules := p.table.Rules(channel, inv.User)
	if index < 0 || index >= len(rules) {
		return action.Reply("Invalid reaction number."), nil
	}
	r := rules[index]

	if p.store != nil {
		rule := store.ReactionRule{Channel: channel, Owner: inv.User, Pattern: r.Pattern, Emoji: r.Emoji}
		if err := p.store.Remove(ctx, rule); err != nil {
			return nil, err
		}
	}
	return action.Many{
		action.ReactionEdit{Channel: channel, Owner: inv.User, Pattern: r.Pattern, Emoji: r.Emoji, Remove: true},
		action.Reply("Reaction deleted."),
	}, nil
}

func (p *Plugin) list(_ context.Context, inv *command.Invocation) (action.Result, error) {
	owner := inv.User
	if inv.Captures.Has("user") {
		if !p.admins(inv.User) {
			return action.Whisper(inv.User, "Not allowed."), nil
		}
		owner = inv.Captures.Get("user")
	}

	channels := p.table.Channels()
	if inv.Captures.Has("channel") {
		channels = []string{inv.Captures.Get("channel")}
	}

	var lines []string
	for _, ch := range channels {
		rules := p.table.Rules(ch, owner)
		if len(rules) == 0 {
			continue
		}
		lines = append(lines, "Reactions in "+ch)
		for i, r := range rules {
			lines = append(lines, fmt.Sprintf("\t%d. %s --> :%s:", i, r.Pattern, r.Emoji))
		}
	}
	text := "No reactions registered."
	if len(lines) > 0 {
		text = strings.Join(lines, "\n")
	}

	if inv.Captures.Has("here") {
		return action.Reply(text), nil
	}
	return action.Whisper(inv.User, text), nil
}

// monitor reacts to unaddressed channel messages that match a rule.
func (p *Plugin) monitor(_ context.Context, inv *command.Invocation) (action.Result, error) {
	if inv.Direct() {
		return nil, nil
	}
	emoji := p.table.Match(inv.Channel, inv.Text)
	if len(emoji) == 0 {
		return nil, nil
	}
	out := make(action.Many, 0, len(emoji))
	for _, e := range emoji {
		out = append(out, action.React{Emoji: e})
	}
	return out, nil
}
