// Package quote replies with a random stored message, optionally filtered
// by channel, user or search phrase.
package quote

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/samber/mo"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/plugin"
)

// DefaultLimit is how many recent records a quote is drawn from.
const DefaultLimit = 1000

// NoQuotesText is sent when the filter matches nothing.
const NoQuotesText = "No quotes found."

// Plugin implements the quote feature.
type Plugin struct {
	dir   *directory.Directory
	limit int
	pick  func(n int) int
}

// New creates the quote plugin.
func New() *Plugin {
	return &Plugin{pick: rand.IntN}
}

func (p *Plugin) ID() string      { return "quote" }
func (p *Plugin) Name() string    { return "Quotes" }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Init(_ context.Context, api plugin.API) error {
	p.dir = api.Directory
	p.limit = api.Config.Limit
	if p.limit <= 0 {
		p.limit = DefaultLimit
	}

	expr := grammar.Seq(
		grammar.Caseless("quote"),
		grammar.Optional(grammar.Seq(grammar.Flag("channel"), grammar.Named("channel", grammar.ChannelName()))),
		grammar.Optional(grammar.Seq(grammar.Flag("search"), grammar.Named("search", grammar.Quoted()))),
		grammar.Optional(grammar.Or(
			grammar.Named("user", grammar.Mention()),
			grammar.Named("user", grammar.Word(grammar.Alphanums+"._-")),
		)),
		grammar.End(),
	)
	return api.Register(command.Command{
		Name:    "quote",
		Grammar: expr,
		Help:    "Randomly quote someone:\n\tquote [--channel <channel>] [--search \"phrase\"] [<user>]",
		Handler: p.quote,
	})
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) quote(_ context.Context, inv *command.Invocation) (action.Result, error) {
	filter := domain.HistoryFilter{Limit: p.limit}
	if inv.Captures.Has("channel") {
		filter.Channel = mo.Some(inv.Captures.Get("channel"))
	}
	if inv.Captures.Has("user") {
		filter.User = mo.Some(p.userName(inv.Captures.Get("user")))
	}
	if inv.Captures.Has("search") {
		filter.Search = mo.Some(inv.Captures.Get("search"))
	}
	return action.HistoryFetch{Filter: filter, Callback: p.render}, nil
}

// userName maps a mention id to the stored user name.
func (p *Plugin) userName(user string) string {
	if p.dir == nil {
		return user
	}
	if name, ok := p.dir.UserName(user); ok {
		return name
	}
	return user
}

func (p *Plugin) render(records []domain.HistoryRecord) (action.Result, error) {
	if len(records) == 0 {
		return action.Reply(NoQuotesText), nil
	}
	r := records[p.pick(len(records))]
	return action.Reply(fmt.Sprintf("> %s\n%s %d", r.Text, r.User, r.Timestamp.Year())), nil
}
