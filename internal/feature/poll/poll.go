// Package poll posts a numbered poll and seeds it with one reaction per
// option.
package poll

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/plugin"
)

// Numbers are the vote emoji, one per option.
var Numbers = []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "keycap_ten"}

const minOptions = 2

// Plugin implements the poll feature.
type Plugin struct{}

// New creates the poll plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string      { return "poll" }
func (p *Plugin) Name() string    { return "Simple Poll" }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Init(_ context.Context, api plugin.API) error {
	return api.Register(command.Command{
		Name:    "poll",
		Grammar: grammar.Seq(grammar.Caseless("poll"), grammar.Named("options", grammar.CommaList()), grammar.End()),
		Help:    fmt.Sprintf("Basic poll (up to %d options)\n\tpoll <option1>, <option2> [, ... <option%d>]", len(Numbers), len(Numbers)),
		Handler: p.poll,
	})
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) poll(_ context.Context, inv *command.Invocation) (action.Result, error) {
	options := inv.Captures.All("options")
	n := len(options)
	if n < minOptions || n > len(Numbers) {
		return action.Reply(fmt.Sprintf("Invalid number of options provided. %d received, please provide between %d and %d.",
			n, minOptions, len(Numbers))), nil
	}

	lines := make([]string, 0, n+1)
	lines = append(lines, "Please vote:")
	for i, opt := range options {
		lines = append(lines, fmt.Sprintf(":%s: %s", Numbers[i], opt))
	}

	emoji := Numbers[:n]
	send := action.Reply(strings.Join(lines, "\n"))
	send.OnSent = func(*domain.DispatchEvent) (action.Result, error) {
		reacts := make(action.Many, 0, len(emoji))
		for _, e := range emoji {
			reacts = append(reacts, action.React{Emoji: e})
		}
		return reacts, nil
	}
	return send, nil
}
