// Package command keeps the registered chat commands: the combined grammar
// used to recognise them and the handlers that run them.
package command

import (
	"context"
	"slices"
	"time"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/grammar"
)

// Handler runs a matched command.
type Handler func(ctx context.Context, inv *Invocation) (action.Result, error)

// Invocation is what a handler receives.
type Invocation struct {
	User    string
	Channel string // empty in direct messages
	Text    string
	// Captures is empty for unfiltered commands.
	Captures grammar.Captures
	// Timestamp is zero unless the command sets NeedsTimestamp.
	Timestamp time.Time
	Event     *domain.DispatchEvent
}

// Direct reports whether the invocation came from a direct message.
func (inv *Invocation) Direct() bool {
	return inv.Channel == ""
}

// Command is a registered command. A nil Grammar makes the command
// unfiltered: it sees every unaddressed message in its channels.
type Command struct {
	Name     string
	Grammar  grammar.Expr
	Priority int
	// Channels restricts the command to channel names. Nil means
	// unrestricted.
	Channels       []string
	Admin          bool
	NeedsTimestamp bool
	Help           string
	Handler        Handler
}

// Filtered reports whether the command has a grammar.
func (c *Command) Filtered() bool {
	return c.Grammar != nil
}

// AllowedIn reports whether the command may run in channel.
func (c *Command) AllowedIn(channel string) bool {
	return c.Channels == nil || slices.Contains(c.Channels, channel)
}
