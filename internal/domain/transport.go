package domain

import (
	"context"
	"errors"
)

var (
	// ErrDisconnected wraps failures of the underlying connection. The
	// supervisor reconnects when it sees one.
	ErrDisconnected = errors.New("transport disconnected")

	// ErrUnsupported is returned for operations a transport cannot perform.
	ErrUnsupported = errors.New("operation not supported by transport")
)

// MessageRef identifies a message that was sent or received.
type MessageRef struct {
	ChannelID string `json:"channelId"`
	ID        string `json:"id"`
}

// IsZero reports whether the reference is empty.
func (r MessageRef) IsZero() bool {
	return r.ChannelID == "" && r.ID == ""
}

// Destination names where a result goes: a channel by name, a user's
// direct-message channel by user name, or (when both are empty) the
// channel the originating event came from.
type Destination struct {
	Channel string `json:"channel,omitempty"`
	User    string `json:"user,omitempty"`
}

// IsZero reports whether the destination defers to the originating event.
func (d Destination) IsZero() bool {
	return d.Channel == "" && d.User == ""
}

// ToChannel addresses a channel by name.
func ToChannel(name string) Destination {
	return Destination{Channel: name}
}

// ToUser addresses a user's direct-message channel.
func ToUser(name string) Destination {
	return Destination{User: name}
}

// Entry pairs a transport id with a display name.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DirectEntry maps a user id to its direct-message channel id.
type DirectEntry struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

// Roster is the session snapshot a transport returns on connect.
type Roster struct {
	Self     Entry         `json:"self"`
	Channels []Entry       `json:"channels"`
	Users    []Entry       `json:"users"`
	Direct   []DirectEntry `json:"direct,omitempty"`
}

// Transport is a long-lived chat connection.
type Transport interface {
	// ID returns the transport kind (e.g. "rtm", "slack", "irc").
	ID() string

	// Connect opens a new session and returns its roster.
	Connect(ctx context.Context) (*Roster, error)

	// Receive blocks until the next inbound event. Errors other than
	// context cancellation end the session.
	Receive(ctx context.Context) (DispatchEvent, error)

	// Send posts text to a channel id.
	Send(ctx context.Context, channelID, text string) (MessageRef, error)

	// Upload posts a local file to a channel id.
	Upload(ctx context.Context, channelID, path string) error

	// React adds an emoji reaction to a message.
	React(ctx context.Context, ref MessageRef, emoji string) error

	// OpenDirect returns the direct-message channel id for a user id.
	OpenDirect(ctx context.Context, userID string) (string, error)

	// MaxMessageLength is the per-message text limit.
	MaxMessageLength() int

	// Close ends the current session.
	Close() error
}

// HistoryPage is one page of a channel archive.
type HistoryPage struct {
	Messages []DispatchEvent
	// Next is the cursor of the following page, empty on the last one.
	Next string
}

// Archive is implemented by transports that can page through messages a
// channel received before the bot connected.
type Archive interface {
	HistoryPage(ctx context.Context, channelID, cursor string) (HistoryPage, error)
}
