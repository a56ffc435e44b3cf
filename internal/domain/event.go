package domain

import "time"

// EventKind classifies an inbound event.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventChannelJoined EventKind = "channel_joined"
	EventUserJoined    EventKind = "user_joined"
	EventConnected     EventKind = "connected"
)

// DispatchEvent is a normalized inbound event produced by a transport.
// Transports fill the ids; the dispatcher resolves names through the
// directory when a transport leaves them empty.
type DispatchEvent struct {
	Kind      EventKind  `json:"kind"`
	User      string     `json:"user,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	ChannelID string     `json:"channelId,omitempty"`
	Direct    bool       `json:"direct,omitempty"`
	Text      string     `json:"text,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Ref       MessageRef `json:"ref"`
	Raw       any        `json:"-"`
}

// IsMessage reports whether the event carries chat text.
func (e DispatchEvent) IsMessage() bool {
	return e.Kind == EventMessage
}
