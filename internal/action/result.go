// Package action defines the results command handlers return and the
// executor that turns them into transport calls.
package action

import (
	"github.com/soyeahso/dankbot/internal/domain"
)

// Result is a side effect requested by a handler. A nil Result does
// nothing.
type Result interface {
	result()
}

// SentFunc runs after a Send is delivered. origin describes the message
// that was just sent.
type SentFunc func(origin *domain.DispatchEvent) (Result, error)

// HistoryFunc receives the records of a HistoryFetch.
type HistoryFunc func(records []domain.HistoryRecord) (Result, error)

// Send posts text.
type Send struct {
	Dest   domain.Destination
	Text   string
	OnSent SentFunc
}

// Upload posts a local file. With DeleteAfter the file is removed once the
// upload finishes, whether or not it succeeded.
type Upload struct {
	Dest        domain.Destination
	Path        string
	DeleteAfter bool
}

// ReactionEdit adds or removes an auto-reaction rule.
type ReactionEdit struct {
	Channel string
	Owner   string
	Pattern string
	Emoji   string
	Remove  bool
}

// HistoryFetch queries stored history and hands the records to Callback.
type HistoryFetch struct {
	Filter   domain.HistoryFilter
	Callback HistoryFunc
}

// React adds an emoji reaction to the originating message.
type React struct {
	Emoji string
}

// Many runs each result in order.
type Many []Result

func (Send) result()         {}
func (Upload) result()       {}
func (ReactionEdit) result() {}
func (HistoryFetch) result() {}
func (React) result()        {}
func (Many) result()         {}

// Reply sends text back to where the originating event came from.
func Reply(text string) Send {
	return Send{Text: text}
}

// Whisper sends text to a user's direct-message channel.
func Whisper(user, text string) Send {
	return Send{Dest: domain.ToUser(user), Text: text}
}

// Leaves counts the non-nil, non-Many results in a result tree, not
// following callbacks.
func Leaves(r Result) int {
	switch v := r.(type) {
	case nil:
		return 0
	case Many:
		n := 0
		for _, c := range v {
			n += Leaves(c)
		}
		return n
	default:
		return 1
	}
}
