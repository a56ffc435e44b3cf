package domain

import (
	"time"

	"github.com/samber/mo"
)

// HistoryRecord is one stored chat message.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryFilter selects history records. Absent fields match everything.
type HistoryFilter struct {
	Channel mo.Option[string]
	User    mo.Option[string]
	Search  mo.Option[string]
	Limit   int
}

// Matches reports whether r passes the channel and user filters.
func (f HistoryFilter) Matches(r HistoryRecord) bool {
	if ch, ok := f.Channel.Get(); ok && ch != r.Channel {
		return false
	}
	if u, ok := f.User.Get(); ok && u != r.User {
		return false
	}
	return true
}
