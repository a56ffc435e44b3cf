package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/soyeahso/dankbot/internal/domain"
)

// History stores chat messages and answers history queries, with
// full-text search via SQLite FTS5.
type History struct {
	db *DB
}

// NewHistory creates a history store using the given database.
func NewHistory(db *DB) *History {
	return &History{db: db}
}

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

type historyRow struct {
	ID      string `db:"id"`
	Channel string `db:"channel"`
	User    string `db:"user_name"`
	Text    string `db:"text"`
	TS      string `db:"ts"`
}

func (r historyRow) record() domain.HistoryRecord {
	ts, _ := time.Parse(tsLayout, r.TS)
	return domain.HistoryRecord{
		ID:        r.ID,
		Channel:   r.Channel,
		User:      r.User,
		Text:      r.Text,
		Timestamp: ts,
	}
}

// Store inserts a message. A zero timestamp is replaced with the current
// time.
func (h *History) Store(ctx context.Context, rec domain.HistoryRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	id := rec.ID
	if id == "" {
		id = ulid.Make().String()
	}
	_, err := h.db.sql.ExecContext(ctx,
		`INSERT INTO history (id, channel, user_name, text, ts) VALUES (?, ?, ?, ?, ?)`,
		id, rec.Channel, rec.User, rec.Text, rec.Timestamp.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("storing history: %w", err)
	}
	return nil
}

// Query returns the records matching filter, oldest first. With a positive
// Limit only the newest Limit records are returned.
func (h *History) Query(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	q := `SELECT h.id, h.channel, h.user_name, h.text, h.ts FROM history h`
	var where []string
	var args []any

	if search, ok := filter.Search.Get(); ok && strings.TrimSpace(search) != "" {
		q = `SELECT h.id, h.channel, h.user_name, h.text, h.ts
		     FROM history_fts JOIN history h ON h.rowid = history_fts.rowid`
		where = append(where, "history_fts MATCH ?")
		args = append(args, ftsPhrase(search))
	}
	if ch, ok := filter.Channel.Get(); ok {
		where = append(where, "h.channel = ?")
		args = append(args, ch)
	}
	if u, ok := filter.User.Get(); ok {
		where = append(where, "h.user_name = ?")
		args = append(args, u)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY h.ts DESC, h.id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []historyRow
	if err := h.db.sql.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	records := make([]domain.HistoryRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	slices.Reverse(records)
	return records, nil
}

// Count returns the number of stored messages.
func (h *History) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.sql.GetContext(ctx, &n, `SELECT COUNT(*) FROM history`); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	return n, nil
}

// ftsPhrase quotes user input as a single FTS5 phrase.
func ftsPhrase(s string) string {
	return `"` + strings.ReplaceAll(strings.TrimSpace(s), `"`, `""`) + `"`
}

// Clear deletes every stored message and returns how many were removed.
func (h *History) Clear(ctx context.Context) (int64, error) {
	res, err := h.db.sql.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}
	return res.RowsAffected()
}
