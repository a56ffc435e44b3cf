package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Bind is a keyword bound to a canned reply.
type Bind struct {
	Key       string    `db:"key"`
	Text      string    `db:"text"`
	Owner     string    `db:"owner"`
	CreatedAt time.Time `db:"-"`
}

type bindRow struct {
	Key       string `db:"key"`
	Text      string `db:"text"`
	Owner     string `db:"owner"`
	CreatedAt string `db:"created_at"`
}

func (r bindRow) bind() Bind {
	created, _ := time.Parse(time.DateTime, r.CreatedAt)
	return Bind{Key: r.Key, Text: r.Text, Owner: r.Owner, CreatedAt: created}
}

// Binds persists keyword binds.
type Binds struct {
	db *DB
}

// NewBinds creates a bind store using the given database.
func NewBinds(db *DB) *Binds {
	return &Binds{db: db}
}

// Put inserts or replaces a bind.
func (b *Binds) Put(ctx context.Context, bind Bind) error {
	if bind.CreatedAt.IsZero() {
		bind.CreatedAt = time.Now()
	}
	_, err := b.db.sql.ExecContext(ctx,
		`INSERT INTO binds (key, text, owner, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET text = excluded.text, owner = excluded.owner`,
		bind.Key, bind.Text, bind.Owner, bind.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("storing bind %s: %w", bind.Key, err)
	}
	return nil
}

// Get returns the bind for key.
func (b *Binds) Get(ctx context.Context, key string) (*Bind, error) {
	var row bindRow
	err := b.db.sql.GetContext(ctx, &row, `SELECT key, text, owner, created_at FROM binds WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading bind %s: %w", key, err)
	}
	bind := row.bind()
	return &bind, nil
}

// Delete removes a bind and reports whether it existed.
func (b *Binds) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.db.sql.ExecContext(ctx, `DELETE FROM binds WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("deleting bind %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all binds ordered by key.
func (b *Binds) List(ctx context.Context) ([]Bind, error) {
	var rows []bindRow
	if err := b.db.sql.SelectContext(ctx, &rows, `SELECT key, text, owner, created_at FROM binds ORDER BY key`); err != nil {
		return nil, fmt.Errorf("listing binds: %w", err)
	}
	binds := make([]Bind, 0, len(rows))
	for _, r := range rows {
		binds = append(binds, r.bind())
	}
	return binds, nil
}
