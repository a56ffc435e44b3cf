package store

import (
	"context"
	"fmt"
)

// ReactionRule is a persisted auto-reaction rule.
type ReactionRule struct {
	Channel string `db:"channel"`
	Owner   string `db:"owner"`
	Pattern string `db:"pattern"`
	Emoji   string `db:"emoji"`
}

// ReactionRules persists auto-reaction rules.
type ReactionRules struct {
	db *DB
}

// NewReactionRules creates a rule store using the given database.
func NewReactionRules(db *DB) *ReactionRules {
	return &ReactionRules{db: db}
}

// Add stores a rule. Adding an existing rule is a no-op.
func (r *ReactionRules) Add(ctx context.Context, rule ReactionRule) error {
	_, err := r.db.sql.NamedExecContext(ctx,
		`INSERT OR IGNORE INTO reaction_rules (channel, owner, pattern, emoji)
		 VALUES (:channel, :owner, :pattern, :emoji)`, rule)
	if err != nil {
		return fmt.Errorf("storing reaction rule: %w", err)
	}
	return nil
}

// Remove deletes a rule.
func (r *ReactionRules) Remove(ctx context.Context, rule ReactionRule) error {
	_, err := r.db.sql.NamedExecContext(ctx,
		`DELETE FROM reaction_rules
		 WHERE channel = :channel AND owner = :owner AND pattern = :pattern AND emoji = :emoji`, rule)
	if err != nil {
		return fmt.Errorf("removing reaction rule: %w", err)
	}
	return nil
}

// List returns all rules in insertion order.
func (r *ReactionRules) List(ctx context.Context) ([]ReactionRule, error) {
	var rules []ReactionRule
	err := r.db.sql.SelectContext(ctx, &rules,
		`SELECT channel, owner, pattern, emoji FROM reaction_rules ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing reaction rules: %w", err)
	}
	return rules, nil
}
