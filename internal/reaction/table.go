// Package reaction holds the live table of auto-reaction rules consulted on
// every channel message.
package reaction

import (
	"fmt"
	"regexp"
	"sort"
)

// Rule reacts with Emoji to messages matching Pattern.
type Rule struct {
	Pattern string
	Emoji   string
	re      *regexp.Regexp
}

// Matches reports whether text triggers the rule.
func (r Rule) Matches(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// Table stores rules per channel and owner. Rules for one owner keep
// insertion order, and a (pattern, emoji) pair is stored at most once.
//
// Table is owned by the dispatch goroutine and is not safe for concurrent
// use.
type Table struct {
	rules map[string]map[string][]Rule
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{rules: make(map[string]map[string][]Rule)}
}

// Compile checks a rule pattern. Patterns match case-insensitively.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// Add inserts a rule. Adding an existing rule is a no-op.
func (t *Table) Add(channel, owner, pattern, emoji string) error {
	re, err := Compile(pattern)
	if err != nil {
		return err
	}
	owners, ok := t.rules[channel]
	if !ok {
		owners = make(map[string][]Rule)
		t.rules[channel] = owners
	}
	for _, r := range owners[owner] {
		if r.Pattern == pattern && r.Emoji == emoji {
			return nil
		}
	}
	owners[owner] = append(owners[owner], Rule{Pattern: pattern, Emoji: emoji, re: re})
	return nil
}

// Remove deletes a rule and reports whether it existed.
func (t *Table) Remove(channel, owner, pattern, emoji string) bool {
	rules := t.rules[channel][owner]
	for i, r := range rules {
		if r.Pattern == pattern && r.Emoji == emoji {
			t.rules[channel][owner] = append(rules[:i:i], rules[i+1:]...)
			if len(t.rules[channel][owner]) == 0 {
				delete(t.rules[channel], owner)
			}
			return true
		}
	}
	return false
}

// Rules returns the rules of one owner in a channel.
func (t *Table) Rules(channel, owner string) []Rule {
	return append([]Rule(nil), t.rules[channel][owner]...)
}

// Owners returns the owners with rules in a channel, sorted.
func (t *Table) Owners(channel string) []string {
	owners := make([]string, 0, len(t.rules[channel]))
	for owner := range t.rules[channel] {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// Channels returns the channels that have rules, sorted.
func (t *Table) Channels() []string {
	channels := make([]string, 0, len(t.rules))
	for ch, owners := range t.rules {
		if len(owners) > 0 {
			channels = append(channels, ch)
		}
	}
	sort.Strings(channels)
	return channels
}

// Count returns the number of rules an owner has in a channel.
func (t *Table) Count(channel, owner string) int {
	return len(t.rules[channel][owner])
}

// Match returns the distinct emoji whose rules match text in a channel,
// in owner order then rule order.
func (t *Table) Match(channel, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, owner := range t.Owners(channel) {
		for _, r := range t.rules[channel][owner] {
			if r.Matches(text) && !seen[r.Emoji] {
				seen[r.Emoji] = true
				out = append(out, r.Emoji)
			}
		}
	}
	return out
}
