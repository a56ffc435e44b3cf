package grammar

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Alternation is a grammar node whose set of literal alternatives can change
// after construction. Expressions that embed it observe every change on
// their next match without being rebuilt.
//
// A key matches a whole whitespace-delimited token, so at most one key can
// match at any position. Adding a key therefore never stops an input that
// matched before from matching, whatever follows the node.
//
// Alternation is not safe for concurrent use. Mutate it only between parses.
type Alternation struct {
	keys map[string]struct{}
}

// NewAlternation returns an Alternation holding keys.
func NewAlternation(keys ...string) *Alternation {
	a := &Alternation{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		a.Add(k)
	}
	return a
}

// validKey rejects empty keys and keys that span more than one token.
func validKey(key string) bool {
	return key != "" && strings.IndexFunc(key, unicode.IsSpace) < 0
}

// Add makes key matchable and reports whether it was accepted. Empty keys
// and keys containing whitespace are rejected.
func (a *Alternation) Add(key string) bool {
	if !validKey(key) {
		return false
	}
	a.keys[key] = struct{}{}
	return true
}

// Remove makes key unmatchable.
func (a *Alternation) Remove(key string) {
	delete(a.keys, key)
}

// Replace swaps the whole alternative set. Invalid keys are dropped.
func (a *Alternation) Replace(keys ...string) {
	a.keys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		a.Add(k)
	}
}

// Contains reports whether key is currently an alternative.
func (a *Alternation) Contains(key string) bool {
	_, ok := a.keys[key]
	return ok
}

// Len returns the number of alternatives.
func (a *Alternation) Len() int {
	return len(a.keys)
}

// Keys returns the alternatives in sorted order.
func (a *Alternation) Keys() []string {
	keys := make([]string, 0, len(a.keys))
	for k := range a.keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (a *Alternation) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	end := pos
	for end < len(s.text) {
		r, size := utf8.DecodeRuneInString(s.text[end:])
		if unicode.IsSpace(r) {
			break
		}
		end += size
	}
	if end == pos {
		return pos, false
	}
	if _, ok := a.keys[s.text[pos:end]]; !ok {
		return pos, false
	}
	return end, true
}
