package command

import "github.com/soyeahso/dankbot/internal/grammar"

type grammarEntry struct {
	name     string
	priority int
	expr     grammar.Expr
}

// Grammars owns the combined ordered-choice grammar in its channel and
// direct-message variants.
type Grammars struct {
	alert   string
	entries []grammarEntry
	channel grammar.Expr
	direct  grammar.Expr
}

// NewGrammars creates an empty grammar registry. Channel messages must
// start with alert; in direct messages it is optional.
func NewGrammars(alert string) *Grammars {
	g := &Grammars{alert: alert}
	g.rebuild()
	return g
}

// Add inserts a grammar under name, replacing any earlier grammar with the
// same name. Higher priorities come first; among equal priorities earlier
// registrations come first.
func (g *Grammars) Add(name string, expr grammar.Expr, priority int) {
	g.remove(name)

	at := len(g.entries)
	for i, e := range g.entries {
		if priority > e.priority {
			at = i
			break
		}
	}
	g.entries = append(g.entries, grammarEntry{})
	copy(g.entries[at+1:], g.entries[at:])
	g.entries[at] = grammarEntry{name: name, priority: priority, expr: expr}

	g.rebuild()
}

// Remove deletes the grammar registered under name.
func (g *Grammars) Remove(name string) bool {
	if !g.remove(name) {
		return false
	}
	g.rebuild()
	return true
}

func (g *Grammars) remove(name string) bool {
	for i, e := range g.entries {
		if e.name == name {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Grammars) rebuild() {
	alts := make([]grammar.Expr, 0, len(g.entries))
	for _, e := range g.entries {
		alts = append(alts, grammar.Tag(e.name, e.expr))
	}
	commands := grammar.Or(alts...)
	head := grammar.Seq()
	if g.alert != "" {
		head = grammar.Caseless(g.alert)
	}
	g.channel = grammar.Seq(head, commands)
	g.direct = grammar.Seq(grammar.Optional(head), commands)
}

// Parse matches text against the combined grammar for its context and
// returns the name of the command that matched.
func (g *Grammars) Parse(text string, direct bool) (string, grammar.Captures, bool) {
	expr := g.channel
	if direct {
		expr = g.direct
	}
	return grammar.Parse(expr, text)
}

// Names returns command names in match order.
func (g *Grammars) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Alert returns the alert prefix.
func (g *Grammars) Alert() string {
	return g.alert
}
