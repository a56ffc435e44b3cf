// Package grammar provides PEG-style combinators for describing the syntax
// of chat commands.
//
// Expressions match a prefix of a single line of text. Sequences match left
// to right, ordered choice commits to the first alternative that succeeds,
// and whitespace is skipped before every terminal.
package grammar

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Expr is a grammar expression.
type Expr interface {
	match(s *state, pos int) (int, bool)
}

type capture struct {
	name  string
	value string
}

type state struct {
	text string
	caps []capture
	tag  string
}

type mark struct {
	caps int
	tag  string
}

func (s *state) mark() mark {
	return mark{caps: len(s.caps), tag: s.tag}
}

func (s *state) reset(m mark) {
	s.caps = s.caps[:m.caps]
	s.tag = m.tag
}

func (s *state) skipSpace(pos int) int {
	for pos < len(s.text) {
		r, size := utf8.DecodeRuneInString(s.text[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

// Match runs expr against text and returns the captures of a successful
// match. Trailing text is allowed unless expr ends with End.
func Match(expr Expr, text string) (Captures, bool) {
	_, caps, ok := Parse(expr, text)
	return caps, ok
}

// Parse runs expr against text and additionally reports the name of the
// innermost Tag that matched.
func Parse(expr Expr, text string) (string, Captures, bool) {
	s := &state{text: text}
	if _, ok := expr.match(s, 0); !ok {
		return "", Captures{}, false
	}
	return s.tag, newCaptures(s.caps), true
}

type seq []Expr

// Seq matches each expression in order.
func Seq(exprs ...Expr) Expr {
	return seq(exprs)
}

func (q seq) match(s *state, pos int) (int, bool) {
	m := s.mark()
	for _, e := range q {
		next, ok := e.match(s, pos)
		if !ok {
			s.reset(m)
			return pos, false
		}
		pos = next
	}
	return pos, true
}

type choice []Expr

// Or is ordered choice: the first alternative that matches wins.
func Or(alts ...Expr) Expr {
	return choice(alts)
}

func (c choice) match(s *state, pos int) (int, bool) {
	for _, alt := range c {
		m := s.mark()
		if next, ok := alt.match(s, pos); ok {
			return next, true
		}
		s.reset(m)
	}
	return pos, false
}

type optional struct{ expr Expr }

// Optional matches expr or nothing.
func Optional(expr Expr) Expr {
	return optional{expr: expr}
}

func (o optional) match(s *state, pos int) (int, bool) {
	m := s.mark()
	if next, ok := o.expr.match(s, pos); ok {
		return next, true
	}
	s.reset(m)
	return pos, true
}

type repeat struct {
	expr Expr
	min  int
}

// OneOrMore matches expr greedily, at least once.
func OneOrMore(expr Expr) Expr {
	return repeat{expr: expr, min: 1}
}

// ZeroOrMore matches expr greedily any number of times.
func ZeroOrMore(expr Expr) Expr {
	return repeat{expr: expr}
}

func (r repeat) match(s *state, pos int) (int, bool) {
	m := s.mark()
	n := 0
	for {
		inner := s.mark()
		next, ok := r.expr.match(s, pos)
		if !ok || next == pos {
			s.reset(inner)
			break
		}
		pos = next
		n++
	}
	if n < r.min {
		s.reset(m)
		return pos, false
	}
	return pos, true
}

// extractor is implemented by terminals whose captured value differs from
// the raw matched text.
type extractor interface {
	extract(raw string) []string
}

type named struct {
	name string
	expr Expr
}

// Named records the text matched by expr under name.
func Named(name string, expr Expr) Expr {
	return named{name: name, expr: expr}
}

func (n named) match(s *state, pos int) (int, bool) {
	start := s.skipSpace(pos)
	end, ok := n.expr.match(s, pos)
	if !ok {
		return pos, false
	}
	raw := ""
	if end > start {
		raw = strings.TrimSpace(s.text[start:end])
	}
	if ex, ok := n.expr.(extractor); ok {
		for _, v := range ex.extract(raw) {
			s.caps = append(s.caps, capture{name: n.name, value: v})
		}
		return end, true
	}
	s.caps = append(s.caps, capture{name: n.name, value: raw})
	return end, true
}

type tagged struct {
	name string
	expr Expr
}

// Tag marks expr so that Parse reports name when it matches.
func Tag(name string, expr Expr) Expr {
	return tagged{name: name, expr: expr}
}

func (t tagged) match(s *state, pos int) (int, bool) {
	end, ok := t.expr.match(s, pos)
	if ok {
		s.tag = t.name
	}
	return end, ok
}
