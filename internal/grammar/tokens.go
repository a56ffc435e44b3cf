package grammar

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Character sets for Word.
const (
	Digits     = "0123456789"
	Letters    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Alphanums  = Letters + Digits
	Printables = "!\"#$%&'()*+,-./" + Digits + ":;<=>?@" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"
)

type literal struct {
	text     string
	caseless bool
}

// Literal matches text exactly. A literal ending in a letter or digit
// does not match when it is immediately followed by another letter or
// digit.
func Literal(text string) Expr {
	return literal{text: text}
}

// Caseless is Literal with case-insensitive comparison.
func Caseless(text string) Expr {
	return literal{text: text, caseless: true}
}

func (l literal) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	end, ok := matchLiteral(s.text, pos, l.text, l.caseless)
	if !ok {
		return pos, false
	}
	return end, true
}

func matchLiteral(text string, pos int, lit string, caseless bool) (int, bool) {
	end := pos + len(lit)
	if lit == "" || end > len(text) {
		return pos, false
	}
	got := text[pos:end]
	if caseless {
		if !strings.EqualFold(got, lit) {
			return pos, false
		}
	} else if got != lit {
		return pos, false
	}
	last, _ := utf8.DecodeLastRuneInString(lit)
	if isWordRune(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return pos, false
		}
	}
	return end, true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

type word struct{ chars string }

// Word matches one or more characters drawn from chars.
func Word(chars string) Expr {
	return word{chars: chars}
}

func (w word) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	end := pos
	for end < len(s.text) {
		r, size := utf8.DecodeRuneInString(s.text[end:])
		if !strings.ContainsRune(w.chars, r) {
			break
		}
		end += size
	}
	if end == pos {
		return pos, false
	}
	return end, true
}

type tail struct{}

// Tail matches the rest of the line. It fails on an empty remainder.
func Tail() Expr {
	return tail{}
}

func (tail) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	if pos >= len(s.text) {
		return pos, false
	}
	return len(s.text), true
}

type end struct{}

// End matches when only whitespace remains.
func End() Expr {
	return end{}
}

func (end) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	if pos != len(s.text) {
		return pos, false
	}
	return pos, true
}

type commaList struct{}

// CommaList matches the rest of the line as comma separated items. Each
// non-empty trimmed item is captured separately by Named.
func CommaList() Expr {
	return commaList{}
}

func (commaList) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	if len(splitItems(s.text[pos:])) == 0 {
		return pos, false
	}
	return len(s.text), true
}

func (commaList) extract(raw string) []string {
	return splitItems(raw)
}

func splitItems(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// pattern is a terminal backed by an anchored regular expression. The
// captured value is the first non-empty submatch, or the whole match.
type pattern struct {
	re *regexp.Regexp
}

func newPattern(expr string) pattern {
	return pattern{re: regexp.MustCompile(`^(?:` + expr + `)`)}
}

// Regex matches the regular expression expr at the current position. It
// panics if expr does not compile.
func Regex(expr string) Expr {
	return newPattern(expr)
}

func (p pattern) match(s *state, pos int) (int, bool) {
	pos = s.skipSpace(pos)
	loc := p.re.FindStringIndex(s.text[pos:])
	if loc == nil || loc[1] == 0 {
		return pos, false
	}
	return pos + loc[1], true
}

func (p pattern) extract(raw string) []string {
	m := p.re.FindStringSubmatch(raw)
	if m == nil {
		return []string{raw}
	}
	for _, sub := range m[1:] {
		if sub != "" {
			return []string{sub}
		}
	}
	return []string{m[0]}
}

var (
	integerPattern = newPattern(`[+-]?[0-9]+`)
	quotedPattern  = newPattern(`"((?:[^"\\]|\\.)*)"`)
	linkPattern    = newPattern(`<(https?://[^>|\s]+)(?:\|[^>]*)?>|(https?://\S+)`)
	mentionPattern = newPattern(`<@([A-Za-z0-9]+)(?:\|[^>]*)?>|@([\w.\-]+)`)
	emojiPattern   = newPattern(`:[^\s:]+:`)
	channelPattern = newPattern(`<#[A-Za-z0-9]+\|([^>]+)>|#?([A-Za-z0-9\-]+)`)
)

// Integer matches an optionally signed decimal integer.
func Integer() Expr { return integerPattern }

// Quoted matches a double-quoted string and captures it without quotes.
func Quoted() Expr { return quotedPattern }

type quotedList struct{ Expr }

// QuotedList matches one or more quoted strings, captured separately.
func QuotedList() Expr { return quotedList{OneOrMore(quotedPattern)} }

func (quotedList) extract(raw string) []string {
	var items []string
	for _, m := range quotedPattern.re.FindAllStringSubmatch(raw, -1) {
		items = append(items, m[1])
	}
	return items
}

// Link matches <url>, <url|label> or a bare http(s) URL and captures the URL.
func Link() Expr { return linkPattern }

// Mention matches <@ID>, <@ID|name> or @name and captures the id or name.
func Mention() Expr { return mentionPattern }

// Emoji matches :name:.
func Emoji() Expr { return emojiPattern }

// ChannelName matches a channel reference and captures the bare name.
func ChannelName() Expr { return channelPattern }

// Flag matches --name.
func Flag(name string) Expr {
	return Caseless("--" + name)
}
