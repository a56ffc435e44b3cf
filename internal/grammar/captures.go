package grammar

import "strconv"

// Captures holds the values recorded by Named expressions during a match,
// in match order per name.
type Captures struct {
	values map[string][]string
}

func newCaptures(caps []capture) Captures {
	c := Captures{values: make(map[string][]string, len(caps))}
	for _, cp := range caps {
		c.values[cp.name] = append(c.values[cp.name], cp.value)
	}
	return c
}

// Get returns the first value captured under name, or "".
func (c Captures) Get(name string) string {
	if v := c.values[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// All returns every value captured under name.
func (c Captures) All(name string) []string {
	return c.values[name]
}

// Has reports whether anything was captured under name.
func (c Captures) Has(name string) bool {
	return len(c.values[name]) > 0
}

// Int parses the first value captured under name as an integer.
func (c Captures) Int(name string) (int, bool) {
	if !c.Has(name) {
		return 0, false
	}
	n, err := strconv.Atoi(c.Get(name))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Values returns a copy of all captures keyed by name.
func (c Captures) Values() map[string][]string {
	out := make(map[string][]string, len(c.values))
	for k, v := range c.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}
