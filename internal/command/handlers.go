package command

// Handlers maps command names to commands. The last registration for a name
// wins.
type Handlers struct {
	filtered   map[string]*Command
	order      []string
	unfiltered []*Command
}

// NewHandlers creates an empty handler registry.
func NewHandlers() *Handlers {
	return &Handlers{filtered: make(map[string]*Command)}
}

// Put stores cmd, replacing any command with the same name. A replaced
// filtered command keeps its position in registration order.
func (h *Handlers) Put(cmd *Command) {
	if !cmd.Filtered() {
		h.deleteFiltered(cmd.Name)
		for i, c := range h.unfiltered {
			if c.Name == cmd.Name {
				h.unfiltered[i] = cmd
				return
			}
		}
		h.unfiltered = append(h.unfiltered, cmd)
		return
	}

	h.deleteUnfiltered(cmd.Name)
	if _, ok := h.filtered[cmd.Name]; !ok {
		h.order = append(h.order, cmd.Name)
	}
	h.filtered[cmd.Name] = cmd
}

// Delete removes the command registered under name.
func (h *Handlers) Delete(name string) bool {
	return h.deleteFiltered(name) || h.deleteUnfiltered(name)
}

func (h *Handlers) deleteFiltered(name string) bool {
	if _, ok := h.filtered[name]; !ok {
		return false
	}
	delete(h.filtered, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return true
}

func (h *Handlers) deleteUnfiltered(name string) bool {
	for i, c := range h.unfiltered {
		if c.Name == name {
			h.unfiltered = append(h.unfiltered[:i], h.unfiltered[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the filtered command registered under name.
func (h *Handlers) Lookup(name string) (*Command, bool) {
	cmd, ok := h.filtered[name]
	return cmd, ok
}

// Filtered returns filtered commands in registration order.
func (h *Handlers) Filtered() []*Command {
	out := make([]*Command, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.filtered[name])
	}
	return out
}

// Unfiltered returns unfiltered commands in registration order.
func (h *Handlers) Unfiltered() []*Command {
	return append([]*Command(nil), h.unfiltered...)
}

// Len returns the number of registered commands.
func (h *Handlers) Len() int {
	return len(h.filtered) + len(h.unfiltered)
}
