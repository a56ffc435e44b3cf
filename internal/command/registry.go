package command

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/logging"
)

// AdminOnlyText is sent instead of running an admin command for a
// non-admin.
const AdminOnlyText = "That command is admin only."

// Registry writes grammars and handlers together, so every name in the
// combined grammar has exactly one handler.
type Registry struct {
	mu       sync.RWMutex
	grammars *Grammars
	handlers *Handlers
	log      *logging.Logger
}

// NewRegistry creates an empty registry for the given alert prefix.
func NewRegistry(alert string, log *logging.Logger) *Registry {
	return &Registry{
		grammars: NewGrammars(alert),
		handlers: NewHandlers(),
		log:      log.Sub("commands"),
	}
}

// Register adds cmd. Registering a name again replaces the earlier command
// and its grammar.
func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" {
		return errors.New("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %s: handler is required", cmd.Name)
	}
	if cmd.Channels != nil && len(cmd.Channels) == 0 {
		return fmt.Errorf("command %s: empty channel restriction", cmd.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers.Lookup(cmd.Name); ok {
		r.log.Debug().Str("command", cmd.Name).Msg("replacing command")
	}

	c := cmd
	if c.Filtered() {
		r.grammars.Add(c.Name, c.Grammar, c.Priority)
	} else {
		r.grammars.Remove(c.Name)
	}
	r.handlers.Put(&c)

	r.log.Debug().
		Str("command", c.Name).
		Int("priority", c.Priority).
		Bool("filtered", c.Filtered()).
		Bool("admin", c.Admin).
		Msg("command registered")
	return nil
}

// Unregister removes the command registered under name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars.Remove(name)
	return r.handlers.Delete(name)
}

// Parse matches text against the combined grammar for its context.
func (r *Registry) Parse(text string, direct bool) (string, grammar.Captures, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grammars.Parse(text, direct)
}

// Lookup returns the filtered command registered under name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers.Lookup(name)
}

// Commands returns filtered commands in registration order.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers.Filtered()
}

// Unfiltered returns unfiltered commands in registration order.
func (r *Registry) Unfiltered() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers.Unfiltered()
}

// Names returns filtered command names in match order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grammars.Names()
}

// Count returns the number of registered commands.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers.Len()
}

// Alert returns the alert prefix.
func (r *Registry) Alert() string {
	return r.grammars.Alert()
}

// Help lists every filtered command with help text. Admin-only commands
// are included only when admin is true.
func (r *Registry) Help(admin bool) string {
	var b strings.Builder
	for _, c := range r.Commands() {
		if c.Help == "" || (c.Admin && !admin) {
			continue
		}
		allowed := "All"
		if c.Channels != nil {
			allowed = strings.Join(c.Channels, ", ")
		}
		fmt.Fprintf(&b, "%s:\n\t%s\n\tAllowed channels: %s\n", c.Name, c.Help, allowed)
	}
	return strings.TrimRight(b.String(), "\n")
}
