// Package directory keeps the address book of a chat session: channel and
// user names mapped to transport ids, plus direct-message channels.
package directory

import (
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
)

// Directory maps names to transport ids and back.
type Directory struct {
	mu           sync.RWMutex
	self         domain.Entry
	channels     map[string]string // name -> id
	channelNames map[string]string // id -> name
	users        map[string]string
	userNames    map[string]string
	direct       map[string]string // user name -> dm channel id
	directUsers  map[string]string // dm channel id -> user name
	log          *logging.Logger
}

// New creates an empty directory.
func New(log *logging.Logger) *Directory {
	d := &Directory{log: log.Sub("directory")}
	d.reset()
	return d
}

func (d *Directory) reset() {
	d.self = domain.Entry{}
	d.channels = make(map[string]string)
	d.channelNames = make(map[string]string)
	d.users = make(map[string]string)
	d.userNames = make(map[string]string)
	d.direct = make(map[string]string)
	d.directUsers = make(map[string]string)
}

// Load replaces the directory contents with a session roster.
func (d *Directory) Load(r *domain.Roster) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
	d.self = r.Self
	if r.Self.ID != "" {
		d.setUser(r.Self.Name, r.Self.ID)
	}
	for _, c := range r.Channels {
		d.setChannel(c.Name, c.ID)
	}
	for _, u := range r.Users {
		d.setUser(u.Name, u.ID)
	}
	for _, dm := range r.Direct {
		if name, ok := d.userNames[dm.UserID]; ok {
			d.setDirect(name, dm.ChannelID)
		}
	}

	d.log.Info().
		Int("channels", len(d.channels)).
		Int("users", len(d.users)).
		Int("direct", len(d.direct)).
		Msg("directory loaded")
}

// AddChannel records a channel.
func (d *Directory) AddChannel(name, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setChannel(name, id)
	d.log.Debug().Str("channel", name).Str("id", id).Msg("channel added")
}

// AddUser records a user.
func (d *Directory) AddUser(name, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setUser(name, id)
	d.log.Debug().Str("user", name).Str("id", id).Msg("user added")
}

// AddDirect records the direct-message channel of a user.
func (d *Directory) AddDirect(user, channelID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setDirect(user, channelID)
}

func (d *Directory) setChannel(name, id string) {
	name = strings.TrimPrefix(name, "#")
	if name == "" || id == "" {
		return
	}
	d.channels[name] = id
	d.channelNames[id] = name
}

func (d *Directory) setUser(name, id string) {
	if name == "" || id == "" {
		return
	}
	d.users[name] = id
	d.userNames[id] = name
}

func (d *Directory) setDirect(user, id string) {
	if user == "" || id == "" {
		return
	}
	d.direct[user] = id
	d.directUsers[id] = user
}

// Self returns the bot's own identity.
func (d *Directory) Self() domain.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.self
}

// ChannelID resolves a channel name. An argument that is already a known
// channel id resolves to itself.
func (d *Directory) ChannelID(nameOrID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.channels[strings.TrimPrefix(nameOrID, "#")]; ok {
		return id, true
	}
	if _, ok := d.channelNames[nameOrID]; ok {
		return nameOrID, true
	}
	return "", false
}

// ChannelName returns the name of a channel id.
func (d *Directory) ChannelName(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.channelNames[id]
	return name, ok
}

// UserID resolves a user name. A known user id resolves to itself.
func (d *Directory) UserID(nameOrID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.users[nameOrID]; ok {
		return id, true
	}
	if _, ok := d.userNames[nameOrID]; ok {
		return nameOrID, true
	}
	return "", false
}

// UserName returns the name of a user id.
func (d *Directory) UserName(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.userNames[id]
	return name, ok
}

// DirectID returns the known direct-message channel of a user.
func (d *Directory) DirectID(user string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.direct[user]
	return id, ok
}

// IsDirect reports whether a channel id is a known direct-message channel.
func (d *Directory) IsDirect(channelID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.directUsers[channelID]
	return ok
}

// Channels returns all known channel names, sorted.
func (d *Directory) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats reports the number of known channels and users.
func (d *Directory) Stats() (channels, users int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels), len(d.users)
}
