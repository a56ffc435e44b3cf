// Package irc implements the IRC transport using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
)

// MaxMessageLength bounds one outbound message before line splitting.
const MaxMessageLength = 2000

// lineLength keeps PRIVMSG lines under the 512 byte protocol limit.
const lineLength = 400

const eventBuffer = 256

// Transport implements domain.Transport for IRC. Channel ids and names are
// both the channel name with its leading '#'; user ids are nicks and the
// direct-message channel of a user is the user's nick.
type Transport struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu     sync.Mutex
	client *girc.Client
	events chan domain.DispatchEvent
	errs   chan error
	seen   map[string]bool
}

// New creates an IRC transport from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Transport {
	return &Transport{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (t *Transport) ID() string { return "irc" }

// MaxMessageLength implements domain.Transport.
func (t *Transport) MaxMessageLength() int { return MaxMessageLength }

func (t *Transport) port() int {
	if t.cfg.Port != 0 {
		return t.cfg.Port
	}
	if t.cfg.UseTLS {
		return 6697
	}
	return 6667
}

func (t *Transport) gircConfig() girc.Config {
	cfg := girc.Config{
		Server:  t.cfg.Server,
		Port:    t.port(),
		Nick:    t.cfg.Nick,
		User:    t.cfg.Nick,
		Name:    "dankbot",
		SSL:     t.cfg.UseTLS,
		Version: "dankbot",
	}
	if t.cfg.UseTLS {
		cfg.TLSConfig = &tls.Config{ServerName: t.cfg.Server}
	}
	if t.cfg.SASL && t.cfg.Password != "" {
		cfg.SASL = &girc.SASLPlain{User: t.cfg.Nick, Pass: t.cfg.Password}
	} else if t.cfg.Password != "" {
		cfg.ServerPass = t.cfg.Password
	}
	return cfg
}

// Connect dials the server, joins the configured channels and returns once
// the server has welcomed the bot.
func (t *Transport) Connect(ctx context.Context) (*domain.Roster, error) {
	client := girc.New(t.gircConfig())
	ready := make(chan struct{})
	var once sync.Once

	t.mu.Lock()
	t.client = client
	t.events = make(chan domain.DispatchEvent, eventBuffer)
	t.errs = make(chan error, 1)
	t.seen = make(map[string]bool)
	events, errs := t.events, t.errs
	t.mu.Unlock()

	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		for _, ch := range t.cfg.Channels {
			c.Cmd.Join(ch)
		}
		once.Do(func() { close(ready) })
	})
	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		for _, ev := range t.convert(c.GetNick(), e) {
			t.push(events, ev)
		}
	})
	client.Handlers.Add(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if ev, ok := t.joinEvent(c.GetNick(), e); ok {
			t.push(events, ev)
		}
	})

	t.log.Info().
		Str("server", t.cfg.Server).
		Int("port", t.port()).
		Str("nick", t.cfg.Nick).
		Strs("channels", t.cfg.Channels).
		Bool("tls", t.cfg.UseTLS).
		Msg("connecting to IRC")

	go func() {
		err := client.Connect()
		if err == nil {
			err = fmt.Errorf("connection closed")
		}
		errs <- err
	}()

	select {
	case <-ready:
	case err := <-errs:
		return nil, fmt.Errorf("irc connect: %w", err)
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}

	nick := client.GetNick()
	roster := &domain.Roster{Self: domain.Entry{ID: nick, Name: nick}}
	for _, ch := range t.cfg.Channels {
		roster.Channels = append(roster.Channels, domain.Entry{ID: ch, Name: ch})
	}
	t.log.Info().Str("nick", nick).Msg("connected to IRC")
	return roster, nil
}

// push hands an event to Receive, dropping it if the reader fell far behind.
func (t *Transport) push(events chan domain.DispatchEvent, ev domain.DispatchEvent) {
	select {
	case events <- ev:
	default:
		t.log.Warn().Str("kind", string(ev.Kind)).Msg("event buffer full, dropping event")
	}
}

// convert maps a PRIVMSG to dispatch events. The first message from an
// unknown nick is preceded by a user-joined event so the nick can be
// addressed.
func (t *Transport) convert(self string, e girc.Event) []domain.DispatchEvent {
	if e.Source == nil || len(e.Params) == 0 {
		return nil
	}
	nick := e.Source.Name
	if strings.EqualFold(nick, self) {
		return nil
	}

	text := e.Last()
	if e.IsAction() {
		text = e.StripAction()
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	ev := domain.DispatchEvent{
		Kind:      domain.EventMessage,
		User:      nick,
		UserID:    nick,
		Text:      text,
		Timestamp: ts,
		Raw:       e,
	}
	if e.IsFromChannel() {
		ev.ChannelID = e.Params[0]
	} else {
		ev.ChannelID = nick
		ev.Direct = true
	}
	ev.Ref = domain.MessageRef{ChannelID: ev.ChannelID, ID: uuid.NewString()}

	var out []domain.DispatchEvent
	if t.markSeen(nick) {
		out = append(out, domain.DispatchEvent{Kind: domain.EventUserJoined, User: nick, UserID: nick, Timestamp: ts})
	}
	return append(out, ev)
}

func (t *Transport) joinEvent(self string, e girc.Event) (domain.DispatchEvent, bool) {
	if e.Source == nil || len(e.Params) == 0 {
		return domain.DispatchEvent{}, false
	}
	channel := e.Params[0]
	if strings.EqualFold(e.Source.Name, self) {
		return domain.DispatchEvent{Kind: domain.EventChannelJoined, Channel: channel, ChannelID: channel, Timestamp: time.Now()}, true
	}
	t.markSeen(e.Source.Name)
	return domain.DispatchEvent{Kind: domain.EventUserJoined, User: e.Source.Name, UserID: e.Source.Name, Timestamp: time.Now()}, true
}

// markSeen records nick and reports whether it was new.
func (t *Transport) markSeen(nick string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	key := strings.ToLower(nick)
	if t.seen[key] {
		return false
	}
	t.seen[key] = true
	return true
}

// Receive returns the next inbound event.
func (t *Transport) Receive(ctx context.Context) (domain.DispatchEvent, error) {
	t.mu.Lock()
	events, errs := t.events, t.errs
	t.mu.Unlock()
	if events == nil {
		return domain.DispatchEvent{}, fmt.Errorf("irc: %w: not connected", domain.ErrDisconnected)
	}

	select {
	case ev := <-events:
		return ev, nil
	case err := <-errs:
		t.log.Warn().Err(err).Msg("disconnected from IRC")
		return domain.DispatchEvent{}, fmt.Errorf("irc: %w: %v", domain.ErrDisconnected, err)
	case <-ctx.Done():
		return domain.DispatchEvent{}, ctx.Err()
	}
}

func (t *Transport) connected() (*girc.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || !t.client.IsConnected() {
		return nil, fmt.Errorf("irc: %w: not connected", domain.ErrDisconnected)
	}
	return t.client, nil
}

// Send delivers text to a channel or nick, one PRIVMSG per line.
func (t *Transport) Send(ctx context.Context, channelID, text string) (domain.MessageRef, error) {
	client, err := t.connected()
	if err != nil {
		return domain.MessageRef{}, err
	}
	if channelID == "" {
		return domain.MessageRef{}, fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(text, lineLength)
	for _, line := range lines {
		client.Cmd.Message(channelID, line)
	}
	t.log.Debug().Str("to", channelID).Int("lines", len(lines)).Msg("sent IRC message")
	return domain.MessageRef{ChannelID: channelID, ID: uuid.NewString()}, nil
}

// React has no IRC equivalent and is rendered as an action.
func (t *Transport) React(ctx context.Context, ref domain.MessageRef, emoji string) error {
	client, err := t.connected()
	if err != nil {
		return err
	}
	client.Cmd.Action(ref.ChannelID, fmt.Sprintf("reacts with :%s:", emoji))
	return nil
}

// Upload is not supported over IRC.
func (t *Transport) Upload(ctx context.Context, channelID, path string) error {
	return fmt.Errorf("irc upload: %w", domain.ErrUnsupported)
}

// OpenDirect returns the nick itself; IRC private messages go to the nick.
func (t *Transport) OpenDirect(ctx context.Context, userID string) (string, error) {
	return userID, nil
}

// Close disconnects from the server.
func (t *Transport) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	if client.IsConnected() {
		t.log.Info().Msg("disconnecting from IRC")
		client.Quit("dankbot shutting down")
	}
	client.Close()
	return nil
}

// splitMessage breaks text into PRIVMSG-sized lines. Each newline starts a
// new line since PRIVMSG cannot carry one, blank lines are kept so
// paragraph breaks survive, and lines longer than maxLen are cut on rune
// boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			chunks = append(chunks, " ")
			continue
		}
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		chunks = append(chunks, line)
	}
	return chunks
}
