// Package rtm implements a transport for RTM-style chat servers: a Web API
// call returns a websocket URL and a roster, events then arrive as JSON
// frames on the socket.
package rtm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/transport"
)

// DefaultMaxMessageLength applies when the configuration sets none.
const DefaultMaxMessageLength = 4000

const (
	pingInterval = 30 * time.Second
	readTimeout  = 2 * pingInterval
	writeTimeout = 10 * time.Second
	ackTimeout   = 15 * time.Second
)

var errAckTimeout = errors.New("no reply from server")

type ack struct {
	ts  string
	err error
}

// session is one websocket connection and the state tied to it.
type session struct {
	conn  *websocket.Conn
	inbox *transport.Inbox
	errs  chan error
	done  chan struct{}
	once  sync.Once

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[int64]chan ack
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}

func (s *session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *session) expect(id int64) chan ack {
	ch := make(chan ack, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *session) forget(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) resolve(id int64, a ack) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		ch <- a
	}
}

// Transport implements domain.Transport for RTM servers.
type Transport struct {
	cfg    config.RTMConfig
	http   *http.Client
	log    *logging.Logger
	nextID atomic.Int64

	mu      sync.Mutex
	current *session
}

// New creates an RTM transport from configuration.
func New(cfg config.RTMConfig, log *logging.Logger) *Transport {
	if cfg.URL == "" {
		cfg.URL = config.DefaultRTMURL
	}
	return &Transport{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log.Sub("rtm"),
	}
}

func (t *Transport) ID() string { return "rtm" }

// MaxMessageLength implements domain.Transport.
func (t *Transport) MaxMessageLength() int {
	if t.cfg.MaxMessageLength > 0 {
		return t.cfg.MaxMessageLength
	}
	return DefaultMaxMessageLength
}

// Connect calls rtm.start and opens the websocket it names.
func (t *Transport) Connect(ctx context.Context) (*domain.Roster, error) {
	var start startResponse
	if err := t.call(ctx, "rtm.start", nil, &start); err != nil {
		return nil, err
	}
	if start.URL == "" {
		return nil, fmt.Errorf("rtm.start: no websocket url in response")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, start.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("rtm dial: %w", err)
	}

	s := &session{
		conn:    conn,
		inbox:   transport.NewInbox(),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		pending: make(map[int64]chan ack),
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	t.mu.Lock()
	old := t.current
	t.current = s
	t.mu.Unlock()
	if old != nil {
		old.close()
	}

	go t.readLoop(s)
	go t.keepalive(s)

	roster := start.roster()
	t.log.Info().
		Str("self", roster.Self.Name).
		Int("channels", len(roster.Channels)).
		Int("users", len(roster.Users)).
		Msg("connected to RTM")
	return roster, nil
}

func (t *Transport) readLoop(s *session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		f := &frame{}
		if err := json.Unmarshal(data, f); err != nil {
			t.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		if f.ReplyTo != nil {
			s.resolve(*f.ReplyTo, f.ack())
			continue
		}
		if ev, ok := f.event(); ok {
			s.inbox.Push(ev)
		}
	}
}

func (f *frame) ack() ack {
	if f.OK != nil && !*f.OK {
		msg := "send rejected"
		if f.Error != nil && f.Error.Msg != "" {
			msg = f.Error.Msg
		}
		return ack{err: errors.New(msg)}
	}
	return ack{ts: f.TS}
}

func (t *Transport) keepalive(s *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				t.log.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

func (t *Transport) session() (*session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, fmt.Errorf("rtm: %w: not connected", domain.ErrDisconnected)
	}
	return t.current, nil
}

// Receive returns the next inbound event.
func (t *Transport) Receive(ctx context.Context) (domain.DispatchEvent, error) {
	s, err := t.session()
	if err != nil {
		return domain.DispatchEvent{}, err
	}

	ev, err := s.inbox.Next(ctx, s.errs, s.done)
	switch {
	case err == nil:
		return ev, nil
	case ctx.Err() != nil:
		return domain.DispatchEvent{}, ctx.Err()
	case errors.Is(err, transport.ErrSessionClosed):
		return domain.DispatchEvent{}, fmt.Errorf("rtm: %w: session closed", domain.ErrDisconnected)
	default:
		t.log.Warn().Err(err).Msg("websocket closed")
		return domain.DispatchEvent{}, fmt.Errorf("rtm: %w: %v", domain.ErrDisconnected, err)
	}
}

// Send writes a message frame and waits for the server to acknowledge it
// with the message timestamp.
func (t *Transport) Send(ctx context.Context, channelID, text string) (domain.MessageRef, error) {
	s, err := t.session()
	if err != nil {
		return domain.MessageRef{}, err
	}

	id := t.nextID.Add(1)
	wait := s.expect(id)
	defer s.forget(id)

	msg := outbound{ID: id, Type: TypeMessage, Channel: channelID, Text: text, ClientMsgID: uuid.NewString()}
	if err := s.write(msg); err != nil {
		return domain.MessageRef{}, fmt.Errorf("rtm send: %w: %v", domain.ErrDisconnected, err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case a := <-wait:
		if a.err != nil {
			return domain.MessageRef{}, fmt.Errorf("rtm send to %s: %w", channelID, a.err)
		}
		return domain.MessageRef{ChannelID: channelID, ID: a.ts}, nil
	case <-timer.C:
		return domain.MessageRef{}, fmt.Errorf("rtm send to %s: %w", channelID, errAckTimeout)
	case <-s.done:
		return domain.MessageRef{}, fmt.Errorf("rtm send: %w: session closed", domain.ErrDisconnected)
	case <-ctx.Done():
		return domain.MessageRef{}, ctx.Err()
	}
}

// Close ends the current session.
func (t *Transport) Close() error {
	t.mu.Lock()
	s := t.current
	t.current = nil
	t.mu.Unlock()
	if s != nil {
		t.log.Debug().Msg("closing websocket")
		s.close()
	}
	return nil
}
