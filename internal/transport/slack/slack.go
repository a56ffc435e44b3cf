// Package slack implements the Slack transport: Web API calls through
// slack-go and inbound events over Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/transport"
)

// MaxMessageLength is the per-message text limit. Replies at or over it
// are dropped by the executor.
const MaxMessageLength = 4000

const historyPageSize = 200

type session struct {
	cancel context.CancelFunc
	inbox  *transport.Inbox
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// Transport implements domain.Transport for Slack.
type Transport struct {
	cfg config.SlackConfig
	api *slack.Client
	log *logging.Logger

	mu      sync.Mutex
	self    string
	current *session
}

// New creates a Slack transport from configuration.
func New(cfg config.SlackConfig, log *logging.Logger) *Transport {
	opts := []slack.Option{slack.OptionAppLevelToken(cfg.AppToken)}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(cfg.APIURL, "/")+"/"))
	}
	if cfg.Debug {
		opts = append(opts, slack.OptionDebug(true))
	}
	return &Transport{
		cfg: cfg,
		api: slack.New(cfg.BotToken, opts...),
		log: log.Sub("slack"),
	}
}

func (t *Transport) ID() string { return "slack" }

// MaxMessageLength implements domain.Transport.
func (t *Transport) MaxMessageLength() int { return MaxMessageLength }

// Connect loads the roster through the Web API and starts a Socket Mode
// session.
func (t *Transport) Connect(ctx context.Context) (*domain.Roster, error) {
	roster, err := t.roster(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		cancel: cancel,
		inbox:  transport.NewInbox(),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	client := socketmode.New(t.api, socketmode.OptionDebug(t.cfg.Debug))

	t.mu.Lock()
	old := t.current
	t.current = s
	t.self = roster.Self.ID
	t.mu.Unlock()
	if old != nil {
		old.close()
	}

	go func() {
		err := client.RunContext(runCtx)
		if err == nil {
			err = errors.New("socket mode session ended")
		}
		select {
		case s.errs <- err:
		default:
		}
	}()
	go t.pump(runCtx, s, client, roster.Self.ID)

	t.log.Info().
		Str("self", roster.Self.Name).
		Int("channels", len(roster.Channels)).
		Int("users", len(roster.Users)).
		Msg("connected to Slack")
	return roster, nil
}

func (t *Transport) roster(ctx context.Context) (*domain.Roster, error) {
	auth, err := t.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth.test: %w", err)
	}
	r := &domain.Roster{Self: domain.Entry{ID: auth.UserID, Name: auth.User}}

	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel", "im"},
		ExcludeArchived: true,
		Limit:           1000,
	}
	for {
		channels, cursor, err := t.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversations.list: %w", err)
		}
		for _, c := range channels {
			if c.IsIM {
				r.Direct = append(r.Direct, domain.DirectEntry{UserID: c.User, ChannelID: c.ID})
				continue
			}
			if c.IsMember {
				r.Channels = append(r.Channels, domain.Entry{ID: c.ID, Name: c.Name})
			}
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	users, err := t.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("users.list: %w", err)
	}
	for _, u := range users {
		if u.Deleted {
			continue
		}
		r.Users = append(r.Users, domain.Entry{ID: u.ID, Name: u.Name})
	}
	return r, nil
}

// pump moves Socket Mode events onto the session channel, acknowledging
// each Events API envelope.
func (t *Transport) pump(ctx context.Context, s *session, client *socketmode.Client, self string) {
	for {
		select {
		case evt, ok := <-client.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				s.inbox.Push(domain.DispatchEvent{Kind: domain.EventConnected, Timestamp: time.Now()})
			case socketmode.EventTypeConnectionError:
				t.log.Warn().Interface("data", evt.Data).Msg("socket mode connection error")
			case socketmode.EventTypeEventsAPI:
				if evt.Request != nil {
					client.Ack(*evt.Request)
				}
				payload, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if ev, ok := convert(self, payload.InnerEvent.Data); ok {
					t.describe(ctx, &ev)
					s.inbox.Push(ev)
				}
			}
		case <-s.done:
			return
		}
	}
}

// describe fills the names Slack leaves out of join events, so the
// directory can record them.
func (t *Transport) describe(ctx context.Context, ev *domain.DispatchEvent) {
	switch ev.Kind {
	case domain.EventChannelJoined:
		if ev.Channel != "" {
			return
		}
		ch, err := t.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: ev.ChannelID})
		if err != nil {
			t.log.Warn().Err(err).Str("channel", ev.ChannelID).Msg("conversations.info failed")
			return
		}
		ev.Channel = ch.Name
	case domain.EventUserJoined:
		if ev.User != "" {
			return
		}
		u, err := t.api.GetUserInfoContext(ctx, ev.UserID)
		if err != nil {
			t.log.Warn().Err(err).Str("user", ev.UserID).Msg("users.info failed")
			return
		}
		ev.User = u.Name
	}
}

// convert maps an Events API inner event to a dispatch event.
func convert(self string, data any) (domain.DispatchEvent, bool) {
	switch e := data.(type) {
	case *slackevents.MessageEvent:
		if e.SubType != "" && e.SubType != "me_message" {
			return domain.DispatchEvent{}, false
		}
		if e.User == "" || e.User == self || e.BotID != "" || e.Channel == "" {
			return domain.DispatchEvent{}, false
		}
		ts := parseTS(e.TimeStamp)
		if ts.IsZero() {
			ts = time.Now()
		}
		return domain.DispatchEvent{
			Kind:      domain.EventMessage,
			UserID:    e.User,
			ChannelID: e.Channel,
			Direct:    e.ChannelType == "im",
			Text:      e.Text,
			Timestamp: ts,
			Ref:       domain.MessageRef{ChannelID: e.Channel, ID: e.TimeStamp},
			Raw:       e,
		}, true

	case *slackevents.MemberJoinedChannelEvent:
		if e.User == self {
			return domain.DispatchEvent{Kind: domain.EventChannelJoined, ChannelID: e.Channel, Timestamp: time.Now()}, true
		}
		return domain.DispatchEvent{Kind: domain.EventUserJoined, UserID: e.User, ChannelID: e.Channel, Timestamp: time.Now()}, true

	case *slackevents.TeamJoinEvent:
		if e.User == nil || e.User.ID == "" {
			return domain.DispatchEvent{}, false
		}
		return domain.DispatchEvent{Kind: domain.EventUserJoined, User: e.User.Name, UserID: e.User.ID, Timestamp: time.Now()}, true
	}
	return domain.DispatchEvent{}, false
}

// parseTS converts a "seconds.micros" message timestamp.
func parseTS(ts string) time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var nanos int64
	if frac != "" {
		nanos, _ = strconv.ParseInt((frac + "000000000")[:9], 10, 64)
	}
	return time.Unix(s, nanos)
}

func (t *Transport) session() (*session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil, fmt.Errorf("slack: %w: not connected", domain.ErrDisconnected)
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
		return domain.DispatchEvent{}, fmt.Errorf("slack: %w: session closed", domain.ErrDisconnected)
	default:
		return domain.DispatchEvent{}, fmt.Errorf("slack: %w: %v", domain.ErrDisconnected, err)
	}
}

// Send posts text through chat.postMessage.
func (t *Transport) Send(ctx context.Context, channelID, text string) (domain.MessageRef, error) {
	channel, ts, err := t.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("chat.postMessage to %s: %w", channelID, err)
	}
	return domain.MessageRef{ChannelID: channel, ID: ts}, nil
}

// Upload shares a local file through the external upload flow
// (files.getUploadURLExternal, then files.completeUploadExternal).
func (t *Transport) Upload(ctx context.Context, channelID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("slack upload: %w", err)
	}
	_, err = t.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     path,
		FileSize: int(info.Size()),
		Filename: filepath.Base(path),
		Channel:  channelID,
	})
	if err != nil {
		return fmt.Errorf("slack upload to %s: %w", channelID, err)
	}
	return nil
}

// HistoryPage implements domain.Archive through conversations.history.
func (t *Transport) HistoryPage(ctx context.Context, channelID, cursor string) (domain.HistoryPage, error) {
	resp, err := t.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Cursor:    cursor,
		Limit:     historyPageSize,
	})
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("conversations.history %s: %w", channelID, err)
	}

	t.mu.Lock()
	self := t.self
	t.mu.Unlock()

	page := domain.HistoryPage{Next: resp.ResponseMetaData.NextCursor}
	for _, m := range resp.Messages {
		ev, ok := convert(self, &slackevents.MessageEvent{
			User:      m.User,
			Channel:   channelID,
			Text:      m.Text,
			TimeStamp: m.Timestamp,
			SubType:   m.SubType,
			BotID:     m.BotID,
		})
		if ok {
			page.Messages = append(page.Messages, ev)
		}
	}
	return page, nil
}

// React adds an emoji reaction through reactions.add.
func (t *Transport) React(ctx context.Context, msg domain.MessageRef, emoji string) error {
	err := t.api.AddReactionContext(ctx, strings.Trim(emoji, ":"), slack.NewRefToMessage(msg.ChannelID, msg.ID))
	if err != nil {
		return fmt.Errorf("reactions.add: %w", err)
	}
	return nil
}

// OpenDirect opens (or finds) the direct-message channel of a user.
func (t *Transport) OpenDirect(ctx context.Context, userID string) (string, error) {
	ch, _, _, err := t.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return "", fmt.Errorf("conversations.open: %w", err)
	}
	return ch.ID, nil
}

// Close ends the current Socket Mode session.
func (t *Transport) Close() error {
	t.mu.Lock()
	s := t.current
	t.current = nil
	t.mu.Unlock()
	if s != nil {
		s.close()
	}
	return nil
}
