package rtm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/dankbot/internal/domain"
)

// Frame types read from the socket.
const (
	TypeHello         = "hello"
	TypeMessage       = "message"
	TypeChannelJoined = "channel_joined"
	TypeTeamJoin      = "team_join"
)

// apiResponse is the envelope every Web API method returns.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// startResponse is the rtm.start payload: the socket URL and the session
// roster.
type startResponse struct {
	apiResponse
	URL      string        `json:"url"`
	Self     entity        `json:"self"`
	Channels []channelInfo `json:"channels"`
	Users    []entity      `json:"users"`
	IMs      []imInfo      `json:"ims"`
}

type entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type channelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMember bool   `json:"is_member"`
}

type imInfo struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (s *startResponse) roster() *domain.Roster {
	r := &domain.Roster{Self: domain.Entry{ID: s.Self.ID, Name: s.Self.Name}}
	for _, c := range s.Channels {
		r.Channels = append(r.Channels, domain.Entry{ID: c.ID, Name: c.Name})
	}
	for _, u := range s.Users {
		r.Users = append(r.Users, domain.Entry{ID: u.ID, Name: u.Name})
	}
	for _, im := range s.IMs {
		r.Direct = append(r.Direct, domain.DirectEntry{UserID: im.User, ChannelID: im.ID})
	}
	return r
}

// frame is one inbound socket message. Channel and User are either an id
// string or an object, depending on the frame type.
type frame struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Channel json.RawMessage `json:"channel,omitempty"`
	User    json.RawMessage `json:"user,omitempty"`
	Text    string          `json:"text,omitempty"`
	TS      string          `json:"ts,omitempty"`
	BotID   string          `json:"bot_id,omitempty"`

	ReplyTo *int64      `json:"reply_to,omitempty"`
	OK      *bool       `json:"ok,omitempty"`
	Error   *frameError `json:"error,omitempty"`
}

type frameError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// outbound is a message written to the socket. Every outbound frame
// carries a fresh id that the server echoes in reply_to.
type outbound struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Channel     string `json:"channel,omitempty"`
	Text        string `json:"text,omitempty"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// ref decodes a field holding either an id string or an {id, name} object.
func ref(raw json.RawMessage) entity {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return entity{}
	}
	if raw[0] == '"' {
		var id string
		_ = json.Unmarshal(raw, &id)
		return entity{ID: id}
	}
	var e entity
	_ = json.Unmarshal(raw, &e)
	return e
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
		frac = (frac + "000000000")[:9]
		nanos, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, nanos)
}

// event converts a frame to a dispatch event. Edits, bot posts and other
// message subtypes are dropped.
func (f *frame) event() (domain.DispatchEvent, bool) {
	switch f.Type {
	case TypeHello:
		return domain.DispatchEvent{Kind: domain.EventConnected, Timestamp: time.Now()}, true

	case TypeMessage:
		if f.Subtype != "" && f.Subtype != "me_message" {
			return domain.DispatchEvent{}, false
		}
		user, channel := ref(f.User), ref(f.Channel)
		if user.ID == "" || channel.ID == "" || f.BotID != "" {
			return domain.DispatchEvent{}, false
		}
		ts := parseTS(f.TS)
		if ts.IsZero() {
			ts = time.Now()
		}
		return domain.DispatchEvent{
			Kind:      domain.EventMessage,
			UserID:    user.ID,
			ChannelID: channel.ID,
			Direct:    strings.HasPrefix(channel.ID, "D"),
			Text:      f.Text,
			Timestamp: ts,
			Ref:       domain.MessageRef{ChannelID: channel.ID, ID: f.TS},
			Raw:       f,
		}, true

	case TypeChannelJoined:
		ch := ref(f.Channel)
		if ch.ID == "" {
			return domain.DispatchEvent{}, false
		}
		return domain.DispatchEvent{Kind: domain.EventChannelJoined, Channel: ch.Name, ChannelID: ch.ID, Timestamp: time.Now()}, true

	case TypeTeamJoin:
		u := ref(f.User)
		if u.ID == "" {
			return domain.DispatchEvent{}, false
		}
		return domain.DispatchEvent{Kind: domain.EventUserJoined, User: u.Name, UserID: u.ID, Timestamp: time.Now()}, true
	}
	return domain.DispatchEvent{}, false
}
