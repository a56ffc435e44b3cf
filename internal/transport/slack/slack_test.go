package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webAPI serves canned Web API replies and records the form of every call.
// {{URL}} in a reply is replaced with the server address. Multipart bodies
// record the uploaded file content under "file".
type webAPI struct {
	mu    sync.Mutex
	calls map[string]map[string]string
}

func newTransport(t *testing.T, replies map[string]string) (*Transport, *webAPI) {
	t.Helper()
	api := &webAPI{calls: make(map[string]map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form := make(map[string]string)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				if f, _, err := r.FormFile("file"); err == nil {
					b, _ := io.ReadAll(f)
					f.Close()
					form["file"] = string(b)
				}
			}
		} else {
			r.ParseForm()
		}
		method := r.URL.Path[1:]
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		api.mu.Lock()
		api.calls[method] = form
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		body, ok := replies[method]
		if !ok {
			body = `{"ok": false, "error": "unknown_method"}`
		}
		io.WriteString(w, strings.ReplaceAll(body, "{{URL}}", "http://"+r.Host))
	}))
	t.Cleanup(srv.Close)

	tr := New(config.SlackConfig{BotToken: "xoxb-test", AppToken: "xapp-test", APIURL: srv.URL}, logging.New(nil, "silent"))
	return tr, api
}

func (a *webAPI) form(method string) map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

func TestNew(t *testing.T) {
	tr := New(config.SlackConfig{BotToken: "xoxb-1"}, logging.New(nil, "silent"))
	assert.Equal(t, "slack", tr.ID())
	assert.Equal(t, MaxMessageLength, tr.MaxMessageLength())
}

func TestRoster(t *testing.T) {
	tr, _ := newTransport(t, map[string]string{
		"auth.test": `{"ok": true, "user_id": "U0", "user": "dankbot"}`,
		"conversations.list": `{"ok": true, "channels": [
			{"id": "C1", "name": "general", "is_member": true},
			{"id": "C2", "name": "elsewhere", "is_member": false},
			{"id": "D1", "is_im": true, "user": "U1"}
		], "response_metadata": {"next_cursor": ""}}`,
		"users.list": `{"ok": true, "members": [
			{"id": "U1", "name": "alice"},
			{"id": "U2", "name": "gone", "deleted": true}
		], "response_metadata": {"next_cursor": ""}}`,
	})

	r, err := tr.roster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Entry{ID: "U0", Name: "dankbot"}, r.Self)
	assert.Equal(t, []domain.Entry{{ID: "C1", Name: "general"}}, r.Channels)
	assert.Equal(t, []domain.Entry{{ID: "U1", Name: "alice"}}, r.Users)
	assert.Equal(t, []domain.DirectEntry{{UserID: "U1", ChannelID: "D1"}}, r.Direct)
}

func TestRoster_AuthFailure(t *testing.T) {
	tr, _ := newTransport(t, map[string]string{
		"auth.test": `{"ok": false, "error": "invalid_auth"}`,
	})
	_, err := tr.roster(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_auth")
}

func TestSend(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"chat.postMessage": `{"ok": true, "channel": "C1", "ts": "1700000000.000100"}`,
	})

	ref, err := tr.Send(context.Background(), "C1", "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRef{ChannelID: "C1", ID: "1700000000.000100"}, ref)
	assert.Equal(t, "C1", api.form("chat.postMessage")["channel"])
	assert.Equal(t, "hello", api.form("chat.postMessage")["text"])
}

func TestSend_Error(t *testing.T) {
	tr, _ := newTransport(t, map[string]string{
		"chat.postMessage": `{"ok": false, "error": "channel_not_found"}`,
	})
	_, err := tr.Send(context.Background(), "C404", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestReact(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"reactions.add": `{"ok": true}`,
	})

	require.NoError(t, tr.React(context.Background(), domain.MessageRef{ChannelID: "C1", ID: "1.5"}, ":tada:"))
	form := api.form("reactions.add")
	assert.Equal(t, "tada", form["name"])
	assert.Equal(t, "C1", form["channel"])
	assert.Equal(t, "1.5", form["timestamp"])
}

func TestOpenDirect(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"conversations.open": `{"ok": true, "channel": {"id": "D9"}}`,
	})

	id, err := tr.OpenDirect(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "D9", id)
	assert.Equal(t, "U1", api.form("conversations.open")["users"])
}

func TestUpload(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"files.getUploadURLExternal":   `{"ok": true, "upload_url": "{{URL}}/upload", "file_id": "F1"}`,
		"upload":                       `OK`,
		"files.completeUploadExternal": `{"ok": true, "files": [{"id": "F1", "title": "chart.png"}]}`,
	})
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))

	require.NoError(t, tr.Upload(context.Background(), "C1", path))

	get := api.form("files.getUploadURLExternal")
	assert.Equal(t, "chart.png", get["filename"])
	assert.Equal(t, "9", get["length"])
	assert.Equal(t, "png bytes", api.form("upload")["file"])
	complete := api.form("files.completeUploadExternal")
	assert.Equal(t, "C1", complete["channel_id"])
	assert.Contains(t, complete["files"], `"id":"F1"`)
}

func TestUpload_MissingFile(t *testing.T) {
	tr, api := newTransport(t, nil)
	err := tr.Upload(context.Background(), "C1", filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, api.form("files.getUploadURLExternal"))
}

func TestUpload_Rejected(t *testing.T) {
	tr, _ := newTransport(t, map[string]string{
		"files.getUploadURLExternal": `{"ok": false, "error": "not_allowed"}`,
	})
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := tr.Upload(context.Background(), "C1", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_allowed")
}

func TestDescribe_ChannelJoined(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"conversations.info": `{"ok": true, "channel": {"id": "C5", "name": "random"}}`,
	})
	ev, ok := convert("U0", &slackevents.MemberJoinedChannelEvent{User: "U0", Channel: "C5"})
	require.True(t, ok)

	tr.describe(context.Background(), &ev)
	assert.Equal(t, "random", ev.Channel)
	assert.Equal(t, "C5", ev.ChannelID)
	assert.Equal(t, "C5", api.form("conversations.info")["channel"])
}

func TestDescribe_UserJoined(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"users.info": `{"ok": true, "user": {"id": "U2", "name": "bob"}}`,
	})
	ev, ok := convert("U0", &slackevents.MemberJoinedChannelEvent{User: "U2", Channel: "C1"})
	require.True(t, ok)

	tr.describe(context.Background(), &ev)
	assert.Equal(t, "bob", ev.User)
	assert.Equal(t, "U2", api.form("users.info")["user"])
}

func TestDescribe_LookupFailureKeepsEvent(t *testing.T) {
	tr, _ := newTransport(t, map[string]string{
		"users.info": `{"ok": false, "error": "user_not_found"}`,
	})
	ev := domain.DispatchEvent{Kind: domain.EventUserJoined, UserID: "U9"}
	tr.describe(context.Background(), &ev)
	assert.Empty(t, ev.User)
	assert.Equal(t, "U9", ev.UserID)
}

func TestDescribe_NamedEventUntouched(t *testing.T) {
	tr, api := newTransport(t, nil)
	ev := domain.DispatchEvent{Kind: domain.EventUserJoined, User: "carol", UserID: "U3"}
	tr.describe(context.Background(), &ev)
	assert.Equal(t, "carol", ev.User)
	assert.Nil(t, api.form("users.info"))
}

func TestHistoryPage(t *testing.T) {
	tr, api := newTransport(t, map[string]string{
		"conversations.history": `{"ok": true, "messages": [
			{"type": "message", "user": "U1", "text": "first", "ts": "1700000000.000100"},
			{"type": "message", "user": "U2", "text": "bot post", "ts": "1700000001.000100", "bot_id": "B1"},
			{"type": "message", "user": "U1", "text": "", "ts": "1700000002.000100", "subtype": "channel_join"}
		], "has_more": true, "response_metadata": {"next_cursor": "page2"}}`,
	})

	page, err := tr.HistoryPage(context.Background(), "C1", "page1")
	require.NoError(t, err)
	assert.Equal(t, "page2", page.Next)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "first", page.Messages[0].Text)
	assert.Equal(t, "U1", page.Messages[0].UserID)
	assert.Equal(t, "C1", page.Messages[0].ChannelID)
	assert.Equal(t, time.Unix(1700000000, 100000), page.Messages[0].Timestamp)

	form := api.form("conversations.history")
	assert.Equal(t, "C1", form["channel"])
	assert.Equal(t, "page1", form["cursor"])
	assert.Equal(t, "200", form["limit"])
}

func TestHistoryPage_Error(t *testing.T) {
	tr, _ := newTransport(t, map[string]string{
		"conversations.history": `{"ok": false, "error": "channel_not_found"}`,
	})
	_, err := tr.HistoryPage(context.Background(), "C404", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestNotConnected(t *testing.T) {
	tr, _ := newTransport(t, nil)
	_, err := tr.Receive(context.Background())
	assert.ErrorIs(t, err, domain.ErrDisconnected)
	assert.NoError(t, tr.Close())
}

func TestConvert_Message(t *testing.T) {
	ev, ok := convert("U0", &slackevents.MessageEvent{
		User:        "U1",
		Channel:     "C1",
		ChannelType: "channel",
		Text:        "dankbot poll a, b",
		TimeStamp:   "1700000000.000100",
	})
	require.True(t, ok)
	assert.Equal(t, domain.EventMessage, ev.Kind)
	assert.Equal(t, "U1", ev.UserID)
	assert.Equal(t, "C1", ev.ChannelID)
	assert.False(t, ev.Direct)
	assert.Equal(t, "dankbot poll a, b", ev.Text)
	assert.Equal(t, time.Unix(1700000000, 100000), ev.Timestamp)
	assert.Equal(t, domain.MessageRef{ChannelID: "C1", ID: "1700000000.000100"}, ev.Ref)
}

func TestConvert_Direct(t *testing.T) {
	ev, ok := convert("U0", &slackevents.MessageEvent{User: "U1", Channel: "D1", ChannelType: "im", Text: "hi", TimeStamp: "1.0"})
	require.True(t, ok)
	assert.True(t, ev.Direct)
}

func TestConvert_Skipped(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"own message", &slackevents.MessageEvent{User: "U0", Channel: "C1", Text: "x"}},
		{"bot", &slackevents.MessageEvent{User: "U1", BotID: "B1", Channel: "C1", Text: "x"}},
		{"edit", &slackevents.MessageEvent{User: "U1", Channel: "C1", SubType: "message_changed"}},
		{"no user", &slackevents.MessageEvent{Channel: "C1", Text: "x"}},
		{"unrelated", &slackevents.AppMentionEvent{User: "U1", Channel: "C1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := convert("U0", tt.data)
			assert.False(t, ok)
		})
	}
}

func TestConvert_MeMessage(t *testing.T) {
	_, ok := convert("U0", &slackevents.MessageEvent{User: "U1", Channel: "C1", SubType: "me_message", Text: "waves"})
	assert.True(t, ok)
}

func TestConvert_MemberJoined(t *testing.T) {
	ev, ok := convert("U0", &slackevents.MemberJoinedChannelEvent{User: "U0", Channel: "C5"})
	require.True(t, ok)
	assert.Equal(t, domain.EventChannelJoined, ev.Kind)
	assert.Equal(t, "C5", ev.ChannelID)

	ev, ok = convert("U0", &slackevents.MemberJoinedChannelEvent{User: "U2", Channel: "C1"})
	require.True(t, ok)
	assert.Equal(t, domain.EventUserJoined, ev.Kind)
	assert.Equal(t, "U2", ev.UserID)
}

func TestConvert_TeamJoin(t *testing.T) {
	ev, ok := convert("U0", &slackevents.TeamJoinEvent{User: &slack.User{ID: "U7", Name: "dave"}})
	require.True(t, ok)
	assert.Equal(t, domain.EventUserJoined, ev.Kind)
	assert.Equal(t, "U7", ev.UserID)
	assert.Equal(t, "dave", ev.User)

	_, ok = convert("U0", &slackevents.TeamJoinEvent{})
	assert.False(t, ok)
}

func TestParseTS(t *testing.T) {
	assert.Equal(t, time.Unix(12, 500000000), parseTS("12.5"))
	assert.True(t, parseTS("").IsZero())
}
