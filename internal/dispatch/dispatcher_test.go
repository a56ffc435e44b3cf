package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/directory"
	"github.com/soyeahso/dankbot/internal/domain"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/hooks"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/reaction"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

type sentMessage struct {
	channelID string
	text      string
}

type fakeOutbound struct {
	sent    []sentMessage
	sendErr error
}

func (f *fakeOutbound) Send(_ context.Context, channelID, text string) (domain.MessageRef, error) {
	if f.sendErr != nil {
		return domain.MessageRef{}, f.sendErr
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, text: text})
	return domain.MessageRef{ChannelID: channelID, ID: fmt.Sprint(len(f.sent))}, nil
}

func (f *fakeOutbound) Upload(context.Context, string, string) error { return nil }

func (f *fakeOutbound) React(context.Context, domain.MessageRef, string) error { return nil }

func (f *fakeOutbound) OpenDirect(_ context.Context, userID string) (string, error) {
	return "D-" + userID, nil
}

func (f *fakeOutbound) MaxMessageLength() int { return 4000 }

func (f *fakeOutbound) texts() []string {
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.text)
	}
	return out
}

type fakeHistory struct {
	stored []domain.HistoryRecord
}

func (f *fakeHistory) Store(_ context.Context, rec domain.HistoryRecord) error {
	f.stored = append(f.stored, rec)
	return nil
}

type harness struct {
	out      *fakeOutbound
	history  *fakeHistory
	commands *command.Registry
	dir      *directory.Directory
	hooks    *hooks.Manager
	d        *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := testLogger()
	h := &harness{
		out:      &fakeOutbound{},
		history:  &fakeHistory{},
		commands: command.NewRegistry("!", log),
		dir:      directory.New(log),
		hooks:    hooks.NewManager(log),
	}
	t.Cleanup(h.hooks.Close)
	h.dir.Load(&domain.Roster{
		Self:     domain.Entry{ID: "UBOT", Name: "dankbot"},
		Channels: []domain.Entry{{ID: "C1", Name: "general"}, {ID: "C2", Name: "random"}, {ID: "C3", Name: "offtopic"}},
		Users:    []domain.Entry{{ID: "U1", Name: "alice"}, {ID: "U2", Name: "bob"}},
		Direct:   []domain.DirectEntry{{UserID: "U1", ChannelID: "D1"}},
	})
	exec := action.NewExecutor(h.out, h.dir, nil, reaction.NewTable(), h.hooks, action.Options{}, log)
	h.d = New(h.commands, exec, h.dir, h.history, h.hooks, []string{"bob"}, log)
	return h
}

func channelMessage(channelID, userID, text string) domain.DispatchEvent {
	return domain.DispatchEvent{
		Kind:      domain.EventMessage,
		UserID:    userID,
		ChannelID: channelID,
		Text:      text,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Ref:       domain.MessageRef{ChannelID: channelID, ID: "1714564800.000100"},
	}
}

func directMessage(userID, text string) domain.DispatchEvent {
	ev := channelMessage("D1", userID, text)
	ev.Direct = true
	return ev
}

func (h *harness) dispatch(t *testing.T, ev domain.DispatchEvent) {
	t.Helper()
	require.NoError(t, h.d.Dispatch(context.Background(), ev))
}

func echoCommand(name string, called *int) command.Command {
	return command.Command{
		Name:    name,
		Grammar: grammar.Seq(grammar.Caseless(name), grammar.Named("text", grammar.Tail())),
		Help:    "Echo " + name,
		Handler: func(_ context.Context, inv *command.Invocation) (action.Result, error) {
			*called++
			return action.Reply(inv.Captures.Get("text")), nil
		},
	}
}

func TestDispatch_MatchedCommand(t *testing.T) {
	h := newHarness(t)
	var called int
	require.NoError(t, h.commands.Register(echoCommand("echo", &called)))

	h.dispatch(t, channelMessage("C1", "U1", "!echo hello world"))

	assert.Equal(t, 1, called)
	assert.Equal(t, []sentMessage{{channelID: "C1", text: "hello world"}}, h.out.sent)
	assert.Empty(t, h.history.stored, "addressed messages are not stored")
}

func TestDispatch_AddressedNoMatchInChannelIsSilent(t *testing.T) {
	h := newHarness(t)
	var unfiltered int
	require.NoError(t, h.commands.Register(command.Command{
		Name: "monitor",
		Handler: func(context.Context, *command.Invocation) (action.Result, error) {
			unfiltered++
			return nil, nil
		},
	}))

	h.dispatch(t, channelMessage("C1", "U1", "!nothing here"))

	assert.Empty(t, h.out.sent)
	assert.Zero(t, unfiltered)
	assert.Empty(t, h.history.stored)
}

func TestDispatch_AdminGate(t *testing.T) {
	h := newHarness(t)
	var called int
	cmd := echoCommand("shutdown", &called)
	cmd.Admin = true
	require.NoError(t, h.commands.Register(cmd))

	h.dispatch(t, channelMessage("C1", "U1", "!shutdown now"))
	assert.Zero(t, called, "non-admin never reaches the handler")
	assert.Equal(t, []sentMessage{{channelID: "C1", text: command.AdminOnlyText}}, h.out.sent)

	h.dispatch(t, channelMessage("C1", "U2", "!shutdown now"))
	assert.Equal(t, 1, called)
}

func TestDispatch_ChannelGate(t *testing.T) {
	h := newHarness(t)
	var filtered, unfiltered int
	cmd := echoCommand("echo", &filtered)
	cmd.Channels = []string{"general", "random"}
	require.NoError(t, h.commands.Register(cmd))
	require.NoError(t, h.commands.Register(command.Command{
		Name:     "monitor",
		Channels: []string{"general", "random"},
		Handler: func(context.Context, *command.Invocation) (action.Result, error) {
			unfiltered++
			return nil, nil
		},
	}))

	h.dispatch(t, channelMessage("C3", "U1", "!echo hi"))
	h.dispatch(t, channelMessage("C3", "U1", "just chatting"))
	assert.Zero(t, filtered)
	assert.Zero(t, unfiltered)

	h.dispatch(t, channelMessage("C2", "U1", "!echo hi"))
	h.dispatch(t, channelMessage("C2", "U1", "just chatting"))
	assert.Equal(t, 1, filtered)
	assert.Equal(t, 1, unfiltered)

	// Direct messages are always allowed.
	h.dispatch(t, directMessage("U1", "echo dm"))
	assert.Equal(t, 2, filtered)
}

func TestDispatch_UnaddressedRunsUnfilteredThenStores(t *testing.T) {
	h := newHarness(t)
	var seen []string
	require.NoError(t, h.commands.Register(command.Command{
		Name: "monitor",
		Handler: func(_ context.Context, inv *command.Invocation) (action.Result, error) {
			seen = append(seen, inv.User+"@"+inv.Channel+": "+inv.Text)
			assert.True(t, inv.Timestamp.IsZero())
			return action.React{Emoji: "eyes"}, nil
		},
	}))

	h.dispatch(t, channelMessage("C1", "U1", "hello there"))

	assert.Equal(t, []string{"alice@general: hello there"}, seen)
	require.Len(t, h.history.stored, 1)
	assert.Equal(t, domain.HistoryRecord{
		Channel:   "general",
		User:      "alice",
		Text:      "hello there",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, h.history.stored[0])
}

func TestDispatch_OwnMessagesIgnored(t *testing.T) {
	h := newHarness(t)
	var called int
	require.NoError(t, h.commands.Register(echoCommand("echo", &called)))

	h.dispatch(t, channelMessage("C1", "UBOT", "!echo loop"))
	h.dispatch(t, channelMessage("C1", "UBOT", "chatter"))

	assert.Zero(t, called)
	assert.Empty(t, h.history.stored)
}

func TestDispatch_DirectMessageHelp(t *testing.T) {
	h := newHarness(t)
	var n int
	require.NoError(t, h.commands.Register(echoCommand("echo", &n)))
	require.NoError(t, h.commands.Register(echoCommand("quote", &n)))
	admin := echoCommand("shutdown", &n)
	admin.Admin = true
	require.NoError(t, h.commands.Register(admin))

	_, _, ok := h.commands.Parse("totally-unknown-text", true)
	require.False(t, ok)

	h.dispatch(t, directMessage("U1", "totally-unknown-text"))

	require.Len(t, h.out.sent, 1)
	assert.Equal(t, "D1", h.out.sent[0].channelID)
	help := h.out.sent[0].text
	assert.Contains(t, help, "Echo echo")
	assert.Contains(t, help, "Echo quote")
	assert.NotContains(t, help, "Echo shutdown")
	assert.Contains(t, help, "Allowed channels: All")
	assert.Zero(t, n)
}

func TestDispatch_DirectMessageHelpForAdmin(t *testing.T) {
	h := newHarness(t)
	var n int
	admin := echoCommand("shutdown", &n)
	admin.Admin = true
	require.NoError(t, h.commands.Register(admin))

	ev := channelMessage("D2", "U2", "what")
	ev.Direct = true
	h.dispatch(t, ev)

	require.Len(t, h.out.sent, 1)
	assert.Contains(t, h.out.sent[0].text, "Echo shutdown")
}

func TestDispatch_BindScenario(t *testing.T) {
	h := newHarness(t)
	keys := grammar.NewAlternation()
	binds := map[string]string{}

	require.NoError(t, h.commands.Register(command.Command{
		Name:    "bind",
		Grammar: grammar.Seq(grammar.Caseless("bind"), grammar.Named("key", grammar.Word(grammar.Alphanums)), grammar.Named("text", grammar.Tail())),
		Handler: func(_ context.Context, inv *command.Invocation) (action.Result, error) {
			key := inv.Captures.Get("key")
			binds[key] = inv.Captures.Get("text")
			keys.Add(key)
			return nil, nil
		},
	}))
	require.NoError(t, h.commands.Register(command.Command{
		Name:     "print_bind",
		Grammar:  grammar.Seq(grammar.Named("key", keys), grammar.End()),
		Priority: -1,
		Handler: func(_ context.Context, inv *command.Invocation) (action.Result, error) {
			return action.Reply(binds[inv.Captures.Get("key")]), nil
		},
	}))

	name, _, ok := h.commands.Parse("!bind foo bar", false)
	require.True(t, ok)
	assert.Equal(t, "bind", name)

	h.dispatch(t, channelMessage("C1", "U1", "!bind foo bar"))

	name, _, ok = h.commands.Parse("!foo", false)
	require.True(t, ok)
	assert.Equal(t, "print_bind", name)

	h.dispatch(t, channelMessage("C1", "U2", "!foo"))
	assert.Equal(t, []string{"bar"}, h.out.texts())
}

func TestDispatch_NeedsTimestamp(t *testing.T) {
	h := newHarness(t)
	var got time.Time
	require.NoError(t, h.commands.Register(command.Command{
		Name:           "when",
		Grammar:        grammar.Caseless("when"),
		NeedsTimestamp: true,
		Handler: func(_ context.Context, inv *command.Invocation) (action.Result, error) {
			got = inv.Timestamp
			return nil, nil
		},
	}))

	h.dispatch(t, channelMessage("C1", "U1", "!when"))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got)
}

func TestDispatch_HandlerFaultsDoNotStopTheLoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.commands.Register(command.Command{
		Name:    "panic",
		Grammar: grammar.Caseless("panic"),
		Handler: func(context.Context, *command.Invocation) (action.Result, error) {
			panic("boom")
		},
	}))
	require.NoError(t, h.commands.Register(command.Command{
		Name:    "fail",
		Grammar: grammar.Caseless("fail"),
		Handler: func(context.Context, *command.Invocation) (action.Result, error) {
			return action.Reply("partial"), errors.New("nope")
		},
	}))
	require.NoError(t, h.commands.Register(command.Command{
		Name:    "callback",
		Grammar: grammar.Caseless("callback"),
		Handler: func(context.Context, *command.Invocation) (action.Result, error) {
			return action.Send{Text: "sent", OnSent: func(*domain.DispatchEvent) (action.Result, error) {
				panic("callback boom")
			}}, nil
		},
	}))
	var called int
	require.NoError(t, h.commands.Register(echoCommand("echo", &called)))

	h.dispatch(t, channelMessage("C1", "U1", "!panic"))
	h.dispatch(t, channelMessage("C1", "U1", "!fail"))
	h.dispatch(t, channelMessage("C1", "U1", "!callback"))
	h.dispatch(t, channelMessage("C1", "U1", "!echo still alive"))

	assert.Equal(t, []string{"sent", "still alive"}, h.out.texts())
}

func TestDispatch_DisconnectPropagates(t *testing.T) {
	h := newHarness(t)
	var called int
	require.NoError(t, h.commands.Register(echoCommand("echo", &called)))
	h.out.sendErr = fmt.Errorf("write: %w", domain.ErrDisconnected)

	err := h.d.Dispatch(context.Background(), channelMessage("C1", "U1", "!echo hi"))
	assert.ErrorIs(t, err, domain.ErrDisconnected)
}

func TestDispatch_JoinEventsUpdateDirectory(t *testing.T) {
	h := newHarness(t)

	h.dispatch(t, domain.DispatchEvent{Kind: domain.EventChannelJoined, Channel: "new-room", ChannelID: "C9"})
	h.dispatch(t, domain.DispatchEvent{Kind: domain.EventUserJoined, User: "carol", UserID: "U9"})

	id, ok := h.dir.ChannelID("new-room")
	require.True(t, ok)
	assert.Equal(t, "C9", id)
	name, ok := h.dir.UserName("U9")
	require.True(t, ok)
	assert.Equal(t, "carol", name)
}

func TestDispatch_HooksEmitted(t *testing.T) {
	h := newHarness(t)
	var events []string
	for _, ev := range []string{hooks.EventMessageReceived, hooks.EventCommandMatched} {
		h.hooks.On(ev, "recorder", func(_ context.Context, p hooks.Payload) error {
			events = append(events, p.Event)
			return nil
		})
	}
	var called int
	require.NoError(t, h.commands.Register(echoCommand("echo", &called)))

	h.dispatch(t, channelMessage("C1", "U1", "!echo hi"))
	assert.Equal(t, []string{hooks.EventMessageReceived, hooks.EventCommandMatched}, events)
}

func TestDispatch_AlertIsCaseInsensitive(t *testing.T) {
	log := testLogger()
	h := newHarness(t)
	h.commands = command.NewRegistry("dankbot", log)
	exec := action.NewExecutor(h.out, h.dir, nil, reaction.NewTable(), nil, action.Options{}, log)
	h.d = New(h.commands, exec, h.dir, h.history, nil, nil, log)

	var called int
	require.NoError(t, h.commands.Register(echoCommand("echo", &called)))

	h.dispatch(t, channelMessage("C1", "U1", "  DankBot echo hi"))
	assert.Equal(t, 1, called)
	assert.True(t, strings.HasPrefix(h.out.texts()[0], "hi"))
}
