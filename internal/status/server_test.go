package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/soyeahso/dankbot/internal/plugin"
	"github.com/soyeahso/dankbot/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ st supervisor.Status }

func (f fakeConn) Status() supervisor.Status { return f.st }

type fakePlugins []plugin.PluginInfo

func (f fakePlugins) Info() []plugin.PluginInfo { return f }

type fakeHistory struct {
	n   int
	err error
}

func (f fakeHistory) Count(context.Context) (int, error) { return f.n, f.err }

func noop(context.Context, *command.Invocation) (action.Result, error) { return nil, nil }

func testServer(t *testing.T, state supervisor.State, opts ...Option) *Server {
	t.Helper()
	log := logging.New(nil, "silent")
	reg := command.NewRegistry("dankbot", log)
	require.NoError(t, reg.Register(command.Command{
		Name:    "poll",
		Grammar: grammar.Seq(grammar.Caseless("poll"), grammar.Tail()),
		Help:    "Start a poll.",
		Handler: noop,
	}))
	require.NoError(t, reg.Register(command.Command{
		Name:     "reaction_monitor",
		Channels: []string{"general"},
		Handler:  noop,
	}))
	conn := fakeConn{st: supervisor.Status{Transport: "rtm", State: state.String(), Connects: 2}}
	return New("127.0.0.1:0", conn, reg, log, opts...)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, testServer(t, supervisor.StateConnected), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthResponse{Status: "ok", State: "connected"}, body)
}

func TestHealth_Disconnected(t *testing.T) {
	rec := get(t, testServer(t, supervisor.StateConnecting), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestRequestID_Echoed(t *testing.T) {
	s := testServer(t, supervisor.StateConnected)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestStatus(t *testing.T) {
	s := testServer(t, supervisor.StateConnected,
		WithPlugins(fakePlugins{{ID: "poll", Active: true}, {ID: "quote"}}),
		WithHistory(fakeHistory{n: 42}),
	)
	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Version    string            `json:"version"`
		Connection supervisor.Status `json:"connection"`
		Commands   int               `json:"commands"`
		Plugins    int               `json:"plugins"`
		Messages   *int              `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	assert.Equal(t, "rtm", body.Connection.Transport)
	assert.Equal(t, int64(2), body.Connection.Connects)
	assert.Equal(t, 2, body.Commands)
	assert.Equal(t, 2, body.Plugins)
	require.NotNil(t, body.Messages)
	assert.Equal(t, 42, *body.Messages)
}

func TestStatus_HistoryError(t *testing.T) {
	s := testServer(t, supervisor.StateConnected, WithHistory(fakeHistory{err: errors.New("locked")}))
	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "messages")
}

func TestCommands(t *testing.T) {
	rec := get(t, testServer(t, supervisor.StateConnected), "/commands")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []CommandInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Equal(t, []CommandInfo{
		{Name: "poll", Help: "Start a poll."},
		{Name: "reaction_monitor", Unfiltered: true, Channels: []string{"general"}},
	}, infos)
}

func TestCommand_ByName(t *testing.T) {
	s := testServer(t, supervisor.StateConnected)

	rec := get(t, s, "/commands/poll")
	require.Equal(t, http.StatusOK, rec.Code)
	var info CommandInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "poll", info.Name)

	rec = get(t, s, "/commands/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlugins(t *testing.T) {
	rec := get(t, testServer(t, supervisor.StateConnected), "/plugins")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s := testServer(t, supervisor.StateConnected, WithPlugins(fakePlugins{{ID: "binder", Name: "Binder", Version: "1.0.0", Active: true}}))
	rec = get(t, s, "/plugins")
	var infos []plugin.PluginInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "binder", infos[0].ID)
	assert.True(t, infos[0].Active)
}

func TestNotFound(t *testing.T) {
	rec := get(t, testServer(t, supervisor.StateConnected), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/nope"`)
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer(t, supervisor.StateConnected)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := testServer(t, supervisor.StateConnected)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
