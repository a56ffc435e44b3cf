package plugin

import (
	"context"
	"testing"

	"github.com/soyeahso/dankbot/internal/action"
	"github.com/soyeahso/dankbot/internal/command"
	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/grammar"
	"github.com/soyeahso/dankbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct {
	id         string
	name       string
	version    string
	initErr    error
	closeErr   error
	initCalls  int
	closeCalls int
	api        API
}

func (p *testPlugin) ID() string      { return p.id }
func (p *testPlugin) Name() string    { return p.name }
func (p *testPlugin) Version() string { return p.version }
func (p *testPlugin) Init(_ context.Context, api API) error {
	p.initCalls++
	p.api = api
	return p.initErr
}
func (p *testPlugin) Close() error {
	p.closeCalls++
	return p.closeErr
}

func testEnv() Env {
	log := logging.New(nil, "silent")
	return Env{
		Commands: command.NewRegistry("dankbot", log),
		Admins:   []string{"alice"},
		Features: map[string]config.FeatureConfig{
			"off":  {Disabled: true},
			"some": {Channels: []string{"general"}},
		},
	}
}

func testRegistry() *Registry {
	return NewRegistry(testEnv(), logging.New(nil, "silent"))
}

func TestRegistry_Register(t *testing.T) {
	reg := testRegistry()
	p := &testPlugin{id: "test", name: "Test Plugin", version: "1.0"}

	require.NoError(t, reg.Register(p))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := testRegistry()
	p := &testPlugin{id: "test", name: "Test", version: "1.0"}

	require.NoError(t, reg.Register(p))
	err := reg.Register(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_GetAndList(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "a", name: "A", version: "1"}))
	require.NoError(t, reg.Register(&testPlugin{id: "b", name: "B", version: "1"}))

	assert.Equal(t, "a", reg.Get("a").ID())
	assert.Nil(t, reg.Get("nonexistent"))
	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestRegistry_InitAll(t *testing.T) {
	reg := testRegistry()
	p1 := &testPlugin{id: "a", name: "A", version: "1"}
	p2 := &testPlugin{id: "some", name: "Some", version: "1"}
	require.NoError(t, reg.Register(p1))
	require.NoError(t, reg.Register(p2))

	require.NoError(t, reg.InitAll(context.Background()))
	assert.Equal(t, 1, p1.initCalls)
	assert.Equal(t, 1, p2.initCalls)
	assert.Nil(t, p1.api.Channels())
	assert.Equal(t, []string{"general"}, p2.api.Channels())
	assert.True(t, p2.api.IsAdmin("alice"))
	assert.False(t, p2.api.IsAdmin("bob"))
}

func TestRegistry_InitAll_SkipsDisabled(t *testing.T) {
	reg := testRegistry()
	p := &testPlugin{id: "off", name: "Off", version: "1"}
	require.NoError(t, reg.Register(p))

	require.NoError(t, reg.InitAll(context.Background()))
	assert.Zero(t, p.initCalls)

	reg.CloseAll()
	assert.Zero(t, p.closeCalls, "disabled plugins are not closed")
	assert.False(t, reg.Info()[0].Active)
}

func TestRegistry_InitAll_Error(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "bad", name: "Bad", version: "1", initErr: assert.AnError}))

	err := reg.InitAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "bad")
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := testRegistry()
	p1 := &testPlugin{id: "a", name: "A", version: "1"}
	p2 := &testPlugin{id: "b", name: "B", version: "1", closeErr: assert.AnError}
	require.NoError(t, reg.Register(p1))
	require.NoError(t, reg.Register(p2))
	require.NoError(t, reg.InitAll(context.Background()))

	reg.CloseAll()
	assert.Equal(t, 1, p1.closeCalls)
	assert.Equal(t, 1, p2.closeCalls)

	reg.CloseAll()
	assert.Equal(t, 1, p1.closeCalls, "second close is a no-op")
}

func TestRegistry_Info(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "x", name: "Plugin X", version: "2.0"}))
	require.NoError(t, reg.InitAll(context.Background()))

	infos := reg.Info()
	require.Len(t, infos, 1)
	assert.Equal(t, PluginInfo{ID: "x", Name: "Plugin X", Version: "2.0", Active: true}, infos[0])
}

func TestAPI_RegisterAppliesChannels(t *testing.T) {
	env := testEnv()
	api := API{Env: env, Config: config.FeatureConfig{Channels: []string{"general"}}}
	noop := func(context.Context, *command.Invocation) (action.Result, error) { return nil, nil }

	require.NoError(t, api.Register(command.Command{Name: "ping", Grammar: grammar.Caseless("ping"), Handler: noop}))
	require.NoError(t, api.Register(command.Command{Name: "pong", Grammar: grammar.Caseless("pong"), Channels: []string{"random"}, Handler: noop}))

	ping, ok := env.Commands.Lookup("ping")
	require.True(t, ok)
	assert.Equal(t, []string{"general"}, ping.Channels)

	pong, ok := env.Commands.Lookup("pong")
	require.True(t, ok)
	assert.Equal(t, []string{"random"}, pong.Channels)
}
