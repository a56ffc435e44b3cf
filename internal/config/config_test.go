package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "dankbot", cfg.Bot.Name)
	assert.Equal(t, "dankbot", cfg.Bot.Alert)
	assert.Equal(t, "rtm", cfg.Transport)
	assert.Equal(t, DefaultRTMURL, cfg.RTM.URL)
	assert.Equal(t, time.Second, cfg.Supervisor.InitialBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Supervisor.MaxBackoff)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Style)
	assert.False(t, cfg.Status.Enabled)
	assert.Equal(t, DefaultStatusAddr, cfg.Status.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	yaml := `
bot:
  name: memebot
  alert: "memebot:"
  admins: [alice, bob]
  maxCallbackDepth: 8
  announce:
    - channel: general
      text: back online
transport: irc
irc:
  server: irc.libera.chat
  port: 6697
  nick: memebot
  channels: ["#general", "#dev"]
  useTLS: true
supervisor:
  initialBackoff: 500ms
  maxBackoff: 30s
  sendRate: 1.5
logging:
  level: debug
  style: json
hooks:
  connected:
    - command: notify-send up
      timeout: 2000
status:
  enabled: true
  addr: 127.0.0.1:9000
features:
  quote:
    channels: [general]
  poll:
    disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memebot", cfg.Bot.Name)
	assert.Equal(t, "memebot:", cfg.Bot.Alert)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Bot.Admins)
	assert.Equal(t, 8, cfg.Bot.MaxCallbackDepth)
	assert.Equal(t, []AnnounceEntry{{Channel: "general", Text: "back online"}}, cfg.Bot.Announce)
	assert.Equal(t, "irc", cfg.Transport)
	assert.Equal(t, "irc.libera.chat", cfg.IRC.Server)
	assert.Equal(t, 6697, cfg.IRC.Port)
	assert.Equal(t, []string{"#general", "#dev"}, cfg.IRC.Channels)
	assert.True(t, cfg.IRC.UseTLS)
	assert.Equal(t, 500*time.Millisecond, cfg.Supervisor.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Supervisor.MaxBackoff)
	assert.Equal(t, 1.5, cfg.Supervisor.SendRate)
	assert.Equal(t, 1, cfg.Supervisor.SendBurst)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Style)
	require.Len(t, cfg.Hooks.Connected, 1)
	assert.Equal(t, 2000, cfg.Hooks.Connected[0].Timeout)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Status.Addr)
	assert.Equal(t, []string{"general"}, cfg.Features.Quote.Channels)
	assert.True(t, cfg.Features.Poll.Disabled)
	assert.False(t, cfg.Features.Binder.Disabled)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DANKBOT_TRANSPORT", "slack")
	t.Setenv("DANKBOT_BOT_ALERT", "!")
	t.Setenv("DANKBOT_BOT_ADMINS", "alice,carol")
	t.Setenv("DANKBOT_SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("DANKBOT_SUPERVISOR_MAX_BACKOFF", "1m")
	t.Setenv("DANKBOT_LOG_LEVEL", "TRACE")
	t.Setenv("DANKBOT_STORE_PATH", "/tmp/bot.db")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "slack", cfg.Transport)
	assert.Equal(t, "!", cfg.Bot.Alert)
	assert.Equal(t, []string{"alice", "carol"}, cfg.Bot.Admins)
	assert.Equal(t, "xoxb-env", cfg.Slack.BotToken)
	assert.Equal(t, time.Minute, cfg.Supervisor.MaxBackoff)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "/tmp/bot.db", cfg.Store.Path)
}

func TestLoadEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("DANKBOT_IRC_PORT", "not-a-number")

	_, err := Load("/nonexistent/config.yaml")
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "invalid environment override")
}

func TestLoadExpandsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("MY_RTM_TOKEN", "xoxb-secret")
	yaml := "rtm:\n  token: ${MY_RTM_TOKEN}\nirc:\n  password: ${UNSET_DANKBOT_VAR}\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-secret", cfg.RTM.Token)
	assert.Equal(t, "${UNSET_DANKBOT_VAR}", cfg.IRC.Password)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DANKBOT_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("DANKBOT_TEST_DOTENV", "")
	os.Unsetenv("DANKBOT_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("DANKBOT_TEST_DOTENV"))

	// Existing values win.
	t.Setenv("DANKBOT_TEST_DOTENV", "from-env")
	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from-env", os.Getenv("DANKBOT_TEST_DOTENV"))
}

func TestLoadDotEnv_NoFiles(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := map[string]any{"bot": map[string]any{"alert": "!"}}
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"bot", "alert"})
	assert.True(t, ok)
	assert.Equal(t, "!", val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "!", cfg.Bot.Alert)
}

func TestLoadRaw_Missing(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}
