package config

import "time"

// Config is the root configuration for dankbot. Environment variables
// prefixed with DANKBOT_ override file values.
type Config struct {
	Bot        BotConfig        `yaml:"bot,omitempty" envPrefix:"BOT_"`
	Transport  string           `yaml:"transport,omitempty" env:"TRANSPORT"` // "rtm" | "slack" | "irc"
	RTM        RTMConfig        `yaml:"rtm,omitempty" envPrefix:"RTM_"`
	Slack      SlackConfig      `yaml:"slack,omitempty" envPrefix:"SLACK_"`
	IRC        IRCConfig        `yaml:"irc,omitempty" envPrefix:"IRC_"`
	Supervisor SupervisorConfig `yaml:"supervisor,omitempty" envPrefix:"SUPERVISOR_"`
	Store      StoreConfig      `yaml:"store,omitempty" envPrefix:"STORE_"`
	Logging    LoggingConfig    `yaml:"logging,omitempty" envPrefix:"LOG_"`
	Hooks      HooksConfig      `yaml:"hooks,omitempty"`
	Status     StatusConfig     `yaml:"status,omitempty" envPrefix:"STATUS_"`
	Features   FeaturesConfig   `yaml:"features,omitempty"`
}

// BotConfig holds identity and dispatch settings.
type BotConfig struct {
	Name             string          `yaml:"name,omitempty" env:"NAME"`
	Alert            string          `yaml:"alert,omitempty" env:"ALERT"` // prefix that addresses the bot in a channel
	Admins           []string        `yaml:"admins,omitempty" env:"ADMINS"`
	MaxMessageLength int             `yaml:"maxMessageLength,omitempty" env:"MAX_MESSAGE_LENGTH"` // overrides the transport limit
	MaxCallbackDepth int             `yaml:"maxCallbackDepth,omitempty" env:"MAX_CALLBACK_DEPTH"`
	Announce         []AnnounceEntry `yaml:"announce,omitempty"`
	LoadHistory      bool            `yaml:"loadHistory,omitempty" env:"LOAD_HISTORY"` // replace history with the channel archive on first connect
}

// AnnounceEntry is a message sent once after the first connect.
type AnnounceEntry struct {
	Channel string `yaml:"channel,omitempty"`
	User    string `yaml:"user,omitempty"`
	Text    string `yaml:"text"`
}

// RTMConfig configures the websocket RTM transport.
type RTMConfig struct {
	URL              string `yaml:"url,omitempty" env:"URL"` // Web API base URL
	Token            string `yaml:"token,omitempty" env:"TOKEN"`
	MaxMessageLength int    `yaml:"maxMessageLength,omitempty" env:"MAX_MESSAGE_LENGTH"`
}

// SlackConfig configures the Slack Socket Mode transport.
type SlackConfig struct {
	BotToken string `yaml:"botToken,omitempty" env:"BOT_TOKEN"`
	AppToken string `yaml:"appToken,omitempty" env:"APP_TOKEN"`
	APIURL   string `yaml:"apiUrl,omitempty" env:"API_URL"` // Web API base, for proxies and tests
	Debug    bool   `yaml:"debug,omitempty" env:"DEBUG"`
}

// IRCConfig configures the IRC transport.
type IRCConfig struct {
	Server   string   `yaml:"server,omitempty" env:"SERVER"`
	Port     int      `yaml:"port,omitempty" env:"PORT"`
	Nick     string   `yaml:"nick,omitempty" env:"NICK"`
	Password string   `yaml:"password,omitempty" env:"PASSWORD"`
	Channels []string `yaml:"channels,omitempty" env:"CHANNELS"`
	UseTLS   bool     `yaml:"useTLS,omitempty" env:"USE_TLS"`
	SASL     bool     `yaml:"sasl,omitempty" env:"SASL"`
}

// SupervisorConfig controls reconnects and outbound pacing.
type SupervisorConfig struct {
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty" env:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty" env:"MAX_BACKOFF"`
	MaxAttempts    int           `yaml:"maxAttempts,omitempty" env:"MAX_ATTEMPTS"`
	SendRate       float64       `yaml:"sendRate,omitempty" env:"SEND_RATE"` // messages per second, 0 = unpaced
	SendBurst      int           `yaml:"sendBurst,omitempty" env:"SEND_BURST"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty" env:"PATH"` // defaults to <home>/data/dankbot.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" env:"LEVEL"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style      string `yaml:"style,omitempty" env:"STYLE"` // "pretty" | "json"
	File       string `yaml:"file,omitempty" env:"FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
}

// HooksConfig maps events to shell hooks.
type HooksConfig struct {
	MessageReceived []HookEntry `yaml:"messageReceived,omitempty"`
	CommandMatched  []HookEntry `yaml:"commandMatched,omitempty"`
	MessageSending  []HookEntry `yaml:"messageSending,omitempty"`
	Connected       []HookEntry `yaml:"connected,omitempty"`
	Disconnected    []HookEntry `yaml:"disconnected,omitempty"`
}

// ByEvent returns the configured hooks keyed by hook event name.
func (h HooksConfig) ByEvent() map[string][]HookEntry {
	return map[string][]HookEntry{
		"message_received": h.MessageReceived,
		"command_matched":  h.CommandMatched,
		"message_sending":  h.MessageSending,
		"connected":        h.Connected,
		"disconnected":     h.Disconnected,
	}
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
	Async   bool   `yaml:"async,omitempty"`
}

// StatusConfig controls the HTTP status endpoint.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"ENABLED"`
	Addr    string `yaml:"addr,omitempty" env:"ADDR"`
}

// FeaturesConfig configures the bundled feature modules.
type FeaturesConfig struct {
	Binder FeatureConfig `yaml:"binder,omitempty"`
	React  FeatureConfig `yaml:"react,omitempty"`
	Quote  FeatureConfig `yaml:"quote,omitempty"`
	Poll   FeatureConfig `yaml:"poll,omitempty"`
}

// ByID returns the feature settings keyed by feature id.
func (f FeaturesConfig) ByID() map[string]FeatureConfig {
	return map[string]FeatureConfig{
		"binder": f.Binder,
		"react":  f.React,
		"quote":  f.Quote,
		"poll":   f.Poll,
	}
}

// FeatureConfig is shared by all feature modules.
type FeatureConfig struct {
	Disabled bool     `yaml:"disabled,omitempty"`
	Channels []string `yaml:"channels,omitempty"` // empty allows every channel
	Limit    int      `yaml:"limit,omitempty"`    // feature specific cap, 0 for the default
}
