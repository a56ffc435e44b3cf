package config

import (
	"fmt"
	"time"
)

// Default values shared by the loader and the CLI.
const (
	DefaultName       = "dankbot"
	DefaultTransport  = "rtm"
	DefaultRTMURL     = "https://slack.com/api"
	DefaultStatusAddr = "127.0.0.1:18790"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Bot: BotConfig{
			Name:  DefaultName,
			Alert: DefaultName,
		},
		Transport: DefaultTransport,
		RTM: RTMConfig{
			URL: DefaultRTMURL,
		},
		Supervisor: SupervisorConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     2 * time.Minute,
			SendBurst:      1,
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
		Status: StatusConfig{
			Addr: DefaultStatusAddr,
		},
	}
}
