package config

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid. Credentials
// are only required for the selected transport.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Bot.Name) == "" {
		add("bot.name", "name is required")
	}
	if strings.ContainsAny(cfg.Bot.Alert, "\n\r") {
		add("bot.alert", "alert must be a single line")
	}
	if cfg.Bot.MaxMessageLength < 0 {
		add("bot.maxMessageLength", "must not be negative, got %d", cfg.Bot.MaxMessageLength)
	}
	if cfg.Bot.MaxCallbackDepth < 0 {
		add("bot.maxCallbackDepth", "must not be negative, got %d", cfg.Bot.MaxCallbackDepth)
	}
	for i, a := range cfg.Bot.Announce {
		if a.Text == "" {
			add(fmt.Sprintf("bot.announce[%d].text", i), "text is required")
		}
		if (a.Channel == "") == (a.User == "") {
			add(fmt.Sprintf("bot.announce[%d]", i), "exactly one of channel or user is required")
		}
	}

	validTransports := []string{"rtm", "slack", "irc"}
	if !slices.Contains(validTransports, cfg.Transport) {
		add("transport", "must be one of %v, got %q", validTransports, cfg.Transport)
	}

	switch cfg.Transport {
	case "rtm":
		if cfg.RTM.Token == "" {
			add("rtm.token", "token is required")
		}
		if cfg.RTM.URL == "" {
			add("rtm.url", "url is required")
		}
	case "slack":
		if !strings.HasPrefix(cfg.Slack.BotToken, "xoxb-") {
			add("slack.botToken", "bot token must start with xoxb-")
		}
		if !strings.HasPrefix(cfg.Slack.AppToken, "xapp-") {
			add("slack.appToken", "app token must start with xapp-")
		}
	case "irc":
		if cfg.IRC.Server == "" {
			add("irc.server", "server is required")
		}
		if cfg.IRC.Nick == "" {
			add("irc.nick", "nick is required")
		}
		if cfg.IRC.Port < 0 || cfg.IRC.Port > 65535 {
			add("irc.port", "port must be 0-65535, got %d", cfg.IRC.Port)
		}
		if cfg.IRC.SASL && cfg.IRC.Password == "" {
			add("irc.sasl", "SASL requires a password to be set")
		}
	}

	sup := cfg.Supervisor
	if sup.InitialBackoff < 0 {
		add("supervisor.initialBackoff", "must not be negative")
	}
	if sup.MaxBackoff > 0 && sup.MaxBackoff < sup.InitialBackoff {
		add("supervisor.maxBackoff", "must be at least initialBackoff (%s)", sup.InitialBackoff)
	}
	if sup.SendRate < 0 {
		add("supervisor.sendRate", "must not be negative")
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		add("logging.style", "must be one of %v, got %q", validStyles, cfg.Logging.Style)
	}

	if cfg.Status.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Status.Addr); err != nil {
			add("status.addr", "invalid listen address %q", cfg.Status.Addr)
		}
	}

	byEvent := cfg.Hooks.ByEvent()
	for _, event := range slices.Sorted(maps.Keys(byEvent)) {
		for i, h := range byEvent[event] {
			if strings.TrimSpace(h.Command) == "" {
				add(fmt.Sprintf("hooks.%s[%d].command", event, i), "command is required")
			}
			if h.Timeout < 0 {
				add(fmt.Sprintf("hooks.%s[%d].timeout", event, i), "must not be negative")
			}
		}
	}

	features := cfg.Features.ByID()
	for _, id := range slices.Sorted(maps.Keys(features)) {
		if features[id].Limit < 0 {
			add(fmt.Sprintf("features.%s.limit", id), "must not be negative")
		}
	}

	return issues
}
