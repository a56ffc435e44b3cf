package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dankbot/internal/config"
	"github.com/soyeahso/dankbot/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configuration summary and query a running bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dankbot %s (commit %s)\n\n", version.Version, version.Commit)
			fmt.Fprintf(out, "Config:    %s\n", paths.Config)
			fmt.Fprintf(out, "Data:      %s\n", paths.Data)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "Config:    not found (using defaults)")
			}
			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:    error loading: %v\n", err)
				return nil
			}
			printSummary(out, cfg)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			if !cfg.Status.Enabled {
				fmt.Fprintln(out, "\nStatus:    endpoint disabled")
				return nil
			}
			fmt.Fprintln(out)
			return printLive(out, "http://"+cfg.Status.Addr)
		},
	}
}

func printSummary(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "Bot:       name=%s alert=%q admins=%s\n", cfg.Bot.Name, cfg.Bot.Alert, strings.Join(cfg.Bot.Admins, ","))
	switch cfg.Transport {
	case "rtm":
		fmt.Fprintf(w, "Transport: rtm url=%s\n", cfg.RTM.URL)
	case "slack":
		fmt.Fprintln(w, "Transport: slack (socket mode)")
	case "irc":
		fmt.Fprintf(w, "Transport: irc server=%s nick=%s channels=%s tls=%v\n",
			cfg.IRC.Server, cfg.IRC.Nick, strings.Join(cfg.IRC.Channels, ","), cfg.IRC.UseTLS)
	default:
		fmt.Fprintf(w, "Transport: %s\n", cfg.Transport)
	}

	var enabled []string
	for id, f := range cfg.Features.ByID() {
		if !f.Disabled {
			enabled = append(enabled, id)
		}
	}
	slices.Sort(enabled)
	fmt.Fprintf(w, "Features:  %s\n", strings.Join(enabled, ", "))
}

// printLive fetches /status from a running bot.
func printLive(w io.Writer, base string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/status")
	if err != nil {
		fmt.Fprintf(w, "Status:    not running (%v)\n", err)
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Version    string `json:"version"`
		Uptime     string `json:"uptime"`
		Commands   int    `json:"commands"`
		Connection struct {
			Transport string `json:"transport"`
			State     string `json:"state"`
			Connects  int64  `json:"connects"`
			LastError string `json:"lastError"`
		} `json:"connection"`
		Messages *int `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	fmt.Fprintf(w, "Status:    %s via %s, up %s, %d connect(s)\n",
		body.Connection.State, body.Connection.Transport, body.Uptime, body.Connection.Connects)
	fmt.Fprintf(w, "Commands:  %d\n", body.Commands)
	if body.Messages != nil {
		fmt.Fprintf(w, "History:   %d messages\n", *body.Messages)
	}
	if body.Connection.LastError != "" {
		fmt.Fprintf(w, "LastError: %s\n", body.Connection.LastError)
	}
	return nil
}
