package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/dankbot/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
		Long: `Read and edit the config file by dotted key, for example
"bot.alert" or "supervisor.maxBackoff". Keys are checked against the
known settings and every change is validated before it is written.`,
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return configGet(cmd.OutOrStdout(), paths.Config, args[0])
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return configSet(cmd.OutOrStdout(), paths.Config, args[0], args[1])
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return configUnset(cmd.OutOrStdout(), paths.Config, args[0])
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

// configKey parses a dotted key and checks it names a known setting.
func configKey(key string) ([]string, error) {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return nil, err
	}
	if err := config.CheckPath(path); err != nil {
		return nil, err
	}
	return path, nil
}

func configGet(w io.Writer, file, key string) error {
	path, err := configKey(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(file)
	if err != nil {
		return err
	}
	val, ok := config.GetValueAtPath(raw, path)
	if !ok {
		return fmt.Errorf("key %q is not set in %s", key, file)
	}
	return printValue(w, val)
}

func configSet(w io.Writer, file, key, value string) error {
	path, err := configKey(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(file)
	if err != nil {
		return err
	}

	typed := parseValue(value)
	config.SetValueAtPath(raw, path, typed)
	warnings, err := commitConfig(file, key, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Set %s = %v\n", key, typed)
	printWarnings(w, warnings)
	return nil
}

func configUnset(w io.Writer, file, key string) error {
	path, err := configKey(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(file)
	if err != nil {
		return err
	}

	if !config.UnsetValueAtPath(raw, path) {
		return fmt.Errorf("key %q is not set in %s", key, file)
	}
	warnings, err := commitConfig(file, key, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Unset %s\n", key)
	printWarnings(w, warnings)
	return nil
}

// commitConfig validates the edited settings and writes them. Issues at or
// below the edited key reject the change; issues elsewhere in the file are
// returned as warnings so a config can be filled in one key at a time.
func commitConfig(file, key string, raw map[string]any) ([]config.ValidationIssue, error) {
	cfg, err := config.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	rejected, warnings := config.IssuesUnder(config.Validate(&cfg), key)
	if len(rejected) > 0 {
		msgs := make([]string, len(rejected))
		for i, issue := range rejected {
			msgs[i] = issue.String()
		}
		return nil, errors.New("invalid value: " + strings.Join(msgs, "; "))
	}
	if err := config.SaveRaw(file, raw); err != nil {
		return nil, err
	}
	return warnings, nil
}

func printWarnings(w io.Writer, issues []config.ValidationIssue) {
	for _, issue := range issues {
		fmt.Fprintf(w, "warning: %s\n", issue)
	}
}

// printValue outputs a value in a human-readable format.
func printValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case string:
		fmt.Fprintln(w, val)
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}

// parseValue attempts to interpret a string as a typed value.
func parseValue(s string) any {
	lower := strings.ToLower(s)
	if lower == "true" {
		return true
	}
	if lower == "false" {
		return false
	}

	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprintf("%d", n) == s {
		return n
	}

	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err == nil && fmt.Sprint(f) == s {
		return f
	}

	return s
}
