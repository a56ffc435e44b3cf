package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dankbot/internal/command"
)

func newCommandsCmd() *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Print the help listing of every loaded command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := newEngine(cmd.Context(), cfg, dbPath(cfg), log)
			if err != nil {
				return err
			}
			defer e.Close()

			printCommands(cmd.OutOrStdout(), e.commands, admin)
			return nil
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "include admin-only commands")
	return cmd
}

func newParseCmd() *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show which command a line of chat would run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := newEngine(cmd.Context(), cfg, dbPath(cfg), log)
			if err != nil {
				return err
			}
			defer e.Close()

			return printParse(cmd.OutOrStdout(), e.commands, strings.Join(args, " "), direct)
		},
	}

	cmd.Flags().BoolVar(&direct, "dm", false, "parse as a direct message (no alert prefix)")
	return cmd
}

func printCommands(w io.Writer, reg *command.Registry, admin bool) {
	fmt.Fprint(w, reg.Help(admin))
	if unfiltered := reg.Unfiltered(); len(unfiltered) > 0 {
		fmt.Fprintln(w, "\nMonitors:")
		for _, c := range unfiltered {
			fmt.Fprintf(w, "  %s\n", c.Name)
		}
	}
}

func printParse(w io.Writer, reg *command.Registry, text string, direct bool) error {
	name, caps, ok := reg.Parse(text, direct)
	if !ok {
		return fmt.Errorf("no command matches %q", text)
	}
	fmt.Fprintf(w, "command: %s\n", name)
	values := caps.Values()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		fmt.Fprintf(w, "  %s = %q\n", k, values[k])
	}
	return nil
}
