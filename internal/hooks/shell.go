package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultShellTimeout applies to shell hooks configured without a timeout.
const DefaultShellTimeout = 10 * time.Second

// Shell returns a handler that runs command with sh -c, writing the payload
// as JSON to its stdin.
func Shell(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.WaitDelay = time.Second
		cmd.Env = append(cmd.Environ(), "DANKBOT_EVENT="+p.Event)

		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("hook %q: %w: %s", command, err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}
