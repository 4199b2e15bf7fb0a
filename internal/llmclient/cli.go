package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// noHookEnv is set on every CLI fallback subprocess so that, if the CLI
// itself triggers hook scripts that shell back into the ai binary, those
// invocations see the flag and short-circuit instead of recursing into
// another capture/inject call.
const noHookEnv = "AI_MEMORY_NO_HOOK=1"

// cliGraceTimeout is how long a subprocess call gets after its context is
// canceled before escalating from SIGTERM to SIGKILL.
const cliGraceTimeout = 3 * time.Second

// CLIClient shells out to a local CLI (e.g. the `claude` binary) as the
// fallback chat path when no remote API key is configured or the
// Anthropic API call failed. One call spawns one process; there is no
// persistent session.
type CLIClient struct {
	path string
}

// NewCLIClient builds a fallback client around the binary at path.
func NewCLIClient(path string) *CLIClient {
	return &CLIClient{path: path}
}

// Complete runs the CLI once with system+prompt fed on stdin and the
// response captured from stdout. On context cancellation or timeout, the
// process is asked to exit gracefully (SIGTERM) before being force-killed
// (SIGKILL) a short grace period later.
func (c *CLIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	cmd := exec.Command(c.path, "-p", "--output-format", "text")
	cmd.Env = append(os.Environ(), noHookEnv)
	var stdin bytes.Buffer
	if system != "" {
		stdin.WriteString(system)
		stdin.WriteString("\n\n")
	}
	stdin.WriteString(prompt)
	cmd.Stdin = &stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("llmclient: starting CLI fallback: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("llmclient: CLI fallback failed: %w: %s", err, stderr.String())
		}
		return strings.TrimSpace(stdout.String()), nil

	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
			return "", fmt.Errorf("llmclient: CLI fallback canceled: %w", ctx.Err())
		case <-time.After(cliGraceTimeout):
			_ = cmd.Process.Kill()
			<-done
			return "", fmt.Errorf("llmclient: CLI fallback killed after grace timeout: %w", ctx.Err())
		}
	}
}
