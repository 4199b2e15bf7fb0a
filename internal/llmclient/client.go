// Package llmclient provides the single black-box chat call used by
// extraction, classification, and gossip relation-typing: given a system
// prompt and a user prompt, return the model's text response. Callers never
// see which backend answered — on primary failure the client transparently
// falls back to a local CLI.
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// backend is satisfied by both the Anthropic API path and the CLI
// fallback path.
type backend interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config selects and tunes the backends. APIKey empty disables the
// Anthropic path entirely (CLI-only). CLIPath empty disables the
// fallback (API-only).
type Config struct {
	APIKey  string
	CLIPath string
	Timeout time.Duration
}

// Client implements extract.Client / classify.Client / gossip.Client: a
// single Complete method, falling back from API to CLI on failure.
type Client struct {
	primary  backend
	fallback backend
	timeout  time.Duration
	log      *logrus.Entry
}

// New builds a Client from cfg. At least one of APIKey/CLIPath must be
// set or every Complete call fails.
func New(cfg Config, httpClient *http.Client, log *logrus.Entry) *Client {
	c := &Client{timeout: cfg.Timeout, log: log}
	if cfg.APIKey != "" {
		c.primary = newAnthropicClient(cfg.APIKey, httpClient)
	}
	if cfg.CLIPath != "" {
		c.fallback = NewCLIClient(cfg.CLIPath)
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	return c
}

// Complete tries the primary backend first, falling back to the CLI
// backend on any error (timeout, network failure, rate limit, missing
// key). Returns an error if no backend is configured or every configured
// backend fails.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.primary != nil {
		out, err := c.primary.Complete(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		if c.log != nil {
			c.log.WithError(err).Warn("llmclient: primary backend failed, falling back to CLI")
		}
		if c.fallback == nil {
			return "", err
		}
	}

	if c.fallback == nil {
		return "", fmt.Errorf("llmclient: no backend configured")
	}
	return c.fallback.Complete(ctx, system, prompt)
}
