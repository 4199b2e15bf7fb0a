package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	out string
	err error
}

func (s stubBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	return s.out, s.err
}

func TestCompleteUsesPrimaryOnSuccess(t *testing.T) {
	c := &Client{primary: stubBackend{out: "hi"}, fallback: stubBackend{out: "fallback"}, timeout: time.Second}
	out, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	require.Equal(t, "hi", out)
}

func TestCompleteFallsBackOnPrimaryError(t *testing.T) {
	c := &Client{primary: stubBackend{err: errors.New("rate limited")}, fallback: stubBackend{out: "from cli"}, timeout: time.Second}
	out, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	require.Equal(t, "from cli", out)
}

func TestCompleteFailsWhenBothBackendsFail(t *testing.T) {
	c := &Client{primary: stubBackend{err: errors.New("down")}, fallback: stubBackend{err: errors.New("also down")}, timeout: time.Second}
	_, err := c.Complete(context.Background(), "sys", "prompt")
	require.Error(t, err)
}

func TestCompleteNoBackendsConfigured(t *testing.T) {
	c := &Client{timeout: time.Second}
	_, err := c.Complete(context.Background(), "sys", "prompt")
	require.Error(t, err)
}
