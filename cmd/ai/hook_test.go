package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHookCaptureShortCircuitsUnderNoHookFlag(t *testing.T) {
	t.Setenv("AI_MEMORY_NO_HOOK", "1")
	err := hookCaptureCmd.RunE(hookCaptureCmd, nil)
	require.NoError(t, err)
}

func TestHookInjectShortCircuitsUnderNoHookFlag(t *testing.T) {
	t.Setenv("AI_MEMORY_NO_HOOK", "1")
	err := hookInjectCmd.RunE(hookInjectCmd, nil)
	require.NoError(t, err)
}

func TestHookCaptureSwallowsMissingDaemon(t *testing.T) {
	os.Unsetenv("AI_MEMORY_NO_HOOK")
	socketPath = "/nonexistent/processor.sock"
	defer func() { socketPath = "" }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString(`{"tool":"write","content":"x"}`)
	require.NoError(t, err)
	w.Close()

	oldStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()

	err = hookCaptureCmd.RunE(hookCaptureCmd, nil)
	require.NoError(t, err)
}
