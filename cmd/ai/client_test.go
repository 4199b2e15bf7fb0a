package main

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T, handle func(line string) string) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "processor.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				conn.Write([]byte(handle(line) + "\n"))
			}()
		}
	}()
	return sock
}

func TestCallRoundTripsOkReply(t *testing.T) {
	socketPath = fakeDaemon(t, func(line string) string {
		return `{"status":"ok","pong":true}`
	})
	defer func() { socketPath = "" }()

	resp, err := call("ping", nil)
	require.NoError(t, err)
	require.Equal(t, true, resp["pong"])
}

func TestCallSurfacesErrorReply(t *testing.T) {
	socketPath = fakeDaemon(t, func(line string) string {
		return `{"status":"error","error":{"kind":"NotFound","message":"no such thread"}}`
	})
	defer func() { socketPath = "" }()

	_, err := call("recall", map[string]any{"query": "x"})
	require.Error(t, err)
	require.Equal(t, 1, exitCodeFor(err))
	require.Contains(t, err.Error(), "no such thread")
}

func TestCallFailsWhenSocketMissing(t *testing.T) {
	socketPath = filepath.Join(t.TempDir(), "nope.sock")
	defer func() { socketPath = "" }()

	_, err := call("ping", nil)
	require.Error(t, err)
	require.Equal(t, 1, exitCodeFor(err))
}
