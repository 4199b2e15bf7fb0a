package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// hookCmd is the entrypoint the host's own tool-use and prompt hooks shell
// out to; it is not part of the user-facing CLI surface (cobra.Command.Hidden)
// and is deliberately best-effort: any failure is swallowed rather than
// surfaced, since a hook failing must never interrupt the host session.
var hookCmd = &cobra.Command{
	Use:    "hook",
	Short:  "Internal entrypoint for host tool-use and prompt hooks",
	Hidden: true,
}

var hookCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Feed a tool-use event to the capture pipeline (reads JSON from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("AI_MEMORY_NO_HOOK") != "" {
			return nil
		}
		var payload struct {
			Tool      string `json:"tool"`
			Content   string `json:"content"`
			FilePath  string `json:"file_path"`
			SessionID string `json:"session_id"`
		}
		if err := readStdinJSON(&payload); err != nil {
			return nil
		}
		_, _ = callHook("capture", map[string]any{
			"tool":       payload.Tool,
			"content":    payload.Content,
			"file_path":  payload.FilePath,
			"session_id": payload.SessionID,
		})
		return nil
	},
}

var hookInjectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Build the per-turn injection block for the upcoming prompt (reads JSON from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("AI_MEMORY_NO_HOOK") != "" {
			return nil
		}
		var payload struct {
			Prompt    string `json:"prompt"`
			SessionID string `json:"session_id"`
		}
		if err := readStdinJSON(&payload); err != nil {
			return nil
		}
		result, err := callHook("inject", map[string]any{
			"prompt":     payload.Prompt,
			"session_id": payload.SessionID,
		})
		if err != nil {
			return nil
		}
		if block, ok := result["block"].(string); ok {
			fmt.Print(block)
		}
		return nil
	},
}

func readStdinJSON(v any) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func init() {
	hookCmd.AddCommand(hookCaptureCmd, hookInjectCmd)
	rootCmd.AddCommand(hookCmd)
}
