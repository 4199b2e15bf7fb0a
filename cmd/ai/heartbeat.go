package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Show the daemon's coarse clock and last interaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("heartbeat", nil)
		if err != nil {
			return err
		}
		fmt.Printf("beat:              %v (started %v, last %v)\n", resp["beat"], resp["started_at"], resp["last_beat_at"])
		fmt.Printf("last interaction:  beat %v at %v\n", resp["last_interaction_beat"], resp["last_interaction_at"])
		if title, _ := resp["last_thread_title"].(string); title != "" {
			fmt.Printf("last thread:       %v (%v)\n", title, resp["last_thread_id"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(heartbeatCmd)
}
