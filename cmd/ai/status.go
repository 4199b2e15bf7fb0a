package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aggregate thread/bridge counts and the active mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("status", nil)
		if err != nil {
			return err
		}
		fmt.Printf("mode:      %v (quota %v)\n", resp["mode"], resp["quota"])
		fmt.Printf("threads:   %v active, %v suspended, %v archived\n",
			resp["active_threads"], resp["suspended_threads"], resp["archived_threads"])
		fmt.Printf("bridges:   %v\n", resp["bridges"])
		fmt.Printf("beat:      %v (last %v)\n", resp["beat"], resp["last_beat_at"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
