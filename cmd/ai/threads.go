package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	threadsStatus     string
	threadsLimit      int
	threadsShowWeight bool
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List threads, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("threads", map[string]any{"status": threadsStatus, "limit": threadsLimit})
		if err != nil {
			return err
		}
		list, _ := resp["threads"].([]any)
		if len(list) == 0 {
			fmt.Println(dim("no threads"))
			return nil
		}
		for _, raw := range list {
			t, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			line := fmt.Sprintf("%-36s %-9s %-4.0f msgs  %s", t["id"], t["status"], t["messages"], t["title"])
			if threadsShowWeight {
				line += fmt.Sprintf("  weight=%.2f relevance=%.2f", t["weight"], t["relevance_score"])
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	threadsCmd.Flags().StringVar(&threadsStatus, "status", "", "filter by status (active, suspended, archived)")
	threadsCmd.Flags().IntVar(&threadsLimit, "limit", 0, "cap the number of threads listed (0 = unbounded)")
	threadsCmd.Flags().BoolVar(&threadsShowWeight, "show-weight", false, "also print weight and relevance score")
	threadsCmd.Flags().Bool("prune", false, "accepted for CLI-surface parity; pruning happens via compact/quota, not this command")
	rootCmd.AddCommand(threadsCmd)
}
