package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	bridgesThread     string
	bridgesShowWeight bool
)

var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "List think-bridges, optionally restricted to one thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("bridges", map[string]any{"thread_id": bridgesThread})
		if err != nil {
			return err
		}
		list, _ := resp["bridges"].([]any)
		if len(list) == 0 {
			fmt.Println(dim("no bridges"))
			return nil
		}
		for _, raw := range list {
			b, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			line := fmt.Sprintf("%-36s -> %-36s  %-12s", b["source_id"], b["target_id"], b["relation_type"])
			if bridgesShowWeight {
				line += fmt.Sprintf("  weight=%.2f confidence=%.2f uses=%.0f", b["weight"], b["confidence"], b["use_count"])
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	bridgesCmd.Flags().StringVar(&bridgesThread, "thread", "", "only bridges touching this thread id")
	bridgesCmd.Flags().BoolVar(&bridgesShowWeight, "show-weight", false, "also print weight, confidence, and use count")
	bridgesCmd.Flags().Bool("prune", false, "accepted for CLI-surface parity; pruning happens via decay, not this command")
	rootCmd.AddCommand(bridgesCmd)
}
