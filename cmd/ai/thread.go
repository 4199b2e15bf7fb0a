package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread <id>",
	Short: "Show a single thread in detail, including its bridges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("thread_get", map[string]any{"thread_id": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("id:       %v\n", resp["id"])
		fmt.Printf("title:    %v\n", resp["title"])
		fmt.Printf("status:   %v\n", resp["status"])
		fmt.Printf("weight:   %.2f   relevance: %.2f\n", resp["weight"], resp["relevance_score"])
		fmt.Printf("messages: %v\n", resp["messages"])
		fmt.Printf("topics:   %v\n", resp["topics"])
		fmt.Printf("tags:     %v\n", resp["tags"])
		if locked, _ := resp["split_locked"].(bool); locked {
			fmt.Println(red("split locked"))
		}
		fmt.Printf("summary:\n  %v\n", resp["summary"])
		bridges, _ := resp["bridges"].([]any)
		if len(bridges) == 0 {
			return nil
		}
		fmt.Println("bridges:")
		for _, raw := range bridges {
			b, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			fmt.Printf("  %-36s -> %-36s  %-12s weight=%.2f\n", b["source_id"], b["target_id"], b["relation_type"], b["weight"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
}
