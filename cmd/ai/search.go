package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "List threads matching a query, without the injection text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("recall", map[string]any{"query": args[0], "include_suspended": true})
		if err != nil {
			return err
		}
		matched, _ := resp["matched"].([]any)
		if len(matched) == 0 {
			fmt.Println(dim("no matches"))
			return nil
		}
		for _, raw := range matched {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			mark := ""
			if reactivated, _ := m["reactivated"].(bool); reactivated {
				mark = " " + green("(reactivated)")
			}
			fmt.Printf("%-36s score=%.3f%s\n", m["id"], m["score"], mark)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
