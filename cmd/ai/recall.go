package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Print the full injection-ready recall text for a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("recall", map[string]any{"query": args[0]})
		if err != nil {
			return err
		}
		text, _ := resp["text"].(string)
		if text == "" {
			fmt.Println(dim("nothing recalled"))
			return nil
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recallCmd)
}
