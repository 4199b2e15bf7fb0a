package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexVerbose bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the daemon's in-memory thread/bridge indexes from disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("reindex", nil)
		if err != nil {
			return err
		}
		if reindexVerbose {
			fmt.Printf("reindex: %v\n", resp["reindexed"])
		} else {
			fmt.Println(green("reindexed"))
		}
		return nil
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexVerbose, "verbose", false, "print the reply's reindexed field")
	rootCmd.AddCommand(reindexCmd)
}
