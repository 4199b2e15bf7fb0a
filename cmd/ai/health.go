package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report daemon reachability, counts, and quarantined records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !pingDaemon() {
			fmt.Println(red("daemon: not reachable"))
			return fail1("daemon not reachable at %s", resolveSocketPath())
		}
		fmt.Println(green("daemon: ok"))

		resp, err := call("status", nil)
		if err != nil {
			return err
		}
		fmt.Printf("threads: %v active, %v suspended, %v archived\n",
			resp["active_threads"], resp["suspended_threads"], resp["archived_threads"])
		fmt.Printf("bridges: %v\n", resp["bridges"])

		quarantined, _ := filepath.Glob(filepath.Join(resolveAIDir(), "db", "*", "*.corrupt.*"))
		quarantinedNested, _ := filepath.Glob(filepath.Join(resolveAIDir(), "db", "*", "*", "*.corrupt.*"))
		quarantined = append(quarantined, quarantinedNested...)
		if len(quarantined) == 0 {
			fmt.Println(green("corruption: none quarantined"))
		} else {
			fmt.Println(red(fmt.Sprintf("corruption: %d record(s) quarantined", len(quarantined))))
			for _, q := range quarantined {
				fmt.Printf("  %s\n", q)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
