package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// shareCmd groups the shared-cognition subcommands (§4.11): publishing a
// thread snapshot, pulling one down, and the bilateral-consent cross-agent
// bridge workflow. Not part of the core CLI surface's advertised list since
// the feature itself is optional and isolated, but reachable the same way
// every other daemon op is.
var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Shared-cognition: publish/sync thread snapshots and cross-agent bridges",
}

var sharePublishCmd = &cobra.Command{
	Use:   "publish <thread-id> <publisher-id>",
	Short: "Publish a thread as a read-only snapshot for other agents to sync",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("share_publish", map[string]any{"thread_id": args[0], "publisher_id": args[1]})
		if err != nil {
			return err
		}
		fmt.Println(resp["shared_id"])
		return nil
	},
}

var shareSyncCmd = &cobra.Command{
	Use:   "sync <shared-id>",
	Short: "Pull a published snapshot into the local subscription set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("share_sync", map[string]any{"shared_id": args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("synced %s: %s\n", resp["shared_id"], resp["title"])
		return nil
	},
}

var shareListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribed shared snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("share_list", nil)
		if err != nil {
			return err
		}
		snaps, _ := resp["snapshots"].([]any)
		if len(snaps) == 0 {
			fmt.Println("no subscribed snapshots")
			return nil
		}
		for _, raw := range snaps {
			s, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			fmt.Printf("%s  %s  (from %s)\n", s["shared_id"], s["title"], s["publisher_id"])
		}
		return nil
	},
}

var sharePropose = &cobra.Command{
	Use:   "propose <local-thread-id> <remote-shared-id> <reason>",
	Short: "Propose a cross-agent bridge; the remote side must accept within 24h",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("share_propose", map[string]any{
			"local_id": args[0], "remote_shared_id": args[1], "reason": args[2],
		})
		if err != nil {
			return err
		}
		fmt.Printf("proposal %s expires %s\n", resp["proposal_id"], resp["expires_at"])
		return nil
	},
}

var shareAccept = &cobra.Command{
	Use:   "accept <proposal-id>",
	Short: "Accept a pending cross-agent bridge proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call("share_accept", map[string]any{"proposal_id": args[0]})
		if err != nil {
			return err
		}
		fmt.Println(resp["bridge_id"])
		return nil
	},
}

var shareReject = &cobra.Command{
	Use:   "reject <proposal-id>",
	Short: "Reject a pending cross-agent bridge proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := call("share_reject", map[string]any{"proposal_id": args[0]})
		if err != nil {
			return err
		}
		fmt.Println("rejected")
		return nil
	},
}

func init() {
	shareCmd.AddCommand(sharePublishCmd, shareSyncCmd, shareListCmd, sharePropose, shareAccept, shareReject)
	rootCmd.AddCommand(shareCmd)
}
