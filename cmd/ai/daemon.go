package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the project's memory daemon process",
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon answers a ping",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pingDaemon() {
			fmt.Println(green("running"))
			return nil
		}
		fmt.Println(red("not running"))
		return fail1("daemon not reachable at %s", resolveSocketPath())
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Spawn memoryd for this project in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pingDaemon() {
			fmt.Println(dim("daemon already running"))
			return nil
		}
		bin, err := exec.LookPath("memoryd")
		if err != nil {
			if self, selfErr := os.Executable(); selfErr == nil {
				candidate := filepath.Join(filepath.Dir(self), "memoryd")
				if _, statErr := os.Stat(candidate); statErr == nil {
					bin = candidate
					err = nil
				}
			}
		}
		if err != nil {
			return fail1("memoryd binary not found on PATH or alongside ai: %v", err)
		}

		if err := os.MkdirAll(resolveAIDir(), 0o700); err != nil {
			return fail1("creating .ai directory: %v", err)
		}
		logFile, err := os.OpenFile(filepath.Join(resolveAIDir(), "memoryd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fail1("opening daemon log: %v", err)
		}
		defer logFile.Close()

		proc := exec.Command(bin, "--project", projectDir)
		proc.Stdout = logFile
		proc.Stderr = logFile
		if err := proc.Start(); err != nil {
			return fail1("starting memoryd: %v", err)
		}

		for i := 0; i < 20; i++ {
			if pingDaemon() {
				fmt.Println(green("daemon started"))
				return nil
			}
			time.Sleep(250 * time.Millisecond)
		}
		return fail1("memoryd started (pid %d) but did not answer a ping in time; check %s", proc.Process.Pid, filepath.Join(resolveAIDir(), "memoryd.log"))
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the daemon to shut down gracefully",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !pingDaemon() {
			fmt.Println(dim("daemon not running"))
			return nil
		}
		if _, err := call("shutdown", nil); err != nil {
			return err
		}
		fmt.Println(green("shutdown requested"))
		return nil
	},
}

func init() {
	daemonCmd.AddCommand(daemonStatusCmd, daemonStartCmd, daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}
