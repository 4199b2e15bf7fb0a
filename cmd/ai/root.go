package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	projectDir string
	socketPath string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "ai",
	Short:         "Talk to the project's memory daemon",
	Long:          "ai is the CLI client for memoryd, the per-project memory daemon. It dials the daemon's Unix socket and never duplicates its logic.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "project root (holds .ai/)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "override the daemon socket path (default <project>/.ai/processor.sock)")
	noColor = !isatty.IsTerminal(os.Stdout.Fd())
}

// Execute runs the root command, exiting with the code the failure
// warrants: 0 success, 2 for a request the CLI itself rejects (unknown
// mode, invalid config, unencodable request), 1 for every other error,
// including daemon down, not found, and cobra's own argument-count and
// flag errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func resolveSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		abs = projectDir
	}
	return filepath.Join(abs, ".ai", "processor.sock")
}

func resolveAIDir() string {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		abs = projectDir
	}
	return filepath.Join(abs, ".ai")
}

func resolvePIDPath() string {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		abs = projectDir
	}
	return filepath.Join(abs, ".ai", "processor.pid")
}

func resolveConfigPath() string {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		abs = projectDir
	}
	return filepath.Join(abs, "config.json")
}

// cliError carries the exit code an expected failure should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func fail1(format string, args ...any) error {
	return &cliError{code: 1, err: fmt.Errorf(format, args...)}
}

func fail2(format string, args ...any) error {
	return &cliError{code: 2, err: fmt.Errorf(format, args...)}
}

func exitCodeFor(err error) int {
	if ce, ok := err.(*cliError); ok {
		return ce.code
	}
	return 1
}

func colorize(code, s string) string {
	if noColor {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func green(s string) string { return colorize("32", s) }
func red(s string) string   { return colorize("31", s) }
func dim(s string) string   { return colorize("2", s) }
