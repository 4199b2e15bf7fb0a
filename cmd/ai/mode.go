package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ai-memoryd/memoryd/internal/config"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:   "mode [status|light|normal|heavy|max]",
	Short: "Show or change the active-thread quota mode in config.json",
	Long:  "The daemon reads config.json once at startup, so changing the mode here takes effect on the next 'ai daemon start' (or a daemon restart).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return fail1("loading config.json: %v", err)
		}
		if len(args) == 0 || args[0] == "status" {
			fmt.Printf("mode:  %s\n", cfg.Settings.ThreadMode)
			fmt.Printf("quota: %d\n", cfg.Quota())
			return nil
		}

		var target model.ThreadMode
		switch args[0] {
		case "light":
			target = model.ModeLight
		case "normal":
			target = model.ModeNormal
		case "heavy":
			target = model.ModeHeavy
		case "max":
			target = model.ModeMax
		default:
			return fail2("unknown mode %q (want light, normal, heavy, or max)", args[0])
		}

		cfg.Settings.ThreadMode = target
		if err := cfg.Validate(); err != nil {
			return fail2("invalid config after mode change: %v", err)
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fail1("encoding config.json: %v", err)
		}
		if err := os.WriteFile(resolveConfigPath(), data, 0o600); err != nil {
			return fail1("writing config.json: %v", err)
		}
		fmt.Printf("mode set to %s (quota %d); restart the daemon to apply\n", target, target.Quota())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modeCmd)
}
