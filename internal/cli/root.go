// Package cli provides the aide command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aide/internal/config"
	"aide/internal/logging"
)

var (
	cfgFile   string
	loadedCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "aide",
	Short:         "Approval-gated personal assistant",
	Long:          "Aide classifies requests, answers what it safely can, and queues everything that changes the outside world for your approval.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader()
		if cfgFile != "" {
			loader.SetConfigFile(cfgFile)
		}
		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		loadedCfg = cfg

		logging.Init(logging.Config{
			Level:        cfg.Logging.Level,
			Format:       cfg.Logging.Format,
			EnableCaller: cfg.Logging.EnableCaller,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/aide/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
