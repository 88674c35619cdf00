package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "metricsync",
	Short: "Daily analytics metrics extraction and synchronization",
	Long:  "Extracts daily session, conversion, and funnel metrics from the analytics backend into a local store, backfills historical gaps, and keeps dimensional breakdown tables aligned.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
