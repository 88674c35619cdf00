package main

import (
	"github.com/spf13/cobra"

	"github.com/voltadata/metricsync/internal/extract"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show alignment of breakdown tables",
	Long: `Report how each breakdown table tracks the reference table: its
newest date, the newest date it should have given its completeness
window, and any missing dates in between.

Status is read-only: no extractor runs, so no analytics source is
needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := ensureMigrated(ctx, st); err != nil {
			return err
		}

		// Alignment checking never calls the upstream, so the
		// registry gets a nil client.
		engine := extract.NewEngine(st, buildRegistry(nil))
		report, err := engine.CheckAlignment(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
