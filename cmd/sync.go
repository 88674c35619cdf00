package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/extract"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Align breakdown tables with the reference table",
	Long: `Check every breakdown table against the reference table and backfill
the dates each one is missing, respecting data completeness windows.

Use --tables to restrict the sync to specific extractors, and --dry-run
to see the plan without extracting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		log := zap.L().With(zap.String("command", "sync"))

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		tables, _ := cmd.Flags().GetStringSlice("tables")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := ensureMigrated(ctx, st); err != nil {
			return err
		}

		client, err := buildClient()
		if err != nil {
			return err
		}
		engine := extract.NewEngine(st, buildRegistry(client))

		log.Info("syncing breakdown tables",
			zap.Strings("tables", tables), zap.Bool("dry_run", dryRun))

		res, err := engine.Sync(ctx, dryRun, tables)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return eris.New("sync finished with failed dates")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "report the plan without extracting")
	syncCmd.Flags().StringSlice("tables", nil, "extractor names to sync (default all)")
	rootCmd.AddCommand(syncCmd)
}
