package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/extract"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill historical gaps in breakdown tables",
	Long: `Backfill dimensional breakdown tables for dates the reference table
has but they lack.

Without --start/--end the range is derived from the reference table,
capped by each extractor's data completeness window. Dates inside the
window are skipped unless --skip-validation is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		log := zap.L().With(zap.String("command", "backfill"))

		name, _ := cmd.Flags().GetString("extractor")
		all, _ := cmd.Flags().GetBool("all")
		if (name != "") == all {
			return eris.New("specify exactly one of --extractor or --all")
		}

		opts := extract.BackfillOptions{}
		opts.Start, _ = cmd.Flags().GetString("start")
		opts.End, _ = cmd.Flags().GetString("end")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.SkipValidation, _ = cmd.Flags().GetBool("skip-validation")

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

		if all {
			parallel, _ := cmd.Flags().GetInt("parallel")
			log.Info("backfilling all extractors", zap.Int("parallel", parallel))
			results, err := engine.All(ctx, opts, parallel)
			if err != nil {
				return err
			}
			return printJSON(results)
		}

		res, err := engine.Incremental(ctx, name, opts)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return eris.Errorf("backfill %s: %d dates failed", name, res.Failed)
		}
		return nil
	},
}

func init() {
	backfillCmd.Flags().String("extractor", "", "extractor name to backfill")
	backfillCmd.Flags().Bool("all", false, "backfill every extractor")
	backfillCmd.Flags().String("start", "", "range start (YYYY-MM-DD)")
	backfillCmd.Flags().String("end", "", "range end (YYYY-MM-DD)")
	backfillCmd.Flags().Bool("dry-run", false, "report the plan without extracting")
	backfillCmd.Flags().Bool("skip-validation", false, "process dates inside the completeness window")
	backfillCmd.Flags().Int("parallel", 2, "concurrent extractors with --all")
	rootCmd.AddCommand(backfillCmd)
}
