package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reference table statistics",
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

		stats, err := st.Statistics(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare [date]",
	Short: "Compare a date's metrics with earlier periods",
	Long: `Show a date's metrics next to the day before, a week before, and
four weeks before, with percentage changes. Defaults to the latest
stored date.`,
	Args: cobra.MaximumNArgs(1),
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

		var date string
		if len(args) == 1 {
			date = args[0]
			if _, err := model.ParseDay(date); err != nil {
				return err
			}
		} else {
			latest, err := st.GetLatest(ctx)
			if err != nil {
				return err
			}
			if latest == nil {
				return eris.New("no metrics stored yet")
			}
			date = latest.Date
		}

		comps, err := store.ComputeComparisons(ctx, st, date, []int{1, 7, 28})
		if err != nil {
			return err
		}
		return printJSON(comps)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent extraction runs",
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

		extractor, _ := cmd.Flags().GetString("extractor")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, extractor, limit)
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func init() {
	runsCmd.Flags().String("extractor", "", "filter by extractor name")
	runsCmd.Flags().Int("limit", 20, "maximum runs to list")
	rootCmd.AddCommand(statsCmd, compareCmd, runsCmd)
}
