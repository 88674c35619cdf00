package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltadata/metricsync/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract daily metrics for one date",
	Long: `Extract the daily metrics row for a single date and store it.

Defaults to yesterday. Zero-delay breakdown tables (products, commodity
conversions) are refreshed for the same date; delayed breakdowns are
left to the backfill engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		log := zap.L().With(zap.String("command", "extract"))

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
		c, err := buildCache()
		if err != nil {
			return err
		}
		defer c.Close()

		date, _ := cmd.Flags().GetString("date")
		log.Info("extracting daily metrics", zap.String("date", date))

		job := extract.NewDailyJob(client, st, buildRegistry(client), c)
		m, err := job.Run(ctx, date)
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

func init() {
	extractCmd.Flags().String("date", "", "date to extract (YYYY-MM-DD, default yesterday)")
	rootCmd.AddCommand(extractCmd)
}
