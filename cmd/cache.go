package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the daily metrics cache",
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reload the cache from the store",
	Long: `Write the most recent days from the store into the cache. Useful
after a cache flush or when pointing dashboards at a fresh Redis.`,
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

		c, err := buildCache()
		if err != nil {
			return err
		}
		defer c.Close()

		days, _ := cmd.Flags().GetInt("days")
		n, err := c.SyncFromStore(ctx, st, days)
		if err != nil {
			return err
		}
		zap.L().Info("cache synced", zap.Int("entries", n), zap.Int("days", days))
		return printJSON(map[string]int{"entries": n})
	},
}

func init() {
	cacheSyncCmd.Flags().Int("days", 14, "how many recent days to load")
	cacheCmd.AddCommand(cacheSyncCmd)
	rootCmd.AddCommand(cacheCmd)
}
