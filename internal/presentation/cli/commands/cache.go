package commands

import (
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local cache",
		Long: `Inspect and clear the data kept on this device for offline use.
Pending changes are not part of the cache and are never cleared here.`,
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheSweepCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			stats, err := c.Cache().Stats(ctx)
			if err != nil {
				return err
			}
			translations, err := c.Translations().Len(ctx)
			if err != nil {
				return err
			}
			return formatter.CacheStats(stats, translations)
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var translations bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached data",
		Long: `Remove every cached read. The stored session is part of the cache, so
you will need to sign in again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if err := c.Cache().Clear(ctx); err != nil {
				return err
			}
			if translations {
				if err := c.Translations().Clear(ctx); err != nil {
					return err
				}
			}

			if formatter.IsJSON() {
				return formatter.JSON(map[string]bool{"cleared": true, "translations": translations})
			}
			return formatter.Success("Cache cleared")
		},
	}

	cmd.Flags().BoolVar(&translations, "translations", false, "also clear cached translations")

	return cmd
}

func newCacheSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			removed, err := c.Cache().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.JSON(map[string]int64{"removed": removed})
			}
			return formatter.Success("Removed %d expired entries", removed)
		},
	}
}
