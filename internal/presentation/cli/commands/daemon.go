package commands

import (
	"github.com/spf13/cobra"
)

// NewDaemonCmd creates the daemon command.
func NewDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep data in sync in the background",
		Long: `Run until interrupted, watching connectivity. Pending changes are sent
as soon as the backend is reachable, cached data is refreshed periodically
and, when enabled, live updates from other devices refresh the cache.

With observability.metrics.enabled the Prometheus endpoint is served too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			events, unsubscribe := c.Monitor().Subscribe()
			defer unsubscribe()
			go func() {
				for ev := range events {
					if ev.Online {
						formatter.Success("Back online, syncing")
					} else {
						formatter.Warning("Connection lost, changes will be queued")
					}
				}
			}()

			if _, err := c.Sessions().Current(ctx); err != nil {
				formatter.Warning("Not signed in; only connectivity is tracked")
			}
			formatter.Info("Daemon running. Press Ctrl-C to stop.")
			if err := c.Run(ctx); err != nil {
				return err
			}
			formatter.Info("Daemon stopped")
			return nil
		},
	}
}
