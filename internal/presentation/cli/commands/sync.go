package commands

import (
	"github.com/spf13/cobra"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/offline"
)

// NewSyncCmd creates the sync command group.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and send changes made offline",
	}

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncDrainCmd())

	return cmd
}

// countByOperation groups queued operations by entity and action.
func countByOperation(ops []*offline.PendingOperation) map[string]int {
	counts := make(map[string]int)
	for _, op := range ops {
		counts[op.Key()]++
	}
	return counts
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and pending changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			ops, err := c.Queue().List(ctx)
			if err != nil {
				return err
			}
			return formatter.PendingSummary(c.Reachable(ctx), countByOperation(ops), len(ops))
		},
	}
}

func newSyncDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "now",
		Aliases: []string{"drain"},
		Short:   "Send pending changes now",
		Long: `Send every pending change in the order it was made. Changes that keep
failing are dropped after the retry limit; connection failures keep them
queued for later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, formatter, err := mustApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if !c.Connect(ctx) {
				return domainerrors.ErrOffline
			}
			// Coming online drains on its own.
			if res, ok := c.TakeReconnectDrain(); ok {
				return formatter.DrainResult(res)
			}
			return formatter.DrainResult(c.Reconciler().Drain(ctx))
		},
	}
}
