package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vibecheck/internal/app"
	"vibecheck/internal/domain"
)

var reconcileWorkers int

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute every business aggregate and report drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		workers := cfg.ReconcileWorkers
		if reconcileWorkers > 0 {
			workers = reconcileWorkers
		}
		return withStore(cmd.Context(), func(repo domain.Repository) error {
			sum, err := app.NewAggregationService(repo, nil).ReconcileAll(cmd.Context(), workers)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %d businesses: %d drifted, %d failed.\n", sum.Checked, len(sum.Drifted), len(sum.Failed))
			for _, d := range sum.Drifted {
				fmt.Fprintf(out, "  business %d: %.2f/%d -> %.2f/%d\n",
					d.BusinessID, d.Stored.Score, d.Stored.Total, d.Fresh.Score, d.Fresh.Total)
			}
			for id, err := range sum.Failed {
				fmt.Fprintf(out, "  business %d: %v\n", id, err)
			}
			if len(sum.Failed) > 0 {
				return fmt.Errorf("%d businesses failed to reconcile", len(sum.Failed))
			}
			return nil
		})
	},
}

func init() {
	reconcileCmd.Flags().IntVarP(&reconcileWorkers, "workers", "w", 0, "Concurrent businesses (default RECONCILE_WORKERS)")
}
