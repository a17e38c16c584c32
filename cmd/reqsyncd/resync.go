package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clubworks/reqsync/internal/config"
	"github.com/clubworks/reqsync/internal/telemetry"
	"github.com/clubworks/reqsync/internal/tracker"
)

var resyncCmd = &cobra.Command{
	Use:   "resync [request-id]",
	Short: "Reconcile requests against GitHub immediately",
	Long: `Reconcile one request (by id) or, with --all, every linked request,
without waiting for the scheduler interval. Unlinked requests are skipped
unless --strict is set, in which case they are rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		strict, _ := cmd.Flags().GetBool("strict")

		if all == (len(args) == 1) {
			return fmt.Errorf("pass exactly one request id, or --all")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		reconciler := tracker.NewReconciler(store, buildPort(cfg, telemetry.NewSyncMetrics()))
		reconciler.CallDelay = cfg.Reconcile.CallDelay
		reconciler.OnWarning = func(msg string) { logWarn("%s", msg) }

		if all {
			summary, err := reconciler.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reconciled: %s\n", summary)
			return nil
		}

		if err := reconciler.ResyncOne(ctx, args[0], strict); err != nil {
			return err
		}
		fmt.Printf("Reconciled %s\n", args[0])
		return nil
	},
}

func init() {
	resyncCmd.Flags().Bool("all", false, "reconcile every linked request")
	resyncCmd.Flags().Bool("strict", false, "treat unlinked requests as an error")
}
