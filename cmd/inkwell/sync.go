package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calder/inkwell/internal/engine"
	"github.com/calder/inkwell/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued offline changes to the cloud",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		rec := engine.NewReconciler(ws.cloud, ws.store, ws.cfg.Sync.Interval)

		if watch {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			printStep("Watching for queued changes (interval %s)...", ws.cfg.Sync.Interval)
			rec.Run(ctx)
			return nil
		}

		replayed := 0
		for {
			worked, err := rec.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if !worked {
				break
			}
			replayed++
		}
		if replayed == 0 {
			printSuccess("Nothing to sync")
		} else {
			printSuccess("Replayed %d queued change(s)", replayed)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload local-only data to the cloud (one-time)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		report, err := ws.eng.Migrate(cmd.Context())
		if err != nil {
			if report.Failed > 0 {
				printError("%d record(s) failed to upload; run migrate again", report.Failed)
			}
			return err
		}

		switch report.Status {
		case engine.MigrationNotNeeded:
			printSuccess("No local data to migrate")
		case engine.MigrationCompleted:
			if report.Uploaded == 0 {
				printSuccess("Migration already completed")
			} else {
				printSuccess("Migrated %d record(s) to the cloud", report.Uploaded)
			}
		default:
			printWarning("Migration still pending")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}
		defer ws.Close()

		ctx := cmd.Context()

		if ws.eng.IsCloudAvailable(ctx) {
			printStatus("Cloud", "reachable at %s", ws.cfg.Cloud.BaseURL)
		} else {
			printStatus("Cloud", "unreachable (%s)", ws.cfg.Cloud.BaseURL)
		}

		migration, err := ws.eng.MigrationStatusFor(ctx)
		if err != nil {
			printStatus("Migration", "error: %v", err)
		} else {
			printStatus("Migration", "%s", migration)
		}

		for _, kind := range model.Kinds() {
			n, err := ws.store.CountKind(kind)
			if err != nil {
				continue
			}
			if n > 0 {
				printStatus(fmt.Sprintf("Cached %s", kind), "%d", n)
			}
		}

		// Backoff caps at one hour, so everything pending is due within two.
		pending, err := ws.store.ListPendingDue(time.Now().UTC().Add(2 * time.Hour))
		if err == nil {
			printStatus("Pending writes", "%d", len(pending))
		}
		tombstones, err := ws.store.ListTombstones()
		if err == nil {
			printStatus("Deferred deletes", "%d", len(tombstones))
		}

		used, err := ws.store.UsedBytes()
		if err == nil {
			printStatus("Cache size", "%.1f MB of %d MB", float64(used)/(1<<20), ws.cfg.Storage.QuotaMB)
		}

		printStatus("User", "%s", ws.cfg.Auth.UserID)
		printStatus("Data dir", "%s", ws.cfg.Storage.DataDir)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("watch", false, "keep syncing until interrupted")
}
