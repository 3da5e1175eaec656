package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calder/inkwell/internal/cloud"
	"github.com/calder/inkwell/internal/storage"
)

// Reconciler replays pending writes and deferred deletes against the cloud
// once it becomes reachable again. Replays are idempotent full-record
// upserts, so a replay interrupted mid-flight just runs again.
type Reconciler struct {
	cloud  CloudClient
	cache  *storage.Store
	poll   time.Duration
	logger *slog.Logger
}

// NewReconciler creates a Reconciler over the engine's cloud client and
// cache. If pollInterval is <= 0, it defaults to 15s.
func NewReconciler(cloudClient CloudClient, cache *storage.Store, pollInterval time.Duration) *Reconciler {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &Reconciler{
		cloud:  cloudClient,
		cache:  cache,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for due work until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("reconciler iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce replays a single pending write or deferred delete. Returns true if
// a queued change reached the cloud, meaning another may be due immediately.
// A failed replay returns false so the caller waits out the poll interval
// instead of hammering a cloud that keeps refusing.
func (r *Reconciler) RunOnce(ctx context.Context) (bool, error) {
	// Deletes replay before writes: a tombstoned record must not be
	// resurrected by a stale pending upsert elsewhere in the queue.
	tombstones, err := r.cache.ListTombstones()
	if err != nil {
		return false, fmt.Errorf("listing tombstones: %w", err)
	}
	if len(tombstones) > 0 {
		return r.replayDelete(ctx, tombstones[0])
	}

	pending, err := r.cache.ListPendingDue(time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("listing pending records: %w", err)
	}
	if len(pending) == 0 {
		return false, nil
	}
	return r.replayWrite(ctx, pending[0])
}

func (r *Reconciler) replayDelete(ctx context.Context, ts storage.Tombstone) (bool, error) {
	if err := r.cloud.Delete(ctx, ts.Kind, ts.ID); err != nil {
		if errors.Is(err, cloud.ErrUnavailable) {
			return false, nil // still offline, try again next poll
		}
		return false, fmt.Errorf("replaying delete of %s %s: %w", ts.Kind, ts.ID, err)
	}

	if err := r.cache.DeleteTombstone(ts.Kind, ts.ID); err != nil {
		return false, fmt.Errorf("clearing tombstone for %s %s: %w", ts.Kind, ts.ID, err)
	}
	r.logger.Info("deferred delete reached cloud", "kind", ts.Kind, "id", ts.ID)
	return true, nil
}

func (r *Reconciler) replayWrite(ctx context.Context, rec storage.Record) (bool, error) {
	// Create is an upsert on the record id, which makes it the right replay
	// verb for both unsynced creates and offline edits: the whole local
	// record wins over whatever the cloud holds, matching the user's last
	// accepted write on this device.
	if _, err := r.cloud.Create(ctx, rec.Kind, rec.Data); err != nil {
		if markErr := r.cache.MarkPending(rec.Kind, rec.ID, err.Error()); markErr != nil && !errors.Is(markErr, storage.ErrNotFound) {
			return false, fmt.Errorf("rescheduling %s %s: %w", rec.Kind, rec.ID, markErr)
		}
		if errors.Is(err, cloud.ErrUnavailable) {
			return false, nil
		}
		return false, fmt.Errorf("replaying write of %s %s: %w", rec.Kind, rec.ID, err)
	}

	if err := r.cache.ClearPending(rec.Kind, rec.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("clearing pending flag for %s %s: %w", rec.Kind, rec.ID, err)
	}
	r.logger.Info("pending write reached cloud", "kind", rec.Kind, "id", rec.ID)
	return true, nil
}
