package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calder/inkwell/internal/model"
	"github.com/calder/inkwell/internal/storage"
)

// MigrationStatus describes whether the one-time local-to-cloud migration has
// run for this user.
type MigrationStatus string

const (
	// MigrationNotNeeded means there is no local-only data to migrate.
	MigrationNotNeeded MigrationStatus = "not-needed"
	// MigrationPending means local data exists that the cloud has never seen.
	MigrationPending MigrationStatus = "pending"
	// MigrationCompleted means the migration already ran to completion.
	MigrationCompleted MigrationStatus = "completed"
)

// migrationUploadLimit bounds concurrent uploads within one kind. Kinds
// themselves migrate sequentially so parents exist before their children.
const migrationUploadLimit = 4

// MigrationReport summarizes one migration run.
type MigrationReport struct {
	Status   MigrationStatus
	Uploaded int
	Failed   int
}

func (e *Engine) migrationMarker() string {
	return "migration_completed:" + e.userID
}

// MigrationStatusFor reports whether Migrate needs to run. The completion
// marker is per user, so switching accounts on the same device re-checks.
func (e *Engine) MigrationStatusFor(ctx context.Context) (MigrationStatus, error) {
	if _, err := e.cache.GetMeta(e.migrationMarker()); err == nil {
		return MigrationCompleted, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	for _, kind := range model.Kinds() {
		n, err := e.cache.CountKind(kind)
		if err != nil {
			return "", err
		}
		if n > 0 {
			return MigrationPending, nil
		}
	}
	return MigrationNotNeeded, nil
}

// Migrate uploads every locally cached record to the cloud, once per user.
// Uploads are idempotent upserts keyed by record id, so a run interrupted by
// a crash or network failure can simply be repeated; the completion marker is
// only written after a fully clean run. Already-migrated users return
// immediately with MigrationCompleted.
func (e *Engine) Migrate(ctx context.Context) (MigrationReport, error) {
	status, err := e.MigrationStatusFor(ctx)
	if err != nil {
		return MigrationReport{}, err
	}
	if status != MigrationPending {
		if status == MigrationNotNeeded {
			// Nothing to upload; remember that so future runs skip the scan.
			if err := e.cache.SetMeta(e.migrationMarker(), e.now().UTC().Format(time.RFC3339)); err != nil {
				return MigrationReport{}, err
			}
		}
		return MigrationReport{Status: status}, nil
	}

	report := MigrationReport{Status: MigrationCompleted}
	var mu sync.Mutex

	// Parents before children: a document upload must not race its project's.
	for _, kind := range model.Kinds() {
		recs, err := e.cache.ListKind(kind)
		if err != nil {
			return report, err
		}
		if len(recs) == 0 {
			continue
		}

		// Only local-only data migrates. An id the cloud already holds may
		// carry newer edits from another device; re-upserting it from this
		// cache would revert them.
		known, err := e.cloudIDs(ctx, kind)
		if err != nil {
			report.Status = MigrationPending
			return report, fmt.Errorf("listing cloud %s records: %w", kind, err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(migrationUploadLimit)
		for _, rec := range recs {
			if known[rec.ID] {
				continue
			}
			g.Go(func() error {
				_, err := e.cloud.Create(gctx, rec.Kind, rec.Data)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					e.logger.Warn("migration upload failed", "kind", rec.Kind, "id", rec.ID, "error", err)
					return err
				}
				report.Uploaded++
				if err := e.cache.ClearPending(rec.Kind, rec.ID); err != nil {
					e.logger.Warn("resetting sync bookkeeping after upload", "kind", rec.Kind, "id", rec.ID, "error", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			report.Status = MigrationPending
			return report, fmt.Errorf("migrating %s records: %w", kind, err)
		}
	}

	if err := e.cache.SetMeta(e.migrationMarker(), e.now().UTC().Format(time.RFC3339)); err != nil {
		return report, err
	}
	e.logger.Info("local data migrated to cloud", "uploaded", report.Uploaded)
	return report, nil
}

// cloudIDs returns the ids the cloud currently holds for a kind.
func (e *Engine) cloudIDs(ctx context.Context, kind model.Kind) (map[string]bool, error) {
	raws, err := e.cloud.List(ctx, kind, "")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(raws))
	for _, raw := range raws {
		ent, err := model.Decode(kind, raw)
		if err != nil {
			return nil, err
		}
		ids[ent.GetID()] = true
	}
	return ids, nil
}
