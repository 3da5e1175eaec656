// Package engine is the unified storage facade. Reads prefer the cloud and
// fall back to the local cache when it is unreachable; writes go cloud-first
// and degrade to pending cache records that the reconciler replays later.
// Callers never talk to the cloud client or the record store directly.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/calder/inkwell/internal/cloud"
	"github.com/calder/inkwell/internal/model"
	"github.com/calder/inkwell/internal/storage"
	"github.com/calder/inkwell/internal/validate"
)

var (
	// ErrNotFound means the entity exists in neither the cloud nor the cache.
	ErrNotFound = errors.New("entity not found")
	// ErrPendingSync is returned alongside a usable entity: the write is
	// durable locally but has not been confirmed by the cloud yet. The
	// reconciler will replay it.
	ErrPendingSync = errors.New("saved locally, cloud sync pending")
)

// CloudClient is the subset of the cloud API the engine depends on. The
// concrete implementation is cloud.Client; tests substitute a fake.
type CloudClient interface {
	Ping(ctx context.Context) bool
	List(ctx context.Context, kind model.Kind, projectID string) ([]json.RawMessage, error)
	ListByParent(ctx context.Context, kind model.Kind, parentID string) ([]json.RawMessage, error)
	Get(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error)
	Create(ctx context.Context, kind model.Kind, record []byte) (json.RawMessage, error)
	Patch(ctx context.Context, kind model.Kind, id string, patch map[string]any) (json.RawMessage, error)
	Delete(ctx context.Context, kind model.Kind, id string) error
}

// Engine coordinates the cloud client, the local cache, and validation.
type Engine struct {
	cloud  CloudClient
	cache  *storage.Store
	quota  *validate.Guard
	userID string
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine for the given user. quota may be nil to disable
// cache quota enforcement.
func New(cloudClient CloudClient, cache *storage.Store, quota *validate.Guard, userID string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cloud:  cloudClient,
		cache:  cache,
		quota:  quota,
		userID: userID,
		logger: logger,
		now:    time.Now,
	}
}

// IsCloudAvailable probes the cloud service.
func (e *Engine) IsCloudAvailable(ctx context.Context) bool {
	return e.cloud.Ping(ctx)
}

// recoverable reports whether a cloud failure degrades gracefully: reads fall
// back to the cache, writes become queued pending records. Anything else
// (validation rejections, decode failures) aborts the operation outright.
func recoverable(err error) bool {
	return errors.Is(err, cloud.ErrUnavailable) || errors.Is(err, cloud.ErrAuth)
}

// deferredErr is what a queued write surfaces to the caller. Outages read as
// plain ErrPendingSync; auth failures keep their identity too, so the caller
// knows the queue will not drain until re-authentication.
func deferredErr(op string, cause error) error {
	if errors.Is(cause, cloud.ErrAuth) {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrPendingSync, cause))
	}
	return fmt.Errorf("%s: %w", op, ErrPendingSync)
}

// Get returns one entity, cloud-first. stale is true when the result came
// from the local cache because the cloud was unreachable.
func (e *Engine) Get(ctx context.Context, kind model.Kind, id string) (model.Entity, bool, error) {
	// A record deleted on this device stays deleted, whatever the cloud
	// still holds until the reconciler replays the delete.
	gone, err := e.cache.HasTombstone(kind, id)
	if err != nil {
		return nil, false, err
	}
	if gone {
		return nil, false, ErrNotFound
	}

	// A pending record is a write the cloud has not accepted yet. It is
	// strictly newer than anything a cloud read could return, so the cloud
	// is not consulted at all.
	if rec, err := e.cache.Get(kind, id); err == nil && rec.Pending {
		ent, decErr := model.Decode(kind, rec.Data)
		if decErr != nil {
			return nil, false, decErr
		}
		return ent, false, nil
	}

	raw, err := e.cloud.Get(ctx, kind, id)
	switch {
	case err == nil:
		ent, decErr := model.Decode(kind, raw)
		if decErr != nil {
			return nil, false, decErr
		}
		return e.freshest(ent), false, nil
	case errors.Is(err, cloud.ErrNotFound):
		// The cloud is authoritative: absent there means deleted, even if a
		// cached copy lingers.
		e.cache.Delete(kind, id)
		return nil, false, ErrNotFound
	case recoverable(err):
		rec, cacheErr := e.cache.Get(kind, id)
		if errors.Is(cacheErr, storage.ErrNotFound) {
			if errors.Is(err, cloud.ErrAuth) {
				// Unlike an outage, a credential failure says nothing about
				// whether the record exists; report the real problem.
				return nil, false, err
			}
			return nil, false, ErrNotFound
		}
		if cacheErr != nil {
			return nil, false, cacheErr
		}
		ent, decErr := model.Decode(kind, rec.Data)
		if decErr != nil {
			return nil, false, decErr
		}
		return ent, true, nil
	default:
		return nil, false, err
	}
}

// List returns all entities of a kind, cloud-first with cache fallback.
func (e *Engine) List(ctx context.Context, kind model.Kind) ([]model.Entity, bool, error) {
	raws, err := e.cloud.List(ctx, kind, "")
	if err == nil {
		return e.mergeCloudList(kind, raws, func(storage.Record) bool { return true })
	}
	if !recoverable(err) {
		return nil, false, err
	}

	recs, cacheErr := e.cache.ListKind(kind)
	if cacheErr != nil {
		return nil, false, cacheErr
	}
	return decodeRecords(recs, true)
}

// ListByProject returns a project's entities of one kind. Online the cloud
// filters server-side; offline the cache enumerates by its project index.
func (e *Engine) ListByProject(ctx context.Context, kind model.Kind, projectID string) ([]model.Entity, bool, error) {
	raws, err := e.cloud.List(ctx, kind, projectID)
	if err == nil {
		return e.mergeCloudList(kind, raws, func(rec storage.Record) bool { return rec.ProjectID == projectID })
	}
	if !recoverable(err) {
		return nil, false, err
	}

	recs, cacheErr := e.cache.ListByProject(kind, projectID)
	if cacheErr != nil {
		return nil, false, cacheErr
	}
	return decodeRecords(recs, true)
}

// ListByFolder returns a folder's direct children of one kind.
func (e *Engine) ListByFolder(ctx context.Context, kind model.Kind, folderID string) ([]model.Entity, bool, error) {
	raws, err := e.cloud.ListByParent(ctx, kind, folderID)
	if err == nil {
		return e.mergeCloudList(kind, raws, func(rec storage.Record) bool { return rec.ParentID == folderID })
	}
	if !recoverable(err) {
		return nil, false, err
	}

	recs, cacheErr := e.cache.ListByParent(kind, folderID)
	if cacheErr != nil {
		return nil, false, cacheErr
	}
	return decodeRecords(recs, true)
}

// mergeCloudList resolves a cloud listing against local state: ids with
// unreplayed local deletes drop out, each survivor refreshes the cache unless
// the cached copy is newer, and pending local writes within inScope join the
// result. Sorted newest first, matching the cache's own enumeration order.
func (e *Engine) mergeCloudList(kind model.Kind, raws []json.RawMessage, inScope func(storage.Record) bool) ([]model.Entity, bool, error) {
	gone, err := e.cache.TombstonedIDs(kind)
	if err != nil {
		return nil, false, err
	}

	entities := make([]model.Entity, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		ent, decErr := model.Decode(kind, raw)
		if decErr != nil {
			return nil, false, decErr
		}
		if gone[ent.GetID()] {
			continue
		}
		seen[ent.GetID()] = true
		entities = append(entities, e.freshest(ent))
	}

	pending, err := e.cache.ListPending(kind)
	if err != nil {
		return nil, false, err
	}
	for _, rec := range pending {
		if seen[rec.ID] || !inScope(rec) {
			continue
		}
		ent, decErr := model.Decode(kind, rec.Data)
		if decErr != nil {
			return nil, false, decErr
		}
		entities = append(entities, ent)
	}

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].GetModifiedAt().After(entities[j].GetModifiedAt())
	})
	return entities, false, nil
}

// freshest resolves a cloud-read record against the cache. Normally the cloud
// copy wins and refreshes the cache. A cached copy that is pending, or that
// carries a newer modifiedAt, reflects a write this device accepted after the
// state the cloud read saw; it is returned instead and left in place. This is
// what keeps a read racing a just-issued write from reverting it.
func (e *Engine) freshest(ent model.Entity) model.Entity {
	prior, err := e.cache.Get(ent.GetKind(), ent.GetID())
	if err == nil && (prior.Pending || prior.ModifiedAt.After(ent.GetModifiedAt())) {
		if local, decErr := model.Decode(prior.Kind, prior.Data); decErr == nil {
			return local
		}
	}
	e.cacheConfirmed(ent)
	return ent
}

// Create validates and stores a new entity, cloud-first so server-assigned
// state lands in the result, then mirrors it into the cache. When the cloud
// cannot take the write the entity is still returned, cached as pending,
// together with ErrPendingSync.
func (e *Engine) Create(ctx context.Context, ent model.Entity) (model.Entity, error) {
	if err := e.prepareWrite(ent); err != nil {
		return nil, err
	}

	data, err := model.Encode(ent)
	if err != nil {
		return nil, err
	}

	raw, cloudErr := e.cloud.Create(ctx, ent.GetKind(), data)
	if cloudErr != nil && !recoverable(cloudErr) {
		return nil, cloudErr
	}

	// A fresh write to this id supersedes any delete still queued for it.
	// Brand voices reuse their project's id, so this is a real sequence.
	if err := e.cache.DeleteTombstone(ent.GetKind(), ent.GetID()); err != nil {
		return nil, err
	}

	if cloudErr != nil {
		if err := e.cachePending(ent, cloudErr); err != nil {
			return nil, err
		}
		return ent, deferredErr(fmt.Sprintf("creating %s", ent.GetKind()), cloudErr)
	}

	stored, decErr := model.Decode(ent.GetKind(), raw)
	if decErr != nil {
		// The write took; a malformed response body must not lose it.
		e.logger.Warn("create response undecodable, caching sent record",
			"kind", ent.GetKind(), "id", ent.GetID(), "error", decErr)
		stored = ent
	}
	e.cacheConfirmed(stored)
	return stored, nil
}

// Update applies a partial-field patch through a read-modify-write that is
// immune to read timing: the base comes from the local cache, only the
// patched fields travel to the cloud, and the locally merged record is what
// lands back in the cache. The cloud's patch response is deliberately unused;
// re-reading the cloud here could race the write's own propagation and
// resurrect the pre-update record.
func (e *Engine) Update(ctx context.Context, kind model.Kind, id string, patch map[string]any) (model.Entity, error) {
	base, basePending, err := e.loadBase(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	merged, err := model.Merge(base, patch)
	if err != nil {
		return nil, err
	}
	if err := e.prepareWrite(merged); err != nil {
		return nil, err
	}

	if basePending {
		// The cloud never accepted this record, so patching it there would
		// 404. Fold the edit into the queued record; the replay carries both.
		if err := e.cachePending(merged, errors.New("awaiting initial sync")); err != nil {
			return nil, err
		}
		return merged, fmt.Errorf("updating %s %s: %w", kind, id, ErrPendingSync)
	}

	_, cloudErr := e.cloud.Patch(ctx, kind, id, patch)
	switch {
	case cloudErr == nil:
		e.cacheConfirmed(merged)
		return merged, nil
	case errors.Is(cloudErr, cloud.ErrNotFound):
		// Deleted out from under us by another device.
		e.cache.Delete(kind, id)
		return nil, ErrNotFound
	case recoverable(cloudErr):
		if err := e.cachePending(merged, cloudErr); err != nil {
			return nil, err
		}
		return merged, deferredErr(fmt.Sprintf("updating %s %s", kind, id), cloudErr)
	default:
		return nil, cloudErr
	}
}

// Delete removes an entity from both tiers, cascading ownership. A project
// delete removes everything it owns; a folder delete removes its subfolders
// recursively and moves its direct documents to the project root. Deletes the
// cloud cannot take yet leave tombstones and surface ErrPendingSync.
func (e *Engine) Delete(ctx context.Context, kind model.Kind, id string) error {
	switch kind {
	case model.KindProject:
		return e.deleteProject(ctx, id)
	case model.KindFolder:
		return e.deleteFolder(ctx, id)
	default:
		return e.deleteRecord(ctx, kind, id)
	}
}

func (e *Engine) deleteRecord(ctx context.Context, kind model.Kind, id string) error {
	cloudErr := e.cloud.Delete(ctx, kind, id)
	if cloudErr != nil && !recoverable(cloudErr) {
		return cloudErr
	}
	if cloudErr != nil {
		if err := e.cache.AddTombstone(kind, id, e.now().UTC()); err != nil {
			return err
		}
		e.logger.Warn("delete deferred, cloud unreachable", "kind", kind, "id", id, "error", cloudErr)
	}
	if err := e.cache.Delete(kind, id); err != nil {
		return err
	}
	if cloudErr != nil {
		return deferredErr(fmt.Sprintf("deleting %s %s", kind, id), cloudErr)
	}
	return nil
}

func (e *Engine) deleteProject(ctx context.Context, id string) error {
	// Deleting the last project would leave nothing to attach new content
	// to, so repair the invariant before the delete.
	n, err := e.cache.CountKind(model.KindProject)
	if err != nil {
		return err
	}
	var deferred error
	if n <= 1 {
		p, err := e.EnsureDefaultProject(ctx, id)
		if err != nil {
			if p == nil {
				return err
			}
			deferred = err
		}
	}

	cloudErr := e.cloud.Delete(ctx, model.KindProject, id)
	if cloudErr != nil && !recoverable(cloudErr) {
		return cloudErr
	}
	if cloudErr != nil {
		// Tombstone the project and everything it owns, so reads keep the
		// whole subtree hidden until the replay. The server cascades the
		// project delete at replay time, making the child replays no-ops.
		if err := e.cache.AddTombstone(model.KindProject, id, e.now().UTC()); err != nil {
			return err
		}
		for _, kind := range model.ProjectOwnedKinds() {
			recs, err := e.cache.ListByProject(kind, id)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if err := e.cache.AddTombstone(kind, rec.ID, e.now().UTC()); err != nil {
					return err
				}
			}
		}
		e.logger.Warn("project delete deferred, cloud unreachable", "id", id, "error", cloudErr)
	}
	if err := e.cache.DeleteByProject(id); err != nil {
		return err
	}
	if cloudErr != nil {
		return deferredErr("deleting project "+id, cloudErr)
	}
	return deferred
}

func (e *Engine) deleteFolder(ctx context.Context, id string) error {
	rec, err := e.cache.Get(model.KindFolder, id)
	if errors.Is(err, storage.ErrNotFound) {
		return e.deleteRecord(ctx, model.KindFolder, id)
	}
	if err != nil {
		return err
	}
	folder, err := model.Decode(model.KindFolder, rec.Data)
	if err != nil {
		return err
	}

	// A deferred step must not stop the cascade; the first one is remembered
	// and surfaced once the whole tree is handled.
	var deferred error

	// Subfolders go recursively.
	subs, err := e.cache.ListByParent(model.KindFolder, id)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		switch err := e.deleteFolder(ctx, sub.ID); {
		case errors.Is(err, ErrPendingSync):
			deferred = err
		case err != nil:
			return err
		}
	}

	// Direct documents survive, reparented to the project root.
	docs, err := e.cache.ListByParent(model.KindDocument, id)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		switch _, err := e.Update(ctx, model.KindDocument, doc.ID, map[string]any{"folderId": nil}); {
		case errors.Is(err, ErrPendingSync):
			deferred = err
		case err != nil:
			return fmt.Errorf("moving document %s out of folder %s: %w", doc.ID, folder.GetID(), err)
		}
	}

	switch err := e.deleteRecord(ctx, model.KindFolder, id); {
	case errors.Is(err, ErrPendingSync):
		deferred = err
	case err != nil:
		return err
	}
	return deferred
}

// EnsureDefaultProject guarantees at least one project exists, excluding the
// given id (used mid-delete). It returns the project that satisfies the
// invariant, creating a default one when needed. A non-nil project alongside
// a non-nil error means the project exists locally with its sync deferred.
func (e *Engine) EnsureDefaultProject(ctx context.Context, excludeID string) (*model.Project, error) {
	projects, _, err := e.List(ctx, model.KindProject)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	for _, p := range projects {
		if p.GetID() != excludeID {
			return p.(*model.Project), nil
		}
	}

	created, err := e.Create(ctx, model.NewDefaultProject())
	if created == nil {
		return nil, err
	}
	e.logger.Info("created default project", "id", created.GetID())
	return created.(*model.Project), err
}

// loadBase fetches the record an update merges against, preferring the cache
// (it reflects this device's latest accepted write) and falling back to the
// cloud on a cache miss. pending reports whether the cached base is itself
// still waiting for its first cloud confirmation.
func (e *Engine) loadBase(ctx context.Context, kind model.Kind, id string) (base model.Entity, pending bool, err error) {
	rec, err := e.cache.Get(kind, id)
	if err == nil {
		base, err = model.Decode(kind, rec.Data)
		return base, rec.Pending, err
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	base, _, err = e.Get(ctx, kind, id)
	return base, false, err
}

// prepareWrite runs the shared pre-write pipeline: id assignment, structural
// checks, sanitization, derived counts, timestamps, and the quota guard.
func (e *Engine) prepareWrite(ent model.Entity) error {
	e.assignIdentity(ent)

	if err := validate.Entity(ent); err != nil {
		return err
	}
	if folder, ok := ent.(*model.Folder); ok && folder.ParentFolderID != "" {
		if err := e.checkFolderCycle(folder); err != nil {
			return err
		}
	}
	if doc, ok := ent.(*model.Document); ok {
		doc.RefreshCounts()
	}

	ent.Touch(e.now())

	data, err := model.Encode(ent)
	if err != nil {
		return err
	}
	return e.quota.Check(len(data))
}

// assignIdentity fills in a fresh id for kinds whose identity is not derived
// from another field. BrandVoice keys off its project, UserSettings off the
// engine's user.
func (e *Engine) assignIdentity(ent model.Entity) {
	switch v := ent.(type) {
	case *model.Project:
		if v.ID == "" {
			v.ID = model.NewID()
		}
	case *model.Document:
		if v.ID == "" {
			v.ID = model.NewID()
		}
	case *model.Folder:
		if v.ID == "" {
			v.ID = model.NewID()
		}
	case *model.Snippet:
		if v.ID == "" {
			v.ID = model.NewID()
		}
	case *model.Persona:
		if v.ID == "" {
			v.ID = model.NewID()
		}
	case *model.UserSettings:
		if v.UserID == "" {
			v.UserID = e.userID
		}
	}
}

// checkFolderCycle walks the parent chain in the cache and rejects a parent
// assignment that would make the folder its own ancestor or attach it to
// another project's tree. Parents the cache does not hold end the walk.
func (e *Engine) checkFolderCycle(folder *model.Folder) error {
	seen := map[string]bool{folder.ID: true}
	parentID := folder.ParentFolderID
	for parentID != "" {
		if seen[parentID] {
			return &validate.FieldError{Field: "parentFolderId", Reason: "would create a folder cycle"}
		}
		seen[parentID] = true

		rec, err := e.cache.Get(model.KindFolder, parentID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.ProjectID != folder.ProjectID {
			return &validate.FieldError{Field: "parentFolderId", Reason: "must reference a folder in the same project"}
		}
		parent, err := model.Decode(model.KindFolder, rec.Data)
		if err != nil {
			return err
		}
		parentID = parent.GetParentID()
	}
	return nil
}

// cacheConfirmed stores a record whose write the cloud has confirmed (or
// whose content the facade itself constructed), clearing any pending state.
// Cache failures are logged, not surfaced: the write already succeeded where
// it matters.
func (e *Engine) cacheConfirmed(ent model.Entity) {
	rec, err := e.toRecord(ent)
	if err == nil {
		err = e.cache.Put(rec)
	}
	if err != nil {
		e.logger.Warn("caching record failed", "kind", ent.GetKind(), "id", ent.GetID(), "error", err)
	}
}

// cachePending stores a record the cloud has not confirmed and schedules its
// first replay.
func (e *Engine) cachePending(ent model.Entity, cause error) error {
	rec, err := e.toRecord(ent)
	if err != nil {
		return err
	}
	rec.Pending = true
	if err := e.cache.Put(rec); err != nil {
		return fmt.Errorf("caching pending %s %s: %w", rec.Kind, rec.ID, err)
	}
	return e.cache.MarkPending(rec.Kind, rec.ID, cause.Error())
}

func (e *Engine) toRecord(ent model.Entity) (storage.Record, error) {
	data, err := model.Encode(ent)
	if err != nil {
		return storage.Record{}, err
	}
	projectID := ent.GetProjectID()
	if ent.GetKind() == model.KindProject {
		// A project owns itself so DeleteByProject sweeps its own row too.
		projectID = ent.GetID()
	}
	return storage.Record{
		Kind:       ent.GetKind(),
		ID:         ent.GetID(),
		ProjectID:  projectID,
		ParentID:   ent.GetParentID(),
		Data:       data,
		ModifiedAt: ent.GetModifiedAt(),
	}, nil
}

func decodeRecords(recs []storage.Record, stale bool) ([]model.Entity, bool, error) {
	entities := make([]model.Entity, 0, len(recs))
	for _, rec := range recs {
		ent, err := model.Decode(rec.Kind, rec.Data)
		if err != nil {
			return nil, stale, err
		}
		entities = append(entities, ent)
	}
	return entities, stale, nil
}
