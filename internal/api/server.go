// Package api implements the reference cloud service the engine syncs
// against: a JSON record API over per-user SQLite stores. Running it locally
// (inkwell serve) gives a full offline development target with the exact
// merge and cascade semantics production clients rely on.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calder/inkwell/internal/model"
	"github.com/calder/inkwell/internal/storage"
	"github.com/calder/inkwell/internal/validate"
)

const (
	maxRequestBodySize = 10 << 20 // 10MB, bounded by the persona photo cap

	// userHeader names the account a request operates on. The bearer token
	// authenticates the deployment; this header picks the tenant within it.
	userHeader = "X-Inkwell-User"
)

// timeNow is swapped out by tests that need a fixed clock.
var timeNow = time.Now

// StoreProvider resolves the record store for one user id. The reference
// server keeps tenants apart with a separate database per user.
type StoreProvider func(userID string) (*storage.Store, error)

type ServerDeps struct {
	Stores     StoreProvider
	Token      string
	QuotaBytes int64 // per-user storage ceiling; 0 disables enforcement
}

// NewHandler builds the /api/v1 router. The health probe stays outside the
// auth middleware so unauthenticated clients can check availability.
func NewHandler(deps ServerDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/v1/health", handleHealth)

	r.Route("/api/v1/{kind}", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(requireKind)

		r.Get("/", handleList(deps))
		r.Post("/", handleUpsert(deps))
		r.Get("/{id}", handleGet(deps))
		r.Patch("/{id}", handlePatch(deps))
		r.Delete("/{id}", handleDelete(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// requireKind rejects collection names outside the closed entity-kind set
// before any handler runs.
func requireKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := model.ParseKind(chi.URLParam(r, "kind")); err != nil {
			httpError(w, http.StatusNotFound, "not_found", "unknown collection %q", chi.URLParam(r, "kind"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func kindParam(r *http.Request) model.Kind {
	kind, _ := model.ParseKind(chi.URLParam(r, "kind"))
	return kind
}

// userIDPattern guards the tenant id before it can reach the filesystem.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9@._-]+$`)

func userStore(deps ServerDeps, r *http.Request) (*storage.Store, *writeError) {
	userID := r.Header.Get(userHeader)
	if !userIDPattern.MatchString(userID) {
		return nil, &writeError{http.StatusBadRequest, "invalid_request_error",
			fmt.Sprintf("missing or malformed %s header", userHeader)}
	}
	store, err := deps.Stores(userID)
	if err != nil {
		return nil, &writeError{http.StatusInternalServerError, "api_error",
			fmt.Sprintf("opening store for %s: %v", userID, err)}
	}
	return store, nil
}

func handleList(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := kindParam(r)
		store, werr := userStore(deps, r)
		if werr != nil {
			werr.send(w)
			return
		}

		var recs []storage.Record
		var err error
		switch {
		case r.URL.Query().Get("projectId") != "":
			recs, err = store.ListByProject(kind, r.URL.Query().Get("projectId"))
		case r.URL.Query().Get("parentId") != "":
			recs, err = store.ListByParent(kind, r.URL.Query().Get("parentId"))
		default:
			recs, err = store.ListKind(kind)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list records: %v", err)
			return
		}

		out := make([]json.RawMessage, 0, len(recs))
		for _, rec := range recs {
			out = append(out, json.RawMessage(rec.Data))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGet(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, werr := userStore(deps, r)
		if werr != nil {
			werr.send(w)
			return
		}

		rec, err := store.Get(kindParam(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "record not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get record: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(rec.Data)
	}
}

// handleUpsert stores a whole record, overwriting any existing one with the
// same id. Idempotence here is what lets clients safely replay creates after
// a timeout.
func handleUpsert(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := kindParam(r)
		store, werr := userStore(deps, r)
		if werr != nil {
			werr.send(w)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
			return
		}

		ent, err := model.Decode(kind, body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid %s record: %v", kind, err)
			return
		}

		if writeErr := storeEntity(deps, store, ent); writeErr != nil {
			writeErr.send(w)
			return
		}

		respondEntity(w, ent)
	}
}

// handlePatch merges a partial-field update against the server's current
// record and returns the authoritative result. Fields the patch does not name
// keep their server values regardless of what the client last saw.
func handlePatch(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := kindParam(r)
		id := chi.URLParam(r, "id")
		store, werr := userStore(deps, r)
		if werr != nil {
			werr.send(w)
			return
		}

		rec, err := store.Get(kind, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "record not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get record: %v", err)
			return
		}

		base, err := model.Decode(kind, rec.Data)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "stored %s record is corrupt: %v", kind, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid patch body: %v", err)
			return
		}

		merged, err := model.Merge(base, patch)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if writeErr := storeEntity(deps, store, merged); writeErr != nil {
			writeErr.send(w)
			return
		}

		respondEntity(w, merged)
	}
}

func handleDelete(deps ServerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := kindParam(r)
		id := chi.URLParam(r, "id")
		store, werr := userStore(deps, r)
		if werr != nil {
			werr.send(w)
			return
		}

		var err error
		switch kind {
		case model.KindProject:
			err = store.DeleteByProject(id)
		case model.KindFolder:
			err = deleteFolderTree(store, id)
		default:
			err = store.Delete(kind, id)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete record: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// deleteFolderTree removes a folder and its subfolders, moving each folder's
// direct documents to the project root.
func deleteFolderTree(store *storage.Store, id string) error {
	subs, err := store.ListByParent(model.KindFolder, id)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := deleteFolderTree(store, sub.ID); err != nil {
			return err
		}
	}

	docs, err := store.ListByParent(model.KindDocument, id)
	if err != nil {
		return err
	}
	for _, docRec := range docs {
		doc, err := model.Decode(model.KindDocument, docRec.Data)
		if err != nil {
			return err
		}
		doc.(*model.Document).FolderID = ""
		doc.Touch(timeNow())
		data, err := model.Encode(doc)
		if err != nil {
			return err
		}
		docRec.ParentID = ""
		docRec.Data = data
		docRec.ModifiedAt = doc.GetModifiedAt()
		if err := store.Put(docRec); err != nil {
			return err
		}
	}

	return store.Delete(model.KindFolder, id)
}

// checkFolderParent walks the stored parent chain and rejects a folder whose
// parent link loops back to itself or crosses into another project. Parents
// not stored yet end the walk: clients replaying offline work may upload a
// subtree child-first. A cycle can only close once every link in it exists,
// and that closing write is the one rejected here.
func checkFolderParent(store *storage.Store, folder *model.Folder) error {
	seen := map[string]bool{folder.ID: true}
	parentID := folder.ParentFolderID
	for parentID != "" {
		if seen[parentID] {
			return &validate.FieldError{Field: "parentFolderId", Reason: "would create a folder cycle"}
		}
		seen[parentID] = true

		rec, err := store.Get(model.KindFolder, parentID)
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

// writeError carries an HTTP status alongside the handler error taxonomy.
type writeError struct {
	status  int
	errType string
	message string
}

func (e *writeError) send(w http.ResponseWriter) {
	httpError(w, e.status, e.errType, "%s", e.message)
}

// storeEntity runs the shared validate-stamp-persist pipeline for upserts and
// patches.
func storeEntity(deps ServerDeps, store *storage.Store, ent model.Entity) *writeError {
	if err := validate.Entity(ent); err != nil {
		return &writeError{http.StatusBadRequest, "invalid_request_error", err.Error()}
	}
	if folder, ok := ent.(*model.Folder); ok {
		if err := checkFolderParent(store, folder); err != nil {
			var fieldErr *validate.FieldError
			if errors.As(err, &fieldErr) {
				return &writeError{http.StatusBadRequest, "invalid_request_error", err.Error()}
			}
			return &writeError{http.StatusInternalServerError, "api_error", err.Error()}
		}
	}
	if doc, ok := ent.(*model.Document); ok {
		doc.RefreshCounts()
	}
	ent.Touch(timeNow())

	data, err := model.Encode(ent)
	if err != nil {
		return &writeError{http.StatusInternalServerError, "api_error", err.Error()}
	}
	var guard *validate.Guard
	if deps.QuotaBytes > 0 {
		guard = validate.NewGuard(deps.QuotaBytes, store.UsedBytes)
	}
	if err := guard.Check(len(data)); err != nil {
		return &writeError{http.StatusInsufficientStorage, "quota_error", err.Error()}
	}

	projectID := ent.GetProjectID()
	if ent.GetKind() == model.KindProject {
		projectID = ent.GetID()
	}
	rec := storage.Record{
		Kind:       ent.GetKind(),
		ID:         ent.GetID(),
		ProjectID:  projectID,
		ParentID:   ent.GetParentID(),
		Data:       data,
		ModifiedAt: ent.GetModifiedAt(),
	}
	if err := store.Put(rec); err != nil {
		return &writeError{http.StatusInternalServerError, "api_error", err.Error()}
	}
	return nil
}

func respondEntity(w http.ResponseWriter, ent model.Entity) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ent)
}
