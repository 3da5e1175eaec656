package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calder/inkwell/internal/cloud"
	"github.com/calder/inkwell/internal/model"
	"github.com/calder/inkwell/internal/storage"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewHandler(ServerDeps{
		Stores: func(string) (*storage.Store, error) { return store, nil },
		Token:  testToken,
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Inkwell-User", "u1")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCollectionsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/projects")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestRequestsRequireUserHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing user header: status = %d, want 400", resp.StatusCode)
	}

	// The user id names an on-disk database, so path characters are refused.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Inkwell-User", "../../etc/passwd")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed user header: status = %d, want 400", resp.StatusCode)
	}
}

func TestStoresKeyedByUserHeader(t *testing.T) {
	stores := map[string]*storage.Store{}
	provider := func(userID string) (*storage.Store, error) {
		if s, ok := stores[userID]; ok {
			return s, nil
		}
		s, err := storage.Open(":memory:")
		if err != nil {
			return nil, err
		}
		stores[userID] = s
		return s, nil
	}
	srv := httptest.NewServer(NewHandler(ServerDeps{Stores: provider, Token: testToken}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})

	do := func(user, method, path string, body any) *http.Response {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatalf("encoding request body: %v", err)
			}
		}
		req, err := http.NewRequest(method, srv.URL+path, &buf)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+testToken)
		req.Header.Set("X-Inkwell-User", user)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		return resp
	}

	resp := do("alice@example.com", http.MethodPost, "/api/v1/projects", map[string]any{"id": "p1", "name": "Private"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}

	resp = do("bob@example.com", http.MethodGet, "/api/v1/projects/p1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("record visible across users: status = %d, want 404", resp.StatusCode)
	}

	resp = do("alice@example.com", http.MethodGet, "/api/v1/projects/p1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("record missing for its owner: status = %d, want 200", resp.StatusCode)
	}
}

func TestUnknownCollection(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/widgets", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUpsertGetRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{
		"id": "p1", "name": "Launch",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
	var created model.Project
	decodeBody(t, resp, &created)
	if created.ModifiedAt.IsZero() {
		t.Error("server did not stamp modifiedAt")
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/projects/p1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var got model.Project
	decodeBody(t, resp, &got)
	if got.Name != "Launch" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	srv, store := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{
			"id": "p1", "name": "Launch",
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST %d status = %d", i, resp.StatusCode)
		}
	}

	n, err := store.CountKind(model.KindProject)
	if err != nil {
		t.Fatalf("CountKind: %v", err)
	}
	if n != 1 {
		t.Errorf("replayed create produced %d records, want 1", n)
	}
}

func TestUpsertValidates(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
		"id": "d1", "projectId": "p1", "title": "   ",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank title: status = %d, want 400", resp.StatusCode)
	}
}

func TestUpsertComputesCounts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
		"id": "d1", "projectId": "p1", "title": "Draft", "content": "alpha beta",
	})
	var doc model.Document
	decodeBody(t, resp, &doc)
	if doc.WordCount != 2 || doc.CharCount != 10 {
		t.Errorf("counts = %d/%d, want 2/10", doc.WordCount, doc.CharCount)
	}
}

func TestUpsertEnforcesQuota(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	srv := httptest.NewServer(NewHandler(ServerDeps{
		Stores:     func(string) (*storage.Store, error) { return store, nil },
		Token:      testToken,
		QuotaBytes: 64,
	}))
	t.Cleanup(srv.Close)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{
		"id": "p1", "name": "Too big for the configured ceiling",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusInsufficientStorage {
		t.Errorf("status = %d, want 507", resp.StatusCode)
	}

	if _, err := store.Get(model.KindProject, "p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("rejected write reached the store")
	}
}

func TestPatchMergesAgainstServerRecord(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
		"id": "d1", "projectId": "p1", "title": "Draft", "content": "server content",
	}).Body.Close()

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/documents/d1", map[string]any{
		"title": "Renamed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH status = %d", resp.StatusCode)
	}
	var got model.Document
	decodeBody(t, resp, &got)
	if got.Title != "Renamed" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Content != "server content" {
		t.Errorf("Content = %q; patch clobbered an untouched field", got.Content)
	}
}

func TestPatchRejectsImmutableAndUnknownFields(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
		"id": "d1", "projectId": "p1", "title": "Draft",
	}).Body.Close()

	for _, patch := range []map[string]any{
		{"id": "d2"},
		{"projectId": "p2"},
		{"titel": "typo"},
	} {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/documents/d1", patch)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("patch %v: status = %d, want 400", patch, resp.StatusCode)
		}
	}
}

func TestPatchMissingRecord(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/documents/nope", map[string]any{"title": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	srv, store := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{"id": "p1", "name": "P"}).Body.Close()
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{"id": "d1", "projectId": "p1", "title": "D"}).Body.Close()
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/snippets", map[string]any{"id": "s1", "projectId": "p1", "name": "S", "content": "x"}).Body.Close()

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/projects/p1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}

	for _, check := range []struct {
		kind model.Kind
		id   string
	}{
		{model.KindProject, "p1"},
		{model.KindDocument, "d1"},
		{model.KindSnippet, "s1"},
	} {
		if _, err := store.Get(check.kind, check.id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("%s %s survived project delete", check.kind, check.id)
		}
	}
}

func TestDeleteFolderReparentsDocuments(t *testing.T) {
	srv, store := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/folders", map[string]any{"id": "f1", "projectId": "p1", "name": "Top"}).Body.Close()
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/folders", map[string]any{"id": "f2", "projectId": "p1", "name": "Sub", "parentFolderId": "f1"}).Body.Close()
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{"id": "d1", "projectId": "p1", "folderId": "f1", "title": "D"}).Body.Close()

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/folders/f1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}

	for _, id := range []string{"f1", "f2"} {
		if _, err := store.Get(model.KindFolder, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("folder %s survived", id)
		}
	}

	rec, err := store.Get(model.KindDocument, "d1")
	if err != nil {
		t.Fatalf("document deleted along with folder: %v", err)
	}
	var doc model.Document
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		t.Fatalf("decoding document: %v", err)
	}
	if doc.FolderID != "" {
		t.Errorf("FolderID = %q, want cleared", doc.FolderID)
	}
}

func TestFolderCycleRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/folders", map[string]any{"id": "f1", "projectId": "p1", "name": "A"}).Body.Close()
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/folders", map[string]any{"id": "f2", "projectId": "p1", "name": "B", "parentFolderId": "f1"}).Body.Close()

	resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/folders/f1", map[string]any{"parentFolderId": "f2"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("cycle patch: status = %d, want 400", resp.StatusCode)
	}

	// A parent in a different project is refused outright.
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/folders", map[string]any{"id": "f3", "projectId": "p2", "name": "Elsewhere"}).Body.Close()
	resp = doJSON(t, http.MethodPatch, srv.URL+"/api/v1/folders/f2", map[string]any{"parentFolderId": "f3"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("cross-project patch: status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteMissingRecordSucceeds(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/snippets/never-existed", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestCloudClientAgainstServer exercises the real cloud.Client end to end
// against the reference server.
func TestCloudClientAgainstServer(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	c := cloud.New(srv.URL, testToken, "u1")
	if !c.Ping(ctx) {
		t.Fatal("Ping = false")
	}

	created, err := c.Create(ctx, model.KindProject, []byte(`{"id":"p1","name":"Launch"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var proj model.Project
	if err := json.Unmarshal(created, &proj); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if proj.Name != "Launch" {
		t.Errorf("Name = %q", proj.Name)
	}

	patched, err := c.Patch(ctx, model.KindProject, "p1", map[string]any{"name": "Relaunch"})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if err := json.Unmarshal(patched, &proj); err != nil {
		t.Fatalf("decoding patch response: %v", err)
	}
	if proj.Name != "Relaunch" {
		t.Errorf("patched Name = %q", proj.Name)
	}

	records, err := c.List(ctx, model.KindProject, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("List returned %d records, want 1", len(records))
	}

	if _, err := c.Create(ctx, model.KindDocument, []byte(`{"id":"d1","projectId":"p1","folderId":"f1","title":"Draft"}`)); err != nil {
		t.Fatalf("Create document: %v", err)
	}
	children, err := c.ListByParent(ctx, model.KindDocument, "f1")
	if err != nil {
		t.Fatalf("ListByParent: %v", err)
	}
	if len(children) != 1 {
		t.Errorf("ListByParent returned %d records, want 1", len(children))
	}

	if err := c.Delete(ctx, model.KindProject, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, model.KindProject, "p1"); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	badClient := cloud.New(srv.URL, "wrong", "u1")
	if _, err := badClient.List(ctx, model.KindProject, ""); !errors.Is(err, cloud.ErrAuth) {
		t.Errorf("wrong token List = %v, want ErrAuth", err)
	}
}

func TestListEmptyCollection(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/personas", nil)
	var got []json.RawMessage
	decodeBody(t, resp, &got)
	if got == nil {
		t.Error("empty collection returned null, want []")
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestListScopedByProject(t *testing.T) {
	srv, _ := newTestServer(t)

	for i, pid := range []string{"p1", "p1", "p2"} {
		doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
			"id":        fmt.Sprintf("d%d", i),
			"projectId": pid,
			"title":     "Doc",
		}).Body.Close()
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/documents?projectId=p1", nil)
	var got []json.RawMessage
	decodeBody(t, resp, &got)
	if len(got) != 2 {
		t.Errorf("scoped list returned %d records, want 2", len(got))
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/documents", nil)
	decodeBody(t, resp, &got)
	if len(got) != 3 {
		t.Errorf("unscoped list returned %d records, want 3", len(got))
	}
}

func TestListScopedByParent(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
		"id": "d1", "projectId": "p1", "folderId": "f1", "title": "In folder",
	}).Body.Close()
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents", map[string]any{
		"id": "d2", "projectId": "p1", "title": "At root",
	}).Body.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/documents?parentId=f1", nil)
	var got []json.RawMessage
	decodeBody(t, resp, &got)
	if len(got) != 1 {
		t.Errorf("parent-scoped list returned %d records, want 1", len(got))
	}
}

func TestUpsertManyKinds(t *testing.T) {
	srv, _ := newTestServer(t)

	payloads := map[model.Kind]map[string]any{
		model.KindPersona:      {"id": "a1", "projectId": "p1", "name": "Maya"},
		model.KindBrandVoice:   {"projectId": "p1", "brandName": "Acme"},
		model.KindUserSettings: {"userId": "u1", "preferences": map[string]any{"theme": "dark"}},
	}
	for kind, payload := range payloads {
		resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/%s", srv.URL, kind), payload)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("POST %s: status = %d", kind, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/brand-voices/p1", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("brand voice keyed by project id: status = %d", resp.StatusCode)
	}
}
