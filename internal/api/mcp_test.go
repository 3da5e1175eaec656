package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/calder/inkwell/internal/engine"
	"github.com/calder/inkwell/internal/model"
)

// --- mocks ---

type fakeContentStore struct {
	entities map[model.Kind]map[string]model.Entity
	err      error
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{entities: make(map[model.Kind]map[string]model.Entity)}
}

func (f *fakeContentStore) put(ent model.Entity) {
	if f.entities[ent.GetKind()] == nil {
		f.entities[ent.GetKind()] = make(map[string]model.Entity)
	}
	f.entities[ent.GetKind()][ent.GetID()] = ent
}

func (f *fakeContentStore) List(_ context.Context, kind model.Kind) ([]model.Entity, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	var out []model.Entity
	for _, e := range f.entities[kind] {
		out = append(out, e)
	}
	return out, false, nil
}

func (f *fakeContentStore) ListByProject(ctx context.Context, kind model.Kind, projectID string) ([]model.Entity, bool, error) {
	all, _, err := f.List(ctx, kind)
	if err != nil {
		return nil, false, err
	}
	var scoped []model.Entity
	for _, e := range all {
		if model.BelongsTo(e, projectID) {
			scoped = append(scoped, e)
		}
	}
	return scoped, false, nil
}

func (f *fakeContentStore) Get(_ context.Context, kind model.Kind, id string) (model.Entity, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	e, ok := f.entities[kind][id]
	if !ok {
		return nil, false, engine.ErrNotFound
	}
	return e, false, nil
}

func (f *fakeContentStore) Create(_ context.Context, ent model.Entity) (model.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if doc, ok := ent.(*model.Document); ok && doc.ID == "" {
		doc.ID = model.NewID()
	}
	if s, ok := ent.(*model.Snippet); ok && s.ID == "" {
		s.ID = model.NewID()
	}
	f.put(ent)
	return ent, nil
}

func (f *fakeContentStore) Update(_ context.Context, kind model.Kind, id string, patch map[string]any) (model.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	base, ok := f.entities[kind][id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	merged, err := model.Merge(base, patch)
	if err != nil {
		return nil, err
	}
	f.put(merged)
	return merged, nil
}

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ListProjects(t *testing.T) {
	store := newFakeContentStore()
	store.put(&model.Project{ID: "p1", Name: "Launch"})
	handler := mcpListProjects(MCPDeps{Store: store})

	result, err := handler(context.Background(), makeCallToolRequest("list_projects", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var projects []model.Project
	if err := json.Unmarshal([]byte(toolText(t, result)), &projects); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Launch" {
		t.Fatalf("unexpected projects: %+v", projects)
	}
}

func TestMCPTool_CreateDocument(t *testing.T) {
	store := newFakeContentStore()
	handler := mcpCreateDocument(MCPDeps{Store: store})

	req := makeCallToolRequest("create_document", map[string]interface{}{
		"project_id": "p1",
		"title":      "Draft",
		"content":    "hello world",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var doc model.Document
	if err := json.Unmarshal([]byte(toolText(t, result)), &doc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if doc.ID == "" || doc.ProjectID != "p1" || doc.Title != "Draft" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(store.entities[model.KindDocument]) != 1 {
		t.Fatal("document not stored")
	}
}

func TestMCPTool_CreateDocument_MissingTitle(t *testing.T) {
	handler := mcpCreateDocument(MCPDeps{Store: newFakeContentStore()})

	result, err := handler(context.Background(), makeCallToolRequest("create_document", map[string]interface{}{
		"project_id": "p1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing title")
	}
}

func TestMCPTool_UpdateDocument(t *testing.T) {
	store := newFakeContentStore()
	store.put(&model.Document{ID: "d1", ProjectID: "p1", Title: "Old", Content: "body"})
	handler := mcpUpdateDocument(MCPDeps{Store: store})

	result, err := handler(context.Background(), makeCallToolRequest("update_document", map[string]interface{}{
		"id":    "d1",
		"title": "New",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var doc model.Document
	if err := json.Unmarshal([]byte(toolText(t, result)), &doc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if doc.Title != "New" || doc.Content != "body" {
		t.Fatalf("unexpected document after update: %+v", doc)
	}
}

func TestMCPTool_UpdateDocument_NothingToDo(t *testing.T) {
	handler := mcpUpdateDocument(MCPDeps{Store: newFakeContentStore()})

	result, err := handler(context.Background(), makeCallToolRequest("update_document", map[string]interface{}{
		"id": "d1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for empty patch")
	}
}

func TestMCPTool_GetDocument_NotFound(t *testing.T) {
	handler := mcpGetDocument(MCPDeps{Store: newFakeContentStore()})

	result, err := handler(context.Background(), makeCallToolRequest("get_document", map[string]interface{}{
		"id": "missing",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing document")
	}
}

func TestMCPTool_SnippetRoundTrip(t *testing.T) {
	store := newFakeContentStore()

	create := mcpCreateSnippet(MCPDeps{Store: store})
	result, err := create(context.Background(), makeCallToolRequest("create_snippet", map[string]interface{}{
		"project_id": "p1",
		"name":       "CTA",
		"content":    "Buy now",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	list := mcpListSnippets(MCPDeps{Store: store})
	result, err = list(context.Background(), makeCallToolRequest("list_snippets", map[string]interface{}{
		"project_id": "p1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snippets []model.Snippet
	if err := json.Unmarshal([]byte(toolText(t, result)), &snippets); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(snippets) != 1 || snippets[0].Name != "CTA" {
		t.Fatalf("unexpected snippets: %+v", snippets)
	}
}

func TestMCPResource_Projects(t *testing.T) {
	store := newFakeContentStore()
	store.put(&model.Project{ID: "p1", Name: "Launch"})
	handler := mcpResourceProjects(MCPDeps{Store: store})

	contents, err := handler(context.Background(), makeReadResourceRequest("inkwell://projects"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(contents))
	}

	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var projects []model.Project
	if err := json.Unmarshal([]byte(text.Text), &projects); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}
}
