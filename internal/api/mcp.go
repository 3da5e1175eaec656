package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/calder/inkwell/internal/engine"
	"github.com/calder/inkwell/internal/model"
)

// ContentStore is the engine surface the MCP layer needs. The concrete
// implementation is engine.Engine; tests substitute a fake.
type ContentStore interface {
	List(ctx context.Context, kind model.Kind) ([]model.Entity, bool, error)
	ListByProject(ctx context.Context, kind model.Kind, projectID string) ([]model.Entity, bool, error)
	Get(ctx context.Context, kind model.Kind, id string) (model.Entity, bool, error)
	Create(ctx context.Context, ent model.Entity) (model.Entity, error)
	Update(ctx context.Context, kind model.Kind, id string, patch map[string]any) (model.Entity, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store ContentStore
}

// NewMCPServer creates an MCP server exposing the content workspace to
// assistant tooling. Writes go through the same engine pipeline as the CLI,
// so validation, sync, and offline queueing all apply.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"inkwell",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("inkwell: content workspace with projects, documents, and reusable snippets."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List all projects in the workspace."),
		),
		mcpListProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the documents in a project."),
			mcp.WithString("project_id", mcp.Description("Project to list"), mcp.Required()),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("get_document",
			mcp.WithDescription("Fetch one document including its full content."),
			mcp.WithString("id", mcp.Description("Document id"), mcp.Required()),
		),
		mcpGetDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("create_document",
			mcp.WithDescription("Create a document in a project."),
			mcp.WithString("project_id", mcp.Description("Owning project id"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Document title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Initial content")),
			mcp.WithString("folder_id", mcp.Description("Optional folder to place the document in")),
		),
		mcpCreateDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("update_document",
			mcp.WithDescription("Update a document's title or content. Only supplied fields change."),
			mcp.WithString("id", mcp.Description("Document id"), mcp.Required()),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("content", mcp.Description("New content")),
		),
		mcpUpdateDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("create_snippet",
			mcp.WithDescription("Save a reusable text snippet in a project."),
			mcp.WithString("project_id", mcp.Description("Owning project id"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Snippet name"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Snippet text"), mcp.Required()),
		),
		mcpCreateSnippet(deps),
	)

	s.AddTool(
		mcp.NewTool("list_snippets",
			mcp.WithDescription("List the reusable snippets in a project."),
			mcp.WithString("project_id", mcp.Description("Project to list"), mcp.Required()),
		),
		mcpListSnippets(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"inkwell://projects",
			"Projects",
			mcp.WithResourceDescription("All projects as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProjects(deps),
	)

	return s
}

func mcpListProjects(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, _, err := deps.Store.List(ctx, model.KindProject)
		if err != nil {
			return mcpError(fmt.Sprintf("listing projects failed: %v", err)), nil
		}
		return mcpJSON(projects)
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}

		docs, _, err := deps.Store.ListByProject(ctx, model.KindDocument, projectID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}

		// Summaries only; get_document returns full content.
		type docSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			FolderID  string `json:"folderId,omitempty"`
			WordCount int    `json:"wordCount"`
		}
		summaries := make([]docSummary, len(docs))
		for i, d := range docs {
			doc := d.(*model.Document)
			summaries[i] = docSummary{ID: doc.ID, Title: doc.Title, FolderID: doc.FolderID, WordCount: doc.WordCount}
		}
		return mcpJSON(summaries)
	}
}

func mcpGetDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		doc, _, err := deps.Store.Get(ctx, model.KindDocument, id)
		if errors.Is(err, engine.ErrNotFound) {
			return mcpError(fmt.Sprintf("document %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("fetching document failed: %v", err)), nil
		}
		return mcpJSON(doc)
	}
}

func mcpCreateDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		doc := &model.Document{
			ProjectID: projectID,
			FolderID:  req.GetString("folder_id", ""),
			Title:     title,
			Content:   req.GetString("content", ""),
		}
		created, err := deps.Store.Create(ctx, doc)
		if err != nil && !errors.Is(err, engine.ErrPendingSync) {
			return mcpError(fmt.Sprintf("creating document failed: %v", err)), nil
		}
		return mcpJSON(created)
	}
}

func mcpUpdateDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		patch := map[string]any{}
		if title := req.GetString("title", ""); title != "" {
			patch["title"] = title
		}
		if content := req.GetString("content", ""); content != "" {
			patch["content"] = content
		}
		if len(patch) == 0 {
			return mcpError("nothing to update: provide title or content"), nil
		}

		updated, err := deps.Store.Update(ctx, model.KindDocument, id, patch)
		if errors.Is(err, engine.ErrNotFound) {
			return mcpError(fmt.Sprintf("document %s not found", id)), nil
		}
		if err != nil && !errors.Is(err, engine.ErrPendingSync) {
			return mcpError(fmt.Sprintf("updating document failed: %v", err)), nil
		}
		return mcpJSON(updated)
	}
}

func mcpCreateSnippet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		created, err := deps.Store.Create(ctx, &model.Snippet{ProjectID: projectID, Name: name, Content: content})
		if err != nil && !errors.Is(err, engine.ErrPendingSync) {
			return mcpError(fmt.Sprintf("creating snippet failed: %v", err)), nil
		}
		return mcpJSON(created)
	}
}

func mcpListSnippets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := req.RequireString("project_id")
		if err != nil {
			return mcpError("project_id is required"), nil
		}

		snippets, _, err := deps.Store.ListByProject(ctx, model.KindSnippet, projectID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing snippets failed: %v", err)), nil
		}
		return mcpJSON(snippets)
	}
}

func mcpResourceProjects(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		projects, _, err := deps.Store.List(ctx, model.KindProject)
		if err != nil {
			return nil, fmt.Errorf("listing projects: %w", err)
		}

		b, err := json.Marshal(projects)
		if err != nil {
			return nil, fmt.Errorf("marshaling projects: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
