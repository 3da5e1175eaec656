package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/calder/inkwell/internal/model"
)

type captureCreator struct {
	created []model.Entity
	err     error
}

func (c *captureCreator) Create(_ context.Context, ent model.Entity) (model.Entity, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.created = append(c.created, ent)
	return ent, nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestImportMarkdownFile(t *testing.T) {
	store := &captureCreator{}
	im := NewImporter(store)

	path := writeTempFile(t, "launch-notes.md", "# Launch\n\nShip it.")
	got, err := im.ImportFile(context.Background(), "p1", "", path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	doc := got.(*model.Document)
	if doc.Title != "launch-notes" {
		t.Errorf("Title = %q, want launch-notes", doc.Title)
	}
	if doc.Content != "# Launch\n\nShip it." {
		t.Errorf("Content = %q", doc.Content)
	}
	if doc.ProjectID != "p1" {
		t.Errorf("ProjectID = %q", doc.ProjectID)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d documents, want 1", len(store.created))
	}
}

func TestImportTextFileIntoFolder(t *testing.T) {
	store := &captureCreator{}
	im := NewImporter(store)

	path := writeTempFile(t, "ideas.txt", "plain text body")
	got, err := im.ImportFile(context.Background(), "p1", "f1", path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if got.(*model.Document).FolderID != "f1" {
		t.Errorf("FolderID = %q, want f1", got.(*model.Document).FolderID)
	}
}

func TestImportRejectsUnsupportedExtension(t *testing.T) {
	im := NewImporter(&captureCreator{})

	path := writeTempFile(t, "image.png", "not text")
	if _, err := im.ImportFile(context.Background(), "p1", "", path); err == nil {
		t.Error("ImportFile accepted a .png")
	}
}

func TestImportMissingFile(t *testing.T) {
	im := NewImporter(&captureCreator{})

	if _, err := im.ImportFile(context.Background(), "p1", "", "/does/not/exist.txt"); err == nil {
		t.Error("ImportFile succeeded on missing file")
	}
}

func TestImportCorruptPDF(t *testing.T) {
	im := NewImporter(&captureCreator{})

	path := writeTempFile(t, "broken.pdf", "this is not a pdf")
	if _, err := im.ImportFile(context.Background(), "p1", "", path); err == nil {
		t.Error("ImportFile accepted a corrupt pdf")
	}
}

func TestTitleFromPath(t *testing.T) {
	cases := map[string]string{
		"/tmp/a/b/report.pdf":   "report",
		"notes.md":              "notes",
		"archive.tar.txt":       "archive.tar",
		"/x/no-extension-dir/f": "f",
	}
	for in, want := range cases {
		if got := titleFromPath(in); got != want {
			t.Errorf("titleFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
