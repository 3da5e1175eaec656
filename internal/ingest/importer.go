// Package ingest imports external files as documents. Supported formats are
// PDF (text extraction) and plain text or markdown (taken verbatim).
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/calder/inkwell/internal/model"
)

// maxImportBytes caps the size of an imported file, matching the document
// content limit with generous headroom for PDF structure overhead.
const maxImportBytes = 50 << 20 // 50MB

// DocumentCreator is the engine surface the importer needs.
type DocumentCreator interface {
	Create(ctx context.Context, ent model.Entity) (model.Entity, error)
}

// Importer turns files on disk into documents.
type Importer struct {
	store DocumentCreator
}

// NewImporter creates an Importer writing through the given store.
func NewImporter(store DocumentCreator) *Importer {
	return &Importer{store: store}
}

// ImportFile reads path and creates a document in the given project (and
// optionally folder). The document title is the file name without its
// extension. Returns the created document; a pending-sync error from the
// store passes through with the document still usable.
func (im *Importer) ImportFile(ctx context.Context, projectID, folderID, path string) (model.Entity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxImportBytes {
		return nil, fmt.Errorf("%s is %d bytes, import limit is %d", path, info.Size(), maxImportBytes)
	}

	var content string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		content, err = extractPDFText(path)
	case ".md", ".markdown", ".txt":
		content, err = readTextFile(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q (want .pdf, .md, .markdown, or .txt)", ext)
	}
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ProjectID: projectID,
		FolderID:  folderID,
		Title:     titleFromPath(path),
		Content:   content,
	}
	return im.store.Create(ctx, doc)
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading extracted text from %s: %w", path, err)
	}
	return buf.String(), nil
}

// titleFromPath derives a document title from the file name, dropping the
// extension.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
