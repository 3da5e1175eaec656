// Package model defines the entity types stored by the inkwell engine and
// the pure helpers that operate on them. It performs no I/O; persistence and
// cloud concerns live in the storage, cloud, and engine packages.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one of the closed set of entity kinds. The string values
// double as collection names in the record store and in API paths.
type Kind string

const (
	KindProject      Kind = "projects"
	KindDocument     Kind = "documents"
	KindFolder       Kind = "folders"
	KindSnippet      Kind = "snippets"
	KindPersona      Kind = "personas"
	KindBrandVoice   Kind = "brand-voices"
	KindUserSettings Kind = "user-settings"
)

// Kinds returns all entity kinds in dependency order: parents before
// children. Iterating in this order is safe for uploads; reverse it for
// teardown.
func Kinds() []Kind {
	return []Kind{
		KindProject,
		KindFolder,
		KindDocument,
		KindSnippet,
		KindPersona,
		KindBrandVoice,
		KindUserSettings,
	}
}

// ProjectOwnedKinds returns the kinds owned by a Project, i.e. the kinds a
// project deletion cascades to.
func ProjectOwnedKinds() []Kind {
	return []Kind{KindFolder, KindDocument, KindSnippet, KindPersona, KindBrandVoice}
}

// ParseKind converts a string into a Kind, rejecting anything outside the
// closed set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindProject, KindDocument, KindFolder, KindSnippet, KindPersona, KindBrandVoice, KindUserSettings:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Entity is the common behavior of every stored record. Identity is assigned
// client-side at creation time and is immutable for the entity's lifetime.
type Entity interface {
	// GetID returns the entity's globally unique identifier.
	GetID() string
	// GetKind returns the entity's kind tag.
	GetKind() Kind
	// GetProjectID returns the owning project id, or "" for entities not
	// owned by a project (Project itself, UserSettings).
	GetProjectID() string
	// GetParentID returns the secondary grouping id used for enumeration:
	// a Document's folder id or a Folder's parent folder id. "" otherwise.
	GetParentID() string
	GetCreatedAt() time.Time
	GetModifiedAt() time.Time
	// Touch stamps ModifiedAt with now and backfills a zero CreatedAt.
	// The storage layer calls this on every successful write; callers'
	// timestamps are never trusted verbatim.
	Touch(now time.Time)
}

// NewID returns a fresh client-generated identifier.
func NewID() string {
	return uuid.New().String()
}

// New returns a pointer to a zero value of the given kind, suitable as a
// JSON unmarshal target.
func New(kind Kind) (Entity, error) {
	switch kind {
	case KindProject:
		return &Project{}, nil
	case KindDocument:
		return &Document{}, nil
	case KindFolder:
		return &Folder{}, nil
	case KindSnippet:
		return &Snippet{}, nil
	case KindPersona:
		return &Persona{}, nil
	case KindBrandVoice:
		return &BrandVoice{}, nil
	case KindUserSettings:
		return &UserSettings{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// BelongsTo reports whether child is owned by the project with the given id.
func BelongsTo(child Entity, projectID string) bool {
	return projectID != "" && child.GetProjectID() == projectID
}
