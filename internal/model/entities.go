package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Project is the top-level container. At least one project always exists;
// deleting the last one triggers creation of a fresh default first.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

func (p *Project) GetID() string            { return p.ID }
func (p *Project) GetKind() Kind            { return KindProject }
func (p *Project) GetProjectID() string     { return "" }
func (p *Project) GetParentID() string      { return "" }
func (p *Project) GetCreatedAt() time.Time  { return p.CreatedAt }
func (p *Project) GetModifiedAt() time.Time { return p.ModifiedAt }
func (p *Project) Touch(now time.Time)      { touch(&p.CreatedAt, &p.ModifiedAt, now) }

// DefaultProjectName is the name given to the project created automatically
// when none exists.
const DefaultProjectName = "My Project"

// NewDefaultProject returns the replacement project used to repair the
// at-least-one-project invariant.
func NewDefaultProject() *Project {
	return &Project{ID: NewID(), Name: DefaultProjectName}
}

// Document is an editable content unit. Word and character counts are
// recomputed by the storage layer on every write.
type Document struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	FolderID   string    `json:"folderId,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	WordCount  int       `json:"wordCount"`
	CharCount  int       `json:"charCount"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

func (d *Document) GetID() string            { return d.ID }
func (d *Document) GetKind() Kind            { return KindDocument }
func (d *Document) GetProjectID() string     { return d.ProjectID }
func (d *Document) GetParentID() string      { return d.FolderID }
func (d *Document) GetCreatedAt() time.Time  { return d.CreatedAt }
func (d *Document) GetModifiedAt() time.Time { return d.ModifiedAt }
func (d *Document) Touch(now time.Time)      { touch(&d.CreatedAt, &d.ModifiedAt, now) }

// RefreshCounts recomputes the word and character metadata from Content.
func (d *Document) RefreshCounts() {
	d.WordCount = len(strings.Fields(d.Content))
	d.CharCount = utf8.RuneCountInString(d.Content)
}

// Folder groups documents hierarchically within a project. ParentFolderID,
// when set, must reference a folder in the same project; cycles are rejected
// by the engine before any write.
type Folder struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	ParentFolderID string    `json:"parentFolderId,omitempty"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
}

func (f *Folder) GetID() string            { return f.ID }
func (f *Folder) GetKind() Kind            { return KindFolder }
func (f *Folder) GetProjectID() string     { return f.ProjectID }
func (f *Folder) GetParentID() string      { return f.ParentFolderID }
func (f *Folder) GetCreatedAt() time.Time  { return f.CreatedAt }
func (f *Folder) GetModifiedAt() time.Time { return f.ModifiedAt }
func (f *Folder) Touch(now time.Time)      { touch(&f.CreatedAt, &f.ModifiedAt, now) }

// Snippet is a reusable text fragment.
type Snippet struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	UsageCount int       `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

func (s *Snippet) GetID() string            { return s.ID }
func (s *Snippet) GetKind() Kind            { return KindSnippet }
func (s *Snippet) GetProjectID() string     { return s.ProjectID }
func (s *Snippet) GetParentID() string      { return "" }
func (s *Snippet) GetCreatedAt() time.Time  { return s.CreatedAt }
func (s *Snippet) GetModifiedAt() time.Time { return s.ModifiedAt }
func (s *Snippet) Touch(now time.Time)      { touch(&s.CreatedAt, &s.ModifiedAt, now) }

// Persona is a target-audience profile. Photo, when present, is a data URL
// that the validation layer has already downscaled and re-encoded.
type Persona struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"projectId"`
	Name             string    `json:"name"`
	Demographics     string    `json:"demographics,omitempty"`
	Psychographics   string    `json:"psychographics,omitempty"`
	PainPoints       string    `json:"painPoints,omitempty"`
	LanguagePatterns string    `json:"languagePatterns,omitempty"`
	Goals            string    `json:"goals,omitempty"`
	Photo            string    `json:"photo,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	ModifiedAt       time.Time `json:"modifiedAt"`
}

func (p *Persona) GetID() string            { return p.ID }
func (p *Persona) GetKind() Kind            { return KindPersona }
func (p *Persona) GetProjectID() string     { return p.ProjectID }
func (p *Persona) GetParentID() string      { return "" }
func (p *Persona) GetCreatedAt() time.Time  { return p.CreatedAt }
func (p *Persona) GetModifiedAt() time.Time { return p.ModifiedAt }
func (p *Persona) Touch(now time.Time)      { touch(&p.CreatedAt, &p.ModifiedAt, now) }

// BrandVoice is the per-project tone configuration. There is at most one per
// project; its record id is the project id, which makes create an upsert.
type BrandVoice struct {
	ProjectID        string    `json:"projectId"`
	BrandName        string    `json:"brandName"`
	ToneDescription  string    `json:"toneDescription,omitempty"`
	ApprovedPhrases  []string  `json:"approvedPhrases,omitempty"`
	ForbiddenWords   []string  `json:"forbiddenWords,omitempty"`
	Values           string    `json:"values,omitempty"`
	MissionStatement string    `json:"missionStatement,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	ModifiedAt       time.Time `json:"modifiedAt"`
}

func (b *BrandVoice) GetID() string            { return b.ProjectID }
func (b *BrandVoice) GetKind() Kind            { return KindBrandVoice }
func (b *BrandVoice) GetProjectID() string     { return b.ProjectID }
func (b *BrandVoice) GetParentID() string      { return "" }
func (b *BrandVoice) GetCreatedAt() time.Time  { return b.CreatedAt }
func (b *BrandVoice) GetModifiedAt() time.Time { return b.ModifiedAt }
func (b *BrandVoice) Touch(now time.Time)      { touch(&b.CreatedAt, &b.ModifiedAt, now) }

// UserSettings holds per-user preferences, keyed by the user id supplied by
// the authentication collaborator.
type UserSettings struct {
	UserID      string         `json:"userId"`
	Preferences map[string]any `json:"preferences"`
	CreatedAt   time.Time      `json:"createdAt"`
	ModifiedAt  time.Time      `json:"modifiedAt"`
}

func (u *UserSettings) GetID() string            { return u.UserID }
func (u *UserSettings) GetKind() Kind            { return KindUserSettings }
func (u *UserSettings) GetProjectID() string     { return "" }
func (u *UserSettings) GetParentID() string      { return "" }
func (u *UserSettings) GetCreatedAt() time.Time  { return u.CreatedAt }
func (u *UserSettings) GetModifiedAt() time.Time { return u.ModifiedAt }
func (u *UserSettings) Touch(now time.Time)      { touch(&u.CreatedAt, &u.ModifiedAt, now) }

// touch enforces monotonically non-decreasing ModifiedAt even if the wall
// clock stepped backwards between writes.
func touch(createdAt, modifiedAt *time.Time, now time.Time) {
	now = now.UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if !now.After(*modifiedAt) {
		now = modifiedAt.Add(time.Millisecond)
	}
	*modifiedAt = now
}
