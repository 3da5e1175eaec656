// Package validate checks and sanitizes entity payloads before any write is
// attempted, and guards the local cache against exhausting its storage quota.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/calder/inkwell/internal/model"
)

// Field length limits, in runes.
const (
	MaxNameLen         = 100
	MaxTitleLen        = 200
	MaxDocContentLen   = 200_000
	MaxSnippetLen      = 20_000
	MaxPersonaFieldLen = 10_000
	MaxListEntries     = 100
	MaxListEntryLen    = 200
	MaxPreferences     = 200
)

// FieldError reports a single invalid field. Callers render it inline next
// to the offending input; it is never retried.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// strict strips all markup; ugc keeps the formatting subset allowed in
// rich-text document content but neutralizes scripts and event handlers.
var (
	strict = bluemonday.StrictPolicy()
	ugc    = bluemonday.UGCPolicy()
)

// Entity sanitizes free-text fields in place and validates the result.
// A nil return means the entity is safe to persist.
func Entity(e model.Entity) error {
	if e.GetID() == "" {
		return &FieldError{Field: "id", Reason: "is required"}
	}

	switch v := e.(type) {
	case *model.Project:
		return validateProject(v)
	case *model.Document:
		return validateDocument(v)
	case *model.Folder:
		return validateFolder(v)
	case *model.Snippet:
		return validateSnippet(v)
	case *model.Persona:
		return validatePersona(v)
	case *model.BrandVoice:
		return validateBrandVoice(v)
	case *model.UserSettings:
		return validateUserSettings(v)
	}
	return fmt.Errorf("unknown entity kind %q", e.GetKind())
}

func validateProject(p *model.Project) error {
	cleanStrict(&p.Name)
	if err := requireText("name", p.Name); err != nil {
		return err
	}
	return maxLen("name", p.Name, MaxNameLen)
}

func validateDocument(d *model.Document) error {
	cleanStrict(&d.Title)
	d.Content = ugc.Sanitize(d.Content)
	if d.ProjectID == "" {
		return &FieldError{Field: "projectId", Reason: "is required"}
	}
	if err := requireText("title", d.Title); err != nil {
		return err
	}
	if err := maxLen("title", d.Title, MaxTitleLen); err != nil {
		return err
	}
	return maxLen("content", d.Content, MaxDocContentLen)
}

func validateFolder(f *model.Folder) error {
	cleanStrict(&f.Name)
	if f.ProjectID == "" {
		return &FieldError{Field: "projectId", Reason: "is required"}
	}
	if f.ParentFolderID == f.ID && f.ParentFolderID != "" {
		return &FieldError{Field: "parentFolderId", Reason: "folder cannot be its own parent"}
	}
	if err := requireText("name", f.Name); err != nil {
		return err
	}
	return maxLen("name", f.Name, MaxNameLen)
}

func validateSnippet(s *model.Snippet) error {
	cleanStrict(&s.Name)
	cleanStrict(&s.Content)
	if s.ProjectID == "" {
		return &FieldError{Field: "projectId", Reason: "is required"}
	}
	if s.UsageCount < 0 {
		return &FieldError{Field: "usageCount", Reason: "must not be negative"}
	}
	if err := requireText("name", s.Name); err != nil {
		return err
	}
	if err := maxLen("name", s.Name, MaxNameLen); err != nil {
		return err
	}
	return maxLen("content", s.Content, MaxSnippetLen)
}

func validatePersona(p *model.Persona) error {
	cleanStrict(&p.Name)
	if p.ProjectID == "" {
		return &FieldError{Field: "projectId", Reason: "is required"}
	}
	if err := requireText("name", p.Name); err != nil {
		return err
	}
	if err := maxLen("name", p.Name, MaxNameLen); err != nil {
		return err
	}
	freeText := []struct {
		field string
		value *string
	}{
		{"demographics", &p.Demographics},
		{"psychographics", &p.Psychographics},
		{"painPoints", &p.PainPoints},
		{"languagePatterns", &p.LanguagePatterns},
		{"goals", &p.Goals},
	}
	for _, f := range freeText {
		cleanStrict(f.value)
		if err := maxLen(f.field, *f.value, MaxPersonaFieldLen); err != nil {
			return err
		}
	}
	if p.Photo != "" {
		photo, err := NormalizePhoto(p.Photo)
		if err != nil {
			return err
		}
		p.Photo = photo
	}
	return nil
}

func validateBrandVoice(b *model.BrandVoice) error {
	cleanStrict(&b.BrandName)
	cleanStrict(&b.ToneDescription)
	cleanStrict(&b.Values)
	cleanStrict(&b.MissionStatement)
	if b.ProjectID == "" {
		return &FieldError{Field: "projectId", Reason: "is required"}
	}
	if err := requireText("brandName", b.BrandName); err != nil {
		return err
	}
	if err := maxLen("brandName", b.BrandName, MaxNameLen); err != nil {
		return err
	}
	if err := maxLen("toneDescription", b.ToneDescription, MaxPersonaFieldLen); err != nil {
		return err
	}
	if err := maxLen("values", b.Values, MaxPersonaFieldLen); err != nil {
		return err
	}
	if err := maxLen("missionStatement", b.MissionStatement, MaxPersonaFieldLen); err != nil {
		return err
	}
	if err := cleanList("approvedPhrases", b.ApprovedPhrases); err != nil {
		return err
	}
	return cleanList("forbiddenWords", b.ForbiddenWords)
}

func validateUserSettings(u *model.UserSettings) error {
	if u.UserID == "" {
		return &FieldError{Field: "userId", Reason: "is required"}
	}
	if len(u.Preferences) > MaxPreferences {
		return &FieldError{Field: "preferences", Reason: fmt.Sprintf("at most %d entries allowed", MaxPreferences)}
	}
	for k, v := range u.Preferences {
		if s, ok := v.(string); ok {
			u.Preferences[k] = strict.Sanitize(s)
		}
	}
	return nil
}

func cleanStrict(s *string) {
	*s = strings.TrimSpace(strict.Sanitize(*s))
}

func cleanList(field string, list []string) error {
	if len(list) > MaxListEntries {
		return &FieldError{Field: field, Reason: fmt.Sprintf("at most %d entries allowed", MaxListEntries)}
	}
	for i := range list {
		cleanStrict(&list[i])
		if err := maxLen(field, list[i], MaxListEntryLen); err != nil {
			return err
		}
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Reason: "is required"}
	}
	return nil
}

func maxLen(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return &FieldError{Field: field, Reason: fmt.Sprintf("exceeds %d characters", limit)}
	}
	return nil
}
