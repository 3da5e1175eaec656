package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calder/inkwell/internal/config"
	"github.com/calder/inkwell/internal/engine"
	"github.com/calder/inkwell/internal/ingest"
	"github.com/calder/inkwell/internal/model"
)

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// --- project ---

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		projects, stale, err := ws.eng.List(cmd.Context(), model.KindProject)
		if err != nil {
			return err
		}
		reportStale(stale)

		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}
		for _, p := range projects {
			proj := p.(*model.Project)
			fmt.Printf("%s  %s\n", colorize(colorCyan, proj.ID), proj.Name)
		}
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		created, err := ws.eng.Create(cmd.Context(), &model.Project{Name: args[0]})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Created project %s", created.GetID())
		return nil
	},
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		_, err = ws.eng.Update(cmd.Context(), model.KindProject, args[0], map[string]any{"name": args[1]})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Renamed project %s", args[0])
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and everything in it",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the project and all its documents, folders, snippets, and personas. Use --confirm to proceed.")
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one project id")
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := reportWrite(ws.eng.Delete(cmd.Context(), model.KindProject, args[0])); err != nil {
			return err
		}
		printSuccess("Deleted project %s", args[0])
		return nil
	},
}

func init() {
	projectDeleteCmd.Flags().Bool("confirm", false, "confirm project deletion")
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectRenameCmd)
	projectCmd.AddCommand(projectDeleteCmd)
}

// --- doc ---

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the documents in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, _ := cmd.Flags().GetString("folder")

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		var (
			docs  []model.Entity
			stale bool
		)
		if folderID != "" {
			docs, stale, err = ws.eng.ListByFolder(cmd.Context(), model.KindDocument, folderID)
		} else {
			docs, stale, err = ws.eng.ListByProject(cmd.Context(), model.KindDocument, args[0])
		}
		if err != nil {
			return err
		}
		reportStale(stale)

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}
		for _, d := range docs {
			doc := d.(*model.Document)
			fmt.Printf("%s  %-40s  %d words\n", colorize(colorCyan, doc.ID), truncate(doc.Title, 40), doc.WordCount)
		}
		return nil
	},
}

var docShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		doc, stale, err := ws.eng.Get(cmd.Context(), model.KindDocument, args[0])
		if err != nil {
			return err
		}
		reportStale(stale)
		return printJSON(doc)
	},
}

var docCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		folderID, _ := cmd.Flags().GetString("folder")
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		file, _ := cmd.Flags().GetString("file")

		if projectID == "" || title == "" {
			return fmt.Errorf("--project and --title are required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		created, err := ws.eng.Create(cmd.Context(), &model.Document{
			ProjectID: projectID,
			FolderID:  folderID,
			Title:     title,
			Content:   content,
		})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Created document %s", created.GetID())
		return nil
	},
}

var docEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Open document content in $EDITOR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		ent, stale, err := ws.eng.Get(cmd.Context(), model.KindDocument, args[0])
		if err != nil {
			return err
		}
		reportStale(stale)
		doc := ent.(*model.Document)

		tmpFile, err := os.CreateTemp("", "inkwell-doc-*.md")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.WriteString(doc.Content); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		if string(edited) == doc.Content {
			fmt.Println("No changes.")
			return nil
		}

		_, err = ws.eng.Update(cmd.Context(), model.KindDocument, doc.ID, map[string]any{"content": string(edited)})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Updated document %s", doc.ID)
		return nil
	},
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := reportWrite(ws.eng.Delete(cmd.Context(), model.KindDocument, args[0])); err != nil {
			return err
		}
		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

var docImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a PDF, markdown, or text file as a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		folderID, _ := cmd.Flags().GetString("folder")
		if projectID == "" {
			return fmt.Errorf("--project is required")
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		im := ingest.NewImporter(ws.eng)
		created, err := im.ImportFile(cmd.Context(), projectID, folderID, args[0])
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Imported %s as document %s", filepath.Base(args[0]), created.GetID())
		return nil
	},
}

func init() {
	docCreateCmd.Flags().String("project", "", "owning project id")
	docCreateCmd.Flags().String("folder", "", "folder id to place the document in")
	docCreateCmd.Flags().String("title", "", "document title")
	docCreateCmd.Flags().String("content", "", "document content")
	docCreateCmd.Flags().String("file", "", "read content from a file")
	docImportCmd.Flags().String("project", "", "owning project id")
	docImportCmd.Flags().String("folder", "", "folder id to place the document in")
	docListCmd.Flags().String("folder", "", "list only the documents in this folder")
	docCmd.AddCommand(docListCmd)
	docCmd.AddCommand(docShowCmd)
	docCmd.AddCommand(docCreateCmd)
	docCmd.AddCommand(docEditCmd)
	docCmd.AddCommand(docDeleteCmd)
	docCmd.AddCommand(docImportCmd)
}

// --- folder ---

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

var folderListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the folders in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		folders, stale, err := ws.eng.ListByProject(cmd.Context(), model.KindFolder, args[0])
		if err != nil {
			return err
		}
		reportStale(stale)

		if len(folders) == 0 {
			fmt.Println("No folders found.")
			return nil
		}
		for _, f := range folders {
			folder := f.(*model.Folder)
			parent := folder.ParentFolderID
			if parent == "" {
				parent = "-"
			}
			fmt.Printf("%s  %-30s  parent: %s\n", colorize(colorCyan, folder.ID), folder.Name, parent)
		}
		return nil
	},
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		parentID, _ := cmd.Flags().GetString("parent")
		if projectID == "" {
			return fmt.Errorf("--project is required")
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		created, err := ws.eng.Create(cmd.Context(), &model.Folder{
			ProjectID:      projectID,
			ParentFolderID: parentID,
			Name:           args[0],
		})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Created folder %s", created.GetID())
		return nil
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a folder; its documents move to the project root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := reportWrite(ws.eng.Delete(cmd.Context(), model.KindFolder, args[0])); err != nil {
			return err
		}
		printSuccess("Deleted folder %s", args[0])
		return nil
	},
}

func init() {
	folderCreateCmd.Flags().String("project", "", "owning project id")
	folderCreateCmd.Flags().String("parent", "", "parent folder id")
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderDeleteCmd)
}

// --- snippet ---

var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Manage reusable snippets",
}

var snippetListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the snippets in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		snippets, stale, err := ws.eng.ListByProject(cmd.Context(), model.KindSnippet, args[0])
		if err != nil {
			return err
		}
		reportStale(stale)

		if len(snippets) == 0 {
			fmt.Println("No snippets found.")
			return nil
		}
		for _, s := range snippets {
			snip := s.(*model.Snippet)
			fmt.Printf("%s  %-30s  %s\n", colorize(colorCyan, snip.ID), snip.Name, truncate(snip.Content, 60))
		}
		return nil
	},
}

var snippetAddCmd = &cobra.Command{
	Use:   "add <name> <content>",
	Short: "Save a snippet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		if projectID == "" {
			return fmt.Errorf("--project is required")
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		created, err := ws.eng.Create(cmd.Context(), &model.Snippet{
			ProjectID: projectID,
			Name:      args[0],
			Content:   args[1],
		})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Saved snippet %s", created.GetID())
		return nil
	},
}

var snippetDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snippet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := reportWrite(ws.eng.Delete(cmd.Context(), model.KindSnippet, args[0])); err != nil {
			return err
		}
		printSuccess("Deleted snippet %s", args[0])
		return nil
	},
}

func init() {
	snippetAddCmd.Flags().String("project", "", "owning project id")
	snippetCmd.AddCommand(snippetListCmd)
	snippetCmd.AddCommand(snippetAddCmd)
	snippetCmd.AddCommand(snippetDeleteCmd)
}

// --- persona ---

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage audience personas",
}

var personaListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the personas in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		personas, stale, err := ws.eng.ListByProject(cmd.Context(), model.KindPersona, args[0])
		if err != nil {
			return err
		}
		reportStale(stale)

		if len(personas) == 0 {
			fmt.Println("No personas found.")
			return nil
		}
		for _, p := range personas {
			persona := p.(*model.Persona)
			fmt.Printf("%s  %s\n", colorize(colorCyan, persona.ID), persona.Name)
		}
		return nil
	},
}

var personaShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a persona as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		persona, stale, err := ws.eng.Get(cmd.Context(), model.KindPersona, args[0])
		if err != nil {
			return err
		}
		reportStale(stale)
		return printJSON(persona)
	},
}

var personaCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		if projectID == "" {
			return fmt.Errorf("--project is required")
		}
		demographics, _ := cmd.Flags().GetString("demographics")
		psychographics, _ := cmd.Flags().GetString("psychographics")
		painPoints, _ := cmd.Flags().GetString("pain-points")
		language, _ := cmd.Flags().GetString("language")
		goals, _ := cmd.Flags().GetString("goals")
		photoPath, _ := cmd.Flags().GetString("photo")

		var photo string
		if photoPath != "" {
			var err error
			photo, err = photoDataURL(photoPath)
			if err != nil {
				return err
			}
		}

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		created, err := ws.eng.Create(cmd.Context(), &model.Persona{
			ProjectID:        projectID,
			Name:             args[0],
			Demographics:     demographics,
			Psychographics:   psychographics,
			PainPoints:       painPoints,
			LanguagePatterns: language,
			Goals:            goals,
			Photo:            photo,
		})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Created persona %s", created.GetID())
		return nil
	},
}

var personaDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := reportWrite(ws.eng.Delete(cmd.Context(), model.KindPersona, args[0])); err != nil {
			return err
		}
		printSuccess("Deleted persona %s", args[0])
		return nil
	},
}

// photoDataURL reads an image file and packs it as the data URL form the
// validation layer expects.
func photoDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading photo: %w", err)
	}

	var mime string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".png":
		mime = "image/png"
	case ".webp":
		mime = "image/webp"
	default:
		return "", fmt.Errorf("unsupported photo type %q (want .jpg, .png, or .webp)", filepath.Ext(path))
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func init() {
	personaCreateCmd.Flags().String("project", "", "owning project id")
	personaCreateCmd.Flags().String("demographics", "", "demographic description")
	personaCreateCmd.Flags().String("psychographics", "", "psychographic description")
	personaCreateCmd.Flags().String("pain-points", "", "pain points")
	personaCreateCmd.Flags().String("language", "", "language patterns")
	personaCreateCmd.Flags().String("goals", "", "goals")
	personaCreateCmd.Flags().String("photo", "", "path to a photo (jpeg, png, or webp)")
	personaCmd.AddCommand(personaListCmd)
	personaCmd.AddCommand(personaShowCmd)
	personaCmd.AddCommand(personaCreateCmd)
	personaCmd.AddCommand(personaDeleteCmd)
}

// --- voice ---

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Manage the per-project brand voice",
}

var voiceShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project's brand voice as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		voice, stale, err := ws.eng.Get(cmd.Context(), model.KindBrandVoice, args[0])
		if errors.Is(err, engine.ErrNotFound) {
			fmt.Println("No brand voice configured for this project.")
			return nil
		}
		if err != nil {
			return err
		}
		reportStale(stale)
		return printJSON(voice)
	},
}

var voiceSetCmd = &cobra.Command{
	Use:   "set <project-id>",
	Short: "Set a project's brand voice (replaces any existing one)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		brandName, _ := cmd.Flags().GetString("brand-name")
		if brandName == "" {
			return fmt.Errorf("--brand-name is required")
		}
		tone, _ := cmd.Flags().GetString("tone")
		values, _ := cmd.Flags().GetString("values")
		mission, _ := cmd.Flags().GetString("mission")
		approved, _ := cmd.Flags().GetString("approved")
		forbidden, _ := cmd.Flags().GetString("forbidden")

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		_, err = ws.eng.Create(cmd.Context(), &model.BrandVoice{
			ProjectID:        args[0],
			BrandName:        brandName,
			ToneDescription:  tone,
			Values:           values,
			MissionStatement: mission,
			ApprovedPhrases:  splitList(approved),
			ForbiddenWords:   splitList(forbidden),
		})
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Set brand voice for project %s", args[0])
		return nil
	},
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func init() {
	voiceSetCmd.Flags().String("brand-name", "", "brand name")
	voiceSetCmd.Flags().String("tone", "", "tone description")
	voiceSetCmd.Flags().String("values", "", "brand values")
	voiceSetCmd.Flags().String("mission", "", "mission statement")
	voiceSetCmd.Flags().String("approved", "", "comma-separated approved phrases")
	voiceSetCmd.Flags().String("forbidden", "", "comma-separated forbidden words")
	voiceCmd.AddCommand(voiceShowCmd)
	voiceCmd.AddCommand(voiceSetCmd)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage user settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		settings, stale, err := ws.eng.Get(cmd.Context(), model.KindUserSettings, ws.cfg.Auth.UserID)
		if errors.Is(err, engine.ErrNotFound) {
			fmt.Println("No settings saved yet.")
			return nil
		}
		if err != nil {
			return err
		}
		reportStale(stale)
		return printJSON(settings)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a settings preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		ctx := cmd.Context()
		ent, _, err := ws.eng.Get(ctx, model.KindUserSettings, ws.cfg.Auth.UserID)
		switch {
		case errors.Is(err, engine.ErrNotFound):
			_, err = ws.eng.Create(ctx, &model.UserSettings{
				Preferences: map[string]any{key: value},
			})
		case err != nil:
			return err
		default:
			prefs := ent.(*model.UserSettings).Preferences
			if prefs == nil {
				prefs = map[string]any{}
			}
			prefs[key] = value
			_, err = ws.eng.Update(ctx, model.KindUserSettings, ws.cfg.Auth.UserID, map[string]any{"preferences": prefs})
		}
		if err := reportWrite(err); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
