package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"storyboard/internal/util"
	"storyboard/pkg/domain"
)

var scriptFileTypes = map[string]string{
	".pdf":  "pdf",
	".txt":  "txt",
	".fdx":  "fdx",
	".html": "html",
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

const scriptURLExpiry = 15 * time.Minute

// UploadScript stores the raw file and records the script row. The handler
// enforces the size cap before the reader gets here.
func (a *App) UploadScript(ctx context.Context, userID, filename string, size int64, r io.Reader) (domain.Script, error) {
	filename = strings.TrimSpace(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := scriptFileTypes[ext]
	if !ok {
		return domain.Script{}, BadRequest("Unsupported file type", map[string]string{
			"file": "allowed types: pdf, txt, fdx, html",
		})
	}
	if size <= 0 {
		return domain.Script{}, BadRequest("Empty file", nil)
	}
	if size > MaxScriptBytes {
		return domain.Script{}, BadRequest("File too large", map[string]string{
			"file": fmt.Sprintf("maximum size is %d bytes", MaxScriptBytes),
		})
	}
	id := util.NewID()
	key := fmt.Sprintf("scripts/%s/%s_%s", userID, id, sanitizeFilename(filename))
	if err := a.objects.Put(ctx, key, r, size, contentTypeFor(fileType)); err != nil {
		return domain.Script{}, fmt.Errorf("store script: %w", err)
	}
	script := domain.Script{
		ID:         id,
		UserID:     userID,
		Filename:   filename,
		FileType:   fileType,
		FileSize:   size,
		StorageKey: key,
		Status:     domain.ScriptUploaded,
		CreatedAt:  a.now().UTC(),
	}
	if err := a.store.SaveScript(script); err != nil {
		return domain.Script{}, fmt.Errorf("save script: %w", err)
	}
	return script, nil
}

// GetScript returns an owned script.
func (a *App) GetScript(userID, scriptID string) (domain.Script, error) {
	script, found, err := a.store.GetScript(strings.TrimSpace(scriptID))
	if err != nil {
		return domain.Script{}, fmt.Errorf("get script: %w", err)
	}
	if !found || script.UserID != userID {
		return domain.Script{}, NotFound("Script not found")
	}
	return script, nil
}

// ListScripts returns the user's scripts, newest first.
func (a *App) ListScripts(userID string) ([]domain.Script, error) {
	scripts, err := a.store.ListScriptsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return scripts, nil
}

// DeleteScript removes the row and the stored object.
func (a *App) DeleteScript(ctx context.Context, userID, scriptID string) error {
	script, err := a.GetScript(userID, scriptID)
	if err != nil {
		return err
	}
	if err := a.objects.Delete(ctx, script.StorageKey); err != nil {
		return fmt.Errorf("delete script object: %w", err)
	}
	if err := a.store.DeleteScript(script.ID); err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	return nil
}

// ScriptDownloadURL returns a short-lived presigned URL for the raw file.
func (a *App) ScriptDownloadURL(ctx context.Context, userID, scriptID string) (string, error) {
	script, err := a.GetScript(userID, scriptID)
	if err != nil {
		return "", err
	}
	url, err := a.objects.PresignGet(ctx, script.StorageKey, scriptURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign script: %w", err)
	}
	return url, nil
}

// ParseScript extracts text from the stored file and splits it into scene
// drafts on sluglines. Parse failures land on the row as status failed.
func (a *App) ParseScript(ctx context.Context, userID, scriptID string) (domain.Script, error) {
	script, err := a.GetScript(userID, scriptID)
	if err != nil {
		return domain.Script{}, err
	}
	script.Status = domain.ScriptParsing
	script.ErrorMessage = ""
	if err := a.store.SaveScript(script); err != nil {
		return domain.Script{}, fmt.Errorf("save script: %w", err)
	}

	drafts, parseErr := a.parseStoredScript(ctx, script)
	if parseErr != nil {
		script.Status = domain.ScriptFailed
		script.ErrorMessage = parseErr.Error()
		if err := a.store.SaveScript(script); err != nil {
			return domain.Script{}, fmt.Errorf("save script: %w", err)
		}
		return script, nil
	}
	script.Status = domain.ScriptParsed
	script.ParsedScenes = drafts
	if err := a.store.SaveScript(script); err != nil {
		return domain.Script{}, fmt.Errorf("save script: %w", err)
	}
	return script, nil
}

func (a *App) parseStoredScript(ctx context.Context, script domain.Script) ([]domain.SceneDraft, error) {
	rc, err := a.objects.Get(ctx, script.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read stored script: %w", err)
	}
	defer rc.Close()
	text, err := ExtractScriptText(script.FileType, rc)
	if err != nil {
		return nil, err
	}
	drafts := SplitScenes(text)
	if len(drafts) == 0 {
		return nil, fmt.Errorf("script contains no readable scenes")
	}
	return drafts, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeKeyChars.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = "script"
	}
	return name
}

func contentTypeFor(fileType string) string {
	switch fileType {
	case "pdf":
		return "application/pdf"
	case "html":
		return "text/html"
	case "fdx":
		return "application/xml"
	default:
		return "text/plain"
	}
}
