package app

import (
	"context"
	"strings"
	"testing"

	"storyboard/pkg/domain"
)

func TestUploadAndParseScript(t *testing.T) {
	a := newTestApp(t)
	userID := mustSignUp(t, a, "alice@example.com")
	ctx := context.Background()

	script, err := a.UploadScript(ctx, userID, "pilot.txt", int64(len(sampleScript)), strings.NewReader(sampleScript))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if script.Status != domain.ScriptUploaded || script.FileType != "txt" {
		t.Fatalf("unexpected script: %+v", script)
	}
	if !strings.HasPrefix(script.StorageKey, "scripts/"+userID+"/") {
		t.Fatalf("unexpected storage key: %q", script.StorageKey)
	}

	url, err := a.ScriptDownloadURL(ctx, userID, script.ID)
	if err != nil || url == "" {
		t.Fatalf("download url: url=%q err=%v", url, err)
	}

	parsed, err := a.ParseScript(ctx, userID, script.ID)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Status != domain.ScriptParsed {
		t.Fatalf("expected parsed status, got %q (%s)", parsed.Status, parsed.ErrorMessage)
	}
	if len(parsed.ParsedScenes) != 3 {
		t.Fatalf("expected 3 scene drafts, got %d", len(parsed.ParsedScenes))
	}
}

func TestUploadScriptValidation(t *testing.T) {
	a := newTestApp(t)
	userID := mustSignUp(t, a, "alice@example.com")
	ctx := context.Background()

	if _, err := a.UploadScript(ctx, userID, "notes.docx", 10, strings.NewReader("x")); err == nil {
		t.Fatalf("expected unsupported extension to fail")
	}
	if _, err := a.UploadScript(ctx, userID, "pilot.txt", 0, strings.NewReader("")); err == nil {
		t.Fatalf("expected empty file to fail")
	}
	if _, err := a.UploadScript(ctx, userID, "pilot.txt", MaxScriptBytes+1, strings.NewReader("x")); err == nil {
		t.Fatalf("expected oversized file to fail")
	}
}

func TestParseScriptFailureLandsOnRow(t *testing.T) {
	a := newTestApp(t)
	userID := mustSignUp(t, a, "alice@example.com")
	ctx := context.Background()

	// Valid extension, but the payload is not a PDF.
	script, err := a.UploadScript(ctx, userID, "broken.pdf", 9, strings.NewReader("not a pdf"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	parsed, err := a.ParseScript(ctx, userID, script.ID)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Status != domain.ScriptFailed || parsed.ErrorMessage == "" {
		t.Fatalf("expected failed status with message, got %+v", parsed)
	}
}

func TestScriptOwnershipAndDelete(t *testing.T) {
	a := newTestApp(t)
	alice := mustSignUp(t, a, "alice@example.com")
	bob := mustSignUp(t, a, "bob@example.com")
	ctx := context.Background()

	script, _ := a.UploadScript(ctx, alice, "pilot.txt", 5, strings.NewReader("hello"))
	if _, err := a.GetScript(bob, script.ID); err == nil {
		t.Fatalf("expected foreign script fetch to fail")
	}
	if err := a.DeleteScript(ctx, bob, script.ID); err == nil {
		t.Fatalf("expected foreign delete to fail")
	}
	if err := a.DeleteScript(ctx, alice, script.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.GetScript(alice, script.ID); err == nil {
		t.Fatalf("expected deleted script to be gone")
	}
}
