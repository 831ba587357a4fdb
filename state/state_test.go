package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryTracker(t *testing.T) {
	tracker := NewMemoryTracker()

	if tracker.AlreadyProcessed("h1") {
		t.Fatal("Expected empty tracker to report nothing processed")
	}
	if err := tracker.MarkProcessed("h1", "id-1", 3); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := tracker.MarkProcessed("h1", "id-other", 5); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := tracker.MarkProcessed("", "ignored", 1); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	if !tracker.AlreadyProcessed("h1") {
		t.Error("Expected h1 to be processed")
	}
	if id, _ := tracker.MessageID("h1"); id != "id-1" {
		t.Errorf("MessageID() = %q, want first recorded id", id)
	}

	snap := tracker.Snapshot()
	if snap.Processed != 1 || snap.Parts != 3 {
		t.Errorf("Snapshot() = %+v, want 1 processed with 3 parts", snap)
	}
}

func TestFileTracker_PersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileTracker(dir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := first.MarkProcessed("h1", "id-1", 2); err != nil {
		t.Fatal(err)
	}
	if err := first.MarkProcessed("h2", "id-2", 1); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	second, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() reload error = %v", err)
	}
	defer second.Close()

	if !second.AlreadyProcessed("h1") || !second.AlreadyProcessed("h2") {
		t.Error("Expected both hashes to be loaded from disk")
	}
	if snap := second.Snapshot(); snap.Processed != 2 || snap.Parts != 3 {
		t.Errorf("Snapshot() = %+v, want 2 processed with 3 parts", snap)
	}
}

func TestFileTracker_DryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.MarkProcessed("h1", "id-1", 1); err != nil {
		t.Fatal(err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Errorf("Expected no state file in dry-run, stat err = %v", err)
	}
}

func TestFileTracker_Errors(t *testing.T) {
	if _, err := NewFileTracker("  ", true); err == nil {
		t.Error("Expected error for empty state directory")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{\"hash\":\"a\"}\nnot json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileTracker(dir, false)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected parse error on line 2, got %v", err)
	}
}

func TestFileTracker_MarkAfterClose(t *testing.T) {
	tracker, err := NewFileTracker(t.TempDir(), true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tracker.MarkProcessed("late", "<late@x>", 1); err == nil {
		t.Error("MarkProcessed() after Close() error = nil, want error")
	}
	if err := tracker.Flush(); err != nil {
		t.Errorf("Flush() after Close() error = %v", err)
	}
}
