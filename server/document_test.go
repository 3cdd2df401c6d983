package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDocumentGettersBeforeProcessing(t *testing.T) {
	d := &Document{path: "trace.etl", kind: KindWindows}
	if d.Path() != "trace.etl" {
		t.Fatalf("Path() = %q, want %q", d.Path(), "trace.etl")
	}
	if d.Kind() != KindWindows {
		t.Fatalf("Kind() = %v, want KindWindows", d.Kind())
	}
	if d.Processed() {
		t.Fatalf("Processed() = true before process ever ran")
	}
	if _, err := d.Context(); !errors.Is(err, ErrNotProcessed) {
		t.Fatalf("Context() error = %v, want ErrNotProcessed", err)
	}
}

func TestKindString(t *testing.T) {
	if got := KindLinux.String(); got != "linux" {
		t.Errorf("KindLinux.String() = %q, want %q", got, "linux")
	}
	if got := KindWindows.String(); got != "windows" {
		t.Errorf("KindWindows.String() = %q, want %q", got, "windows")
	}
}

func TestOpenDocumentRejectsUnrecognizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-trace.bin")
	if err := os.WriteFile(path, []byte("this is not any trace container at all, just text"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := openDocument(path); err == nil {
		t.Fatal("openDocument: expected an error for a file with neither magic, got nil")
	}
}

func TestOpenDocumentMissingFile(t *testing.T) {
	if _, err := openDocument(filepath.Join(t.TempDir(), "missing.etl")); err == nil {
		t.Fatal("openDocument: expected an error for a missing file, got nil")
	}
}
