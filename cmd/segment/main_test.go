package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"b_Prot_000.pdf",
		"b_Prot_000_output.json",
		"a.md",
		"notes.xls",
		"sub/c.docx",
		".git/d.md",
	} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := collectFiles(dir)
	if err != nil {
		t.Fatalf("collectFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b_Prot_000.pdf"),
		filepath.Join(dir, "sub/c.docx"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectFiles_Empty(t *testing.T) {
	if _, err := collectFiles(t.TempDir()); err == nil {
		t.Error("expected error for directory without documents")
	}
}
