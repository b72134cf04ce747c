package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/protoseg/internal/config"
)

func TestNewEngine_DefaultTemplate(t *testing.T) {
	eng, err := NewEngine(config.Config{BoundaryRule: "name"}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if eng.Segmenter().Template().Len() == 0 {
		t.Error("expected default template sections")
	}
}

func TestNewEngine_TemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmpl.yaml")
	data := "sections:\n  - name: synopsis\n    synonyms: [summary]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	eng, err := NewEngine(config.Config{TemplatePath: path, BoundaryRule: "strict"}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if got := eng.Segmenter().Template().Names(); len(got) != 1 || got[0] != "synopsis" {
		t.Errorf("unexpected names %v", got)
	}

	if _, err := NewEngine(config.Config{TemplatePath: filepath.Join(t.TempDir(), "missing.yaml")}, slog.New(slog.DiscardHandler)); err == nil {
		t.Error("expected error for missing template file")
	}
}

func TestOpenStore(t *testing.T) {
	store, err := OpenStore(config.Config{StoreBackend: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "p.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store.Close()

	store, err = OpenStore(config.Config{StoreBackend: config.StorePathstore, PathstoreURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("open pathstore: %v", err)
	}
	store.Close()

	if _, err := OpenStore(config.Config{StoreBackend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
