package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractPDFURL(t *testing.T) {
	tests := []struct {
		cell string
		want string
		ok   bool
	}{
		{
			"Informed Consent Form, https://cdn.example.gov/ICF_000.pdf|Study Protocol, https://cdn.example.gov/ProvidedDocs/67/NCT01/Prot_000.pdf",
			"https://cdn.example.gov/ProvidedDocs/67/NCT01/Prot_000.pdf", true,
		},
		{
			"Study Protocol and Statistical Analysis Plan, https://cdn.example.gov/x/Prot_SAP_001.PDF",
			"https://cdn.example.gov/x/Prot_SAP_001.PDF", true,
		},
		{"Statistical Analysis Plan, https://cdn.example.gov/SAP_002.pdf", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractPDFURL(tt.cell)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractPDFURL(%q) = %q, %v; want %q, %v", tt.cell, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReadCSV(t *testing.T) {
	input := "\ufeffNCT Number,Study Title,Study Documents,Phases\n" +
		"NCT001,Trial A,\"Study Protocol, https://x.gov/Prot_000.pdf\",PHASE3\n" +
		"NCT002,Trial B,,PHASE2\n" +
		"NCT003,Trial C,\"ICF, https://x.gov/ICF.pdf|Study Protocol, https://x.gov/Prot_SAP_001.pdf\",PHASE1\n"

	entries, err := ReadCSV(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	e := entries[0]
	if e.Row != 2 || e.NCTNumber != "NCT001" || e.URL != "https://x.gov/Prot_000.pdf" {
		t.Errorf("unexpected first entry: %+v", e)
	}
	if e.Metadata["Study Title"] != "Trial A" || e.Metadata["Phases"] != "PHASE3" || e.Metadata[ColumnNCT] != "NCT001" {
		t.Errorf("unexpected metadata: %v", e.Metadata)
	}
	if _, ok := e.Metadata[ColumnDocuments]; ok {
		t.Error("documents column should not be in metadata")
	}
	if entries[1].Row != 4 || entries[1].URL != "https://x.gov/Prot_SAP_001.pdf" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("NCT Number,Title\nNCT1,x\n"), nil)
	if !errors.Is(err, ErrNoDocumentsColumn) {
		t.Errorf("expected ErrNoDocumentsColumn, got %v", err)
	}
}

func TestDownloader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/docs/Prot_000.pdf" {
			w.Write([]byte("%PDF-1.4 fake"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(dir, 0, nil)

	got, err := d.Download(context.Background(), srv.URL+"/docs/Prot_000.pdf")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got != filepath.Join(dir, "Prot_000.pdf") {
		t.Errorf("unexpected path %q", got)
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != "%PDF-1.4 fake" {
		t.Errorf("unexpected file content %q, %v", data, err)
	}

	if _, err := d.Download(context.Background(), srv.URL+"/docs/missing.pdf"); err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("expected status error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.pdf")); !os.IsNotExist(err) {
		t.Error("failed download should not leave a file")
	}
}

func TestDownloader_CanceledContext(t *testing.T) {
	d := NewDownloader(t.TempDir(), 0.001, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Download(ctx, "http://127.0.0.1:1/Prot_000.pdf"); err == nil {
		t.Error("expected error for canceled context")
	}
}
