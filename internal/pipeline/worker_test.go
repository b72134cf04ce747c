package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/protoseg/internal/config"
	"github.com/dgallion1/protoseg/internal/parser"
	"github.com/dgallion1/protoseg/internal/protocol"
	"github.com/dgallion1/protoseg/internal/segment"
	"github.com/dgallion1/protoseg/internal/template"
)

const sampleMarkdown = "# 1 Synopsis\n\nProtocol Number: ABC-1\n\f# 2 Introduction\n\nBackground text.\n"

type retryableErr struct{}

func (retryableErr) Error() string   { return "store busy" }
func (retryableErr) Retryable() bool { return true }

// memStore is an in-memory protocol.Store.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]*protocol.Document
	saveErrs []error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*protocol.Document)}
}

func (m *memStore) Save(_ context.Context, doc *protocol.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if len(m.saveErrs) > 0 {
		err := m.saveErrs[0]
		m.saveErrs = m.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	m.docs[doc.DocID] = doc
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*protocol.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, protocol.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) FindByHash(_ context.Context, hash string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, doc := range m.docs {
		if doc.ContentHash == hash {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return protocol.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memStore) Close() error { return nil }

func testEngine(t *testing.T) *protocol.Engine {
	t.Helper()
	tmpl, err := template.New([]template.Section{
		{Name: "synopsis"},
		{Name: "introduction", Synonyms: []string{"background"}},
	})
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	return protocol.NewEngine(segment.New(tmpl), nil)
}

func testWorker(t *testing.T, store protocol.Store) *Worker {
	t.Helper()
	w := NewWorker(testEngine(t), store, parser.Options{}, "", slog.New(slog.DiscardHandler))
	w.backoff = func(int) time.Duration { return 0 }
	return w
}

func TestWorker_Process(t *testing.T) {
	store := newMemStore()
	w := testWorker(t, store)

	job := NewJob("Drugx_Prot_001.md", []byte(sampleMarkdown))
	job.Metadata = map[string]string{"NCT Number": "NCT001"}
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.TotalPages != 2 || snap.Progress.SectionsMatched != 2 || snap.Progress.SectionsTotal != 2 {
		t.Errorf("unexpected progress: %+v", snap.Progress)
	}
	if snap.ContentHash == "" {
		t.Error("expected content hash")
	}

	doc, err := store.Get(context.Background(), job.DocID)
	if err != nil {
		t.Fatalf("stored doc: %v", err)
	}
	if doc.Number != "ABC-1" || doc.DrugName != "Drugx" || doc.Metadata["NCT Number"] != "NCT001" {
		t.Errorf("unexpected stored doc: %+v", doc)
	}
	syn, _ := doc.Sections.Get("synopsis")
	intro, _ := doc.Sections.Get("introduction")
	if syn.StartPage != 1 || syn.EndPage != 1 || intro.StartPage != 2 || intro.EndPage != 2 {
		t.Errorf("unexpected pages: synopsis %d-%d, introduction %d-%d",
			syn.StartPage, syn.EndPage, intro.StartPage, intro.EndPage)
	}
	if job.Result() != doc {
		t.Error("job result should be the stored document")
	}
	if job.FileData() != nil {
		t.Error("file data should be released after processing")
	}
}

func TestWorker_Duplicate(t *testing.T) {
	store := newMemStore()
	w := testWorker(t, store)
	ctx := context.Background()

	first := NewJob("a.md", []byte(sampleMarkdown))
	w.Process(ctx, first)

	dup := NewJob("b.md", []byte(sampleMarkdown))
	w.Process(ctx, dup)
	snap := dup.Snapshot()
	if snap.Status != StatusDupSkipped {
		t.Fatalf("expected duplicate_skipped, got %s", snap.Status)
	}
	if snap.ExistingDocID != first.DocID {
		t.Errorf("expected existing doc %q, got %q", first.DocID, snap.ExistingDocID)
	}

	forced := NewJob("c.md", []byte(sampleMarkdown))
	forced.Force = true
	w.Process(ctx, forced)
	if got := forced.Snapshot().Status; got != StatusCompleted {
		t.Errorf("forced job: expected completed, got %s", got)
	}
}

func TestWorker_ParseFailures(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{"unsupported", "protocol.xls", "x"},
		{"bad json", "protocol.json", "{"},
		{"empty", "protocol.txt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testWorker(t, newMemStore())
			job := NewJob(tt.filename, []byte(tt.data))
			w.Process(context.Background(), job)

			snap := job.Snapshot()
			if snap.Status != StatusFailed || snap.Phase != "parsing" {
				t.Errorf("expected failed in parsing, got %s/%s", snap.Status, snap.Phase)
			}
			if len(snap.Progress.Errors) == 0 {
				t.Error("expected an error to be recorded")
			}
		})
	}
}

func TestWorker_StoreRetries(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		want      JobStatus
		wantSaves int
	}{
		{"recovers", []error{retryableErr{}, retryableErr{}}, StatusCompleted, 3},
		{"exhausted", []error{retryableErr{}, retryableErr{}, retryableErr{}}, StatusFailed, 3},
		{"permanent", []error{errors.New("constraint failed")}, StatusFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.saveErrs = tt.errs
			w := testWorker(t, store)

			job := NewJob("p.md", []byte(sampleMarkdown))
			w.Process(context.Background(), job)

			if got := job.Snapshot().Status; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if store.saves != tt.wantSaves {
				t.Errorf("expected %d save attempts, got %d", tt.wantSaves, store.saves)
			}
		})
	}
}

func TestWorker_CachedPages(t *testing.T) {
	dir := t.TempDir()
	cache := `[{"page":1,"items":[{"type":"heading","value":"Synopsis"}]}]`
	if err := os.WriteFile(filepath.Join(dir, "Drugx_Prot_001_output.json"), []byte(cache), 0o644); err != nil {
		t.Fatal(err)
	}
	w := testWorker(t, newMemStore())
	w.cacheDir = dir

	doc, err := w.cachedPages("/downloads/Drugx_Prot_001.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc == nil || len(doc.Pages) != 1 || doc.Pages[0].Items[0].Value != "Synopsis" {
		t.Fatalf("unexpected cached doc: %+v", doc)
	}

	if doc, _ := w.cachedPages("Other.pdf"); doc != nil {
		t.Error("missing cache file should yield nil")
	}
	if doc, _ := w.cachedPages("Drugx_Prot_001.md"); doc != nil {
		t.Error("non-pdf inputs never use the cache")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(retryableErr{}) {
		t.Error("expected retryable")
	}
	if !IsRetryable(errors.Join(errors.New("wrap"), retryableErr{})) {
		t.Error("expected wrapped retryable")
	}
	if IsRetryable(errors.New("plain")) || IsRetryable(nil) {
		t.Error("expected non-retryable")
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base || d >= base+base/2 {
			t.Errorf("attempt %d: %s outside [%s, %s)", attempt, d, base, base+base/2)
		}
	}
}

func TestOrchestrator_ProcessesJobs(t *testing.T) {
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}
	store := newMemStore()
	o := NewOrchestrator(cfg, testEngine(t), store, slog.New(slog.DiscardHandler))
	o.Start(context.Background())

	job := NewJob("p.md", []byte(sampleMarkdown))
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for job.Snapshot().Status != StatusCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, status %s", job.Snapshot().Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	o.Stop()

	if o.GetJob(job.ID) != job {
		t.Error("expected job to be registered")
	}
	if _, err := o.Store().Get(context.Background(), job.DocID); err != nil {
		t.Errorf("expected stored doc: %v", err)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, testEngine(t), newMemStore(), slog.New(slog.DiscardHandler))

	if err := o.Submit(NewJob("a.md", nil)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewJob("b.md", nil)
	if err := o.Submit(second); err == nil {
		t.Fatal("expected queue full error")
	}
	if got := second.Snapshot().Status; got != StatusFailed {
		t.Errorf("expected failed status, got %s", got)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
}
