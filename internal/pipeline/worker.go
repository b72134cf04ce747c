package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/dgallion1/protoseg/internal/parser"
	"github.com/dgallion1/protoseg/internal/protocol"
)

// Worker processes a single protocol job.
type Worker struct {
	engine     *protocol.Engine
	store      protocol.Store
	parserOpts parser.Options
	cacheDir   string
	log        *slog.Logger

	backoff func(attempt int) time.Duration
}

func NewWorker(engine *protocol.Engine, store protocol.Store, opts parser.Options, cacheDir string, log *slog.Logger) *Worker {
	return &Worker{
		engine:     engine,
		store:      store,
		parserOpts: opts,
		cacheDir:   cacheDir,
		log:        log,
		backoff:    Backoff,
	}
}

// Process runs parse, TOC classification, segmentation and storage for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	doc, err := w.parse(job.Filename, job.FileData())
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if len(doc.Pages) == 0 {
		log.Warn("no pages parsed")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	hash := protocol.ContentHash(doc)
	job.SetContentHash(hash)

	// Phase 1.5: Dedup check
	if !job.Force {
		existing, ok, err := w.store.FindByHash(ctx, hash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if ok {
			log.Info("duplicate document, skipping", "existing_doc_id", existing)
			job.SetExistingDocID(existing)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
	}

	// Phase 2: TOC
	job.SetStatus(StatusClassifying, "classifying")
	tocPages := w.engine.TOC(doc)
	job.SetPages(len(doc.Pages), tocPages.Sorted())
	log.Info("classified toc", "pages", len(doc.Pages), "toc_pages", len(tocPages))

	// Phase 3: Segment
	job.SetStatus(StatusSegmenting, "segmenting")
	sections := w.engine.Segmenter().Segment(doc.Pages, tocPages)
	job.SetSections(sections.Matched(), len(sections.Sections))

	out := w.engine.Assemble(doc, job.Filename, tocPages, sections)
	out.DocID = job.DocID
	out.Metadata = job.Metadata
	job.setResult(out)

	// Phase 4: Store
	job.SetStatus(StatusStoring, "storing")
	if err := w.save(ctx, out, log); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	log.Info("protocol stored", "matched", sections.Matched(), "sections", len(sections.Sections))
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) save(ctx context.Context, doc *protocol.Document, log *slog.Logger) error {
	var lastErr error
	for attempt := range MaxRetries {
		lastErr = w.store.Save(ctx, doc)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		log.Warn("retryable store error", "attempt", attempt, "error", lastErr)
		if attempt == MaxRetries-1 {
			break
		}
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// parse turns the raw upload into a document. A PDF with a cached page JSON
// export in cacheDir takes its items from the cache and its layout from the
// PDF itself.
func (w *Worker) parse(filename string, data []byte) (*doctree.Document, error) {
	p, err := parser.ForFile(filename, w.parserOpts)
	if err != nil {
		return nil, err
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}

	cached, err := w.cachedPages(filename)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		w.log.Debug("using cached page json", "filename", filename, "pages", len(cached.Pages))
		doc.Pages = cached.Pages
	}
	return doc, nil
}

func (w *Worker) cachedPages(filename string) (*doctree.Document, error) {
	if w.cacheDir == "" || !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, nil
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	path := filepath.Join(w.cacheDir, base+"_output.json")

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	doc, err := (&parser.PagesParser{}).Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", path, err)
	}
	return doc, nil
}
