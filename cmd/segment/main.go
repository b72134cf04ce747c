package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/dgallion1/protoseg/internal/config"
	"github.com/dgallion1/protoseg/internal/parser"
	"github.com/dgallion1/protoseg/internal/pipeline"
	"github.com/dgallion1/protoseg/internal/registry"
)

// cacheSuffix marks parsed-page JSON written next to its PDF.
const cacheSuffix = "_output.json"

func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory of protocol documents to segment")
		csvPath  = flag.String("csv", "", "clinical registry CSV export whose protocol PDFs are downloaded and segmented")
		boundary = flag.String("boundary", "", "boundary rule: name or strict (overrides BOUNDARY_RULE)")
		out      = flag.String("out", "", "directory to write one JSON result per protocol (optional)")
		force    = flag.Bool("force", false, "segment documents whose content is already stored")
	)
	flag.Parse()

	if (*dir == "") == (*csvPath == "") {
		printError("Error: exactly one of --dir or --csv is required\n")
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if *boundary != "" {
		cfg.BoundaryRule = *boundary
	}
	if err := cfg.ValidateEngine(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := pipeline.NewEngine(cfg, log)
	if err != nil {
		log.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	store, err := pipeline.OpenStore(cfg)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *out != "" {
		if err := os.MkdirAll(*out, 0o755); err != nil {
			log.Error("failed to create output directory", "dir", *out, "error", err)
			os.Exit(1)
		}
	}

	b := &batch{
		worker: pipeline.NewOrchestrator(cfg, engine, store, log).NewWorker(),
		outDir: *out,
		force:  *force,
		log:    log,
	}

	if *dir != "" {
		err = b.runDir(ctx, *dir)
	} else {
		dl := registry.NewDownloader(cfg.DownloadDir, cfg.DownloadRate, log)
		err = b.runCSV(ctx, *csvPath, dl)
	}
	if err != nil {
		log.Error("batch failed", "error", err)
		os.Exit(1)
	}

	log.Info("batch processing complete",
		"completed", b.completed,
		"duplicates", b.duplicates,
		"failed", b.failed,
	)
	if b.failed > 0 {
		os.Exit(2)
	}
}

type batch struct {
	worker *pipeline.Worker
	outDir string
	force  bool
	log    *slog.Logger

	completed  int
	duplicates int
	failed     int
}

func (b *batch) runDir(ctx context.Context, dir string) error {
	files, err := collectFiles(dir)
	if err != nil {
		return err
	}
	b.log.Info("starting directory batch", "dir", dir, "files", len(files))
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.processFile(ctx, path, "", nil)
	}
	return nil
}

func (b *batch) runCSV(ctx context.Context, csvPath string, dl *registry.Downloader) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	entries, err := registry.ReadCSV(f, b.log)
	f.Close()
	if err != nil {
		return err
	}
	b.log.Info("starting registry batch", "csv", csvPath, "protocols", len(entries))

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path, err := dl.Download(ctx, e.URL)
		if err != nil {
			b.log.Error("download failed", "row", e.Row, "nct_number", e.NCTNumber, "url", e.URL, "error", err)
			b.failed++
			continue
		}
		b.processFile(ctx, path, e.NCTNumber, e.Metadata)
		if err := os.Remove(path); err != nil {
			b.log.Warn("failed to remove download", "path", path, "error", err)
		}
	}
	return nil
}

func (b *batch) processFile(ctx context.Context, path, docID string, meta map[string]string) {
	log := b.log.With("file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("read failed", "error", err)
		b.failed++
		return
	}

	job := pipeline.NewJob(filepath.Base(path), data)
	if docID != "" {
		job.DocID = docID
	}
	job.Force = b.force
	job.Metadata = meta

	b.worker.Process(ctx, job)

	switch job.Snapshot().Status {
	case pipeline.StatusCompleted:
		b.completed++
	case pipeline.StatusDupSkipped:
		b.duplicates++
		return
	default:
		b.failed++
		return
	}

	if b.outDir == "" {
		return
	}
	doc := job.Result()
	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Error("encode result failed", "error", err)
		return
	}
	dest := filepath.Join(b.outDir, doc.DocID+".json")
	if err := os.WriteFile(dest, buf, 0o644); err != nil {
		log.Error("write result failed", "path", dest, "error", err)
		return
	}
	log.Info("result written", "path", dest)
}

// collectFiles returns the supported documents under dir in lexical order,
// leaving out parsed-page caches.
func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), cacheSuffix) || !parser.IsSupportedExtension(d.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, errors.New("no supported documents found in " + dir)
	}
	sort.Strings(files)
	return files, nil
}
