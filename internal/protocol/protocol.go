// Package protocol assembles a segmented clinical-trial protocol from a
// parsed document: identifying fields, TOC pages and section records.
package protocol

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/dgallion1/protoseg/internal/segment"
	"github.com/dgallion1/protoseg/internal/toc"
)

// NumberNotFound is stored when no protocol number appears in the text.
const NumberNotFound = "Protocol Number Not Found"

var numberPattern = regexp.MustCompile(`(?i)protocol\s*number:?\s*([\w-]+)`)

// Document is a segmented protocol as persisted and served.
type Document struct {
	DocID       string            `json:"doc_id"`
	DrugName    string            `json:"drug_name"`
	Source      string            `json:"protocol_source"`
	Number      string            `json:"protocol_number"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TOCPages    []int             `json:"toc_pages"`
	Sections    *segment.Result   `json:"sections"`
}

// Number returns the first protocol number found in the document text.
func Number(doc *doctree.Document) string {
	m := numberPattern.FindStringSubmatch(doc.PlainText())
	if m == nil {
		return NumberNotFound
	}
	return m[1]
}

// DrugName derives the drug name from a protocol file name: the base name up
// to the first underscore.
func DrugName(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name, _, _ := strings.Cut(base, "_")
	return name
}

// ContentHash is the hex SHA-256 of the document's parsed text.
func ContentHash(doc *doctree.Document) string {
	return HashHex([]byte(doc.PlainText()))
}

// HashHex computes SHA-256 of data and returns hex string.
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// Engine runs TOC detection and section segmentation over a parsed document.
type Engine struct {
	classifier *toc.Classifier
	segmenter  *segment.Segmenter
	log        *slog.Logger
}

func NewEngine(seg *segment.Segmenter, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		classifier: toc.NewClassifier(log),
		segmenter:  seg,
		log:        log,
	}
}

// Segmenter returns the segmenter the engine was built with.
func (e *Engine) Segmenter() *segment.Segmenter { return e.segmenter }

// TOC classifies the document layout. Documents without a layout yield an
// empty set.
func (e *Engine) TOC(doc *doctree.Document) toc.Pages {
	return e.classifier.Classify(doc.Layout)
}

// Process segments doc and fills every field except DocID and Metadata.
func (e *Engine) Process(doc *doctree.Document, source string) *Document {
	pages := e.TOC(doc)
	return e.Assemble(doc, source, pages, e.segmenter.Segment(doc.Pages, pages))
}

// Assemble builds the protocol document from an already computed TOC set
// and segmentation result.
func (e *Engine) Assemble(doc *doctree.Document, source string, pages toc.Pages, sections *segment.Result) *Document {
	out := &Document{
		DrugName:    DrugName(source),
		Source:      source,
		Number:      Number(doc),
		ContentHash: ContentHash(doc),
		CreatedAt:   time.Now().UTC(),
		TOCPages:    pages.Sorted(),
		Sections:    sections,
	}
	e.log.Info("protocol segmented",
		"source", source,
		"protocol_number", out.Number,
		"toc_pages", len(out.TOCPages),
		"matched", sections.Matched(),
		"sections", len(sections.Sections),
	)
	return out
}

// ErrNotFound is returned by stores for unknown document IDs.
var ErrNotFound = errors.New("protocol not found")

// Store persists segmented protocols.
type Store interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, docID string) (*Document, error)
	// FindByHash returns the ID of a stored document with the given content
	// hash, if any.
	FindByHash(ctx context.Context, hash string) (docID string, ok bool, err error)
	Delete(ctx context.Context, docID string) error
	Close() error
}
