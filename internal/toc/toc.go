// Package toc finds the table-of-contents pages of a protocol so the
// segmenter can skip them.
package toc

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/protoseg/internal/doctree"
)

// StartMarker opens the table of contents. Matched case-sensitively.
const StartMarker = "Table of Contents"

var (
	dottedEntry   = regexp.MustCompile(`\d+(\.\d+)*\s+[A-Z].*\.{3,}`)
	numberedEntry = regexp.MustCompile(`^(\d+\.?)+\s+`)
	trailingPage  = regexp.MustCompile(`\d+$`)
)

// Pages is a set of 1-based page numbers.
type Pages map[int]bool

// Contains reports whether page is in the set. A nil set contains nothing.
func (p Pages) Contains(page int) bool { return p[page] }

// Sorted returns the page numbers in ascending order.
func (p Pages) Sorted() []int {
	out := make([]int, 0, len(p))
	for n := range p {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Classifier scans a document layout for its table of contents.
type Classifier struct {
	log *slog.Logger
}

// NewClassifier returns a classifier. A nil logger discards output.
func NewClassifier(log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Classifier{log: log}
}

// Classify returns the TOC pages: the first page containing StartMarker plus
// every following page with at least one TOC-shaped line. The first page
// without one ends detection for good. No marker yields an empty set.
func (c *Classifier) Classify(layout []doctree.LayoutPage) Pages {
	pages := Pages{}
	started := false

	for _, page := range layout {
		if !started {
			if strings.Contains(page.Text, StartMarker) {
				started = true
				pages[page.Number] = true
				c.log.Info("table of contents start", "page", page.Number)
			}
			continue
		}

		if !hasTOCLine(page) {
			c.log.Info("table of contents end", "before_page", page.Number)
			break
		}
		pages[page.Number] = true
		c.log.Debug("table of contents page", "page", page.Number)
	}

	if !started {
		c.log.Debug("no table of contents found")
	}
	return pages
}

func hasTOCLine(page doctree.LayoutPage) bool {
	for _, line := range page.Lines() {
		if IsTOCLine(line) {
			return true
		}
	}
	return false
}

// IsTOCLine reports whether a line is shaped like a TOC entry: an outline
// number and title followed by a dot leader, a line opening with an outline
// number, or a line with a long dot leader ending in a page number.
func IsTOCLine(line string) bool {
	if dottedEntry.MatchString(line) || numberedEntry.MatchString(line) {
		return true
	}
	return strings.Contains(line, "..........") && trailingPage.MatchString(strings.TrimSpace(line))
}
