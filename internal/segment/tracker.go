package segment

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/dgallion1/protoseg/internal/match"
)

// Cursor is the position of the next item to scan: a 1-based page number and
// an index into that page's items.
type Cursor struct {
	Page int
	Item int
}

type trackerState int

const (
	stateSearching trackerState = iota
	stateInSection
	stateClosed
	stateNotFound
)

func (s trackerState) String() string {
	switch s {
	case stateSearching:
		return "searching"
	case stateInSection:
		return "in_section"
	case stateClosed:
		return "closed"
	case stateNotFound:
		return "not_found"
	}
	return "unknown"
}

// Target is the canonical section a tracker looks for.
type Target struct {
	Name     string
	Synonyms []string
}

// tracker is the per-section state machine. It is created for one search and
// discarded afterwards.
type tracker struct {
	target Target
	rule   BoundaryRule
	log    *slog.Logger

	state      trackerState
	rec        Record
	content    []string
	subsection string
	page       int // page currently being scanned
	lastPage   int // last page fully or partially scanned before page
	next       Cursor
}

// FindSection scans pages from cursor for target's opening heading and
// collects the section up to the next top-level boundary. Pages in exclude
// are skipped entirely. It returns the record, the cursor at which the next
// search should begin, and whether the section was found.
func FindSection(pages []doctree.Page, from Cursor, target Target, rule BoundaryRule, exclude map[int]bool, log *slog.Logger) (Record, Cursor, bool) {
	if rule == nil {
		rule = NameRule{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	t := &tracker{
		target: target,
		rule:   rule,
		log:    log,
		state:  stateSearching,
	}
	t.run(pages, from, exclude)

	switch t.state {
	case stateClosed:
		return t.rec, t.next, true
	default:
		rec := EmptyRecord(target.Name)
		return rec, Cursor{Page: from.Page + 1}, false
	}
}

func (t *tracker) run(pages []doctree.Page, from Cursor, exclude map[int]bool) {
	for _, page := range pages {
		if page.Number < from.Page || exclude[page.Number] {
			continue
		}
		if t.page != 0 {
			t.lastPage = t.page
		}
		t.page = page.Number

		start := 0
		if page.Number == from.Page {
			start = from.Item
		}
		for i := start; i < len(page.Items); i++ {
			t.step(page.Items[i], Cursor{Page: page.Number, Item: i})
			if t.state == stateClosed {
				return
			}
		}
	}

	if t.state == stateInSection {
		t.close(t.page, "reached end of document", Cursor{Page: t.page + 1})
		return
	}
	t.state = stateNotFound
	t.log.Debug("section not found", "section", t.target.Name)
}

func (t *tracker) step(item doctree.Item, at Cursor) {
	switch t.state {
	case stateSearching:
		if item.Type != doctree.ItemHeading {
			return
		}
		matched, ok := match.Heading(item.Value, t.target.Name, t.target.Synonyms)
		if !ok {
			return
		}
		t.open(item.Value, matched)

	case stateInSection:
		switch item.Type {
		case doctree.ItemHeading:
			open := OpenSection{Name: t.target.Name, Synonyms: t.target.Synonyms, Number: t.rec.SectionNum}
			if t.rule.IsBoundary(item.Value, open) {
				// Past the opening page the section ends on the previous scanned
				// page and the next search resumes at the boundary. On the
				// opening page it ends there and the search moves to the next page.
				end, next := t.page, Cursor{Page: t.page + 1}
				if t.page > t.rec.StartPage {
					end, next = t.lastPage, at
				}
				t.close(end, fmt.Sprintf("next main section found: %q", item.Value), next)
				return
			}
			t.content = append(t.content, item.Value)
			t.subsection = item.Value

		case doctree.ItemText:
			if t.subsection != "" {
				t.content = append(t.content, t.subsection+":\n"+item.Value)
			} else {
				t.content = append(t.content, item.Value)
			}

		case doctree.ItemImage:
			t.rec.Images = append(t.rec.Images, item)
			alt := item.Alt
			if alt == "" {
				alt = "No description"
			}
			t.content = append(t.content, "[Image: "+alt+"]")

		case doctree.ItemTable:
			t.rec.Tables = append(t.rec.Tables, item)
			md := item.Markdown
			if md == "" {
				md = "No table content"
			}
			t.content = append(t.content, "[Table: "+md+"]")
		}
	}
}

func (t *tracker) open(heading, matched string) {
	t.state = stateInSection
	num, _ := match.SectionNumber(heading)
	t.rec = Record{
		Name:       t.target.Name,
		Found:      true,
		StartPage:  t.page,
		SectionNum: num,
		Images:     []doctree.Item{},
		Tables:     []doctree.Item{},
	}
	t.content = []string{heading}
	t.subsection = heading
	t.log.Debug("section started",
		"section", t.target.Name,
		"matched", matched,
		"number", num,
		"page", t.page,
	)
}

func (t *tracker) close(end int, reason string, next Cursor) {
	t.state = stateClosed
	t.rec.EndPage = end
	t.rec.Content = strings.Join(t.content, "\n\n")
	t.rec.EndReason = reason
	t.next = next
	t.log.Debug("section ended",
		"section", t.target.Name,
		"start_page", t.rec.StartPage,
		"end_page", end,
		"reason", reason,
	)
}
