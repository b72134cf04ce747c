package segment

import (
	"log/slog"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/dgallion1/protoseg/internal/template"
)

// Segmenter walks a template in order and locates each canonical section in
// a single left-to-right pass over the item stream.
type Segmenter struct {
	tmpl *template.Template
	rule BoundaryRule
	log  *slog.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithBoundaryRule replaces the default NameRule.
func WithBoundaryRule(r BoundaryRule) Option {
	return func(s *Segmenter) {
		if r != nil {
			s.rule = r
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(log *slog.Logger) Option {
	return func(s *Segmenter) {
		if log != nil {
			s.log = log
		}
	}
}

// New returns a Segmenter for tmpl.
func New(tmpl *template.Template, opts ...Option) *Segmenter {
	s := &Segmenter{
		tmpl: tmpl,
		rule: NameRule{},
		log:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Template returns the template the segmenter searches for.
func (s *Segmenter) Template() *template.Template { return s.tmpl }

// Segment returns exactly one record per canonical name, in template order.
// Pages in exclude (the TOC) are never searched. Segment is a pure function
// of its inputs.
func (s *Segmenter) Segment(pages []doctree.Page, exclude map[int]bool) *Result {
	res := &Result{Sections: make([]Record, 0, s.tmpl.Len())}
	cursor := Cursor{Page: 1}

	for _, sec := range s.tmpl.Sections() {
		target := Target{Name: sec.Name, Synonyms: sec.Synonyms}
		rec, next, found := FindSection(pages, cursor, target, s.rule, exclude, s.log)
		if found {
			s.log.Info("matched section",
				"section", sec.Name,
				"start_page", rec.StartPage,
				"end_page", rec.EndPage,
				"reason", rec.EndReason,
			)
		} else {
			s.log.Warn("no match for section", "section", sec.Name)
		}
		res.Sections = append(res.Sections, rec)
		cursor = next
	}
	return res
}
