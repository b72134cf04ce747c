package segment

import (
	"github.com/dgallion1/protoseg/internal/match"
	"github.com/dgallion1/protoseg/internal/template"
)

// OpenSection describes the section a tracker is currently accumulating.
type OpenSection struct {
	Name     string
	Synonyms []string
	Number   string // outline number of the opening heading, empty if none
}

// BoundaryRule decides whether a heading met inside an open section starts
// the next top-level section.
type BoundaryRule interface {
	IsBoundary(heading string, open OpenSection) bool
}

// NameRule is the default rule. Numbered sections close on a heading whose
// top-level outline number differs. Unnumbered sections close on any heading
// that does not match their own name or synonyms.
type NameRule struct{}

func (NameRule) IsBoundary(heading string, open OpenSection) bool {
	return IsNextMainSection(heading, open.Number, open.Name, open.Synonyms)
}

// IsNextMainSection applies NameRule to a heading.
func IsNextMainSection(heading, number, canonical string, synonyms []string) bool {
	if match.IsDate(heading) {
		return false
	}
	if number == "" {
		_, same := match.Heading(heading, canonical, synonyms)
		return !same
	}
	return numberedBoundary(heading, number)
}

// StrictRule closes an unnumbered section only when the heading matches a
// different canonical section of the template. Numbered sections behave as
// in NameRule. Without a template an unnumbered section never closes early.
type StrictRule struct {
	Template *template.Template
}

func (r StrictRule) IsBoundary(heading string, open OpenSection) bool {
	if match.IsDate(heading) {
		return false
	}
	if open.Number != "" {
		return numberedBoundary(heading, open.Number)
	}
	if r.Template == nil {
		return false
	}
	for _, s := range r.Template.Sections() {
		if s.Name == open.Name {
			continue
		}
		if _, ok := match.Heading(heading, s.Name, s.Synonyms); ok {
			return true
		}
	}
	return false
}

func numberedBoundary(heading, current string) bool {
	next, ok := match.SectionNumber(heading)
	if !ok {
		return false
	}
	return match.TopLevel(next) != match.TopLevel(current)
}

// RuleByName resolves a configured rule name ("name" or "strict").
// Unknown names fall back to NameRule.
func RuleByName(name string, tmpl *template.Template) BoundaryRule {
	if name == "strict" {
		return StrictRule{Template: tmpl}
	}
	return NameRule{}
}
