package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dgallion1/protoseg/internal/doctree"
)

var numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\p{Lu}`)

// isHeadingLine guesses whether a line of flat text is a heading: a numbered
// title ("5.1 Randomization") or a short all-caps line ("SYNOPSIS").
func isHeadingLine(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" || len(s) > 120 || strings.Contains(s, "...") {
		return false
	}
	if numberedHeading.MatchString(s) {
		return !strings.HasSuffix(s, ".")
	}

	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 4 && upper == letters && len(strings.Fields(s)) <= 12
}

// itemsFromLines turns flat page lines into heading and text items. Runs of
// non-heading lines form one text item; blank lines end a run.
func itemsFromLines(lines []string) []doctree.Item {
	var items []doctree.Item
	var para []string

	flush := func() {
		if len(para) > 0 {
			items = append(items, doctree.Item{Type: doctree.ItemText, Value: strings.Join(para, "\n")})
			para = para[:0]
		}
	}

	for _, line := range lines {
		s := strings.TrimSpace(line)
		switch {
		case s == "":
			flush()
		case isHeadingLine(s):
			flush()
			items = append(items, doctree.Item{Type: doctree.ItemHeading, Value: s})
		default:
			para = append(para, s)
		}
	}
	flush()
	return items
}

// pagesFromTexts builds numbered pages from per-page text.
func pagesFromTexts(texts []string) []doctree.Page {
	pages := make([]doctree.Page, 0, len(texts))
	for i, t := range texts {
		pages = append(pages, doctree.Page{
			Number: i + 1,
			Text:   t,
			Items:  itemsFromLines(strings.Split(t, "\n")),
		})
	}
	return pages
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
