// Package match decides whether a heading opens a canonical protocol section.
package match

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Threshold is the similarity ratio a heading must exceed to match.
const Threshold = 0.8

var (
	outlinePrefix = regexp.MustCompile(`^\d+(\.\d+)*\s*`)
	sectionNumber = regexp.MustCompile(`^(\d+(\.\d+)*)`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,2}-[A-Z]{3}-\d{4}`), // 29-SEP-2022
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}`),  // 09/29/2022
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),      // 2022-09-29
	}
)

// Normalize strips a leading numeric outline ("5.2 ") and lower-cases the rest.
func Normalize(heading string) string {
	return strings.ToLower(strings.TrimSpace(outlinePrefix.ReplaceAllString(heading, "")))
}

// Similarity returns the matching-blocks ratio of a and b in [0,1],
// compared character by character and case-insensitively.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Heading reports which name heading matches: canonical itself, or the first
// synonym that clears the exact or similarity bar. ok is false on no match.
func Heading(heading, canonical string, synonyms []string) (matched string, ok bool) {
	cleaned := Normalize(heading)
	if matches(cleaned, canonical) {
		return canonical, true
	}
	for _, syn := range synonyms {
		if matches(cleaned, syn) {
			return syn, true
		}
	}
	return "", false
}

func matches(cleaned, name string) bool {
	name = strings.ToLower(name)
	if cleaned == name {
		return true
	}
	return Similarity(cleaned, name) > Threshold
}

// SectionNumber parses the dotted outline at the start of a heading
// ("5.2 Randomization" -> "5.2"). ok is false when there is none.
func SectionNumber(heading string) (string, bool) {
	m := sectionNumber.FindStringSubmatch(heading)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// TopLevel returns the component of a section number before the first dot.
func TopLevel(num string) string {
	top, _, _ := strings.Cut(num, ".")
	return top
}

// IsDate reports whether s starts like a date (29-SEP-2022, 09/29/2022,
// 2022-09-29). Dates look like numbered headings and must never close a section.
func IsDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, p := range datePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
