package match

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5.2 Randomization", "randomization"},
		{"  TRIAL DESIGN  ", "trial design"},
		{"10 Statistical Considerations", "statistical considerations"},
		{"1. Protocol Summary", ". protocol summary"},
		{"Introduction", "introduction"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("abc", "abc"); got != 1 {
		t.Errorf("expected 1 for identical strings, got %f", got)
	}
	if got := Similarity("ABC", "abc"); got != 1 {
		t.Errorf("expected case-insensitive ratio 1, got %f", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Errorf("expected 0 for disjoint strings, got %f", got)
	}
}

// One stray trailing character keeps the ratio well above Threshold, so
// such a heading still matches.
func TestHeading_TrailingCharacterStillMatches(t *testing.T) {
	// 2*M/T with M=10 matching chars over T=21 total.
	want := 20.0 / 21.0
	if got := Similarity("backgroundx", "background"); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if _, ok := Heading("Backgroundx", "background", nil); !ok {
		t.Error("expected Backgroundx to match background")
	}
	if _, ok := Heading("Bibliography", "background", nil); ok {
		t.Error("expected Bibliography not to match background")
	}
}

func TestHeading_SynonymMatch(t *testing.T) {
	got, ok := Heading("BACKGROUND", "introduction", []string{"background"})
	if !ok {
		t.Fatal("expected BACKGROUND to match introduction via synonym")
	}
	if got != "background" {
		t.Errorf("expected matched synonym %q, got %q", "background", got)
	}
}

func TestHeading_CanonicalWins(t *testing.T) {
	got, ok := Heading("2 Introduction", "introduction", []string{"background"})
	if !ok || got != "introduction" {
		t.Errorf("expected canonical match, got %q ok=%v", got, ok)
	}
}

func TestHeading_SimilarityMatch(t *testing.T) {
	if _, ok := Heading("1. Protocol Summary", "protocol summary", nil); !ok {
		t.Error("expected outline-prefixed heading with trailing dot to match")
	}
	if _, ok := Heading("5 Trial Desing", "trial design", nil); !ok {
		t.Error("expected misspelled heading to match above threshold")
	}
}

func TestHeading_NoMatch(t *testing.T) {
	tests := []string{
		"Bibliography",
		"List of Abbreviations",
		"Sponsor Signature Page",
	}
	for _, h := range tests {
		if got, ok := Heading(h, "introduction", []string{"background"}); ok {
			t.Errorf("Heading(%q) matched %q, expected no match", h, got)
		}
	}
}

func TestHeading_FirstSynonymWins(t *testing.T) {
	got, ok := Heading("Study Treatments", "trial intervention and concomitant therapy",
		[]string{"study treatment", "study treatments"})
	if !ok {
		t.Fatal("expected match")
	}
	if got != "study treatment" {
		t.Errorf("expected first qualifying synonym, got %q", got)
	}
}

func TestSectionNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"5 Trial Design", "5", true},
		{"5.1 Randomization", "5.1", true},
		{"10.2.3 Interim Analysis", "10.2.3", true},
		{"1. Protocol Summary", "1", true},
		{"Introduction", "", false},
		{"Appendix 1", "", false},
	}
	for _, tt := range tests {
		got, ok := SectionNumber(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("SectionNumber(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTopLevel(t *testing.T) {
	if got := TopLevel("5.2.1"); got != "5" {
		t.Errorf("expected 5, got %q", got)
	}
	if got := TopLevel("12"); got != "12" {
		t.Errorf("expected 12, got %q", got)
	}
}

func TestIsDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"29-SEP-2022", true},
		{" 9-JAN-2021 ", true},
		{"09/29/2022", true},
		{"29/09/2022", true},
		{"2022-09-29", true},
		{"5.1 Randomization", false},
		{"29-sep-2022", false},
		{"Trial Design", false},
	}
	for _, tt := range tests {
		if got := IsDate(tt.in); got != tt.want {
			t.Errorf("IsDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
