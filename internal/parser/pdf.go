package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/protoseg/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "protoseg-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	layout, err := p.ReadLayout(tmpPath)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(layout))
	for i, lp := range layout {
		texts[i] = lp.Text
	}
	pages := pagesFromTexts(texts)
	for i := range pages {
		pages[i].Number = layout[i].Number
	}

	return &doctree.Document{
		Title:  titleFromFilename(filename),
		Pages:  pages,
		Layout: layout,
	}, nil
}

// ReadLayout extracts the per-page text of the PDF at path, one line per
// text row.
func (p *PDFParser) ReadLayout(path string) ([]doctree.LayoutPage, error) {
	layout, err := extractPDFLayout(path)
	if err != nil && p.FallbackPdftotext {
		layout, err = extractPdftotext(path)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return layout, nil
}

func extractPDFLayout(path string) ([]doctree.LayoutPage, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	layout := make([]doctree.LayoutPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			layout = append(layout, doctree.LayoutPage{Number: i})
			continue
		}
		text, err := pageText(page)
		if err != nil {
			text = ""
		}
		layout = append(layout, doctree.LayoutPage{Number: i, Text: text})
	}
	return layout, nil
}

func pageText(page pdflib.Page) (string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return page.GetPlainText(nil)
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var line strings.Builder
		var prev *pdflib.Text
		for i := range row.Content {
			word := &row.Content[i]
			if prev != nil && needsSpace(prev, word) {
				line.WriteByte(' ')
			}
			line.WriteString(word.S)
			prev = word
		}
		lines = append(lines, strings.TrimRight(line.String(), " "))
	}
	return strings.Join(lines, "\n"), nil
}

// needsSpace reports whether a visible gap separates two glyph runs that the
// PDF stores without an explicit space.
func needsSpace(prev, next *pdflib.Text) bool {
	if strings.HasSuffix(prev.S, " ") || strings.HasPrefix(next.S, " ") {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	return gap > 0.15*prev.FontSize
}

func extractPdftotext(path string) ([]doctree.LayoutPage, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	texts := splitPages(string(out))
	// pdftotext terminates the last page with a form feed.
	if n := len(texts); n > 1 && strings.TrimSpace(texts[n-1]) == "" {
		texts = texts[:n-1]
	}
	layout := make([]doctree.LayoutPage, len(texts))
	for i, t := range texts {
		layout[i] = doctree.LayoutPage{Number: i + 1, Text: t}
	}
	return layout, nil
}
