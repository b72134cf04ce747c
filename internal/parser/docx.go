package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Word has no stable page boundaries, so the
// whole body is reported as page 1.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "protoseg-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	d, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	doc := &doctree.Document{Title: titleFromFilename(filename)}

	var items []doctree.Item
	for _, it := range d.Document.Body.Items {
		switch v := it.(type) {
		case *docx.Paragraph:
			t := docxParagraphText(v)
			if t == "" {
				continue
			}
			if level := docxHeadingLevel(v); level > 0 {
				items = append(items, doctree.Item{Type: doctree.ItemHeading, Value: t, Level: level})
			} else {
				items = append(items, doctree.Item{Type: doctree.ItemText, Value: t})
			}
		case *docx.Table:
			md := renderTable(docxTableRows(v))
			if md != "" {
				items = append(items, doctree.Item{Type: doctree.ItemTable, Value: md, Markdown: md})
			}
		}
	}

	if len(items) > 0 {
		doc.Pages = []doctree.Page{{Number: 1, Items: items}}
	}
	return doc, nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	switch strings.TrimPrefix(style, "heading") {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func docxTableRows(t *docx.Table) [][]string {
	rows := make([][]string, 0, len(t.TableRows))
	for _, tr := range t.TableRows {
		row := make([]string, 0, len(tr.TableCells))
		for _, tc := range tr.TableCells {
			var parts []string
			for _, para := range tc.Paragraphs {
				if s := docxParagraphText(para); s != "" {
					parts = append(parts, s)
				}
			}
			row = append(row, strings.Join(parts, " "))
		}
		rows = append(rows, row)
	}
	return rows
}
