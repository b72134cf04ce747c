package parser

import (
	"fmt"
	"io"

	"github.com/dgallion1/protoseg/internal/doctree"
)

// TextParser handles plain text files. Form feeds separate pages.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	doc := &doctree.Document{Title: titleFromFilename(filename)}
	if len(data) == 0 {
		return doc, nil
	}

	doc.Pages = pagesFromTexts(splitPages(string(data)))
	if len(doc.Pages) > 1 {
		doc.Layout = doctree.LayoutFromPages(doc.Pages)
	}
	return doc, nil
}
