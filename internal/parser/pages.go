package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/protoseg/internal/doctree"
)

// PagesParser reads the page JSON produced by the document-parsing service:
// either a bare array of pages, an object with a "pages" array, or an array
// holding one such object.
type PagesParser struct{}

func (p *PagesParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pages: %w", err)
	}
	pages, err := decodePages(data)
	if err != nil {
		return nil, err
	}

	for i := range pages {
		if pages[i].Number == 0 {
			pages[i].Number = i + 1
		}
		for j := range pages[i].Items {
			it := &pages[i].Items[j]
			it.Type = doctree.ItemType(strings.ToLower(string(it.Type)))
		}
	}

	return &doctree.Document{
		Title:  titleFromFilename(strings.TrimSuffix(filename, "_output.json")),
		Pages:  pages,
		Layout: doctree.LayoutFromPages(pages),
	}, nil
}

func decodePages(data []byte) ([]doctree.Page, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	type wrapper struct {
		Pages []doctree.Page `json:"pages"`
	}

	if data[0] == '{' {
		var w wrapper
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode pages: %w", err)
		}
		return w.Pages, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw[0], &probe); err == nil {
		if _, ok := probe["pages"]; ok {
			var w wrapper
			if err := json.Unmarshal(raw[0], &w); err != nil {
				return nil, fmt.Errorf("decode pages: %w", err)
			}
			return w.Pages, nil
		}
	}

	var pages []doctree.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return pages, nil
}
