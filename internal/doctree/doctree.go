package doctree

import "strings"

// ItemType tags the kind of content an Item carries.
type ItemType string

const (
	ItemHeading ItemType = "heading"
	ItemText    ItemType = "text"
	ItemImage   ItemType = "image"
	ItemTable   ItemType = "table"
)

// Document is a parsed protocol: the typed item stream plus the raw page layout.
type Document struct {
	Title  string       // Document title (from metadata or filename)
	Pages  []Page       // Typed item stream, in page order
	Layout []LayoutPage // Raw per-page text, used for TOC detection
}

// Page is one 1-based page of the item stream.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text,omitempty"`
	Items  []Item `json:"items"`
}

// Item is a tagged content unit on a page. Alt and Path apply to images,
// Markdown to tables, Level to headings.
type Item struct {
	Type     ItemType `json:"type"`
	Value    string   `json:"value"`
	Level    int      `json:"lvl,omitempty"`
	Alt      string   `json:"alt,omitempty"`
	Path     string   `json:"path,omitempty"`
	Markdown string   `json:"md,omitempty"`
}

// LayoutPage is the raw text of a single page, line breaks preserved.
type LayoutPage struct {
	Number int
	Text   string
}

// Lines splits the page text into lines.
func (p LayoutPage) Lines() []string {
	return strings.Split(p.Text, "\n")
}

// LayoutFromPages derives a layout from the item stream when no separate
// source layout is available. Page text wins; otherwise item values are joined
// one per line.
func LayoutFromPages(pages []Page) []LayoutPage {
	out := make([]LayoutPage, 0, len(pages))
	for _, p := range pages {
		text := p.Text
		if text == "" {
			vals := make([]string, 0, len(p.Items))
			for _, it := range p.Items {
				vals = append(vals, it.Value)
			}
			text = strings.Join(vals, "\n")
		}
		out = append(out, LayoutPage{Number: p.Number, Text: text})
	}
	return out
}

// PlainText concatenates all page text for hashing and regex scans.
func (d *Document) PlainText() string {
	var sb strings.Builder
	for _, p := range d.Pages {
		text := p.Text
		if text == "" {
			for _, it := range p.Items {
				if it.Value == "" {
					continue
				}
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(it.Value)
			}
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String()
}
