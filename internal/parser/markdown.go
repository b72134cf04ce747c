package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Form feeds separate
// pages, so text exported page-by-page keeps its page numbers.
type MarkdownParser struct {
	md goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	doc := &doctree.Document{Title: titleFromFilename(filename)}
	if len(data) == 0 {
		return doc, nil
	}

	for i, chunk := range splitPages(string(data)) {
		src := []byte(chunk)
		root := p.md.Parser().Parse(text.NewReader(src))
		doc.Pages = append(doc.Pages, doctree.Page{
			Number: i + 1,
			Text:   chunk,
			Items:  markdownItems(root, src),
		})
	}
	if len(doc.Pages) > 1 {
		doc.Layout = doctree.LayoutFromPages(doc.Pages)
	}
	return doc, nil
}

func markdownItems(root ast.Node, src []byte) []doctree.Item {
	var items []doctree.Item
	addText := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			items = append(items, doctree.Item{Type: doctree.ItemText, Value: s})
		}
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			items = append(items, doctree.Item{
				Type:  doctree.ItemHeading,
				Value: inlineText(node, src),
				Level: node.Level,
			})
		case *extast.Table:
			md := renderTable(tableRows(node, src))
			items = append(items, doctree.Item{Type: doctree.ItemTable, Value: md, Markdown: md})
		case *ast.Paragraph:
			addText(inlineText(node, src))
			items = append(items, imageItems(node, src)...)
		case *ast.List:
			var lines []string
			for li := node.FirstChild(); li != nil; li = li.NextSibling() {
				if s := inlineText(li, src); s != "" {
					lines = append(lines, "- "+s)
				}
			}
			addText(strings.Join(lines, "\n"))
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			addText(blockLines(node, src))
		case *ast.Blockquote:
			addText(inlineText(node, src))
		}
	}
	return items
}

// inlineText flattens the inline content under n. Images are skipped; they
// become separate items.
func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				buf.Write(v.Segment.Value(src))
				if v.SoftLineBreak() || v.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(v.Value)
			case *ast.Image:
			default:
				if c.Type() == ast.TypeBlock && buf.Len() > 0 {
					buf.WriteByte('\n')
				}
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func blockLines(n ast.Node, src []byte) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

func imageItems(n ast.Node, src []byte) []doctree.Item {
	var items []doctree.Item
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := c.(*ast.Image); ok {
			alt := inlineText(img, src)
			items = append(items, doctree.Item{
				Type:  doctree.ItemImage,
				Value: alt,
				Alt:   alt,
				Path:  string(img.Destination),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return items
}

// tableRows collects cell text; goldmark puts header cells directly under
// the TableHeader node.
func tableRows(t *extast.Table, src []byte) [][]string {
	var rows [][]string
	cells := func(row ast.Node) []string {
		var out []string
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			if _, ok := c.(*extast.TableCell); ok {
				out = append(out, inlineText(c, src))
			}
		}
		return out
	}
	for child := t.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *extast.TableHeader, *extast.TableRow:
			rows = append(rows, cells(child))
		}
	}
	return rows
}

// renderTable writes rows as a pipe table, treating the first row as the
// header.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(r []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(r) {
				cell = strings.ReplaceAll(strings.ReplaceAll(r[i], "\n", " "), "|", `\|`)
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
