// Package export renders segmented protocols as spreadsheets.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/protoseg/internal/protocol"
)

const (
	ProtocolSheet = "Protocol"
	SectionsSheet = "Sections"

	// maxCellChars is Excel's per-cell text limit.
	maxCellChars = 32767
)

var sectionHeaders = []string{
	"Section",
	"Found",
	"Start Page",
	"End Page",
	"Section Number",
	"Images",
	"Tables",
	"Content",
}

// XLSX returns a workbook with a Protocol sheet (identifying fields and
// registry metadata) and a Sections sheet (one row per canonical section, in
// template order).
func XLSX(doc *protocol.Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ProtocolSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SectionsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	writeProtocol(f, doc)
	writeSections(f, doc)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeProtocol(f *excelize.File, doc *protocol.Document) {
	pages := make([]string, len(doc.TOCPages))
	for i, p := range doc.TOCPages {
		pages[i] = fmt.Sprint(p)
	}

	rows := [][2]string{
		{"Document ID", doc.DocID},
		{"Drug Name", doc.DrugName},
		{"Protocol Number", doc.Number},
		{"Protocol Source", doc.Source},
		{"Content Hash", doc.ContentHash},
		{"Created At", doc.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
		{"TOC Pages", strings.Join(pages, ", ")},
	}

	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, [2]string{k, doc.Metadata[k]})
	}

	for i, r := range rows {
		a, _ := excelize.CoordinatesToCellName(1, i+1)
		b, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(ProtocolSheet, a, r[0])
		_ = f.SetCellValue(ProtocolSheet, b, r[1])
	}
	_ = f.SetColWidth(ProtocolSheet, "A", "A", 22)
	_ = f.SetColWidth(ProtocolSheet, "B", "B", 60)
}

func writeSections(f *excelize.File, doc *protocol.Document) {
	for i, h := range sectionHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SectionsSheet, cell, h)
	}
	if doc.Sections == nil {
		return
	}

	for i, rec := range doc.Sections.Sections {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SectionsSheet, cell, v)
		}

		write(1, rec.Name)
		write(2, rec.Found)
		if rec.Found {
			write(3, rec.StartPage)
			write(4, rec.EndPage)
			write(5, rec.SectionNum)
		}
		write(6, len(rec.Images))
		write(7, len(rec.Tables))
		write(8, truncate(rec.Content, maxCellChars))
	}

	_ = f.SetColWidth(SectionsSheet, "A", "A", 40)
	_ = f.SetColWidth(SectionsSheet, "B", "G", 12)
	_ = f.SetColWidth(SectionsSheet, "H", "H", 100)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
