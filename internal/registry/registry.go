// Package registry reads clinical-registry CSV exports and fetches the
// protocol PDFs they reference.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

const (
	ColumnNCT       = "NCT Number"
	ColumnDocuments = "Study Documents"
)

// ErrNoDocumentsColumn is returned for exports without a documents column.
var ErrNoDocumentsColumn = errors.New("csv has no " + ColumnDocuments + " column")

var protocolURL = regexp.MustCompile(`(?i)(https?://\S+?(?:Prot_(?:SAP_)?\d+\.pdf))`)

// Entry is one registry row that links to a protocol PDF.
type Entry struct {
	Row       int // 1-based line in the CSV, header is line 1
	NCTNumber string
	URL       string
	// Metadata holds every other column of the row, keyed by header.
	Metadata map[string]string
}

// ExtractPDFURL returns the first protocol PDF link in a documents cell.
// Links in the cell are separated by "|".
func ExtractPDFURL(cell string) (string, bool) {
	for _, part := range strings.Split(cell, "|") {
		if m := protocolURL.FindStringSubmatch(part); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ReadCSV parses a registry export. Rows without a protocol link are logged
// and skipped.
func ReadCSV(r io.Reader, log *slog.Logger) ([]Entry, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := records[0]
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	docCol := -1
	for i, h := range headers {
		if strings.TrimSpace(h) == ColumnDocuments {
			docCol = i
		}
	}
	if docCol < 0 {
		return nil, ErrNoDocumentsColumn
	}

	var entries []Entry
	for i, row := range records[1:] {
		line := i + 2
		meta := make(map[string]string, len(headers))
		var docs string
		for j, cell := range row {
			if j >= len(headers) {
				break
			}
			if j == docCol {
				docs = cell
				continue
			}
			meta[strings.TrimSpace(headers[j])] = strings.TrimSpace(cell)
		}

		u, ok := ExtractPDFURL(docs)
		if !ok {
			log.Warn("no protocol pdf in row", "row", line, "nct_number", meta[ColumnNCT])
			continue
		}
		entries = append(entries, Entry{
			Row:       line,
			NCTNumber: meta[ColumnNCT],
			URL:       u,
			Metadata:  meta,
		})
	}
	return entries, nil
}
