// Package segment splits a protocol's item stream into canonical sections.
package segment

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgallion1/protoseg/internal/doctree"
)

// NotAvailable is the content of a section that was never found.
const NotAvailable = "Not available"

// Record is the output for one canonical section. When Found is false the
// page fields and SectionNum are meaningless and Content is NotAvailable.
type Record struct {
	Name       string
	Found      bool
	Content    string
	StartPage  int
	EndPage    int
	SectionNum string // empty when the opening heading had no outline number
	Images     []doctree.Item
	Tables     []doctree.Item
	EndReason  string // diagnostic only, not serialized
}

// EmptyRecord is the placeholder for an unmatched section.
func EmptyRecord(name string) Record {
	return Record{
		Name:      name,
		Content:   NotAvailable,
		Images:    []doctree.Item{},
		Tables:    []doctree.Item{},
		EndReason: "section not found",
	}
}

type recordJSON struct {
	Content    string         `json:"content"`
	StartPage  *int           `json:"start_page"`
	EndPage    *int           `json:"end_page"`
	SectionNum *string        `json:"section_num"`
	Images     []doctree.Item `json:"images"`
	Tables     []doctree.Item `json:"tables"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Content: r.Content,
		Images:  r.Images,
		Tables:  r.Tables,
	}
	if out.Images == nil {
		out.Images = []doctree.Item{}
	}
	if out.Tables == nil {
		out.Tables = []doctree.Item{}
	}
	if r.Found {
		start, end := r.StartPage, r.EndPage
		out.StartPage, out.EndPage = &start, &end
		if r.SectionNum != "" {
			num := r.SectionNum
			out.SectionNum = &num
		}
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record{
		Name:    r.Name,
		Content: in.Content,
		Images:  in.Images,
		Tables:  in.Tables,
	}
	if r.Images == nil {
		r.Images = []doctree.Item{}
	}
	if r.Tables == nil {
		r.Tables = []doctree.Item{}
	}
	if in.StartPage != nil && in.EndPage != nil {
		r.Found = true
		r.StartPage, r.EndPage = *in.StartPage, *in.EndPage
	}
	if in.SectionNum != nil {
		r.SectionNum = *in.SectionNum
	}
	return nil
}

// Result holds one record per canonical section, in template order.
type Result struct {
	Sections []Record
}

// Get returns the record for a canonical name.
func (r *Result) Get(name string) (Record, bool) {
	for _, rec := range r.Sections {
		if rec.Name == name {
			return rec, true
		}
	}
	return Record{}, false
}

// Matched counts records whose section was found.
func (r *Result) Matched() int {
	n := 0
	for _, rec := range r.Sections {
		if rec.Found {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the result as an object keyed by canonical name,
// keys in template order.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range r.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(rec.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal section %q: %w", rec.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by canonical name, keeping key order.
func (r *Result) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode sections: expected object, got %v", tok)
	}
	r.Sections = r.Sections[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode sections: expected key, got %v", tok)
		}
		rec := Record{Name: name}
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("decode section %q: %w", name, err)
		}
		r.Sections = append(r.Sections, rec)
	}
	_, err = dec.Token()
	return err
}
