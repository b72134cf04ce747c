// Package template holds the ordered taxonomy of canonical protocol sections
// and the synonym strings each one is recognised by.
package template

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrEmpty is returned when a template defines no sections.
var ErrEmpty = errors.New("template has no sections")

// Section is one canonical name and its synonyms.
type Section struct {
	Name     string   `json:"name" yaml:"name" toml:"name" validate:"required"`
	Synonyms []string `json:"synonyms" yaml:"synonyms" toml:"synonyms" validate:"dive,required"`
}

// Template is an ordered set of canonical sections. Order defines search
// precedence. A Template is never mutated after construction.
type Template struct {
	sections []Section
	index    map[string]int
}

type fileFormat struct {
	Sections []Section `json:"sections" yaml:"sections" toml:"sections" validate:"required,min=1,unique=Name,dive"`
}

// New builds a template from sections, copying the input.
func New(sections []Section) (*Template, error) {
	if len(sections) == 0 {
		return nil, ErrEmpty
	}
	if err := validator.New().Struct(fileFormat{Sections: sections}); err != nil {
		return nil, fmt.Errorf("validate template: %w", err)
	}
	t := &Template{
		sections: make([]Section, len(sections)),
		index:    make(map[string]int, len(sections)),
	}
	for i, s := range sections {
		syn := make([]string, len(s.Synonyms))
		copy(syn, s.Synonyms)
		t.sections[i] = Section{Name: s.Name, Synonyms: syn}
		t.index[s.Name] = i
	}
	return t, nil
}

// Default returns the built-in clinical protocol template.
func Default() *Template {
	t, err := Parse(defaultYAML, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("default template: %v", err))
	}
	return t
}

// Load reads a template file. The format is chosen by extension:
// .json, .yaml/.yml or .toml.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes template data in the format named by ext.
func Parse(data []byte, ext string) (*Template, error) {
	var f fileFormat
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unsupported template format: %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return New(f.Sections)
}

// Names returns canonical names in template order.
func (t *Template) Names() []string {
	out := make([]string, len(t.sections))
	for i, s := range t.sections {
		out[i] = s.Name
	}
	return out
}

// Sections returns a copy of the template's sections.
func (t *Template) Sections() []Section {
	out := make([]Section, len(t.sections))
	for i, s := range t.sections {
		syn := make([]string, len(s.Synonyms))
		copy(syn, s.Synonyms)
		out[i] = Section{Name: s.Name, Synonyms: syn}
	}
	return out
}

// Synonyms returns the synonyms of a canonical name, nil if unknown.
// The returned slice must not be modified.
func (t *Template) Synonyms(name string) []string {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.sections[i].Synonyms
}

// Len reports the number of canonical sections.
func (t *Template) Len() int { return len(t.sections) }

// MarshalJSON encodes the template in its file format.
func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileFormat{Sections: t.sections})
}
