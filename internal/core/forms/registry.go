// Package forms holds the per-type form schemas used to request and grade
// extractions. The registry is built once from embedded data and is read-only.
package forms

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/formats"
)

//go:embed templates.yaml
var embeddedTemplates []byte

type Field struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Required    bool           `yaml:"required"`
	Format      formats.Format `yaml:"format"`
	Pattern     string         `yaml:"pattern"`
	Location    string         `yaml:"location"`

	rule formats.Rule
}

// Check validates a value against the field's format tag or pattern.
func (f Field) Check(value any) formats.Result {
	return f.rule.Check(value)
}

type Template struct {
	Type                string  `yaml:"type"`
	DisplayName         string  `yaml:"display_name"`
	Fields              []Field `yaml:"fields"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MinRequiredFields   int     `yaml:"min_required_fields"`
}

func (t Template) RequiredFields() []Field {
	out := make([]Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

type Registry struct {
	byType  map[string]Template
	types   []string
	generic Template
}

type registryFile struct {
	Generic   Template   `yaml:"generic"`
	Templates []Template `yaml:"templates"`
}

// Load parses a registry document. Pattern fields are compiled up front so a
// bad pattern fails at startup rather than during grading.
func Load(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode form templates: %w", err)
	}
	if strings.TrimSpace(file.Generic.Type) == "" {
		file.Generic.Type = domain.TypeOther
	}
	generic, err := compile(file.Generic)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		byType:  make(map[string]Template, len(file.Templates)),
		generic: generic,
	}
	for _, raw := range file.Templates {
		tpl, err := compile(raw)
		if err != nil {
			return nil, err
		}
		key := normalizeType(tpl.Type)
		if key == "" {
			return nil, fmt.Errorf("form template without type")
		}
		if _, dup := reg.byType[key]; dup {
			return nil, fmt.Errorf("duplicate form template %q", tpl.Type)
		}
		reg.byType[key] = tpl
		reg.types = append(reg.types, tpl.Type)
	}
	sort.Strings(reg.types)
	return reg, nil
}

func compile(tpl Template) (Template, error) {
	out := tpl
	out.Fields = make([]Field, len(tpl.Fields))
	for i, f := range tpl.Fields {
		f.Format = formats.Format(strings.ToLower(string(f.Format)))
		f.rule = formats.Rule{Format: f.Format}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return Template{}, fmt.Errorf("template %s field %s: compile pattern: %w", tpl.Type, f.Name, err)
			}
			f.rule.Pattern = re
		}
		out.Fields[i] = f
	}
	if out.ConfidenceThreshold < 0 || out.ConfidenceThreshold > 1 {
		return Template{}, fmt.Errorf("template %s: confidence threshold %v outside [0,1]", tpl.Type, out.ConfidenceThreshold)
	}
	return out, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the embedded templates.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(embeddedTemplates)
		if err != nil {
			panic(fmt.Sprintf("forms: embedded templates: %v", err))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Lookup finds a template by document type, case-insensitively.
func (r *Registry) Lookup(docType string) (Template, bool) {
	tpl, ok := r.byType[normalizeType(docType)]
	return tpl, ok
}

// Resolve is Lookup with a fallback to the generic template.
func (r *Registry) Resolve(docType string) Template {
	if tpl, ok := r.Lookup(docType); ok {
		return tpl
	}
	return r.generic
}

func (r *Registry) Generic() Template {
	return r.generic
}

// Types lists registered document types in sorted order.
func (r *Registry) Types() []string {
	return append([]string(nil), r.types...)
}

// Known reports whether docType has a dedicated template.
func (r *Registry) Known(docType string) bool {
	_, ok := r.Lookup(docType)
	return ok
}

// SchemaFields returns the union of all template fields for an extraction
// request. A field is required if any template requires it.
func (r *Registry) SchemaFields() []domain.SchemaField {
	seen := make(map[string]int)
	out := make([]domain.SchemaField, 0, 48)
	for _, docType := range r.types {
		for _, f := range r.byType[normalizeType(docType)].Fields {
			if idx, ok := seen[f.Name]; ok {
				out[idx].Required = out[idx].Required || f.Required
				continue
			}
			seen[f.Name] = len(out)
			out = append(out, toSchemaField(f))
		}
	}
	return out
}

// TemplateSchema returns the schema fields of one resolved template.
func (r *Registry) TemplateSchema(docType string) []domain.SchemaField {
	tpl := r.Resolve(docType)
	out := make([]domain.SchemaField, 0, len(tpl.Fields))
	for _, f := range tpl.Fields {
		out = append(out, toSchemaField(f))
	}
	return out
}

func toSchemaField(f Field) domain.SchemaField {
	format := string(f.Format)
	if format == "" && f.Pattern != "" {
		format = "pattern:" + f.Pattern
	}
	return domain.SchemaField{
		Name:        f.Name,
		Description: f.Description,
		Format:      format,
		Location:    f.Location,
		Required:    f.Required,
	}
}

func normalizeType(docType string) string {
	return strings.ToUpper(strings.TrimSpace(docType))
}
