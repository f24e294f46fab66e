package forms

import (
	"strings"
	"testing"
)

func TestDefaultRegistryHasCoreForms(t *testing.T) {
	reg := Default()
	for _, docType := range []string{"W-2", "1099-NEC", "1099-INT", "1099-DIV", "1099-MISC", "1099-R", "1098"} {
		tpl, ok := reg.Lookup(docType)
		if !ok {
			t.Fatalf("expected template for %s", docType)
		}
		if len(tpl.RequiredFields()) == 0 {
			t.Fatalf("%s has no required fields", docType)
		}
		if tpl.MinRequiredFields <= 0 {
			t.Fatalf("%s has no minimum field count", docType)
		}
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	reg := Default()
	tpl, ok := reg.Lookup(" w-2 ")
	if !ok || tpl.Type != "W-2" {
		t.Fatalf("expected W-2 template, got %+v ok=%v", tpl.Type, ok)
	}
}

func TestResolveFallsBackToGeneric(t *testing.T) {
	reg := Default()
	tpl := reg.Resolve("K-1")
	if tpl.Type != "OTHER" {
		t.Fatalf("expected generic template, got %s", tpl.Type)
	}
	if tpl.MinRequiredFields != 1 {
		t.Fatalf("expected generic min required fields 1, got %d", tpl.MinRequiredFields)
	}
	if len(tpl.RequiredFields()) != 0 {
		t.Fatalf("generic template fields should all be optional")
	}
}

func TestPatternFieldsAreCompiled(t *testing.T) {
	tpl := Default().Resolve("W-2")
	for _, f := range tpl.Fields {
		if f.Name != "tax_year" {
			continue
		}
		if !f.Check("2024").Valid {
			t.Fatalf("expected 2024 to be a valid tax year")
		}
		if f.Check("24").Valid {
			t.Fatalf("expected 24 to be rejected")
		}
		return
	}
	t.Fatalf("W-2 has no tax_year field")
}

func TestSchemaFieldsAreDeduplicated(t *testing.T) {
	fields := Default().SchemaFields()
	seen := map[string]bool{}
	for _, f := range fields {
		if seen[f.Name] {
			t.Fatalf("duplicate schema field %s", f.Name)
		}
		seen[f.Name] = true
	}
	if !seen["wages"] || !seen["interest_income"] || !seen["tax_year"] {
		t.Fatalf("expected union of template fields, got %v", seen)
	}
}

func TestLoadRejectsBadPattern(t *testing.T) {
	_, err := Load([]byte(`
templates:
  - type: X
    fields:
      - {name: a, pattern: "("}
`))
	if err == nil || !strings.Contains(err.Error(), "compile pattern") {
		t.Fatalf("expected compile error, got %v", err)
	}
}

func TestLoadRejectsDuplicateTypes(t *testing.T) {
	_, err := Load([]byte(`
templates:
  - {type: W-2}
  - {type: w-2}
`))
	if err == nil {
		t.Fatalf("expected duplicate template error")
	}
}
