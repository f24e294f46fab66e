// Package issues implements the document issue wire format:
//
//	[SEVERITY:TYPE:EXPECTED:DETECTED] description
//
// Parsing never fails. Normalize repairs malformed model output into the
// canonical shape and is idempotent.
package issues

import (
	"fmt"
	"regexp"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	TypeWrongYear       = "wrong_year"
	TypeWrongType       = "wrong_type"
	TypeMissingField    = "missing_field"
	TypeInvalidFormat   = "invalid_format"
	TypeSuspiciousValue = "suspicious_value"
	TypeIncomplete      = "incomplete"
	TypeIllegible       = "illegible"
	TypeDuplicate       = "duplicate"
	TypeLowConfidence   = "low_confidence"
	TypeInconsistent    = "inconsistent"
	TypeParseError      = "parse_error"
	TypeProcessing      = "processing_failed"
	TypeUnsupported     = "unsupported_format"
	TypeOther           = "other"
)

// Legacy [type] issues with one of these types are errors.
var errorTypes = map[string]bool{
	TypeWrongYear:  true,
	TypeWrongType:  true,
	TypeIncomplete: true,
	TypeIllegible:  true,
}

type Parsed struct {
	Severity    Severity `json:"severity"`
	Type        string   `json:"type"`
	Expected    string   `json:"expected"`
	Detected    string   `json:"detected"`
	Description string   `json:"description"`
}

var (
	fullPattern    = regexp.MustCompile(`^\[([A-Za-z]+):([A-Za-z_]+):([^:\]]*):([^:\]]*)\]\s*(.*)$`)
	shortPattern   = regexp.MustCompile(`^\[([A-Za-z]+):([A-Za-z_]+)\]\s*(.*)$`)
	legacyPattern  = regexp.MustCompile(`^\[([A-Za-z_]+)\]\s*(.*)$`)
	bracketPattern = regexp.MustCompile(`^\[[^\]]*\]`)
	bareWord       = regexp.MustCompile(`^[A-Za-z_]+$`)
)

func parseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error", "critical":
		return SeverityError, true
	case "warning", "warn":
		return SeverityWarning, true
	default:
		return "", false
	}
}

// Parse decodes an issue string. Unrecognized input becomes a warning of
// type other carrying the whole string as its description.
func Parse(s string) Parsed {
	trimmed := strings.TrimSpace(s)

	if m := fullPattern.FindStringSubmatch(trimmed); m != nil {
		if sev, ok := parseSeverity(m[1]); ok {
			return Parsed{
				Severity:    sev,
				Type:        strings.ToLower(m[2]),
				Expected:    strings.TrimSpace(m[3]),
				Detected:    strings.TrimSpace(m[4]),
				Description: strings.TrimSpace(m[5]),
			}
		}
	}
	if m := shortPattern.FindStringSubmatch(trimmed); m != nil {
		if sev, ok := parseSeverity(m[1]); ok {
			return Parsed{
				Severity:    sev,
				Type:        strings.ToLower(m[2]),
				Description: strings.TrimSpace(m[3]),
			}
		}
	}
	if m := legacyPattern.FindStringSubmatch(trimmed); m != nil {
		typ := strings.ToLower(m[1])
		sev := SeverityWarning
		if errorTypes[typ] {
			sev = SeverityError
		}
		return Parsed{Severity: sev, Type: typ, Description: strings.TrimSpace(m[2])}
	}

	return Parsed{Severity: SeverityWarning, Type: TypeOther, Description: trimmed}
}

// String serializes the canonical four-part form.
func (p Parsed) String() string {
	sev := p.Severity
	if sev != SeverityError {
		sev = SeverityWarning
	}
	typ := p.Type
	if typ == "" {
		typ = TypeOther
	}
	head := fmt.Sprintf("[%s:%s:%s:%s]", strings.ToUpper(string(sev)), typ, clean(p.Expected), clean(p.Detected))
	if p.Description == "" {
		return head
	}
	return head + " " + p.Description
}

// clean keeps slot values free of the delimiters.
func clean(v string) string {
	return strings.TrimSpace(strings.NewReplacer(":", " ", "]", " ", "[", " ").Replace(v))
}

// New builds a canonical issue string; an empty description is synthesized.
func New(sev Severity, typ, expected, detected, description string) string {
	p := Parsed{Severity: sev, Type: typ, Expected: clean(expected), Detected: clean(detected), Description: strings.TrimSpace(description)}
	if p.Description == "" {
		p.Description = Describe(p)
	}
	return p.String()
}

func Error(typ, expected, detected, description string) string {
	return New(SeverityError, typ, expected, detected, description)
}

func Warning(typ, expected, detected, description string) string {
	return New(SeverityWarning, typ, expected, detected, description)
}

// Normalize repairs an issue string into canonical shape. Already
// bracketed and described strings pass through unchanged.
func Normalize(s string) string {
	trimmed := strings.TrimSpace(s)

	if loc := bracketPattern.FindStringIndex(trimmed); loc != nil {
		if strings.TrimSpace(trimmed[loc[1]:]) != "" {
			return trimmed
		}
		p := Parse(trimmed)
		if p.Description == "" {
			p.Description = Describe(p)
		}
		return p.String()
	}

	if p, ok := parseUnbracketed(trimmed); ok {
		if p.Description == "" {
			p.Description = Describe(p)
		}
		return p.String()
	}

	if strings.HasPrefix(trimmed, "[") {
		// Unclosed bracket: leave as is, Parse still handles it.
		return trimmed
	}
	description := trimmed
	if description == "" {
		description = Describe(Parsed{Type: TypeOther})
	}
	return Parsed{Severity: SeverityWarning, Type: TypeOther, Description: description}.String()
}

// parseUnbracketed handles SEVERITY:TYPE[:EXPECTED[:DETECTED[:description]]].
func parseUnbracketed(s string) (Parsed, bool) {
	parts := strings.SplitN(s, ":", 5)
	if len(parts) < 2 {
		return Parsed{}, false
	}
	sev, ok := parseSeverity(parts[0])
	if !ok {
		return Parsed{}, false
	}
	typ := strings.TrimSpace(parts[1])
	if !bareWord.MatchString(typ) {
		return Parsed{}, false
	}
	p := Parsed{Severity: sev, Type: strings.ToLower(typ)}
	if len(parts) > 2 {
		p.Expected = clean(parts[2])
	}
	if len(parts) > 3 {
		p.Detected = clean(parts[3])
	}
	if len(parts) > 4 {
		p.Description = strings.TrimSpace(parts[4])
	}
	return p, true
}

// Describe renders the fixed per-type description template.
func Describe(p Parsed) string {
	expected, detected := p.Expected, p.Detected
	switch p.Type {
	case TypeMissingField:
		if expected == "" {
			return "Required field is missing"
		}
		return "Missing required field: " + expected
	case TypeInvalidFormat:
		if expected == "" {
			return "Field has an invalid format"
		}
		if detected == "" {
			return "Invalid format for " + expected
		}
		return fmt.Sprintf("Invalid format for %s: %s", expected, detected)
	case TypeWrongYear:
		switch {
		case expected != "" && detected != "":
			return fmt.Sprintf("Document is for tax year %s, expected %s", detected, expected)
		case expected != "":
			return "Document is not for tax year " + expected
		default:
			return "Document is for the wrong tax year"
		}
	case TypeWrongType:
		switch {
		case expected != "" && detected != "":
			return fmt.Sprintf("Document appears to be %s, expected %s", detected, expected)
		case detected != "":
			return "Document appears to be " + detected
		default:
			return "Document type does not match what was expected"
		}
	case TypeSuspiciousValue:
		if expected == "" {
			return "Suspicious value detected"
		}
		if detected == "" {
			return "Suspicious value for " + expected
		}
		return fmt.Sprintf("Suspicious value for %s: %s", expected, detected)
	case TypeIncomplete:
		return "Document appears incomplete or blank"
	default:
		label := strings.ReplaceAll(p.Type, "_", " ")
		if label == "" {
			label = TypeOther
		}
		label = strings.ToUpper(label[:1]) + label[1:]
		if detected != "" {
			return fmt.Sprintf("%s issue (%s)", label, detected)
		}
		return label + " issue"
	}
}

// SuggestedAction maps an issue to the next step a reviewer should take.
func SuggestedAction(p Parsed) string {
	switch p.Type {
	case TypeWrongYear:
		if p.Expected != "" && p.Detected != "" {
			return fmt.Sprintf("Request the %s version of this document; the upload is for %s", p.Expected, p.Detected)
		}
		return "Request the document for the correct tax year"
	case TypeWrongType:
		if p.Expected != "" && p.Detected != "" {
			return fmt.Sprintf("Confirm whether a %s was intended; this upload looks like a %s", p.Expected, p.Detected)
		}
		return "Confirm the document type with the client or reclassify it"
	case TypeIncomplete:
		return "Ask the client to upload a complete copy of the document"
	case TypeIllegible:
		return "Ask the client for a clearer scan or the original PDF"
	case TypeDuplicate:
		return "Archive the duplicate upload"
	case TypeLowConfidence:
		return "Review the extracted values before approving"
	default:
		return "Review the document and approve or reclassify it"
	}
}

func HasErrors(list []string) bool {
	return hasSeverity(list, SeverityError)
}

func HasWarnings(list []string) bool {
	return hasSeverity(list, SeverityWarning)
}

func hasSeverity(list []string, sev Severity) bool {
	for _, s := range list {
		if Parse(s).Severity == sev {
			return true
		}
	}
	return false
}

// NormalizeAll normalizes every entry, dropping blanks.
func NormalizeAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, Normalize(s))
	}
	return out
}

// View is a parsed issue with the reviewer's next step attached.
type View struct {
	Parsed
	Raw             string `json:"raw"`
	SuggestedAction string `json:"suggested_action"`
}

func Explain(list []string) []View {
	out := make([]View, 0, len(list))
	for _, s := range list {
		p := Parse(s)
		out = append(out, View{Raw: s, Parsed: p, SuggestedAction: SuggestedAction(p)})
	}
	return out
}
