package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/formly/internal/core/domain"
)

type completerFake struct {
	out    string
	err    error
	prompt string
}

func (c *completerFake) CompleteJSON(_ context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.out, c.err
}

func TestExtractParsesFencedOutput(t *testing.T) {
	completer := &completerFake{out: "```json\n" + `{
		"likelyType": "W-2",
		"alternativeTypes": ["1099-NEC"],
		"fields": {
			"wages": {"value": "52,000.00", "confidence": 0.93, "rawText": "52,000.00"},
			"employer_ein": "12-3456789",
			"tax_year": 2024,
			"state_id": {"value": null, "confidence": 0}
		},
		"overallConfidence": 1.4,
		"reasoning": "Box 1 wages present"
	}` + "\n```"}
	ex := NewExtractor(completer, 0)

	got := ex.Extract(context.Background(), domain.ExtractionRequest{
		DocumentTypes: []string{"W-2", "1099-NEC"},
		SchemaFields:  []domain.SchemaField{{Name: "wages", Description: "Box 1", Format: "currency", Required: true}},
		OCRText:       "Form W-2 Wage and Tax Statement",
		FileName:      "w2.pdf",
		PriorFeedback: "wages missing",
	})
	if got.LikelyType != "W-2" || got.OverallConfidence != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Fields["wages"].Text() != "52,000.00" || got.Fields["employer_ein"].Text() != "12-3456789" {
		t.Fatalf("unexpected fields: %+v", got.Fields)
	}
	if got.Fields["tax_year"].Text() != "2024" || got.Fields["state_id"].Value != nil {
		t.Fatalf("unexpected scalar handling: %+v", got.Fields)
	}
	for _, want := range []string{"wages: Box 1 (format: currency) required", "wages missing", "w2.pdf"} {
		if !strings.Contains(completer.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, completer.prompt)
		}
	}
}

func TestExtractFallsBack(t *testing.T) {
	cases := map[string]*completerFake{
		"call error":       {err: errors.New("connection refused")},
		"not json":         {out: "I cannot read this document"},
		"schema violation": {out: `{"likelyType": 7, "fields": {}, "overallConfidence": 0.4}`},
		"missing fields":   {out: `{"likelyType": "W-2", "overallConfidence": 0.4}`},
	}
	for name, completer := range cases {
		t.Run(name, func(t *testing.T) {
			got := NewExtractor(completer, 0).Extract(context.Background(), domain.ExtractionRequest{FileName: "x.pdf"})
			if got.LikelyType != domain.TypeOther || got.OverallConfidence != FallbackConfidence || len(got.Fields) != 0 {
				t.Fatalf("expected fallback, got %+v", got)
			}
			if !strings.HasPrefix(got.Reasoning, "Extraction failed: ") {
				t.Fatalf("unexpected reasoning %q", got.Reasoning)
			}
		})
	}
}

func TestBuildPromptTruncatesOCR(t *testing.T) {
	long := strings.Repeat("a", domain.MaxOCRChars+500)
	prompt := BuildPrompt(domain.ExtractionRequest{OCRText: long})
	if strings.Count(prompt, "a") > domain.MaxOCRChars+200 {
		t.Fatalf("ocr text was not truncated")
	}
}
