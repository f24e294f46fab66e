package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/formly/internal/core/domain"
)

// FallbackConfidence is reported when no usable model output exists.
const FallbackConfidence = 0.1

var responseSchema = func() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("likelyType", openapi3.NewStringSchema()).
		WithProperty("alternativeTypes", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("fields", openapi3.NewObjectSchema()).
		WithProperty("overallConfidence", openapi3.NewFloat64Schema()).
		WithProperty("reasoning", openapi3.NewStringSchema())
	s.Required = []string{"likelyType", "fields", "overallConfidence"}
	return s
}()

// Fallback is the minimal result returned whenever extraction fails.
func Fallback(cause error) domain.ExtractionResult {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return domain.ExtractionResult{
		LikelyType:        domain.TypeOther,
		AlternativeTypes:  []string{},
		Fields:            map[string]domain.ExtractedField{},
		OverallConfidence: FallbackConfidence,
		Reasoning:         "Extraction failed: " + reason,
	}
}

// Parse validates raw model output against the response schema and
// converts it into an ExtractionResult.
func Parse(raw string) (domain.ExtractionResult, error) {
	body := ExtractJSONObject(raw)
	if body == "" {
		return domain.ExtractionResult{}, errors.New("model output contains no JSON object")
	}

	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("parse extraction json: %w", err)
	}
	if err := responseSchema.VisitJSON(generic); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("extraction schema violation: %w", err)
	}

	var wire struct {
		LikelyType        string                     `json:"likelyType"`
		AlternativeTypes  []string                   `json:"alternativeTypes"`
		Fields            map[string]json.RawMessage `json:"fields"`
		OverallConfidence float64                    `json:"overallConfidence"`
		Reasoning         string                     `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("decode extraction: %w", err)
	}

	result := domain.ExtractionResult{
		LikelyType:        strings.TrimSpace(wire.LikelyType),
		AlternativeTypes:  wire.AlternativeTypes,
		Fields:            make(map[string]domain.ExtractedField, len(wire.Fields)),
		OverallConfidence: clamp01(wire.OverallConfidence),
		Reasoning:         wire.Reasoning,
	}
	if result.AlternativeTypes == nil {
		result.AlternativeTypes = []string{}
	}
	if result.LikelyType == "" {
		result.LikelyType = domain.TypeOther
	}
	for name, rawField := range wire.Fields {
		result.Fields[name] = decodeField(rawField)
	}
	return result, nil
}

// decodeField accepts both {"value": ...} objects and bare scalar values.
func decodeField(raw json.RawMessage) domain.ExtractedField {
	var obj struct {
		Value      any     `json:"value"`
		Confidence float64 `json:"confidence"`
		RawText    string  `json:"rawText"`
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(raw, &obj) == nil {
		return domain.ExtractedField{Value: scalar(obj.Value), Confidence: clamp01(obj.Confidence), RawText: obj.RawText}
	}
	var bare any
	if err := json.Unmarshal(raw, &bare); err != nil {
		return domain.ExtractedField{}
	}
	return domain.ExtractedField{Value: scalar(bare)}
}

func scalar(v any) any {
	switch t := v.(type) {
	case nil, string, float64:
		return t
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(encoded)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ExtractJSONObject strips code fences and surrounding prose from model output.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}
