package vision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vbonduro/mealverify/internal/analysis"
)

// rawPrediction accepts the response shapes vision models have been seen to
// produce for the meal prompt.
type rawPrediction struct {
	Products                  []rawProduct `json:"products"`
	ProductsAnalysis          []rawProduct `json:"products_analysis"`
	TotalWeight               *rawTotal    `json:"total_weight"`
	TotalWeightBefore         flexFloat    `json:"total_weight_before"`
	TotalWeightAfter          flexFloat    `json:"total_weight_after"`
	TotalEstimatedWeightAfter flexFloat    `json:"total_estimated_weight_after"`
	ConfidenceLevel           flexString   `json:"confidence_level"`
	Confidence                flexString   `json:"confidence"`
	Reasoning                 flexString   `json:"reasoning"`
}

type rawProduct struct {
	SKU                     flexString `json:"sku"`
	PredictedWeight         flexFloat  `json:"predicted_weight"`
	EstimatedWeightBefore   flexFloat  `json:"estimated_weight_before"`
	Weight                  flexFloat  `json:"weight"`
	PredictedWeightConsumed flexFloat  `json:"predicted_weight_consumed"`
	EstimatedConsumed       flexFloat  `json:"estimated_consumed"`
	WeightConsumed          flexFloat  `json:"weight_consumed"`
}

type rawTotal struct {
	EstimatedBefore flexFloat `json:"estimated_before"`
	EstimatedAfter  flexFloat `json:"estimated_after"`
}

// flexFloat is a weight that may arrive as a number or a numeric string such
// as "120" or "120g". Anything else, including NaN and infinities, leaves
// it unset.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "g")
		s = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.value, f.set = v, true
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

func firstSet(values ...flexFloat) *float64 {
	for _, v := range values {
		if v.set {
			return v.ptr()
		}
	}
	return nil
}

// flexString accepts a JSON string or a bare number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return nil
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

// ParsePrediction turns raw model text into a PredictionResult. JSON wrapped
// in prose or a code fence is recovered. A reply with no products collection
// yields an error wrapping analysis.ErrMalformedPrediction.
func ParsePrediction(raw string) (*analysis.PredictionResult, error) {
	var rp rawPrediction
	if err := decodeJSON(raw, &rp); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrMalformedPrediction, err)
	}

	products := rp.Products
	if products == nil {
		products = rp.ProductsAnalysis
	}
	if products == nil {
		return nil, fmt.Errorf("%w: response has no products", analysis.ErrMalformedPrediction)
	}

	pred := &analysis.PredictionResult{
		Products:   make([]analysis.ProductPrediction, 0, len(products)),
		Confidence: string(rp.ConfidenceLevel),
		Reasoning:  string(rp.Reasoning),
	}
	if pred.Confidence == "" {
		pred.Confidence = string(rp.Confidence)
	}

	for _, p := range products {
		pred.Products = append(pred.Products, analysis.ProductPrediction{
			SKU:                     strings.TrimSpace(string(p.SKU)),
			PredictedWeight:         firstSet(p.PredictedWeight, p.EstimatedWeightBefore, p.Weight),
			PredictedWeightConsumed: firstSet(p.PredictedWeightConsumed, p.EstimatedConsumed, p.WeightConsumed),
		})
	}

	var total rawTotal
	if rp.TotalWeight != nil {
		total = *rp.TotalWeight
	}
	pred.TotalWeightBefore = firstSet(rp.TotalWeightBefore, total.EstimatedBefore)
	pred.TotalWeightAfter = firstSet(rp.TotalWeightAfter, total.EstimatedAfter, rp.TotalEstimatedWeightAfter)

	return pred, nil
}

// decodeJSON unmarshals content into target, falling back to the JSON object
// inside a code fence or surrounding prose.
func decodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty response")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := extractJSONObject(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (response snippet: %s)", directErr, snippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (extracted snippet: %s)", err, snippet(sanitized))
	}
	return nil
}

func extractJSONObject(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" || trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
