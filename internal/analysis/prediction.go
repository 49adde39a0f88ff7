package analysis

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformedPrediction is returned when a prediction has no usable products
// collection. It is distinct from an inaccurate report.
var ErrMalformedPrediction = errors.New("prediction response unusable")

// PredictionResult is the normalized output of the vision model.
//
// A nil Products slice means the model response carried no products
// collection at all. An empty, non-nil slice means the model evaluated
// nothing and is still a valid prediction.
type PredictionResult struct {
	Products          []ProductPrediction `json:"products"`
	TotalWeightBefore *float64            `json:"total_weight_before,omitempty"`
	TotalWeightAfter  *float64            `json:"total_weight_after,omitempty"`
	Confidence        string              `json:"confidence,omitempty"`
	Reasoning         string              `json:"reasoning,omitempty"`
}

// ProductPrediction is the model's estimate for one product.
type ProductPrediction struct {
	SKU                     string   `json:"sku"`
	PredictedWeight         *float64 `json:"predicted_weight,omitempty"`
	PredictedWeightConsumed *float64 `json:"predicted_weight_consumed,omitempty"`
}

// Percent is a percentage rounded to two decimal places. It marshals as a
// JSON number with exactly two decimals.
type Percent float64

func (p Percent) String() string {
	return strconv.FormatFloat(float64(p), 'f', 2, 64)
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if !finite(float64(p)) {
		return nil, fmt.Errorf("percent %v is not a finite number", float64(p))
	}
	return []byte(p.String()), nil
}

// round2 rounds to two decimals. Values too large to scale are already
// beyond two-decimal precision and are returned as is.
func round2(v float64) float64 {
	scaled := v * 100
	if !finite(scaled) {
		return v
	}
	return math.Round(scaled) / 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// valueOrZero reads an optional weight. Missing and non-finite values count
// as zero.
func valueOrZero(v *float64) float64 {
	if v == nil || !finite(*v) {
		return 0
	}
	return *v
}
