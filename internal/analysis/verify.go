package analysis

import (
	"fmt"
	"math"
)

// AccuracyThreshold is the largest difference percentage, per product and for
// the total, that still counts as accurate.
const AccuracyThreshold = 10.0

// VerificationReport compares declared weights with a prediction.
type VerificationReport struct {
	Accurate           bool                `json:"accurate"`
	ProductComparisons []ProductComparison `json:"product_comparisons"`
	TotalWeight        TotalComparison     `json:"total_weight"`
}

type ProductComparison struct {
	SKU                  string  `json:"sku"`
	Name                 string  `json:"name"`
	ProvidedWeight       float64 `json:"provided_weight"`
	PredictedWeight      float64 `json:"predicted_weight"`
	DifferencePercentage Percent `json:"difference_percentage"`
}

type TotalComparison struct {
	Provided             float64 `json:"provided"`
	Predicted            float64 `json:"predicted"`
	DifferencePercentage Percent `json:"difference_percentage"`
}

// Verify compares pred against the weights declared in sub.
//
// Submission products with no prediction for their SKU are left out of the
// report. When a SKU repeats, the last prediction entry and the last
// submission entry win, and the comparison keeps the position of the SKU's
// first appearance in the submission. A missing predicted weight counts as
// zero, as does a missing total weight after.
func Verify(pred *PredictionResult, sub *MealSubmission) (*VerificationReport, error) {
	if pred == nil {
		return nil, fmt.Errorf("%w: no prediction", ErrMalformedPrediction)
	}
	if pred.Products == nil {
		return nil, fmt.Errorf("%w: prediction has no products", ErrMalformedPrediction)
	}

	predicted := make(map[string]ProductPrediction, len(pred.Products))
	for _, p := range pred.Products {
		if p.SKU == "" {
			continue
		}
		predicted[p.SKU] = p
	}

	comparisons := make([]ProductComparison, 0, len(sub.Products))
	position := make(map[string]int, len(sub.Products))
	for _, product := range sub.Products {
		match, ok := predicted[product.SKU]
		if !ok {
			continue
		}
		predictedWeight := valueOrZero(match.PredictedWeight)
		cmp := ProductComparison{
			SKU:                  product.SKU,
			Name:                 product.Name,
			ProvidedWeight:       product.WeightInReq,
			PredictedWeight:      predictedWeight,
			DifferencePercentage: DifferencePercentage(product.WeightInReq, predictedWeight),
		}
		if i, seen := position[product.SKU]; seen {
			comparisons[i] = cmp
			continue
		}
		position[product.SKU] = len(comparisons)
		comparisons = append(comparisons, cmp)
	}

	predictedAfter := valueOrZero(pred.TotalWeightAfter)
	total := TotalComparison{
		Provided:             sub.WeightAfter,
		Predicted:            predictedAfter,
		DifferencePercentage: DifferencePercentage(sub.WeightAfter, predictedAfter),
	}

	return &VerificationReport{
		Accurate:           isAccurate(comparisons, total),
		ProductComparisons: comparisons,
		TotalWeight:        total,
	}, nil
}

// DifferencePercentage returns |predicted - provided| / provided * 100 rounded
// to two decimals. With a zero provided weight the ratio is undefined: the
// result is 0 when predicted is also zero and 100 otherwise.
func DifferencePercentage(provided, predicted float64) Percent {
	diff := math.Abs(predicted - provided)
	if provided == 0 {
		if diff == 0 {
			return 0
		}
		return 100
	}
	pct := diff / math.Abs(provided) * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 100
	}
	return Percent(round2(pct))
}

func isAccurate(comparisons []ProductComparison, total TotalComparison) bool {
	for _, c := range comparisons {
		if float64(c.DifferencePercentage) > AccuracyThreshold {
			return false
		}
	}
	return float64(total.DifferencePercentage) <= AccuracyThreshold
}
