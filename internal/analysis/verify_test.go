package analysis

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestVerifyEndToEnd(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 100,
		Products: []ProductEntry{
			{SKU: "MLK001", Name: "milk", WeightInReq: 120},
		},
	}
	pred := &PredictionResult{
		Products:         []ProductPrediction{{SKU: "MLK001", PredictedWeight: ptr(100)}},
		TotalWeightAfter: ptr(90),
	}

	report, err := Verify(pred, sub)
	require.NoError(t, err)

	require.Len(t, report.ProductComparisons, 1)
	cmp := report.ProductComparisons[0]
	assert.Equal(t, "MLK001", cmp.SKU)
	assert.Equal(t, "milk", cmp.Name)
	assert.Equal(t, 120.0, cmp.ProvidedWeight)
	assert.Equal(t, 100.0, cmp.PredictedWeight)
	assert.Equal(t, "16.67", cmp.DifferencePercentage.String())

	assert.Equal(t, 100.0, report.TotalWeight.Provided)
	assert.Equal(t, 90.0, report.TotalWeight.Predicted)
	assert.Equal(t, "10.00", report.TotalWeight.DifferencePercentage.String())

	assert.False(t, report.Accurate, "product breach must flip accuracy")
}

func TestVerifyThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		provided  float64
		predicted float64
		wantPct   string
		accurate  bool
	}{
		{name: "exactly ten percent", provided: 100, predicted: 110, wantPct: "10.00", accurate: true},
		{name: "just over ten percent", provided: 100, predicted: 110.01, wantPct: "10.01", accurate: false},
		{name: "eleven percent", provided: 200, predicted: 222, wantPct: "11.00", accurate: false},
		{name: "under prediction within tolerance", provided: 200, predicted: 185, wantPct: "7.50", accurate: true},
		{name: "exact match", provided: 80, predicted: 80, wantPct: "0.00", accurate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &MealSubmission{
				WeightAfter: 50,
				Products:    []ProductEntry{{SKU: "A", Name: "a", WeightInReq: tt.provided}},
			}
			pred := &PredictionResult{
				Products:         []ProductPrediction{{SKU: "A", PredictedWeight: ptr(tt.predicted)}},
				TotalWeightAfter: ptr(50),
			}

			report, err := Verify(pred, sub)
			require.NoError(t, err)
			require.Len(t, report.ProductComparisons, 1)
			assert.Equal(t, tt.wantPct, report.ProductComparisons[0].DifferencePercentage.String())
			assert.Equal(t, tt.accurate, report.Accurate)
		})
	}
}

func TestVerifySkipsUnmatchedProducts(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 40,
		Products: []ProductEntry{
			{SKU: "A", Name: "apple", WeightInReq: 100},
			{SKU: "B", Name: "bread", WeightInReq: 60},
		},
	}
	pred := &PredictionResult{
		Products:         []ProductPrediction{{SKU: "A", PredictedWeight: ptr(100)}},
		TotalWeightAfter: ptr(40),
	}

	report, err := Verify(pred, sub)
	require.NoError(t, err)
	require.Len(t, report.ProductComparisons, 1)
	assert.Equal(t, "A", report.ProductComparisons[0].SKU)
	assert.True(t, report.Accurate)
}

func TestVerifyMissingTotalDefaultsToZero(t *testing.T) {
	sub := &MealSubmission{WeightAfter: 50}
	pred := &PredictionResult{Products: []ProductPrediction{}}

	report, err := Verify(pred, sub)
	require.NoError(t, err)
	assert.Empty(t, report.ProductComparisons)
	assert.Equal(t, 0.0, report.TotalWeight.Predicted)
	assert.Equal(t, "100.00", report.TotalWeight.DifferencePercentage.String())
	assert.False(t, report.Accurate)
}

func TestVerifyMalformedPrediction(t *testing.T) {
	sub := &MealSubmission{WeightAfter: 50}

	_, err := Verify(&PredictionResult{TotalWeightAfter: ptr(50)}, sub)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPrediction))

	_, err = Verify(nil, sub)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPrediction))
}

func TestVerifyZeroProvidedWeight(t *testing.T) {
	tests := []struct {
		name      string
		predicted *float64
		wantPct   string
	}{
		{name: "both zero", predicted: ptr(0), wantPct: "0.00"},
		{name: "missing prediction counts as zero", predicted: nil, wantPct: "0.00"},
		{name: "predicted nonzero", predicted: ptr(15), wantPct: "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &MealSubmission{
				WeightAfter: 0,
				Products:    []ProductEntry{{SKU: "Z", Name: "zero", WeightInReq: 0}},
			}
			pred := &PredictionResult{
				Products:         []ProductPrediction{{SKU: "Z", PredictedWeight: tt.predicted}},
				TotalWeightAfter: ptr(0),
			}

			report, err := Verify(pred, sub)
			require.NoError(t, err)
			require.Len(t, report.ProductComparisons, 1)
			assert.Equal(t, tt.wantPct, report.ProductComparisons[0].DifferencePercentage.String())
			assert.Equal(t, "0.00", report.TotalWeight.DifferencePercentage.String())
		})
	}
}

func TestVerifyIgnoresPredictionsWithoutSKU(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 10,
		Products:    []ProductEntry{{SKU: "", Name: "nameless", WeightInReq: 10}},
	}
	pred := &PredictionResult{
		Products:         []ProductPrediction{{SKU: "", PredictedWeight: ptr(500)}},
		TotalWeightAfter: ptr(10),
	}

	report, err := Verify(pred, sub)
	require.NoError(t, err)
	assert.Empty(t, report.ProductComparisons)
	assert.True(t, report.Accurate)
}

func TestVerifyDuplicateSKUsLastMatchWins(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 20,
		Products: []ProductEntry{
			{SKU: "A", Name: "first", WeightInReq: 50},
			{SKU: "B", Name: "bread", WeightInReq: 30},
			{SKU: "A", Name: "second", WeightInReq: 100},
		},
	}
	pred := &PredictionResult{
		Products: []ProductPrediction{
			{SKU: "A", PredictedWeight: ptr(10)},
			{SKU: "B", PredictedWeight: ptr(30)},
			{SKU: "A", PredictedWeight: ptr(100)},
		},
		TotalWeightAfter: ptr(20),
	}

	report, err := Verify(pred, sub)
	require.NoError(t, err)
	require.Len(t, report.ProductComparisons, 2)
	assert.Equal(t, "A", report.ProductComparisons[0].SKU)
	assert.Equal(t, "second", report.ProductComparisons[0].Name)
	assert.Equal(t, 100.0, report.ProductComparisons[0].ProvidedWeight)
	assert.Equal(t, 100.0, report.ProductComparisons[0].PredictedWeight)
	assert.Equal(t, "B", report.ProductComparisons[1].SKU)
	assert.True(t, report.Accurate)
}

func TestVerifyTotalBreachFlipsAccuracy(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 100,
		Products:    []ProductEntry{{SKU: "A", Name: "a", WeightInReq: 100}},
	}
	pred := &PredictionResult{
		Products:         []ProductPrediction{{SKU: "A", PredictedWeight: ptr(100)}},
		TotalWeightAfter: ptr(120),
	}

	report, err := Verify(pred, sub)
	require.NoError(t, err)
	assert.Equal(t, "20.00", report.TotalWeight.DifferencePercentage.String())
	assert.False(t, report.Accurate)
}

func TestVerifyIsDeterministicAndDoesNotMutateInputs(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 70,
		Products: []ProductEntry{
			{SKU: "A", Name: "a", WeightInReq: 120},
			{SKU: "B", Name: "b", WeightInReq: 33.3},
		},
	}
	pred := &PredictionResult{
		Products: []ProductPrediction{
			{SKU: "B", PredictedWeight: ptr(30)},
			{SKU: "A", PredictedWeight: ptr(101.5)},
		},
		TotalWeightAfter: ptr(66),
	}
	subBefore, err := json.Marshal(sub)
	require.NoError(t, err)
	predBefore, err := json.Marshal(pred)
	require.NoError(t, err)

	first, err := Verify(pred, sub)
	require.NoError(t, err)
	second, err := Verify(pred, sub)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	subAfter, _ := json.Marshal(sub)
	predAfter, _ := json.Marshal(pred)
	assert.JSONEq(t, string(subBefore), string(subAfter))
	assert.JSONEq(t, string(predBefore), string(predAfter))
}

func TestVerificationReportJSON(t *testing.T) {
	report := &VerificationReport{
		Accurate: false,
		ProductComparisons: []ProductComparison{
			{SKU: "MLK001", Name: "milk", ProvidedWeight: 120, PredictedWeight: 100, DifferencePercentage: 16.67},
		},
		TotalWeight: TotalComparison{Provided: 100, Predicted: 90, DifferencePercentage: 10},
	}

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"difference_percentage":10.00`)
	assert.JSONEq(t, `{
		"accurate": false,
		"product_comparisons": [
			{"sku": "MLK001", "name": "milk", "provided_weight": 120, "predicted_weight": 100, "difference_percentage": 16.67}
		],
		"total_weight": {"provided": 100, "predicted": 90, "difference_percentage": 10}
	}`, string(data))
}

func TestDifferencePercentage(t *testing.T) {
	assert.Equal(t, Percent(16.67), DifferencePercentage(120, 100))
	assert.Equal(t, Percent(10), DifferencePercentage(100, 90))
	assert.Equal(t, Percent(0), DifferencePercentage(0, 0))
	assert.Equal(t, Percent(100), DifferencePercentage(0, 1))
	assert.Equal(t, Percent(200), DifferencePercentage(50, 150))
}

func TestVerifyNonFinitePredictionCountsAsZero(t *testing.T) {
	sub := &MealSubmission{
		WeightAfter: 90,
		Products:    []ProductEntry{{SKU: "MLK001", Name: "milk", WeightInReq: 120}},
	}
	pred := &PredictionResult{
		Products:         []ProductPrediction{{SKU: "MLK001", PredictedWeight: ptr(math.NaN())}},
		TotalWeightAfter: ptr(math.Inf(1)),
	}

	report, err := Verify(pred, sub)
	require.NoError(t, err)
	require.Len(t, report.ProductComparisons, 1)
	assert.Equal(t, 0.0, report.ProductComparisons[0].PredictedWeight)
	assert.Equal(t, "100.00", report.ProductComparisons[0].DifferencePercentage.String())
	assert.Equal(t, 0.0, report.TotalWeight.Predicted)

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestDifferencePercentage_HugeRatioStaysFinite(t *testing.T) {
	pct := DifferencePercentage(1e-5, 1e301)
	assert.False(t, math.IsInf(float64(pct), 0))
	assert.Greater(t, float64(pct), 1e307)

	_, err := json.Marshal(pct)
	assert.NoError(t, err)
}

func TestPercentMarshalJSON_RejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := json.Marshal(Percent(v))
		assert.Error(t, err, "%v", v)
	}
}
