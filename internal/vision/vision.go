package vision

import (
	"context"

	"github.com/vbonduro/mealverify/internal/analysis"
)

// SystemPrompt frames every meal analysis request, whichever backend serves it.
const SystemPrompt = `You are a nutrition analyst estimating food weights from photographs.
Compare the before and after meal images against the reference images of known weight.
Answer with the requested JSON object only, using grams for every weight.`

// Temperature keeps weight estimates close to deterministic.
const Temperature = 0.2

// Image is one resolved image attachment. Images are sent in slice order,
// which matches the [image N] numbering in the prompt text.
type Image struct {
	Ref      analysis.ImageRef
	MimeType string
	Data     []byte
}

// Request is a complete multimodal analysis request.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int
}

type VisionAnalyzer interface {
	Analyze(ctx context.Context, req *Request) (*AnalysisResult, error)
}

// AnalysisResult carries the normalized prediction and the model text it was
// parsed from. RawResponse is set even when parsing fails.
type AnalysisResult struct {
	Prediction  *analysis.PredictionResult
	RawResponse string
}

// NewRequest builds a Request from an assembled prompt and its resolved
// images.
func NewRequest(payload *analysis.PromptPayload, images []Image, maxTokens int) *Request {
	return &Request{
		System:    SystemPrompt,
		Prompt:    payload.Text,
		Images:    images,
		MaxTokens: maxTokens,
	}
}

// Result parses raw into an AnalysisResult. The returned result is non-nil
// even on error so callers can keep the raw text.
func Result(raw string) (*AnalysisResult, error) {
	pred, err := ParsePrediction(raw)
	return &AnalysisResult{Prediction: pred, RawResponse: raw}, err
}
