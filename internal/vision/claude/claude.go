package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/vbonduro/mealverify/internal/vision"
)

type ClaudeAnalyzer struct {
	model  string
	client *anthropic.Client
}

// Option configures a ClaudeAnalyzer.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the analyzer at a different Messages API root.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func NewClaudeAnalyzer(apiKey, model string, opts ...Option) *ClaudeAnalyzer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []anthropic.ClientOption
	if o.baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, anthropic.WithHTTPClient(o.httpClient))
	}

	return &ClaudeAnalyzer{
		model:  model,
		client: anthropic.NewClient(apiKey, clientOpts...),
	}
}

// buildContent labels each image with its prompt number and appends the
// prompt text last.
func buildContent(req *vision.Request) []anthropic.MessageContent {
	content := make([]anthropic.MessageContent, 0, 2*len(req.Images)+1)
	for i, img := range req.Images {
		content = append(content,
			anthropic.NewTextMessageContent(fmt.Sprintf("[image %d]", i+1)),
			anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				normaliseMIME(img.MimeType),
				base64.StdEncoding.EncodeToString(img.Data),
			)),
		)
	}
	return append(content, anthropic.NewTextMessageContent(req.Prompt))
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, req *vision.Request) (*vision.AnalysisResult, error) {
	temperature := float32(vision.Temperature)
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(a.model),
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: buildContent(req),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}

	var responseText string
	for _, blk := range resp.Content {
		if blk.Type == anthropic.MessagesContentTypeText {
			responseText = blk.GetText()
			break
		}
	}

	return vision.Result(responseText)
}

func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
