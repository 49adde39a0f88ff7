// Package openai serves meal analysis through any OpenAI-compatible chat
// completions endpoint that accepts image parts.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/vbonduro/mealverify/internal/vision"
)

type OpenAIAnalyzer struct {
	model  string
	client *openai.Client
}

// NewOpenAIAnalyzer returns an analyzer for model. An empty baseURL uses the
// public OpenAI API.
func NewOpenAIAnalyzer(apiKey, model, baseURL string) *OpenAIAnalyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAnalyzer{
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func buildParts(req *vision.Request) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, 2*len(req.Images)+1)
	for i, img := range req.Images {
		parts = append(parts,
			openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[image %d]", i+1),
			},
			openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI(img),
					Detail: openai.ImageURLDetailHigh,
				},
			},
		)
	}
	return append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	})
}

func dataURI(img vision.Image) string {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req *vision.Request) (*vision.AnalysisResult, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   req.MaxTokens,
		Temperature: vision.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: buildParts(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	return vision.Result(resp.Choices[0].Message.Content)
}
