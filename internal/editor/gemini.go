package editor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// NewGenAIClient creates a Gemini API client. baseURL overrides the API
// endpoint and is empty in production.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiGenerator calls a Gemini image model through the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator wraps an existing genai client for the given image model.
func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{client: client, model: model}
}

// GenerateImage sends the image followed by the instruction as a single user
// turn and returns the first inline image of the response.
func (g *GeminiGenerator) GenerateImage(ctx context.Context, req GenerateRequest) (*GeneratedImage, error) {
	startTime := time.Now()
	log.Info().
		Str("model", g.model).
		Int("image_bytes", len(req.ImageData)).
		Str("image_mime", req.MIMEType).
		Str("aspect_ratio", req.AspectRatio).
		Msg("Sending image to Gemini for recomposition")

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: req.MIMEType, Data: req.ImageData}},
			{Text: req.Instruction},
		},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(startTime)).Msg("Gemini image generation failed")
		return nil, err
	}

	img, err := firstInlineImage(resp)
	if err != nil {
		log.Warn().
			Err(err).
			Dur("duration", time.Since(startTime)).
			Msg("Gemini response contained no image")
		return nil, err
	}

	log.Info().
		Int("output_bytes", len(img.Data)).
		Str("output_mime", img.MIMEType).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini recomposition complete")

	return img, nil
}

// firstInlineImage scans the first candidate's parts in order and returns the
// first part carrying inline image bytes. Text parts seen before the image are
// collected into GeneratedImage.Text.
func firstInlineImage(resp *genai.GenerateContentResponse) (*GeneratedImage, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &EditError{Kind: KindGeneration, Message: MsgNoContent}
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &GeneratedImage{
				Data:     part.InlineData.Data,
				MIMEType: part.InlineData.MIMEType,
				Text:     text,
			}, nil
		}
		text += part.Text
	}

	return nil, &EditError{
		Kind:    KindGeneration,
		Message: MsgNoImage,
		Err:     fmt.Errorf("no image returned in response (text: %s)", truncateString(text, 200)),
	}
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
