package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash-image-preview"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates images through the Gemini API.
type Gemini struct {
	models contentGenerator
	model  string
}

// NewGemini connects to the Gemini API. An empty key yields an unconfigured
// provider that the chain skips.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &Gemini{model: model}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{models: client.Models, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Configured() bool { return g != nil && g.models != nil }

// Generate returns the first inline image of the response.
func (g *Gemini) Generate(ctx context.Context, req Request) (Asset, error) {
	if !g.Configured() {
		return Asset{}, errors.New("gemini: api key is required")
	}
	content := &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(BuildPrompt(req))},
	}
	temperature := float32(0.7)
	result, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{content}, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		Temperature:        &temperature,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if result == nil {
		return Asset{}, errors.New("gemini: empty response")
	}
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return Asset{
				Data:     part.InlineData.Data,
				MIME:     normalizeFormat(part.InlineData.MIMEType),
				Width:    req.Width,
				Height:   req.Height,
				Provider: g.Name(),
				Metadata: map[string]string{"model": g.model},
			}, nil
		}
	}
	return Asset{}, errors.New("gemini: no image in response")
}

var _ Provider = (*Gemini)(nil)
