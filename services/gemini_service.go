package services

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator generates replies with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is not configured", ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create Gemini client: %v", ErrConfiguration, err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

var _ Generator = (*GeminiGenerator)(nil)

func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(p), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.SystemInstruction, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %v", ErrUpstream, err)
	}
	return resp.Text(), nil
}

func geminiContents(p Prompt) []*genai.Content {
	contents := make([]*genai.Content, 0, len(p.Turns))
	for _, t := range p.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == TurnRoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}
