package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"goalchat/models"
)

const summaryInstruction = "Summarize the following conversation so that the concrete topics, decisions and progress toward the user's goals are clear."

// OpenAIGenerator generates replies with the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrConfiguration)
	}
	return NewOpenAIGeneratorWithConfig(openai.DefaultConfig(apiKey), model), nil
}

func NewOpenAIGeneratorWithConfig(cfg openai.ClientConfig, model string) *OpenAIGenerator {
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

var _ Generator = (*OpenAIGenerator)(nil)

func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: openAIMessages(p),
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai chat completion: %v", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrUpstream)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(p Prompt) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(p.Turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: p.SystemInstruction,
	})
	for _, t := range p.Turns {
		role := openai.ChatMessageRoleUser
		if t.Role == TurnRoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return msgs
}

// OpenAISummarizer condenses message batches and embeds the result.
type OpenAISummarizer struct {
	client         *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
}

func NewOpenAISummarizer(cfg openai.ClientConfig, model string) *OpenAISummarizer {
	return &OpenAISummarizer{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		embeddingModel: openai.AdaEmbeddingV2,
	}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summaryInstruction},
		},
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no summary returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *OpenAISummarizer) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: s.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding creation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings received")
	}

	out := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float64(v)
	}
	return out, nil
}
