package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"goalchat/config"
	"goalchat/models"
)

const (
	emptyReplyText         = "No response from AI."
	progressUpdateTrigger  = "update my progress"
	progressExcerptLen     = 100
	progressSummaryDateFmt = "2006-01-02"
)

type ChatRequest struct {
	ConversationID   string           `json:"conversationId"`
	UserMessage      string           `json:"userMessage"`
	ExistingMessages []models.Message `json:"existingMessages"`
	ActiveGoal       *models.Goal     `json:"activeGoal,omitempty"`

	// Prompt is the formatted payload when the caller already built it. It
	// never crosses the wire; remote boundaries rebuild it from the fields
	// above.
	Prompt *Prompt `json:"-"`
}

type ChatResponse struct {
	Message       models.Message `json:"message"`
	ContextUpdate *models.Goal   `json:"contextUpdate,omitempty"`
}

// Boundary produces the assistant's side of one turn. Errors wrap
// ErrValidation, ErrConfiguration or ErrUpstream.
type Boundary interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Generator turns a prompt into assistant text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// AssistantService is the Boundary backed by a text Generator.
type AssistantService struct {
	gen   Generator
	clock Clock
	newID IDFunc
	log   *zap.Logger
}

// NewAssistantService builds the boundary. A nil generator is allowed: every
// call then fails with ErrConfiguration.
func NewAssistantService(gen Generator, clock Clock, newID IDFunc, log *zap.Logger) *AssistantService {
	if clock == nil {
		clock = SystemClock{}
	}
	if newID == nil {
		newID = NewID
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AssistantService{gen: gen, clock: clock, newID: newID, log: log}
}

var _ Boundary = (*AssistantService)(nil)

func (s *AssistantService) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return ChatResponse{}, ErrEmptyMessage
	}
	if s.gen == nil {
		return ChatResponse{}, fmt.Errorf("%w: no generator configured (missing API key?)", ErrConfiguration)
	}

	prompt := req.Prompt
	if prompt == nil {
		p := BuildPrompt(req.ActiveGoal, req.ExistingMessages, req.UserMessage)
		prompt = &p
	}

	s.log.Debug("Calling generator",
		zap.String("conversation_id", req.ConversationID),
		zap.Int("turns", len(prompt.Turns)),
		zap.Bool("has_goal", req.ActiveGoal != nil))

	text, err := s.gen.Generate(ctx, *prompt)
	if err != nil {
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrUpstream) {
			return ChatResponse{}, err
		}
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if text == "" {
		text = emptyReplyText
	}

	now := s.clock.Now()
	return ChatResponse{
		Message: models.Message{
			ID:             s.newID(),
			ConversationID: req.ConversationID,
			Role:           models.RoleAssistant,
			Content:        text,
			Timestamp:      now,
		},
		ContextUpdate: DetectGoalUpdate(req.UserMessage, text, req.ActiveGoal, now),
	}, nil
}

// DetectGoalUpdate returns the full next goal when the user asked to update
// their progress and a goal is active, otherwise nil. The reply's first 100
// characters become the new progress summary.
func DetectGoalUpdate(userMessage, reply string, goal *models.Goal, now time.Time) *models.Goal {
	if goal == nil || !strings.Contains(strings.ToLower(userMessage), progressUpdateTrigger) {
		return nil
	}
	next := goal.Clone()
	next.ProgressSummary = fmt.Sprintf("Updated on %s. %s...", now.Format(progressSummaryDateFmt), excerpt(reply, progressExcerptLen))
	next.UpdatedAt = laterOf(next.CreatedAt, now)
	return &next
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NewGenerator builds the generator named by cfg.AIProvider. A missing API key
// is not fatal: it is logged and nil is returned, so every chat turn fails
// with ErrConfiguration until the key is set.
func NewGenerator(ctx context.Context, cfg config.Config, log *zap.Logger) (Generator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.AIProvider {
	case "", config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			log.Warn("Gemini API key is not set; chat will be unavailable")
			return nil, nil
		}
		gen, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Warn("OpenAI API key is not set; chat will be unavailable")
			return nil, nil
		}
		gen, err := NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("%w: unknown AI provider %q", ErrConfiguration, cfg.AIProvider)
	}
}
