package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"goalchat/models"
)

const defaultClientTimeout = 60 * time.Second

// APIClient talks to a goalchat server. It serves as both the Repository and
// the Boundary of a client-side session.
type APIClient struct {
	client *resty.Client
	log    *zap.Logger
}

type apiError struct {
	Error string `json:"error"`
}

func NewAPIClient(baseURL string, log *zap.Logger) *APIClient {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultClientTimeout).
		SetHeader("Content-Type", "application/json")
	return &APIClient{client: client, log: log}
}

var (
	_ Repository = (*APIClient)(nil)
	_ Boundary   = (*APIClient)(nil)
)

func (a *APIClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return ChatResponse{}, ErrEmptyMessage
	}
	var out ChatResponse
	resp, err := a.request(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if err := a.check(resp, "chat"); err != nil {
		return ChatResponse{}, err
	}
	return out, nil
}

func (a *APIClient) GetHistory(ctx context.Context, userID string) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	resp, err := a.request(ctx).
		SetQueryParam("userId", userID).
		SetResult(&out).
		Get("/api/history")
	if err != nil {
		return nil, err
	}
	if err := a.check(resp, "get history"); err != nil {
		return nil, err
	}
	if out.Conversations == nil {
		out.Conversations = []models.Conversation{}
	}
	return out.Conversations, nil
}

func (a *APIClient) GetContext(ctx context.Context, userID string) (*models.Goal, error) {
	var out struct {
		ActiveGoal *models.Goal `json:"activeGoal"`
	}
	resp, err := a.request(ctx).
		SetQueryParam("userId", userID).
		SetResult(&out).
		Get("/api/context")
	if err != nil {
		return nil, err
	}
	if err := a.check(resp, "get context"); err != nil {
		return nil, err
	}
	return out.ActiveGoal, nil
}

func (a *APIClient) CreateConversation(ctx context.Context, userID, initialMessage string) (models.Conversation, error) {
	var out models.Conversation
	resp, err := a.request(ctx).
		SetBody(map[string]string{"userId": userID, "initialMessage": initialMessage}).
		SetResult(&out).
		Post("/api/conversations")
	if err != nil {
		return models.Conversation{}, err
	}
	if err := a.check(resp, "create conversation"); err != nil {
		return models.Conversation{}, err
	}
	return out, nil
}

func (a *APIClient) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	resp, err := a.request(ctx).
		SetPathParam("id", conversationID).
		SetBody(map[string]string{"title": title}).
		Put("/api/conversations/{id}/title")
	if err != nil {
		return err
	}
	return a.check(resp, "update title")
}

func (a *APIClient) SaveMessage(ctx context.Context, msg models.Message) error {
	resp, err := a.request(ctx).
		SetPathParam("id", msg.ConversationID).
		SetBody(msg).
		Post("/api/conversations/{id}/messages")
	if err != nil {
		return err
	}
	return a.check(resp, "save message")
}

func (a *APIClient) UpdateGoal(ctx context.Context, goal models.Goal) (models.Goal, error) {
	var out models.Goal
	resp, err := a.request(ctx).
		SetPathParam("id", goal.ID).
		SetBody(goal).
		SetResult(&out).
		Put("/api/goals/{id}")
	if err != nil {
		return models.Goal{}, err
	}
	if err := a.check(resp, "update goal"); err != nil {
		return models.Goal{}, err
	}
	return out, nil
}

// SuggestedPrompts fetches the starter prompts offered on an empty chat.
func (a *APIClient) SuggestedPrompts(ctx context.Context) ([]models.SuggestedPrompt, error) {
	var out []models.SuggestedPrompt
	resp, err := a.request(ctx).SetResult(&out).Get("/api/prompts")
	if err != nil {
		return nil, err
	}
	if err := a.check(resp, "get prompts"); err != nil {
		return nil, err
	}
	return out, nil
}

// Me returns the identity the server authenticates requests as.
func (a *APIClient) Me(ctx context.Context) (models.User, error) {
	var out models.User
	resp, err := a.request(ctx).SetResult(&out).Get("/api/me")
	if err != nil {
		return models.User{}, err
	}
	if err := a.check(resp, "get user"); err != nil {
		return models.User{}, err
	}
	return out, nil
}

func (a *APIClient) request(ctx context.Context) *resty.Request {
	return a.client.R().SetContext(ctx).SetError(&apiError{})
}

// check turns a non-2xx response into the matching sentinel error.
func (a *APIClient) check(resp *resty.Response, op string) error {
	if !resp.IsError() {
		return nil
	}
	msg := resp.Status()
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		msg = e.Error
	}
	a.log.Debug("API request failed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.String("error", msg))

	switch code := resp.StatusCode(); {
	case code == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, ErrValidation, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, msg)
	case code == http.StatusBadGateway:
		return fmt.Errorf("%s: %w: %s", op, ErrUpstream, msg)
	case strings.Contains(msg, ErrConfiguration.Error()):
		return fmt.Errorf("%s: %w: %s", op, ErrConfiguration, msg)
	default:
		return fmt.Errorf("%s: status %d: %s", op, code, msg)
	}
}
