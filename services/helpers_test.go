package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"goalchat/models"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// stepClock advances one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock { return &stepClock{now: baseTime} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// seqIDs returns an IDFunc yielding prefix-1, prefix-2, ...
func seqIDs(prefix string) IDFunc {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

var errBoom = errors.New("boom")

// flakyRepo wraps a repository and fails selected operations.
type flakyRepo struct {
	Repository

	mu          sync.Mutex
	failHistory bool
	failContext bool
	failCreate  bool
	failWrites  bool
}

func (r *flakyRepo) set(f func(r *flakyRepo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(r)
}

func (r *flakyRepo) fails(pick func(r *flakyRepo) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return pick(r)
}

func (r *flakyRepo) GetHistory(ctx context.Context, userID string) ([]models.Conversation, error) {
	if r.fails(func(r *flakyRepo) bool { return r.failHistory }) {
		return nil, errBoom
	}
	return r.Repository.GetHistory(ctx, userID)
}

func (r *flakyRepo) GetContext(ctx context.Context, userID string) (*models.Goal, error) {
	if r.fails(func(r *flakyRepo) bool { return r.failContext }) {
		return nil, errBoom
	}
	return r.Repository.GetContext(ctx, userID)
}

func (r *flakyRepo) CreateConversation(ctx context.Context, userID, initial string) (models.Conversation, error) {
	if r.fails(func(r *flakyRepo) bool { return r.failCreate }) {
		return models.Conversation{}, errBoom
	}
	return r.Repository.CreateConversation(ctx, userID, initial)
}

func (r *flakyRepo) UpdateConversationTitle(ctx context.Context, id, title string) error {
	if r.fails(func(r *flakyRepo) bool { return r.failWrites }) {
		return errBoom
	}
	return r.Repository.UpdateConversationTitle(ctx, id, title)
}

func (r *flakyRepo) UpdateGoal(ctx context.Context, g models.Goal) (models.Goal, error) {
	if r.fails(func(r *flakyRepo) bool { return r.failWrites }) {
		return models.Goal{}, errBoom
	}
	return r.Repository.UpdateGoal(ctx, g)
}

func (r *flakyRepo) SaveMessage(ctx context.Context, m models.Message) error {
	if r.fails(func(r *flakyRepo) bool { return r.failWrites }) {
		return errBoom
	}
	return r.Repository.SaveMessage(ctx, m)
}

// scriptedBoundary records requests and answers with a canned response.
type scriptedBoundary struct {
	mu       sync.Mutex
	requests []ChatRequest
	reply    string
	update   *models.Goal
	err      error
	gate     chan struct{}
	entered  chan struct{}
}

func (b *scriptedBoundary) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	gate, entered := b.gate, b.entered
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if b.err != nil {
		return ChatResponse{}, b.err
	}
	return ChatResponse{
		Message: models.Message{
			ID:             "reply-" + req.ConversationID,
			ConversationID: req.ConversationID,
			Role:           models.RoleAssistant,
			Content:        b.reply,
			Timestamp:      baseTime.Add(time.Hour),
		},
		ContextUpdate: b.update,
	}, nil
}

func (b *scriptedBoundary) calls() []ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ChatRequest(nil), b.requests...)
}

// fakeGenerator returns a fixed text or error and remembers its prompts.
type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []Prompt
}

func (g *fakeGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	return g.text, g.err
}
