package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"goalchat/config"
	"goalchat/models"
)

// Repository is the store of record for conversations and goals.
type Repository interface {
	GetHistory(ctx context.Context, userID string) ([]models.Conversation, error)
	// GetContext returns the user's active goal, or nil when there is none.
	GetContext(ctx context.Context, userID string) (*models.Goal, error)
	CreateConversation(ctx context.Context, userID, initialMessage string) (models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	// UpdateGoal stores the goal as the user's active goal and returns the
	// stored value.
	UpdateGoal(ctx context.Context, goal models.Goal) (models.Goal, error)
	SaveMessage(ctx context.Context, msg models.Message) error
}

// NewRepository opens the backend selected by cfg.StoreBackend. The returned
// close function releases its resources.
func NewRepository(ctx context.Context, cfg config.Config, log *zap.Logger) (Repository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case "", config.BackendMemory:
		return NewMemoryRepository(SystemClock{}, NewID), noop, nil
	case config.BackendDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		repo := NewDynamoDBRepository(client, SystemClock{}, NewID, log)
		if err := repo.EnsureTables(ctx); err != nil {
			return nil, nil, err
		}
		return repo, noop, nil
	case config.BackendBolt:
		repo, err := OpenBoltRepository(cfg.BoltPath, SystemClock{}, NewID)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newConversation builds the record every backend stores on creation.
func newConversation(id, userID, initialMessage string, clock Clock) models.Conversation {
	now := clock.Now()
	return models.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     models.PlaceholderTitle(initialMessage),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
	}
}

// stampGoal refreshes updatedAt the way every backend does on UpdateGoal.
func stampGoal(g models.Goal, clock Clock) models.Goal {
	g = g.Clone()
	g.UpdatedAt = clock.Now()
	if g.UpdatedAt.Before(g.CreatedAt) {
		g.UpdatedAt = g.CreatedAt
	}
	return g
}
