package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goalchat/models"
)

// Summarizer condenses a batch of messages and embeds text.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []models.Message) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

var _ Summarizer = (*OpenAISummarizer)(nil)

// BatchProcessor periodically summarizes each user's recent messages.
type BatchProcessor struct {
	repo       Repository
	summarizer Summarizer
	out        SummaryWriter
	clock      Clock
	window     time.Duration
	log        *zap.Logger
}

func NewBatchProcessor(repo Repository, summarizer Summarizer, out SummaryWriter, window time.Duration, clock Clock, log *zap.Logger) *BatchProcessor {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchProcessor{repo: repo, summarizer: summarizer, out: out, clock: clock, window: window, log: log}
}

// ProcessConversations summarizes the last window of messages for every
// user. A failure for one user is logged and does not stop the others; the
// returned error counts the failures.
func (bp *BatchProcessor) ProcessConversations(ctx context.Context, userIDs []string) error {
	now := bp.clock.Now()
	since := now.Add(-bp.window)

	failed := 0
	for _, userID := range userIDs {
		if err := bp.processUser(ctx, userID, since, now); err != nil {
			bp.log.Error("Error processing conversations", zap.String("user_id", userID), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("batch: %d of %d users failed", failed, len(userIDs))
	}
	return nil
}

func (bp *BatchProcessor) processUser(ctx context.Context, userID string, since, now time.Time) error {
	convs, err := bp.repo.GetHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	msgs := MessagesInPeriod(convs, since, now)
	if len(msgs) == 0 {
		bp.log.Info("No conversations found", zap.String("user_id", userID))
		return nil
	}

	summary, err := bp.summarizer.Summarize(ctx, msgs)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	vector, err := bp.summarizer.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	err = bp.out.SaveSummary(ctx, models.ConversationSummary{
		UserID:    userID,
		Summary:   summary,
		Vector:    vector,
		StartTime: since,
		EndTime:   now,
	})
	if err != nil {
		return err
	}

	bp.log.Info("Successfully processed conversations",
		zap.String("user_id", userID),
		zap.Int("messages", len(msgs)),
		zap.Int("vector_len", len(vector)))
	return nil
}

// MessagesInPeriod flattens the messages with timestamps in [start, end],
// in chronological order.
func MessagesInPeriod(convs []models.Conversation, start, end time.Time) []models.Message {
	var out []models.Message
	for _, c := range convs {
		for _, m := range c.Messages {
			if m.Timestamp.Before(start) || m.Timestamp.After(end) {
				continue
			}
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out
}
