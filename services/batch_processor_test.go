package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalchat/models"
)

type fakeSummarizer struct {
	got [][]models.Message
	err error
}

func (s *fakeSummarizer) Summarize(_ context.Context, msgs []models.Message) (string, error) {
	s.got = append(s.got, msgs)
	if s.err != nil {
		return "", s.err
	}
	return "summary of " + msgs[0].Content, nil
}

func (s *fakeSummarizer) Embed(_ context.Context, text string) ([]float64, error) {
	return []float64{float64(len(text)), 0.5}, nil
}

type recordingWriter struct {
	saved []models.ConversationSummary
}

func (w *recordingWriter) SaveSummary(_ context.Context, s models.ConversationSummary) error {
	w.saved = append(w.saved, s)
	return nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestMessagesInPeriod(t *testing.T) {
	at := func(m int) time.Time { return baseTime.Add(time.Duration(m) * time.Minute) }
	convs := []models.Conversation{
		{ID: "a", Messages: []models.Message{
			{ID: "a1", Content: "old", Timestamp: at(-10)},
			{ID: "a2", Content: "edge", Timestamp: at(0)},
			{ID: "a3", Content: "late", Timestamp: at(30)},
		}},
		{ID: "b", Messages: []models.Message{
			{ID: "b1", Content: "middle", Timestamp: at(15)},
			{ID: "b2", Content: "future", Timestamp: at(61)},
		}},
	}

	got := MessagesInPeriod(convs, at(0), at(60))
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"a2", "b1", "a3"}, ids)
	assert.Empty(t, MessagesInPeriod(nil, at(0), at(60)))
}

func TestBatchProcessorSummarizesWindow(t *testing.T) {
	repo := NewMemoryRepository(fixedClock(baseTime), seqIDs("c"))
	sum := &fakeSummarizer{}
	out := &recordingWriter{}
	bp := NewBatchProcessor(repo, sum, out, 3*time.Hour, fixedClock(baseTime), nil)

	require.NoError(t, bp.ProcessConversations(context.Background(), []string{userID, "nobody"}))

	require.Len(t, sum.got, 1)
	assert.Len(t, sum.got[0], 4)
	assert.Equal(t, "How do I estimate tasks for a software project?", sum.got[0][0].Content)

	require.Len(t, out.saved, 1)
	saved := out.saved[0]
	assert.Equal(t, userID, saved.UserID)
	assert.Equal(t, baseTime.Add(-3*time.Hour), saved.StartTime)
	assert.Equal(t, baseTime, saved.EndTime)
	assert.Len(t, saved.Vector, 2)
}

func TestBatchProcessorReportsFailures(t *testing.T) {
	repo := NewMemoryRepository(fixedClock(baseTime), seqIDs("c"))
	log, logs := observedLogger()
	bp := NewBatchProcessor(repo, &fakeSummarizer{err: errBoom}, &recordingWriter{}, time.Hour, fixedClock(baseTime), log)

	err := bp.ProcessConversations(context.Background(), []string{userID})
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Error processing conversations").Len())
}

func TestWithSSLModeDisabled(t *testing.T) {
	assert.Equal(t, "postgres://u:p@h/db?sslmode=disable", withSSLModeDisabled("postgres://u:p@h/db"))
	assert.Equal(t, "postgres://h/db?x=1&sslmode=disable", withSSLModeDisabled("postgres://h/db?x=1"))
	assert.Equal(t, "host=h dbname=db sslmode=disable", withSSLModeDisabled("host=h dbname=db"))
	assert.Equal(t, "host=h sslmode=require", withSSLModeDisabled("host=h sslmode=require"))
}
