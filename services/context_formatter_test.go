package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalchat/models"
)

func history(n int) []models.Message {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]models.Message, n)
	for i := range out {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = models.Message{
			ID:             fmt.Sprintf("m%d", i+1),
			ConversationID: "c1",
			Role:           role,
			Content:        fmt.Sprintf("message %d", i+1),
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestBuildPromptNoGoalNoHistory(t *testing.T) {
	p := BuildPrompt(nil, nil, "Generate a Roadmap")

	assert.Equal(t, BaseSystemInstruction, p.SystemInstruction)
	assert.NotContains(t, p.SystemInstruction, "Current active goal context")
	assert.Equal(t, []Turn{{Role: "user", Text: "Generate a Roadmap"}}, p.Turns)
}

func TestBuildPromptKeepsLastTenMessages(t *testing.T) {
	h := history(12)
	p := BuildPrompt(nil, h, "message 13")

	require.Len(t, p.Turns, 11)
	for i, turn := range p.Turns[:10] {
		assert.Equal(t, fmt.Sprintf("message %d", i+3), turn.Text)
	}
	assert.Equal(t, Turn{Role: "user", Text: "message 13"}, p.Turns[10])
	assert.Equal(t, "user", p.Turns[0].Role, "message 3 was sent by the user")
	assert.Equal(t, "model", p.Turns[1].Role)
	assert.Len(t, h, 12, "history slice must not be modified")
}

func TestBuildPromptShortHistory(t *testing.T) {
	p := BuildPrompt(nil, history(3), "next")
	require.Len(t, p.Turns, 4)
	assert.Equal(t, []string{"user", "model", "user", "user"},
		[]string{p.Turns[0].Role, p.Turns[1].Role, p.Turns[2].Role, p.Turns[3].Role})
}

func TestBuildPromptGoalContext(t *testing.T) {
	goal := &models.Goal{
		ID:              "g1",
		Title:           "Master React Development",
		Description:     "Build complex apps",
		Status:          models.StatusInProgress,
		Roadmap:         []string{"Week 1: ES6", "Week 2: Components"},
		ProgressSummary: "Currently in Week 2",
	}
	p := BuildPrompt(goal, nil, "hi")

	want := BaseSystemInstruction + "\n\nCurrent active goal context:\n" +
		"Title: Master React Development\n" +
		"Description: Build complex apps\n" +
		"Status: IN_PROGRESS\n" +
		"Roadmap:\n- Week 1: ES6\n- Week 2: Components\n" +
		"Progress Summary: Currently in Week 2\n"
	assert.Equal(t, want, p.SystemInstruction)
}

func TestBuildPromptGoalMarkers(t *testing.T) {
	goal := &models.Goal{ID: "g1", Title: "T", Status: models.StatusNotStarted}
	p := BuildPrompt(goal, nil, "hi")

	assert.Contains(t, p.SystemInstruction, "Roadmap:\nNo roadmap defined.\n")
	assert.Contains(t, p.SystemInstruction, "Progress Summary: No summary available.\n")
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	goal := &models.Goal{ID: "g1", Title: "T", Status: models.StatusOnHold, Roadmap: []string{"a"}}
	h := history(15)
	assert.Equal(t, BuildPrompt(goal, h, "x"), BuildPrompt(goal, h, "x"))
}

func TestBuildPromptPassesContentThrough(t *testing.T) {
	raw := "# Plan\n\n- step *one*\n```go\nfmt.Println(\"<b>\")\n```"
	h := []models.Message{{Role: models.RoleAssistant, Content: raw}}
	p := BuildPrompt(nil, h, raw)

	assert.Equal(t, raw, p.Turns[0].Text)
	assert.Equal(t, raw, p.Turns[1].Text)
	assert.False(t, strings.Contains(p.Turns[1].Text, "&lt;"))
}

func TestBuildPromptHistoryHeading(t *testing.T) {
	goal := &models.Goal{ID: "g1", Title: "T", Status: models.StatusNotStarted}

	withHistory := BuildPrompt(goal, history(2), "next")
	assert.True(t, strings.HasSuffix(withHistory.SystemInstruction, "Progress Summary: No summary available.\n\n\nConversation history:\n"))

	fresh := BuildPrompt(goal, nil, "next")
	assert.NotContains(t, fresh.SystemInstruction, "Conversation history:")
}
