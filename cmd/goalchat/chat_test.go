package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalchat/models"
	"goalchat/services"
)

type cannedGenerator string

func (g cannedGenerator) Generate(context.Context, services.Prompt) (string, error) {
	return string(g), nil
}

func newTestREPL(t *testing.T, gen services.Generator) (*repl, *bytes.Buffer) {
	t.Helper()
	repo := services.NewMemoryRepository(services.SystemClock{}, services.NewID)
	store := services.NewStore(repo, nil, nil)
	require.NoError(t, store.Load(context.Background(), models.DefaultUser.ID))

	var out bytes.Buffer
	s := &session{
		store:   store,
		orch:    services.NewOrchestrator(store, services.NewAssistantService(gen, nil, nil, nil), nil, nil, nil),
		prompts: staticPrompts,
		user:    models.DefaultUser,
		close:   func() error { return nil },
	}
	t.Cleanup(func() { _ = s.Close() })
	return &repl{session: s, out: &out, render: newRenderer(true)}, &out
}

func TestREPLSendsToActiveConversation(t *testing.T) {
	r, out := newTestREPL(t, cannedGenerator("Try useEffect cleanup."))

	require.NoError(t, r.run(context.Background(), strings.NewReader("How do effects clean up?\n/quit\n")))

	active, ok := r.store.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, "conv-1", active.ID)
	require.Len(t, active.Messages, 4)
	assert.Contains(t, out.String(), "Try useEffect cleanup.")
}

func TestREPLCloseThenSendStartsConversation(t *testing.T) {
	r, _ := newTestREPL(t, cannedGenerator("Here is a plan."))
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, "/close"))
	require.NoError(t, r.handle(ctx, "Plan my week of Go study"))

	convs := r.store.Conversations()
	require.Len(t, convs, 3)
	active, ok := r.store.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, convs[2].ID, active.ID)
	assert.Equal(t, "Plan my week of Go study", active.Title)
	assert.Len(t, active.Messages, 2)
}

func TestREPLGoalCommands(t *testing.T) {
	r, out := newTestREPL(t, cannedGenerator("ok"))
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, "/toggle task-3"))
	assert.Equal(t, models.StatusCompleted, r.store.ActiveGoal().Tasks[2].Status)
	assert.Contains(t, out.String(), "Tasks (2/3 done)")

	require.NoError(t, r.handle(ctx, "/progress Finished week 3"))
	assert.Equal(t, "Finished week 3", r.store.ActiveGoal().ProgressSummary)

	assert.Error(t, r.handle(ctx, "/toggle nope"))
	assert.Error(t, r.handle(ctx, "/toggle"))
}

func TestREPLOpenRenameAndList(t *testing.T) {
	r, out := newTestREPL(t, cannedGenerator("ok"))
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, "/open 2"))
	active, _ := r.store.ActiveConversation()
	assert.Equal(t, "conv-2", active.ID)

	require.NoError(t, r.handle(ctx, "/rename Estimating work"))
	c, ok := r.store.Conversation("conv-2")
	require.True(t, ok)
	assert.Equal(t, "Estimating work", c.Title)

	out.Reset()
	require.NoError(t, r.handle(ctx, "/list"))
	assert.Contains(t, out.String(), "* 2. Estimating work")

	assert.Error(t, r.handle(ctx, "/open 9"))
	assert.Error(t, r.handle(ctx, "/bogus"))
}

func TestREPLPrompts(t *testing.T) {
	r, out := newTestREPL(t, cannedGenerator("Sure, let's prep."))
	ctx := context.Background()

	require.NoError(t, r.handle(ctx, "/prompts"))
	assert.Contains(t, out.String(), "3. 🧑‍💼 Interview Prep")

	require.NoError(t, r.handle(ctx, "/close"))
	require.NoError(t, r.handle(ctx, "/prompts 3"))
	active, ok := r.store.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, "Interview Prep", active.Title)
}

func TestREPLWithoutGeneratorShowsFallback(t *testing.T) {
	r, out := newTestREPL(t, nil)
	require.NoError(t, r.handle(context.Background(), "hello?"))
	assert.Contains(t, out.String(), services.FallbackReply)
}
