package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"goalchat/models"
)

// MemoryRepository keeps everything in process memory. It starts out seeded
// with sample data for the default user.
type MemoryRepository struct {
	mu            sync.Mutex
	clock         Clock
	newID         IDFunc
	conversations map[string]*models.Conversation
	order         []string
	goals         map[string]models.Goal
}

func NewMemoryRepository(clock Clock, newID IDFunc) *MemoryRepository {
	r := NewEmptyMemoryRepository(clock, newID)
	r.seed(clock.Now())
	return r
}

func NewEmptyMemoryRepository(clock Clock, newID IDFunc) *MemoryRepository {
	return &MemoryRepository{
		clock:         clock,
		newID:         newID,
		conversations: map[string]*models.Conversation{},
		goals:         map[string]models.Goal{},
	}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) GetHistory(_ context.Context, userID string) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Conversation, 0)
	for _, id := range r.order {
		c := r.conversations[id]
		if c.UserID == userID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetContext(_ context.Context, userID string) (*models.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[userID]
	if !ok {
		return nil, nil
	}
	g = g.Clone()
	return &g, nil
}

func (r *MemoryRepository) CreateConversation(_ context.Context, userID, initialMessage string) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := newConversation(r.newID(), userID, initialMessage, r.clock)
	r.put(c)
	return c.Clone(), nil
}

func (r *MemoryRepository) UpdateConversationTitle(_ context.Context, conversationID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	c.Title = title
	c.UpdatedAt = laterOf(c.UpdatedAt, r.clock.Now())
	return nil
}

func (r *MemoryRepository) UpdateGoal(_ context.Context, goal models.Goal) (models.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := stampGoal(goal, r.clock)
	r.goals[goal.UserID] = stored
	return stored.Clone(), nil
}

func (r *MemoryRepository) SaveMessage(_ context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[msg.ConversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
	}
	c.Messages = append(c.Messages, msg)
	sortMessages(c.Messages)
	c.UpdatedAt = laterOf(c.UpdatedAt, msg.Timestamp)
	return nil
}

// Put stores a conversation as-is, replacing any previous one with its id.
func (r *MemoryRepository) Put(c models.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(c.Clone())
}

// PutGoal stores a goal as-is as its owner's active goal.
func (r *MemoryRepository) PutGoal(g models.Goal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals[g.UserID] = g.Clone()
}

func (r *MemoryRepository) put(c models.Conversation) {
	if _, exists := r.conversations[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.conversations[c.ID] = &c
}

func (r *MemoryRepository) seed(now time.Time) {
	user := models.DefaultUser.ID
	ago := func(d time.Duration) time.Time { return now.Add(-d) }

	r.put(models.Conversation{
		ID:        "conv-1",
		UserID:    user,
		Title:     "Learning React Basics",
		CreatedAt: ago(time.Hour),
		UpdatedAt: ago(30 * time.Minute),
		Messages: []models.Message{
			{ID: "msg-1-1", ConversationID: "conv-1", Role: models.RoleUser,
				Content: "I want to learn React. Where should I start?", Timestamp: ago(58 * time.Minute)},
			{ID: "msg-1-2", ConversationID: "conv-1", Role: models.RoleAssistant,
				Content: "Start with JavaScript fundamentals, especially ES6 features like arrow functions, destructuring, and `const`/`let`. Then move on to React's core concepts: components, props, state, and hooks. Would you like a roadmap?",
				Timestamp: ago(57 * time.Minute)},
		},
	})
	r.put(models.Conversation{
		ID:        "conv-2",
		UserID:    user,
		Title:     "Project Management Help",
		CreatedAt: ago(2 * time.Hour),
		UpdatedAt: ago(90 * time.Minute),
		Messages: []models.Message{
			{ID: "msg-2-1", ConversationID: "conv-2", Role: models.RoleUser,
				Content: "How do I estimate tasks for a software project?", Timestamp: ago(118 * time.Minute)},
			{ID: "msg-2-2", ConversationID: "conv-2", Role: models.RoleAssistant,
				Content: "Break the work down, use techniques like planning poker, and compare against past project data. Always add a buffer! What kind of project are you working on?",
				Timestamp: ago(117 * time.Minute)},
		},
	})

	const goalID = "goal-react-learning"
	day := 24 * time.Hour
	due := func(s string) *time.Time {
		t, _ := time.Parse(time.RFC3339, s)
		return &t
	}
	r.goals[user] = models.Goal{
		ID:          goalID,
		UserID:      user,
		Title:       "Master React Development",
		Description: "Become proficient in building complex web applications with React, including state management, routing, and API integration.",
		Status:      models.StatusInProgress,
		Roadmap: []string{
			"Week 1: JavaScript ES6 & Modern Syntax",
			"Week 2: React Fundamentals (Components, Props, State)",
			"Week 3: React Hooks (useState, useEffect, useContext)",
			"Week 4: Advanced Hooks (useReducer, useCallback, useMemo, useRef)",
			"Week 5: React Router for Navigation",
			"Week 6: State Management (Context API, Redux/Zustand)",
			"Week 7: API Integration (Fetching & Displaying Data)",
			"Week 8: Form Handling & Validation",
			"Week 9: Testing React Applications (Jest, React Testing Library)",
			"Week 10: Performance Optimization & Best Practices",
		},
		ProgressSummary: "Currently in Week 3, understanding `useEffect` for data fetching.",
		Tasks: []models.Task{
			{ID: "task-1", GoalID: goalID, Description: "Complete JS ES6 module", Status: models.StatusCompleted,
				DueDate: due("2024-07-20T23:59:59Z"), CreatedAt: ago(10 * day), UpdatedAt: ago(8 * day)},
			{ID: "task-2", GoalID: goalID, Description: "Build a simple component with props and state", Status: models.StatusInProgress,
				DueDate: due("2024-07-27T23:59:59Z"), CreatedAt: ago(7 * day), UpdatedAt: ago(5 * day)},
			{ID: "task-3", GoalID: goalID, Description: "Implement a custom hook", Status: models.StatusNotStarted,
				DueDate: due("2024-08-03T23:59:59Z"), CreatedAt: ago(3 * day), UpdatedAt: ago(3 * day)},
		},
		CreatedAt: ago(14 * day),
		UpdatedAt: ago(day),
	}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// sortMessages orders messages chronologically, keeping insertion order for
// equal timestamps.
func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
