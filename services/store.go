package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"goalchat/models"
)

const defaultWriteTimeout = 10 * time.Second

// Store holds one session's view of a user's conversations, the active
// conversation, and the active goal. It is the only writer of that state.
// Reads return copies.
//
// Title, goal and message writes reach the repository as detached best-effort
// tasks: the local change is kept even if the write fails.
type Store struct {
	repo         Repository
	clock        Clock
	log          *zap.Logger
	writeTimeout time.Duration

	mu            sync.RWMutex
	userID        string
	conversations []models.Conversation
	activeID      string
	activeGoal    *models.Goal

	pending sync.WaitGroup

	queueMu  sync.Mutex
	queue    []queuedWrite
	draining bool
}

type queuedWrite struct {
	op     string
	fields []zap.Field
	write  func(ctx context.Context) error
}

func NewStore(repo Repository, clock Clock, log *zap.Logger) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		repo:         repo,
		clock:        clock,
		log:          log,
		writeTimeout: defaultWriteTimeout,
	}
}

// Load replaces the session state with the user's history and active goal.
// The most recently updated conversation becomes active; equal updatedAt
// values go to the lexicographically smallest id. On failure nothing changes.
func (s *Store) Load(ctx context.Context, userID string) error {
	convs, err := s.repo.GetHistory(ctx, userID)
	if err != nil {
		s.log.Error("Failed to load history", zap.String("user_id", userID), zap.Error(err))
		return &LoadError{UserID: userID, Err: fmt.Errorf("history: %w", err)}
	}
	goal, err := s.repo.GetContext(ctx, userID)
	if err != nil {
		s.log.Error("Failed to load context", zap.String("user_id", userID), zap.Error(err))
		return &LoadError{UserID: userID, Err: fmt.Errorf("context: %w", err)}
	}

	loaded := make([]models.Conversation, len(convs))
	for i, c := range convs {
		loaded[i] = c.Clone()
	}
	var active string
	if i := mostRecent(loaded); i >= 0 {
		active = loaded[i].ID
	}

	s.mu.Lock()
	s.userID = userID
	s.conversations = loaded
	s.activeID = active
	s.activeGoal = cloneGoal(goal)
	s.mu.Unlock()

	s.log.Info("Loaded session state",
		zap.String("user_id", userID),
		zap.Int("conversations", len(loaded)),
		zap.String("active_conversation", active),
		zap.Bool("has_goal", goal != nil))
	return nil
}

// AppendMessage adds msg to the conversation it names and refreshes that
// conversation's updatedAt. A timestamp not after the conversation's last
// message is raised to just past it so the transcript stays strictly
// ordered. Message writes reach the repository in append order.
func (s *Store) AppendMessage(msg models.Message) error {
	s.mu.Lock()
	i := s.indexOf(msg.ConversationID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn("Dropping message for unknown conversation",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID))
		return fmt.Errorf("append message %s to %s: %w", msg.ID, msg.ConversationID, ErrUnknownConversation)
	}
	c := &s.conversations[i]
	if n := len(c.Messages); n > 0 && !msg.Timestamp.After(c.Messages[n-1].Timestamp) {
		msg.Timestamp = c.Messages[n-1].Timestamp.Add(time.Nanosecond)
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = laterOf(c.UpdatedAt, s.clock.Now())
	s.mu.Unlock()

	s.enqueue("save_message", []zap.Field{zap.String("conversation_id", msg.ConversationID), zap.String("message_id", msg.ID)},
		func(ctx context.Context) error {
			return s.repo.SaveMessage(ctx, msg)
		})
	return nil
}

// RenameConversation sets the title locally and persists it in the
// background.
func (s *Store) RenameConversation(conversationID, title string) error {
	s.mu.Lock()
	i := s.indexOf(conversationID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn("Cannot rename unknown conversation", zap.String("conversation_id", conversationID))
		return fmt.Errorf("rename %s: %w", conversationID, ErrUnknownConversation)
	}
	c := &s.conversations[i]
	c.Title = title
	c.UpdatedAt = laterOf(c.UpdatedAt, s.clock.Now())
	s.mu.Unlock()

	s.detach("update_conversation_title", []zap.Field{zap.String("conversation_id", conversationID)},
		func(ctx context.Context) error {
			return s.repo.UpdateConversationTitle(ctx, conversationID, title)
		})
	return nil
}

// SetActiveGoal replaces the active goal wholesale and persists it in the
// background. A nil goal clears it locally.
func (s *Store) SetActiveGoal(goal *models.Goal) error {
	if goal == nil {
		s.mu.Lock()
		s.activeGoal = nil
		s.mu.Unlock()
		return nil
	}
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	g := goal.Clone()

	s.mu.Lock()
	s.activeGoal = &g
	s.mu.Unlock()

	s.detach("update_goal", []zap.Field{zap.String("goal_id", g.ID)},
		func(ctx context.Context) error {
			stored, err := s.repo.UpdateGoal(ctx, g)
			if err == nil {
				s.log.Debug("Goal persisted", zap.String("goal_id", stored.ID), zap.Time("updated_at", stored.UpdatedAt))
			}
			return err
		})
	return nil
}

// ToggleTask flips one task of the active goal between COMPLETED and
// IN_PROGRESS.
func (s *Store) ToggleTask(taskID string) error {
	goal := s.ActiveGoal()
	if goal == nil {
		return fmt.Errorf("%w: no active goal", ErrValidation)
	}
	next, ok := goal.WithTaskToggled(taskID, s.clock.Now())
	if !ok {
		return fmt.Errorf("%w: unknown task %s", ErrValidation, taskID)
	}
	return s.SetActiveGoal(&next)
}

// UpdateProgressSummary replaces the active goal's progress summary.
func (s *Store) UpdateProgressSummary(summary string) error {
	goal := s.ActiveGoal()
	if goal == nil {
		return fmt.Errorf("%w: no active goal", ErrValidation)
	}
	next := goal.WithProgressSummary(summary, s.clock.Now())
	return s.SetActiveGoal(&next)
}

// SelectConversation makes the given conversation active. An empty id clears
// the selection. Unknown ids leave the state untouched and return false.
func (s *Store) SelectConversation(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == "" {
		s.activeID = ""
		return true
	}
	if s.indexOf(conversationID) < 0 {
		return false
	}
	s.activeID = conversationID
	return true
}

// CreateConversation asks the repository for a new conversation, adds it to
// the session and makes it active.
func (s *Store) CreateConversation(ctx context.Context, userID, initialMessage string) (models.Conversation, error) {
	c, err := s.repo.CreateConversation(ctx, userID, initialMessage)
	if err != nil {
		s.log.Error("Failed to create conversation", zap.String("user_id", userID), zap.Error(err))
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	c = c.Clone()

	s.mu.Lock()
	if i := s.indexOf(c.ID); i >= 0 {
		s.conversations[i] = c
	} else {
		s.conversations = append(s.conversations, c)
	}
	s.activeID = c.ID
	s.mu.Unlock()

	s.log.Info("Created conversation", zap.String("conversation_id", c.ID), zap.String("title", c.Title))
	return c.Clone(), nil
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Conversations returns the session's conversations in load/creation order.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) Conversation(conversationID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(conversationID)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// ActiveConversation returns the active conversation, if any.
func (s *Store) ActiveConversation() (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return models.Conversation{}, false
	}
	i := s.indexOf(s.activeID)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

func (s *Store) ActiveGoal() *models.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGoal(s.activeGoal)
}

// Wait blocks until every detached write issued so far has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

func (s *Store) detach(op string, fields []zap.Field, write func(ctx context.Context) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.runWrite(queuedWrite{op: op, fields: fields, write: write})
	}()
}

// enqueue is detach for writes that must land in issue order. A single
// drainer goroutine runs while the queue is non-empty and exits when it
// empties.
func (s *Store) enqueue(op string, fields []zap.Field, write func(ctx context.Context) error) {
	s.pending.Add(1)
	s.queueMu.Lock()
	s.queue = append(s.queue, queuedWrite{op: op, fields: fields, write: write})
	start := !s.draining
	s.draining = true
	s.queueMu.Unlock()

	if start {
		go s.drain()
	}
}

func (s *Store) drain() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.queueMu.Unlock()
			return
		}
		w := s.queue[0]
		s.queue[0] = queuedWrite{}
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.runWrite(w)
		s.pending.Done()
	}
}

func (s *Store) runWrite(w queuedWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := w.write(ctx); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrPersistenceWrite, w.op, err)
		s.log.Warn("Best-effort write failed", append(w.fields, zap.String("op", w.op), zap.Error(err))...)
	}
}

// indexOf must be called with mu held.
func (s *Store) indexOf(conversationID string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			return i
		}
	}
	return -1
}

func mostRecent(convs []models.Conversation) int {
	best := -1
	for i, c := range convs {
		if best < 0 {
			best = i
			continue
		}
		b := convs[best]
		if c.UpdatedAt.After(b.UpdatedAt) || (c.UpdatedAt.Equal(b.UpdatedAt) && c.ID < b.ID) {
			best = i
		}
	}
	return best
}

func cloneGoal(g *models.Goal) *models.Goal {
	if g == nil {
		return nil
	}
	c := g.Clone()
	return &c
}
