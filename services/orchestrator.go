package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"goalchat/models"
)

// FallbackReply is shown in place of the assistant's answer when a turn fails.
const FallbackReply = "Oops! Something went wrong. Please try again."

// Orchestrator drives chat turns for one session. At most one turn is in
// flight at a time; a second call while busy fails with ErrBusy.
type Orchestrator struct {
	store    *Store
	boundary Boundary
	clock    Clock
	newID    IDFunc
	log      *zap.Logger

	busy atomic.Bool
}

func NewOrchestrator(store *Store, boundary Boundary, clock Clock, newID IDFunc, log *zap.Logger) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	if newID == nil {
		newID = NewID
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{store: store, boundary: boundary, clock: clock, newID: newID, log: log}
}

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// SendTurn runs one user turn against an existing conversation. Boundary
// failures do not surface as errors: the transcript gets a fallback reply
// instead. Only invalid input and ErrBusy are returned.
func (o *Orchestrator) SendTurn(ctx context.Context, conversationID, userText string, initial bool) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)
	return o.sendTurn(ctx, conversationID, userText, initial)
}

// StartConversation creates a conversation and makes it active. A non-blank
// initial message is sent as the conversation's first turn.
func (o *Orchestrator) StartConversation(ctx context.Context, userID, initialMessage string) (models.Conversation, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return models.Conversation{}, ErrBusy
	}
	defer o.busy.Store(false)
	return o.startConversation(ctx, userID, initialMessage)
}

// Send routes a message typed by the user: with no active conversation it
// starts one seeded with the message, otherwise it continues the active one.
func (o *Orchestrator) Send(ctx context.Context, userID, userText string) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)

	if strings.TrimSpace(userText) == "" {
		return ErrEmptyMessage
	}
	active, ok := o.store.ActiveConversation()
	if !ok {
		_, err := o.startConversation(ctx, userID, userText)
		return err
	}
	return o.sendTurn(ctx, active.ID, userText, false)
}

func (o *Orchestrator) startConversation(ctx context.Context, userID, initialMessage string) (models.Conversation, error) {
	conv, err := o.store.CreateConversation(ctx, userID, initialMessage)
	if err != nil {
		return models.Conversation{}, err
	}
	if strings.TrimSpace(initialMessage) == "" {
		return conv, nil
	}
	if err := o.sendTurn(ctx, conv.ID, initialMessage, true); err != nil {
		return conv, err
	}
	if updated, ok := o.store.Conversation(conv.ID); ok {
		conv = updated
	}
	return conv, nil
}

func (o *Orchestrator) sendTurn(ctx context.Context, conversationID, userText string, initial bool) error {
	if strings.TrimSpace(userText) == "" {
		return ErrEmptyMessage
	}
	conv, ok := o.store.Conversation(conversationID)
	if !ok {
		return fmt.Errorf("send turn to %s: %w", conversationID, ErrUnknownConversation)
	}
	goal := o.store.ActiveGoal()
	history := conv.Messages

	userMsg := models.Message{
		ID:             o.newID(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        userText,
		Timestamp:      o.clock.Now(),
	}
	if err := o.store.AppendMessage(userMsg); err != nil {
		return err
	}

	prompt := BuildPrompt(goal, history, userText)
	resp, err := o.boundary.Chat(ctx, ChatRequest{
		ConversationID:   conversationID,
		UserMessage:      userText,
		ExistingMessages: history,
		ActiveGoal:       goal,
		Prompt:           &prompt,
	})
	if err != nil {
		o.log.Error("Chat turn failed",
			zap.String("conversation_id", conversationID),
			zap.String("cause", ErrorKind(err)),
			zap.Error(err))
		o.appendReply(models.Message{
			ID:             o.newID(),
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        FallbackReply,
			Timestamp:      o.clock.Now(),
		})
	} else {
		o.appendReply(o.normalizeReply(resp.Message, conversationID))
		if resp.ContextUpdate != nil {
			if err := o.store.SetActiveGoal(resp.ContextUpdate); err != nil {
				o.log.Warn("Ignoring invalid goal update", zap.String("conversation_id", conversationID), zap.Error(err))
			}
		}
	}

	if initial {
		o.maybeDeriveTitle(conversationID, userText)
	}
	return nil
}

// normalizeReply pins the reply to this turn's conversation and fills in
// anything a remote boundary left out.
func (o *Orchestrator) normalizeReply(msg models.Message, conversationID string) models.Message {
	msg.ConversationID = conversationID
	msg.Role = models.RoleAssistant
	if msg.ID == "" {
		msg.ID = o.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = o.clock.Now()
	}
	return msg
}

func (o *Orchestrator) appendReply(msg models.Message) {
	if err := o.store.AppendMessage(msg); err != nil {
		o.log.Error("Failed to append assistant reply", zap.String("conversation_id", msg.ConversationID), zap.Error(err))
	}
}

func (o *Orchestrator) maybeDeriveTitle(conversationID, userText string) {
	conv, ok := o.store.Conversation(conversationID)
	if !ok || !conv.HasPlaceholderTitle() {
		return
	}
	if err := o.store.RenameConversation(conversationID, models.DerivedTitle(userText)); err != nil {
		o.log.Warn("Failed to derive conversation title", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
