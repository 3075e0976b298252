package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PlaceholderTitlePrefix marks a conversation whose title has not been
// derived from its first user message yet.
const PlaceholderTitlePrefix = "New Chat -"

const (
	placeholderExcerptLen = 20
	derivedTitleLen       = 30
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// Clone returns a copy whose message slice does not alias the receiver's.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// HasPlaceholderTitle reports whether the title is still the one assigned at
// creation time.
func (c Conversation) HasPlaceholderTitle() bool {
	return strings.HasPrefix(c.Title, PlaceholderTitlePrefix)
}

// PlaceholderTitle is the title given to a freshly created conversation.
func PlaceholderTitle(initialMessage string) string {
	return PlaceholderTitlePrefix + " " + truncateRunes(initialMessage, placeholderExcerptLen) + "..."
}

// DerivedTitle is the title taken from the first user message: its first
// 30 characters, otherwise unmodified.
func DerivedTitle(userText string) string {
	return truncateRunes(userText, derivedTitleLen)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
