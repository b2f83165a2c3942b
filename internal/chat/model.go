package chat

import "time"

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

type Sender string

const (
	SenderUser Sender = "USER"
	SenderAI   Sender = "AI"
)

// Status tracks a USER message through its turn. AI messages are always complete.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPending  Status = "pending"
	StatusFailed   Status = "failed"
)

const (
	DefaultTitle  = "New Chat"
	FallbackReply = "I'm not sure how to respond to that."
)

type Conversation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"userId" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	ConversationID uint   `json:"conversationId" gorm:"not null;index"`
	Sender         Sender `json:"sender" gorm:"size:8;not null"`
	Content        string `json:"content" gorm:"type:text;not null"`
	// ClientID is the idempotency key of an optimistic client message.
	ClientID  *string   `json:"clientId,omitempty" gorm:"size:64;uniqueIndex"`
	ReplyToID *uint     `json:"replyToId,omitempty"`
	Status    Status    `json:"status" gorm:"size:16;not null;default:complete"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is one USER message and the AI reply to it.
type Turn struct {
	ConversationID uint     `json:"conversationId"`
	UserMessage    *Message `json:"userMessage"`
	AIMessage      *Message `json:"aiMessage,omitempty"`
	// Created reports whether the conversation was created by this turn.
	Created bool `json:"created"`
}

type TurnInput struct {
	Content  string `json:"content"`
	ClientID string `json:"clientId"`
}

type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
}

type ConversationWithMessages struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}

// StalledTurn is a USER message whose reply never got stored.
type StalledTurn struct {
	Message Message
	UserID  uint
}

// ---------------------------------------------
// Live events
// ---------------------------------------------

const (
	EventConversationCreated = "conversation.created"
	EventConversationUpdated = "conversation.updated"
	EventConversationDeleted = "conversation.deleted"
	EventMessageCreated      = "message.created"
	EventMessageUpdated      = "message.updated"
	EventMessageDeleted      = "message.deleted"
	EventTurnStalled         = "turn.stalled"
)
