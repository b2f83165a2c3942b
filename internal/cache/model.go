package cache

import "time"

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is the client's view of a chat message. Optimistic entries carry
// only a ClientID until the server answers with an ID.
type Message struct {
	ID             uint      `json:"id,omitempty"`
	ClientID       string    `json:"clientId,omitempty"`
	ConversationID uint      `json:"conversationId,omitempty"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status,omitempty"`
}

// Conversation is a drawer entry.
type Conversation struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}
