package apiclient

import "time"

// Wire shapes of the server API.

type User struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversationId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	ClientID       string    `json:"clientId,omitempty"`
	ReplyToID      uint      `json:"replyToId,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Turn struct {
	ConversationID uint     `json:"conversationId"`
	UserMessage    *Message `json:"userMessage"`
	AIMessage      *Message `json:"aiMessage"`
	Created        bool     `json:"created"`
}

type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
}
