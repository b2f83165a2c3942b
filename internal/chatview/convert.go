package chatview

import (
	"strings"

	"go-gemini-chat/internal/apiclient"
	"go-gemini-chat/internal/cache"
)

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

func nonNil(msgs ...*apiclient.Message) []apiclient.Message {
	out := make([]apiclient.Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func fromWire(msgs []apiclient.Message) []cache.Message {
	out := make([]cache.Message, 0, len(msgs))
	for _, m := range msgs {
		status := m.Status
		if status == "complete" {
			status = ""
		}
		out = append(out, cache.Message{
			ID:             m.ID,
			ClientID:       m.ClientID,
			ConversationID: m.ConversationID,
			Sender:         cache.NormalizeSender(m.Sender),
			Text:           m.Content,
			Timestamp:      m.CreatedAt,
			Status:         status,
		})
	}
	return out
}

func conversationsFromWire(convs []apiclient.Conversation) []cache.Conversation {
	out := make([]cache.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationFromWire(c))
	}
	return out
}

func conversationFromWire(c apiclient.Conversation) cache.Conversation {
	return cache.Conversation{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
}
