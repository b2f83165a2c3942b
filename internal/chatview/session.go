// Package chatview holds the client-side state of one chat screen and the
// conversation drawer: optimistic sends, cache reconciliation and history
// paging. It renders nothing; callers read snapshots and subscribe to the bus.
package chatview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-gemini-chat/internal/apiclient"
	"go-gemini-chat/internal/cache"
	"go-gemini-chat/internal/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NearTopThreshold is the scroll offset under which older history is fetched.
const NearTopThreshold = 50.0

const (
	StatusSending = "sending"
	StatusFailed  = "failed"

	newChatTitle = "New Chat"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a message is already being sent")
	ErrLoading      = errors.New("conversation is still loading")
)

type API interface {
	Messages(ctx context.Context, conversationID uint, cursor string, limit int) (*apiclient.Page, error)
	SendMessage(ctx context.Context, conversationID uint, content, clientID string) (*apiclient.Turn, error)
}

type Store interface {
	CachedMessages(conversationID uint) []cache.Message
	SaveMessages(conversationID uint, msgs []cache.Message)
	SaveConversations(convs []cache.Conversation)
}

type Session struct {
	api      API
	store    Store
	bus      *events.Bus
	logger   *zap.Logger
	pageSize int
	now      func() time.Time
	newID    func() string

	mu             sync.Mutex
	conversationID uint
	messages       []cache.Message
	cursor         string
	hasMore        bool
	sending        bool
	fetching       bool
	loading        bool
}

// NewSession opens a screen on conversationID; 0 means a chat not created yet.
func NewSession(api API, store Store, bus *events.Bus, logger *zap.Logger, conversationID uint, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = 15
	}
	return &Session{
		api:            api,
		store:          store,
		bus:            bus,
		logger:         logger.Named("chatview"),
		pageSize:       pageSize,
		now:            time.Now,
		newID:          uuid.NewString,
		conversationID: conversationID,
		messages:       []cache.Message{},
	}
}

// Open renders the cache, then replaces it with the newest server page.
// On failure the cached view stays up and an error toast goes out. Sends are
// refused until Open returns.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	id := s.conversationID
	s.mu.Unlock()
	if id == 0 {
		return nil
	}

	cached := s.store.CachedMessages(id)
	s.mu.Lock()
	s.messages = cached
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	page, err := s.api.Messages(ctx, id, "", s.pageSize)
	if err != nil {
		s.logger.Warn("load messages failed", zap.Uint("conversation_id", id), zap.Error(err))
		s.report(err, "Could not load messages")
		return err
	}

	fresh := fromWire(page.Messages)
	s.mu.Lock()
	s.messages = cache.MergeMessages(nil, fresh)
	s.setCursor(page.NextCursor)
	s.mu.Unlock()

	s.store.SaveMessages(id, fresh)
	return nil
}

// Send appends an optimistic message and posts it. A failed send leaves the
// message in place marked failed.
func (s *Session) Send(ctx context.Context, text string) (*apiclient.Turn, error) {
	text = trimmed(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrLoading
	}
	if s.sending {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	s.sending = true
	convID := s.conversationID
	optimistic := cache.Message{
		ClientID:       s.newID(),
		ConversationID: convID,
		Sender:         cache.SenderUser,
		Text:           text,
		Timestamp:      s.now(),
		Status:         StatusSending,
	}
	s.messages = append(s.messages, optimistic)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	turn, err := s.api.SendMessage(ctx, convID, text, optimistic.ClientID)
	if err != nil {
		s.sendFailed(convID, optimistic, err)
		return nil, err
	}

	pair := fromWire(nonNil(turn.UserMessage, turn.AIMessage))
	s.mu.Lock()
	created := s.conversationID == 0
	s.conversationID = turn.ConversationID
	s.messages = cache.MergeMessages(s.messages, pair)
	s.mu.Unlock()

	s.store.SaveMessages(turn.ConversationID, pair)
	if created {
		s.adopt(turn.ConversationID)
	}
	return turn, nil
}

func (s *Session) sendFailed(convID uint, optimistic cache.Message, err error) {
	s.logger.Warn("send failed", zap.Uint("conversation_id", convID), zap.Error(err))

	var adopted uint
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ClientID == optimistic.ClientID {
			s.messages[i].Status = StatusFailed
		}
	}
	// The server may have created the conversation before the model failed.
	if apiErr, ok := apiclient.AsError(err); ok && apiErr.ConversationID != 0 && s.conversationID == 0 {
		s.conversationID = apiErr.ConversationID
		adopted = apiErr.ConversationID
		for i := range s.messages {
			s.messages[i].ConversationID = adopted
		}
	}
	s.mu.Unlock()

	if adopted != 0 {
		failed := optimistic
		failed.ConversationID = adopted
		failed.Status = StatusFailed
		s.store.SaveMessages(adopted, []cache.Message{failed})
		s.adopt(adopted)
	}
	s.report(err, "Message not sent")
}

// adopt records a conversation the server created lazily.
func (s *Session) adopt(id uint) {
	s.store.SaveConversations([]cache.Conversation{{ID: id, Title: newChatTitle, UpdatedAt: s.now()}})
	s.bus.Publish(events.Event{
		Kind:    events.ConversationRedirect,
		Payload: events.Redirect{ConversationID: id},
	})
}

// FetchMore prepends the page older than the current cursor. It is a no-op
// while a fetch or Open runs, when history is exhausted or before the chat
// exists.
func (s *Session) FetchMore(ctx context.Context) error {
	s.mu.Lock()
	if s.fetching || s.loading || !s.hasMore || s.cursor == "" || s.conversationID == 0 {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	id, cursor := s.conversationID, s.cursor
	s.mu.Unlock()

	page, err := s.api.Messages(ctx, id, cursor, s.pageSize)

	s.mu.Lock()
	s.fetching = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("load older messages failed", zap.Uint("conversation_id", id), zap.Error(err))
		s.report(err, "Could not load older messages")
		return err
	}
	older := fromWire(page.Messages)
	s.messages = cache.MergeMessages(older, s.messages)
	s.setCursor(page.NextCursor)
	s.mu.Unlock()

	s.store.SaveMessages(id, older)
	return nil
}

// OnScroll fetches older history once the view is near the top.
func (s *Session) OnScroll(ctx context.Context, offsetY float64) error {
	if offsetY > NearTopThreshold {
		return nil
	}
	return s.FetchMore(ctx)
}

func (s *Session) setCursor(next *string) {
	s.cursor = ""
	if next != nil {
		s.cursor = *next
	}
	s.hasMore = s.cursor != ""
}

// report turns err into bus events. It never blocks.
func (s *Session) report(err error, title string) {
	switch {
	case apiclient.IsUnauthorized(err):
		s.bus.Publish(events.Event{Kind: events.SessionLogout})
	case apiclient.IsUpstream(err):
		s.bus.Error(title, "The assistant is unavailable. Try again in a moment.")
	default:
		s.bus.Error(title, err.Error())
	}
}

// ---------------------------------------------
// Snapshots
// ---------------------------------------------

func (s *Session) Messages() []cache.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cache.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) ConversationID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) IsSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

func (s *Session) IsFetchingMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetching
}

func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}
