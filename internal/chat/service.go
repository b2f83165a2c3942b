package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-gemini-chat/internal/apperr"
	"go-gemini-chat/internal/llm"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 15
	MaxPageSize     = 100
	maxClientIDLen  = 64
	maxTitleLen     = 255
)

// Responder produces the assistant's reply to one user message.
type Responder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers a live event to every connection of one user.
type Notifier interface {
	Notify(userID uint, kind string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(uint, string, any) {}

type Service struct {
	repo     *Repository
	llm      Responder
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo *Repository, responder Responder, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:     repo,
		llm:      responder,
		notifier: notifier,
		logger:   logger.Named("chat"),
		now:      time.Now,
	}
}

// ---------------------------------------------
// Conversations
// ---------------------------------------------

func (s *Service) CreateConversation(ctx context.Context, userID uint, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	if len(title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title is too long", apperr.ErrValidation)
	}
	c, err := s.repo.CreateConversation(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(userID, EventConversationCreated, c)
	return c, nil
}

// EnsureConversation resolves rawID to a conversation owned by userID. A
// missing, malformed or foreign id starts a new conversation instead.
func (s *Service) EnsureConversation(ctx context.Context, userID uint, rawID string) (*Conversation, bool, error) {
	if id, err := parseID(rawID); err == nil {
		c, err := s.repo.GetConversation(ctx, userID, id)
		if err == nil {
			return c, false, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, false, err
		}
		s.logger.Debug("conversation not found, starting a new one",
			zap.Uint("user_id", userID), zap.Uint("requested_id", id))
	}

	c, err := s.CreateConversation(ctx, userID, DefaultTitle)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uint) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

func (s *Service) GetConversation(ctx context.Context, userID uint, rawID string) (*ConversationWithMessages, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &ConversationWithMessages{Conversation: c, Messages: msgs}, nil
}

func (s *Service) RenameConversation(ctx context.Context, userID uint, rawID, title string) (*Conversation, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title is too long", apperr.ErrValidation)
	}
	c, err := s.repo.RenameConversation(ctx, userID, id, title)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(userID, EventConversationUpdated, c)
	return c, nil
}

func (s *Service) DeleteConversation(ctx context.Context, userID uint, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, userID, id); err != nil {
		return err
	}
	s.notifier.Notify(userID, EventConversationDeleted, map[string]uint{"id": id})
	return nil
}

func (s *Service) DeleteAllConversations(ctx context.Context, userID uint) (int64, error) {
	n, err := s.repo.DeleteAllConversations(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.notifier.Notify(userID, EventConversationDeleted, map[string]any{"all": true, "deleted": n})
	return n, nil
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

// SendMessage stores one user turn. A clientId seen before returns the stored
// turn instead of asking the model again; a failed one is retried in place.
func (s *Service) SendMessage(ctx context.Context, userID uint, rawConversationID string, in TurnInput) (*Turn, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.ClientID = strings.TrimSpace(in.ClientID)
	if in.Content == "" {
		return nil, ErrEmptyContent
	}
	if len(in.ClientID) > maxClientIDLen {
		return nil, fmt.Errorf("%w: clientId is too long", apperr.ErrValidation)
	}

	if in.ClientID != "" {
		turn, ok, err := s.repo.FindTurnByClientID(ctx, userID, in.ClientID)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.resume(ctx, userID, turn)
		}
	}

	conv, created, err := s.EnsureConversation(ctx, userID, rawConversationID)
	if err != nil {
		return nil, err
	}
	turn, err := s.AppendTurn(ctx, userID, conv, in)
	if errors.Is(err, ErrDuplicateClientID) && created {
		// The clientId belongs to another turn; drop the empty conversation.
		if derr := s.repo.DeleteConversation(context.WithoutCancel(ctx), userID, conv.ID); derr != nil {
			s.logger.Error("could not remove empty conversation",
				zap.Uint("user_id", userID), zap.Uint("conversation_id", conv.ID), zap.Error(derr))
		} else {
			s.notifier.Notify(userID, EventConversationDeleted, map[string]uint{"id": conv.ID})
		}
		return nil, err
	}
	if turn != nil {
		turn.Created = created
	}
	return turn, err
}

func (s *Service) resume(ctx context.Context, userID uint, turn *Turn) (*Turn, error) {
	switch {
	case turn.AIMessage != nil:
		s.logger.Debug("duplicate send answered from store",
			zap.Uint("user_id", userID), zap.Uint("message_id", turn.UserMessage.ID))
		return turn, nil
	case turn.UserMessage.Status == StatusFailed:
		claimed, err := s.repo.ClaimFailed(ctx, turn.UserMessage.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrTurnInProgress
		}
		turn.UserMessage.Status = StatusPending
		return s.reply(ctx, userID, turn)
	default:
		return nil, ErrTurnInProgress
	}
}

// AppendTurn persists the user message, asks the model and stores the reply.
// Each step is durable on its own; a crash between them leaves the user
// message pending for the reconciler.
func (s *Service) AppendTurn(ctx context.Context, userID uint, conv *Conversation, in TurnInput) (*Turn, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	userMsg := &Message{
		ConversationID: conv.ID,
		Sender:         SenderUser,
		Content:        content,
		Status:         StatusPending,
	}
	if in.ClientID != "" {
		clientID := in.ClientID
		userMsg.ClientID = &clientID
	}
	if err := s.repo.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	return s.reply(ctx, userID, &Turn{ConversationID: conv.ID, UserMessage: userMsg})
}

func (s *Service) reply(ctx context.Context, userID uint, turn *Turn) (*Turn, error) {
	userMsg := turn.UserMessage
	log := s.logger.With(
		zap.Uint("user_id", userID),
		zap.Uint("conversation_id", turn.ConversationID),
		zap.Uint("message_id", userMsg.ID))

	text, err := s.llm.Reply(ctx, userMsg.Content)
	switch {
	case errors.Is(err, llm.ErrEmptyReply):
		log.Warn("empty model reply, using fallback")
		text = FallbackReply
	case err != nil:
		log.Error("model call failed", zap.Error(err))
		// The request context may already be gone; the status must still land.
		if serr := s.repo.SetMessageStatus(context.WithoutCancel(ctx), userMsg.ID, StatusFailed); serr != nil {
			log.Error("could not mark turn failed", zap.Error(serr))
		} else {
			userMsg.Status = StatusFailed
		}
		s.notifier.Notify(userID, EventMessageCreated, turn)
		return turn, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	replyTo := userMsg.ID
	aiMsg := &Message{
		ConversationID: turn.ConversationID,
		Sender:         SenderAI,
		Content:        text,
		ReplyToID:      &replyTo,
		Status:         StatusComplete,
	}
	if err := s.repo.CreateMessage(ctx, aiMsg); err != nil {
		return turn, err
	}
	if err := s.repo.SetMessageStatus(ctx, userMsg.ID, StatusComplete); err != nil {
		return turn, err
	}
	userMsg.Status = StatusComplete
	turn.AIMessage = aiMsg

	if err := s.repo.TouchConversation(ctx, turn.ConversationID, s.now()); err != nil {
		log.Warn("could not touch conversation", zap.Error(err))
	}
	s.notifier.Notify(userID, EventMessageCreated, turn)
	return turn, nil
}

// MessagesPage returns one page of history walking backwards from cursor.
func (s *Service) MessagesPage(ctx context.Context, userID uint, rawConversationID, cursor string, limit int) (*Page, error) {
	id, err := parseID(rawConversationID)
	if err != nil {
		return nil, err
	}
	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	if _, err := s.repo.GetConversation(ctx, userID, id); err != nil {
		return nil, err
	}
	msgs, hasMore, err := s.repo.PageMessages(ctx, id, before, limit)
	if err != nil {
		return nil, err
	}

	page := &Page{Messages: msgs}
	if hasMore && len(msgs) > 0 {
		next := EncodeCursor(msgs[0].ID)
		page.NextCursor = &next
	}
	return page, nil
}

func (s *Service) EditMessage(ctx context.Context, userID uint, rawID, content string) (*Message, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	m, err := s.repo.GetOwnedMessage(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMessageContent(ctx, m, content); err != nil {
		return nil, err
	}
	s.notifier.Notify(userID, EventMessageUpdated, m)
	return m, nil
}

func (s *Service) DeleteMessage(ctx context.Context, userID uint, rawID string) (*Message, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	m, err := s.repo.GetOwnedMessage(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteMessage(ctx, m.ID); err != nil {
		return nil, err
	}
	s.notifier.Notify(userID, EventMessageDeleted, m)
	return m, nil
}
