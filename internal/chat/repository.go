package chat

import (
	"context"
	"errors"
	"slices"
	"time"

	"go-gemini-chat/internal/db"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(gdb *gorm.DB) *Repository {
	return &Repository{db: gdb}
}

// ---------------------------------------------
// Conversations
// ---------------------------------------------

func (r *Repository) CreateConversation(ctx context.Context, userID uint, title string) (*Conversation, error) {
	c := &Conversation{UserID: userID, Title: title}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation only finds conversations owned by userID.
func (r *Repository) GetConversation(ctx context.Context, userID, id uint) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListConversations(ctx context.Context, userID uint) ([]Conversation, error) {
	convs := []Conversation{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").Order("id DESC").
		Find(&convs).Error
	return convs, err
}

func (r *Repository) RenameConversation(ctx context.Context, userID, id uint, title string) (*Conversation, error) {
	c, err := r.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(c).Update("title", title).Error; err != nil {
		return nil, err
	}
	c.Title = title
	return c, nil
}

// TouchConversation bumps updated_at so the conversation sorts first.
func (r *Repository) TouchConversation(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).Where("id = ?", id).
		UpdateColumn("updated_at", at).Error
}

// DeleteConversation removes the messages first, then the conversation.
func (r *Repository) DeleteConversation(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Limit(1).Find(&Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Conversation{}).Error
	})
}

// DeleteAllConversations wipes every conversation of userID and returns how many went.
func (r *Repository) DeleteAllConversations(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&Conversation{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("conversation_id IN (?)", owned).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("user_id = ?", userID).Delete(&Conversation{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

func (r *Repository) CreateMessage(ctx context.Context, m *Message) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if err != nil && db.IsUniqueViolation(err) {
		return ErrDuplicateClientID
	}
	return err
}

// ListMessages returns the whole conversation, oldest first.
func (r *Repository) ListMessages(ctx context.Context, conversationID uint) ([]Message, error) {
	msgs := []Message{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// PageMessages walks backwards from beforeID (0 means newest). The page is
// returned oldest first; hasMore reports whether older messages remain.
func (r *Repository) PageMessages(ctx context.Context, conversationID, beforeID uint, limit int) ([]Message, bool, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	msgs := []Message{}
	if err := q.Order("id DESC").Limit(limit + 1).Find(&msgs).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	slices.Reverse(msgs)
	return msgs, hasMore, nil
}

// GetOwnedMessage finds a message whose conversation belongs to userID.
func (r *Repository) GetOwnedMessage(ctx context.Context, userID, id uint) (*Message, error) {
	var m Message
	owned := r.db.Model(&Conversation{}).Select("id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Where("id = ? AND conversation_id IN (?)", id, owned).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindTurnByClientID returns the turn previously stored under clientID, if any.
func (r *Repository) FindTurnByClientID(ctx context.Context, userID uint, clientID string) (*Turn, bool, error) {
	var userMsg Message
	owned := r.db.Model(&Conversation{}).Select("id").Where("user_id = ?", userID)
	res := r.db.WithContext(ctx).
		Where("client_id = ? AND conversation_id IN (?)", clientID, owned).
		Limit(1).Find(&userMsg)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	turn := &Turn{ConversationID: userMsg.ConversationID, UserMessage: &userMsg}
	var reply Message
	res = r.db.WithContext(ctx).
		Where("reply_to_id = ? AND sender = ?", userMsg.ID, SenderAI).
		Order("id ASC").Limit(1).Find(&reply)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		turn.AIMessage = &reply
	}
	return turn, true, nil
}

func (r *Repository) UpdateMessageContent(ctx context.Context, m *Message, content string) error {
	if err := r.db.WithContext(ctx).Model(m).Update("content", content).Error; err != nil {
		return err
	}
	m.Content = content
	return nil
}

func (r *Repository) SetMessageStatus(ctx context.Context, id uint, status Status) error {
	return r.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *Repository) DeleteMessage(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&Message{}, id).Error
}

// StalledTurns lists pending USER messages last touched before cutoff.
func (r *Repository) StalledTurns(ctx context.Context, cutoff time.Time, limit int) ([]StalledTurn, error) {
	var rows []struct {
		Message
		OwnerID uint
	}
	err := r.db.WithContext(ctx).
		Table("messages").
		Select("messages.*, conversations.user_id AS owner_id").
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("messages.status = ? AND messages.sender = ? AND messages.updated_at < ?", StatusPending, SenderUser, cutoff).
		Order("messages.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]StalledTurn, 0, len(rows))
	for _, row := range rows {
		out = append(out, StalledTurn{Message: row.Message, UserID: row.OwnerID})
	}
	return out, nil
}

// FailIfPending flips a pending message to failed. It reports false when the
// turn finished in the meantime.
func (r *Repository) FailIfPending(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusFailed)
	return res.RowsAffected > 0, res.Error
}

// ClaimFailed moves a failed message back to pending. Only one caller can
// win the claim for a given message.
func (r *Repository) ClaimFailed(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND status = ?", id, StatusFailed).
		Update("status", StatusPending)
	return res.RowsAffected > 0, res.Error
}
