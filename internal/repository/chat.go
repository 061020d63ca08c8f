// Package repository provides data access for conversations and messages.
package repository

import (
	"context"
	"errors"
	"time"

	"jurutani/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	UpsertProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)

	GetOrCreateConversation(ctx context.Context, selfID, otherID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, convID string) error
	TouchLastMessage(ctx context.Context, convID, preview string, at time.Time) error
	ResetLastMessage(ctx context.Context, convID string) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, convID string, before time.Time, limit int) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, msgID, senderID string) (int64, error)
	DeleteConversationMessages(ctx context.Context, convID string) error
	MessageIDs(ctx context.Context, convID string) ([]string, error)
	ImagePaths(ctx context.Context, convID string) ([]string, error)

	MarkConversationRead(ctx context.Context, convID, readerID string) error
	UnreadCounts(ctx context.Context, userID string) (map[string]int64, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) UpsertProfile(ctx context.Context, p *models.Profile) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *chatRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateConversation resolves the single conversation for the unordered
// (selfID, otherID) pair, creating it lazily on first contact. Two callers
// racing on the same pair are reconciled through the unique pair index:
// the loser's insert fails with a duplicate-key error and falls back to
// re-fetching the winner's row, so both observe the same conversation.
func (r *chatRepository) GetOrCreateConversation(ctx context.Context, selfID, otherID string) (*models.Conversation, error) {
	one, two := models.NormalizePair(selfID, otherID)

	conv, err := r.findConversationByPair(ctx, one, two)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Conversation{
		ID:               uuid.NewString(),
		ParticipantOneID: one,
		ParticipantTwoID: two,
	}
	createErr := r.db.WithContext(ctx).Create(created).Error
	if createErr == nil {
		return r.GetConversation(ctx, created.ID)
	}

	// Duplicate key means another caller created the row between our lookup
	// and insert; any other error still warrants one re-fetch attempt in
	// case the driver does not translate constraint violations.
	if conv, err := r.findConversationByPair(ctx, one, two); err == nil {
		return conv, nil
	}
	return nil, createErr
}

func (r *chatRepository) findConversationByPair(ctx context.Context, one, two string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("ParticipantOne").
		Preload("ParticipantTwo").
		Where("participant_one_id = ? AND participant_two_id = ?", one, two).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *chatRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("ParticipantOne").
		Preload("ParticipantTwo").
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *chatRepository) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	err := r.db.WithContext(ctx).
		Preload("ParticipantOne").
		Preload("ParticipantTwo").
		Where("participant_one_id = ? OR participant_two_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *chatRepository) DeleteConversation(ctx context.Context, convID string) error {
	return r.db.WithContext(ctx).Delete(&models.Conversation{}, "id = ?", convID).Error
}

func (r *chatRepository) TouchLastMessage(ctx context.Context, convID, preview string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message":    preview,
			"last_message_at": at,
			"updated_at":      at,
		}).Error
}

func (r *chatRepository) ResetLastMessage(ctx context.Context, convID string) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message":    "",
			"last_message_at": nil,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *chatRepository) ListMessages(ctx context.Context, convID string, before time.Time, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Preload("Sender").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}

	// Fetched DESC to get the latest page; callers expect chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// DeleteMessage removes the message only when the caller is its sender.
// The sender predicate lives in the DELETE itself so the authorization
// holds even if a caller skips the service-level check.
func (r *chatRepository) DeleteMessage(ctx context.Context, msgID, senderID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", msgID, senderID).
		Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

func (r *chatRepository) DeleteConversationMessages(ctx context.Context, convID string) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Delete(&models.Message{}).Error
}

func (r *chatRepository) MessageIDs(ctx context.Context, convID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", convID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *chatRepository) ImagePaths(ctx context.Context, convID string) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND image_path <> ''", convID).
		Pluck("image_path", &paths).Error
	return paths, err
}

// MarkConversationRead flips the read flag for every unread message in the
// conversation that the reader did not send. The predicate makes the
// transition monotonic and the call idempotent.
func (r *chatRepository) MarkConversationRead(ctx context.Context, convID, readerID string) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", convID, readerID, false).
		Update("is_read", true).Error
}

func (r *chatRepository) UnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	type row struct {
		ConversationID string
		N              int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("messages.conversation_id as conversation_id, count(*) as n").
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.participant_one_id = ? OR conversations.participant_two_id = ?", userID, userID).
		Where("messages.is_read = ? AND messages.sender_id <> ?", false, userID).
		Group("messages.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ConversationID] = r.N
	}
	return counts, nil
}
