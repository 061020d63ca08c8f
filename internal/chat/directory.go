package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"jurutani/internal/identity"
	"jurutani/internal/models"
	"jurutani/internal/repository"

	"gorm.io/gorm"
)

// Directory resolves and lists the caller's conversations.
type Directory struct {
	repo  repository.ChatRepository
	ident identity.Provider
}

// NewDirectory creates a conversation directory.
func NewDirectory(repo repository.ChatRepository, ident identity.Provider) *Directory {
	return &Directory{repo: repo, ident: ident}
}

// GetOrCreate returns the caller's conversation with the other user,
// creating it on first contact. The pair is unordered, so both sides
// always land on the same conversation.
func (d *Directory) GetOrCreate(ctx context.Context, otherID string) (*models.Conversation, error) {
	user, err := d.ident.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, models.NewValidationError("Partner user ID is required")
	}
	if otherID == user.ID {
		return nil, models.NewValidationError("Cannot start a conversation with yourself")
	}

	conv, err := d.repo.GetOrCreateConversation(ctx, user.ID, otherID)
	if err != nil {
		return nil, models.NewBackendError(err)
	}
	return conv, nil
}

// List returns the caller's conversations, most recently active first,
// with per-conversation unread counts attached. A failed count lookup
// degrades to zero counts rather than failing the listing.
func (d *Directory) List(ctx context.Context) ([]*models.Conversation, error) {
	user, err := d.ident.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	convs, err := d.repo.ListConversations(ctx, user.ID)
	if err != nil {
		return nil, models.NewBackendError(err)
	}

	counts, err := d.repo.UnreadCounts(ctx, user.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load unread counts",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		counts = nil
	}
	for _, conv := range convs {
		conv.UnreadCount = counts[conv.ID]
	}

	return convs, nil
}

// Get returns a single conversation, enforcing that the caller is one of
// its participants.
func (d *Directory) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	user, err := d.ident.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := d.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Conversation", conversationID)
		}
		return nil, models.NewBackendError(err)
	}
	if !conv.HasParticipant(user.ID) {
		return nil, models.NewUnauthorizedError("Not a participant of this conversation")
	}
	return conv, nil
}
