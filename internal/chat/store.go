package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"jurutani/internal/identity"
	"jurutani/internal/media"
	"jurutani/internal/models"
	"jurutani/internal/observability"
	"jurutani/internal/realtime"
	"jurutani/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultPageSize is the history page length when none is configured.
const DefaultPageSize = 50

// SendInput describes an outgoing message. MessageID is optional: when the
// caller pre-generates it (the session does, for optimistic insert) the
// persisted row and its realtime echo carry the same ID.
type SendInput struct {
	MessageID      string
	ConversationID string
	Content        string
	Image          *media.Upload

	// Attachment carries an image that was already uploaded, bypassing
	// the pipeline. Used for the two-phase optimistic send.
	Attachment *media.StoredImage
}

// Store executes conversation operations against persistence, storage and
// the realtime fan-out. It is stateless and safe for concurrent use; the
// HTTP handlers call it directly and every Session runs on top of it.
type Store struct {
	repo     repository.ChatRepository
	media    *media.Pipeline
	notifier *realtime.Notifier
	ident    identity.Provider
	pageSize int
}

// NewStore creates a chat store. A non-positive pageSize falls back to
// DefaultPageSize.
func NewStore(repo repository.ChatRepository, pipeline *media.Pipeline, notifier *realtime.Notifier, ident identity.Provider, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{
		repo:     repo,
		media:    pipeline,
		notifier: notifier,
		ident:    ident,
		pageSize: pageSize,
	}
}

// PageSize returns the configured history page length.
func (s *Store) PageSize() int {
	return s.pageSize
}

// ValidateSend checks an outgoing message without touching any backend.
// A message must carry trimmed text or an attachment.
func (s *Store) ValidateSend(in SendInput) error {
	if strings.TrimSpace(in.Content) == "" && in.Image == nil && in.Attachment == nil {
		return models.NewEmptyMessageError()
	}
	return nil
}

// UploadAttachment runs the raw image through the media pipeline on behalf
// of the caller.
func (s *Store) UploadAttachment(ctx context.Context, img media.Upload) (*media.StoredImage, error) {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.media.Process(ctx, user.ID, img)
	if err != nil {
		observability.AttachmentUploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	observability.AttachmentUploads.WithLabelValues("ok").Inc()
	return stored, nil
}

// DiscardAttachment removes a stored attachment whose message never made
// it to persistence. Best effort; a failed removal only goes to the log.
func (s *Store) DiscardAttachment(ctx context.Context, path string) {
	s.media.Remove(ctx, path)
}

// Send validates, uploads and persists an outgoing message, then announces
// it on the conversation channel. Validation failures surface before any
// side effect. A persistence failure removes an attachment uploaded here;
// a pre-uploaded Attachment stays the caller's to discard.
func (s *Store) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateSend(in); err != nil {
		return nil, err
	}
	if _, err := s.authorizedConversation(ctx, user.ID, in.ConversationID); err != nil {
		return nil, err
	}

	attachment := in.Attachment
	if attachment == nil && in.Image != nil {
		attachment, err = s.UploadAttachment(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
	}

	msg := &models.Message{
		ID:             in.MessageID,
		ConversationID: in.ConversationID,
		SenderID:       user.ID,
		Content:        strings.TrimSpace(in.Content),
		CreatedAt:      time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if attachment != nil {
		msg.ImagePath = attachment.Path
		msg.ImageURL = attachment.URL
	}

	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		if attachment != nil && in.Attachment == nil {
			s.media.Remove(ctx, attachment.Path)
		}
		return nil, models.NewSendFailedError(err)
	}

	// Load the sender snapshot so echoes carry display fields.
	if persisted, err := s.repo.GetMessage(ctx, msg.ID); err == nil {
		msg = persisted
	}

	s.touchPreview(ctx, msg)

	if err := s.notifier.PublishInsert(ctx, msg); err != nil {
		slog.WarnContext(ctx, "failed to publish message insert",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}

	return msg, nil
}

// History returns one page of messages in chronological order. A zero
// before time means the latest page.
func (s *Store) History(ctx context.Context, conversationID string, before time.Time) ([]*models.Message, error) {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizedConversation(ctx, user.ID, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, conversationID, before, s.pageSize)
	if err != nil {
		return nil, models.NewBackendError(err)
	}
	return msgs, nil
}

// DeleteMessage removes one of the caller's own messages, its stored
// attachment and announces the removal. Deleting someone else's message
// fails with UNAUTHORIZED.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return err
	}

	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Message", messageID)
		}
		return models.NewBackendError(err)
	}

	rows, err := s.repo.DeleteMessage(ctx, messageID, user.ID)
	if err != nil {
		return models.NewBackendError(err)
	}
	if rows == 0 {
		return models.NewUnauthorizedError("Only the sender can delete a message")
	}

	if msg.ImagePath != "" {
		s.media.Remove(ctx, msg.ImagePath)
	}

	if err := s.notifier.PublishDelete(ctx, msg.ConversationID, msg.ID); err != nil {
		slog.WarnContext(ctx, "failed to publish message delete",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// ClearMessages deletes every message in the conversation along with the
// stored attachments, resets the preview and announces each removal.
func (s *Store) ClearMessages(ctx context.Context, conversationID string) error {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if _, err := s.authorizedConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	return s.clearMessages(ctx, conversationID)
}

// DeleteConversation removes the conversation and everything in it.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if _, err := s.authorizedConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}

	if err := s.clearMessages(ctx, conversationID); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return models.NewBackendError(err)
	}
	return nil
}

// MarkRead flips every unread incoming message in the conversation to
// read. Idempotent; the caller's own messages are untouched.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	user, err := s.ident.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if _, err := s.authorizedConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}

	if err := s.repo.MarkConversationRead(ctx, conversationID, user.ID); err != nil {
		return models.NewBackendError(err)
	}
	return nil
}

func (s *Store) clearMessages(ctx context.Context, conversationID string) error {
	ids, err := s.repo.MessageIDs(ctx, conversationID)
	if err != nil {
		return models.NewBackendError(err)
	}
	paths, err := s.repo.ImagePaths(ctx, conversationID)
	if err != nil {
		return models.NewBackendError(err)
	}

	// Attachment removal is independent per object; sweep them in
	// parallel and carry on regardless of individual failures.
	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(objectPath string) {
			defer wg.Done()
			s.media.Remove(ctx, objectPath)
		}(p)
	}
	wg.Wait()

	if err := s.repo.DeleteConversationMessages(ctx, conversationID); err != nil {
		return models.NewBackendError(err)
	}
	if err := s.repo.ResetLastMessage(ctx, conversationID); err != nil {
		slog.WarnContext(ctx, "failed to reset conversation preview",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
	}

	for _, id := range ids {
		if err := s.notifier.PublishDelete(ctx, conversationID, id); err != nil {
			slog.WarnContext(ctx, "failed to publish message delete",
				slog.String("message_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// touchPreview updates the conversation's list preview after a send.
// Best effort: the message is already persisted and announced, so a
// failed preview update only goes to the log.
func (s *Store) touchPreview(ctx context.Context, msg *models.Message) {
	if err := s.repo.TouchLastMessage(ctx, msg.ConversationID, msg.PreviewText(), msg.CreatedAt); err != nil {
		slog.WarnContext(ctx, "failed to update conversation preview",
			slog.String("conversation_id", msg.ConversationID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) authorizedConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Conversation", conversationID)
		}
		return nil, models.NewBackendError(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, models.NewUnauthorizedError("Not a participant of this conversation")
	}
	return conv, nil
}
