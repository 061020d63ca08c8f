package server

import (
	"io"
	"mime/multipart"
	"time"

	"jurutani/internal/chat"
	"jurutani/internal/media"
	"jurutani/internal/models"

	"github.com/gofiber/fiber/v2"
)

type createConversationRequest struct {
	PartnerID string `json:"partner_id"`
}

type sendMessageRequest struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// GetOrCreateConversation resolves the conversation with the requested
// partner, creating it on first contact.
func (s *Server) GetOrCreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	conv, err := s.directory.GetOrCreate(c.UserContext(), req.PartnerID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(conv)
}

// ListConversations returns the caller's conversations, newest activity
// first, optionally filtered by the q parameter against partner names and
// preview text.
func (s *Server) ListConversations(c *fiber.Ctx) error {
	convs, err := s.directory.List(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	if q := c.Query("q"); q != "" {
		if user, ok := s.currentUser(c); ok {
			convs = chat.FilterConversations(convs, user.ID, q)
		}
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// DeleteConversation removes the conversation, its messages and their
// attachments.
func (s *Server) DeleteConversation(c *fiber.Ctx) error {
	if err := s.store.DeleteConversation(c.UserContext(), c.Params("id")); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkConversationRead marks all incoming messages in the conversation as
// read.
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	if err := s.store.MarkRead(c.UserContext(), c.Params("id")); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMessages returns one history page in chronological order. The
// optional before parameter (RFC 3339) pages into older history.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("before must be an RFC 3339 timestamp"))
		}
		before = parsed
	}

	msgs, err := s.store.History(c.UserContext(), c.Params("id"), before)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// SendMessage persists an outgoing message. Multipart requests may attach
// an image under the "image" field; plain JSON bodies carry text only.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	in := chat.SendInput{ConversationID: c.Params("id")}

	if form, err := c.MultipartForm(); err == nil && form != nil {
		if v := form.Value["content"]; len(v) > 0 {
			in.Content = v[0]
		}
		if v := form.Value["message_id"]; len(v) > 0 {
			in.MessageID = v[0]
		}
		if files := form.File["image"]; len(files) > 0 {
			upload, err := readUpload(files[0])
			if err != nil {
				return models.RespondWithError(c, fiber.StatusBadRequest,
					models.NewInvalidFileError("Could not read uploaded file"))
			}
			in.Image = upload
		}
	} else {
		var req sendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
		in.MessageID = req.MessageID
		in.Content = req.Content
	}

	msg, err := s.store.Send(c.UserContext(), in)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// ClearMessages empties the conversation without deleting it.
func (s *Server) ClearMessages(c *fiber.Ctx) error {
	if err := s.store.ClearMessages(c.UserContext(), c.Params("id")); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMessage removes one of the caller's own messages.
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	if err := s.store.DeleteMessage(c.UserContext(), c.Params("id")); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func readUpload(fh *multipart.FileHeader) (*media.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &media.Upload{Filename: fh.Filename, Data: data}, nil
}
