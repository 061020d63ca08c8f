package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"jurutani/internal/chat"
	"jurutani/internal/identity"
	"jurutani/internal/models"
	"jurutani/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Client frame types accepted on the chat socket.
const (
	frameOpen     = "open"
	frameClose    = "close"
	frameSend     = "send"
	frameMarkRead = "mark_read"
	frameLoadMore = "load_more"
)

// clientFrame is a message from the socket to the session.
type clientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// serverFrame is a message pushed from the session to the socket.
type serverFrame struct {
	Type         string               `json:"type"`
	State        chat.SessionState    `json:"state,omitempty"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Messages     []*models.Message    `json:"messages,omitempty"`
	HasMore      *bool                `json:"has_more,omitempty"`
	Error        string               `json:"error,omitempty"`
	Code         string               `json:"code,omitempty"`
}

func (s *Server) setupWebSocketRoutes(app *fiber.App) {
	ws := app.Group("/ws", s.AuthRequired())
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/chat", s.WebSocketChatHandler())
}

// WebSocketChatHandler runs one chat session per socket. The client opens
// a conversation, sends messages and switches conversations over JSON
// frames; the session's observable state is mirrored back as frames.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.WebSocketConnections.Inc()
		defer observability.WebSocketConnections.Dec()

		user, ok := conn.Locals("user").(*identity.User)
		if !ok || user == nil {
			_ = conn.WriteJSON(serverFrame{Type: "error", Code: models.CodeNotAuthenticated, Error: "unauthorized"})
			_ = conn.Close()
			return
		}

		ctx := context.Background()
		session := chat.NewSession(s.store, s.directory, s.redis, user)
		defer session.Close()

		// Session callbacks fire from multiple goroutines; serialize
		// socket writes.
		var writeMu sync.Mutex
		push := func(frame serverFrame) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(frame); err != nil {
				slog.Debug("websocket write failed",
					slog.String("user_id", user.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		unsubMessages := session.Messages.Subscribe(func(msgs []*models.Message) {
			push(serverFrame{Type: "messages", Messages: msgs})
		})
		defer unsubMessages()
		unsubState := session.State.Subscribe(func(state chat.SessionState) {
			push(serverFrame{Type: "state", State: state})
		})
		defer unsubState()

		slog.Info("chat socket connected", slog.String("user_id", user.ID))

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				slog.Info("chat socket closed", slog.String("user_id", user.ID))
				return
			}

			var frame clientFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				push(serverFrame{Type: "error", Code: models.CodeValidation, Error: "invalid frame"})
				continue
			}

			switch frame.Type {
			case frameOpen:
				conv, err := session.Open(ctx, frame.ConversationID)
				if err != nil {
					push(errorFrame(err))
					continue
				}
				push(serverFrame{Type: "conversation", Conversation: conv})

			case frameClose:
				session.Close()

			case frameSend:
				if _, err := session.Send(ctx, frame.Content, nil); err != nil {
					push(errorFrame(err))
				}

			case frameMarkRead:
				if err := session.MarkRead(ctx); err != nil {
					push(errorFrame(err))
				}

			case frameLoadMore:
				more, err := session.LoadMore(ctx)
				if err != nil {
					push(errorFrame(err))
					continue
				}
				push(serverFrame{Type: "history", HasMore: &more})

			default:
				push(serverFrame{Type: "error", Code: models.CodeValidation, Error: "unknown frame type"})
			}
		}
	})
}

func errorFrame(err error) serverFrame {
	return serverFrame{Type: "error", Code: models.CodeOf(err), Error: err.Error()}
}
