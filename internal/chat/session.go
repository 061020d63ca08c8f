package chat

import (
	"context"
	"log/slog"
	"time"

	"jurutani/internal/identity"
	"jurutani/internal/media"
	"jurutani/internal/models"
	"jurutani/internal/observability"
	"jurutani/internal/realtime"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionState is the lifecycle of a session's attachment to a
// conversation.
type SessionState string

const (
	// StateIdle means no conversation is open.
	StateIdle SessionState = "idle"
	// StateSubscribing means history is loaded but the live stream is not
	// established yet.
	StateSubscribing SessionState = "subscribing"
	// StateActive means the session is live on the conversation channel.
	StateActive SessionState = "active"
	// StateDisconnected means the live stream broke; the session resyncs
	// and returns to active when it recovers.
	StateDisconnected SessionState = "disconnected"
)

// Session is one client's stateful view of a single open conversation:
// its message list, send pipeline and live subscription. Consumers observe
// the exported cells; the websocket handler forwards their changes to the
// socket, and embedded callers subscribe directly.
//
// A session belongs to one user and serializes its own state. Opening a
// new conversation bumps the epoch, so events still in flight from the
// previous subscription are recognized as stale and dropped.
type Session struct {
	store *Store
	dir   *Directory
	rdb   *redis.Client
	user  *identity.User

	mu           chan struct{} // 1-slot semaphore, held across subscription teardown
	epoch        uint64
	conversation *models.Conversation
	sub          *realtime.Subscription
	list         *MessageList
	openCtx      context.Context

	// Messages publishes the ordered message list after every change.
	Messages *Cell[[]*models.Message]
	// State publishes lifecycle transitions.
	State *Cell[SessionState]
	// Sending is true while a send is awaiting persistence.
	Sending *Cell[bool]
	// Uploading is true while an attachment is in the media pipeline.
	Uploading *Cell[bool]
}

// NewSession creates a session for the user. rdb may be nil, in which case
// the session works without live updates.
func NewSession(store *Store, dir *Directory, rdb *redis.Client, user *identity.User) *Session {
	s := &Session{
		store:     store,
		dir:       dir,
		rdb:       rdb,
		user:      user,
		mu:        make(chan struct{}, 1),
		list:      NewMessageList(),
		Messages:  NewCell[[]*models.Message](nil),
		State:     NewCell(StateIdle),
		Sending:   NewCell(false),
		Uploading: NewCell(false),
	}
	return s
}

func (s *Session) lock()   { s.mu <- struct{}{} }
func (s *Session) unlock() { <-s.mu }

// User returns the session's principal.
func (s *Session) User() *identity.User {
	return s.user
}

// Conversation returns the currently open conversation, or nil.
func (s *Session) Conversation() *models.Conversation {
	s.lock()
	defer s.unlock()
	return s.conversation
}

// withUser stamps the session's principal onto the context so the store's
// identity provider resolves it.
func (s *Session) withUser(ctx context.Context) context.Context {
	return identity.WithUser(ctx, s.user)
}

// Open attaches the session to a conversation: loads the latest history
// page, marks incoming messages read and joins the live stream. Any
// previously open conversation is closed first.
func (s *Session) Open(ctx context.Context, conversationID string) (*models.Conversation, error) {
	ctx = s.withUser(ctx)

	conv, err := s.dir.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.detach()
	s.State.Set(StateSubscribing)

	msgs, err := s.store.History(ctx, conversationID, time.Time{})
	if err != nil {
		s.State.Set(StateIdle)
		return nil, err
	}

	s.lock()
	s.conversation = conv
	s.openCtx = ctx
	s.list.Replace(msgs)
	epoch := s.epoch
	snapshot := s.list.Snapshot()
	s.unlock()
	s.Messages.Set(snapshot)

	// Opening a thread reads it.
	if err := s.store.MarkRead(ctx, conversationID); err != nil {
		slog.WarnContext(ctx, "failed to mark conversation read",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
	}

	if s.rdb != nil {
		sub, err := realtime.Subscribe(ctx, s.rdb, conversationID, s.handlers(epoch))
		if err != nil {
			s.State.Set(StateIdle)
			s.detach()
			return nil, models.NewBackendError(err)
		}
		s.lock()
		s.sub = sub
		s.unlock()
	}

	s.State.Set(StateActive)
	return conv, nil
}

// Close detaches from the open conversation and clears the message list.
// Safe to call when nothing is open.
func (s *Session) Close() {
	s.detach()
	s.Messages.Set(nil)
	s.State.Set(StateIdle)
}

// detach bumps the epoch and tears down the subscription. The epoch bump
// happens under the session lock before the blocking Close, so handler
// callbacks that race with teardown fail their epoch check and drop.
func (s *Session) detach() {
	s.lock()
	s.epoch++
	sub := s.sub
	s.sub = nil
	s.conversation = nil
	s.openCtx = nil
	s.list = NewMessageList()
	s.unlock()

	if sub != nil {
		sub.Close()
	}
}

// Send delivers a message to the open conversation. The entry appears in
// the message list immediately, marked pending, and is confirmed in place
// once persisted; on failure it is removed again and the error surfaces.
// Validation runs first, so an empty message mutates nothing.
func (s *Session) Send(ctx context.Context, content string, image *media.Upload) (*models.Message, error) {
	ctx = s.withUser(ctx)

	s.lock()
	conv := s.conversation
	epoch := s.epoch
	s.unlock()
	if conv == nil {
		return nil, models.NewValidationError("No conversation is open")
	}

	in := SendInput{
		MessageID:      uuid.NewString(),
		ConversationID: conv.ID,
		Content:        content,
		Image:          image,
	}
	if err := s.store.ValidateSend(in); err != nil {
		return nil, err
	}

	// Upload before the optimistic insert: an invalid or oversized file
	// must not leave a phantom entry behind.
	if image != nil {
		s.Uploading.Set(true)
		attachment, err := s.store.UploadAttachment(ctx, *image)
		s.Uploading.Set(false)
		if err != nil {
			return nil, err
		}
		in.Attachment = attachment
		in.Image = nil
	}

	optimistic := &models.Message{
		ID:             in.MessageID,
		ConversationID: conv.ID,
		SenderID:       s.user.ID,
		Sender:         s.user.Profile(),
		Content:        in.Content,
		CreatedAt:      time.Now().UTC(),
		Pending:        true,
	}
	if in.Attachment != nil {
		optimistic.ImagePath = in.Attachment.Path
		optimistic.ImageURL = in.Attachment.URL
	}
	s.applyAt(epoch, func(l *MessageList) { l.Upsert(optimistic) })

	s.Sending.Set(true)
	persisted, err := s.store.Send(ctx, in)
	s.Sending.Set(false)
	if err != nil {
		s.applyAt(epoch, func(l *MessageList) { l.Remove(optimistic.ID) })
		if in.Attachment != nil {
			s.store.DiscardAttachment(ctx, in.Attachment.Path)
		}
		return nil, err
	}

	// Shared ID collapses the pending entry, this confirmation and the
	// realtime echo into one list element.
	s.applyAt(epoch, func(l *MessageList) { l.Upsert(persisted) })
	observability.MessagesSent.Inc()
	return persisted, nil
}

// LoadMore fetches the page older than the current earliest message and
// prepends it. Returns true when a full page arrived and more history may
// remain.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	ctx = s.withUser(ctx)

	s.lock()
	conv := s.conversation
	epoch := s.epoch
	earliest := s.list.Earliest()
	s.unlock()
	if conv == nil {
		return false, models.NewValidationError("No conversation is open")
	}
	if earliest == nil {
		return false, nil
	}

	older, err := s.store.History(ctx, conv.ID, earliest.CreatedAt)
	if err != nil {
		return false, err
	}

	s.applyAt(epoch, func(l *MessageList) { l.Prepend(older) })
	return len(older) == s.store.PageSize(), nil
}

// MarkRead marks the open conversation read.
func (s *Session) MarkRead(ctx context.Context) error {
	ctx = s.withUser(ctx)

	s.lock()
	conv := s.conversation
	s.unlock()
	if conv == nil {
		return models.NewValidationError("No conversation is open")
	}
	return s.store.MarkRead(ctx, conv.ID)
}

// DeleteMessage removes one of the session user's own messages. The list
// updates when the realtime delete echo arrives; without a live stream the
// entry is removed directly.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	ctx = s.withUser(ctx)

	s.lock()
	epoch := s.epoch
	s.unlock()

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if s.rdb == nil {
		s.applyAt(epoch, func(l *MessageList) { l.Remove(messageID) })
	}
	return nil
}

// handlers builds realtime callbacks bound to the given epoch. Callbacks
// from a superseded subscription fail the epoch check and drop.
func (s *Session) handlers(epoch uint64) realtime.Handlers {
	return realtime.Handlers{
		OnInsert: func(ev realtime.Event) {
			if ev.Message == nil {
				return
			}
			if s.applyAt(epoch, func(l *MessageList) { l.Upsert(ev.Message) }) {
				observability.RealtimeEvents.WithLabelValues(realtime.EventInsert).Inc()
			} else {
				observability.RealtimeEventsDropped.Inc()
			}
		},
		OnDelete: func(ev realtime.Event) {
			if s.applyAt(epoch, func(l *MessageList) { l.Remove(ev.MessageID) }) {
				observability.RealtimeEvents.WithLabelValues(realtime.EventDelete).Inc()
			} else {
				observability.RealtimeEventsDropped.Inc()
			}
		},
		OnDisconnect: func(err error) {
			if s.epochAlive(epoch) {
				s.State.Set(StateDisconnected)
			}
		},
		OnReconnect: func() {
			s.resync(epoch)
		},
	}
}

// resync replaces the list with a fresh latest page after the live stream
// recovers; anything missed during the gap is in that page.
func (s *Session) resync(epoch uint64) {
	s.lock()
	conv := s.conversation
	ctx := s.openCtx
	alive := s.epoch == epoch
	s.unlock()
	if !alive || conv == nil || ctx == nil {
		return
	}

	msgs, err := s.store.History(ctx, conv.ID, time.Time{})
	if err != nil {
		slog.Warn("failed to resync conversation after reconnect",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.applyAt(epoch, func(l *MessageList) { l.Replace(msgs) }) {
		s.State.Set(StateActive)
	}
}

// applyAt mutates the message list and publishes the result, provided the
// session is still on the given epoch. Returns false for stale callers.
func (s *Session) applyAt(epoch uint64, fn func(*MessageList)) bool {
	s.lock()
	if s.epoch != epoch {
		s.unlock()
		return false
	}
	fn(s.list)
	snapshot := s.list.Snapshot()
	s.unlock()

	s.Messages.Set(snapshot)
	return true
}

func (s *Session) epochAlive(epoch uint64) bool {
	s.lock()
	defer s.unlock()
	return s.epoch == epoch
}
