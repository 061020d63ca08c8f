package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handlers receives the event stream for one conversation subscription.
// OnDisconnect fires when the stream breaks; OnReconnect fires once the
// stream is re-established so the caller can resync any events missed in
// between. All callbacks run on the subscription's goroutine.
type Handlers struct {
	OnInsert     func(ev Event)
	OnDelete     func(ev Event)
	OnDisconnect func(err error)
	OnReconnect  func()
}

// Subscription is a live pub/sub listener on one conversation channel.
type Subscription struct {
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}
	closed         atomic.Bool
}

const (
	receiveTimeout   = 30 * time.Second
	reconnectBackoff = time.Second
)

// Subscribe opens a listener on the conversation's channel and dispatches
// events to the handlers until Close is called or ctx is cancelled.
func Subscribe(ctx context.Context, rdb *redis.Client, conversationID string, h Handlers) (*Subscription, error) {
	pubsub := rdb.Subscribe(ctx, ConversationChannel(conversationID))
	// Force the subscribe round-trip so a dead broker fails here, not on
	// the listener goroutine.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		conversationID: conversationID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	go sub.listen(ctx, pubsub, h)
	return sub, nil
}

// ConversationID returns the conversation this subscription listens on.
func (s *Subscription) ConversationID() string {
	return s.conversationID
}

// Close tears the subscription down. Safe to call more than once; events
// already in flight after Close are dropped by the caller's epoch check.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Subscription) listen(ctx context.Context, pubsub *redis.PubSub, h Handlers) {
	defer close(s.done)
	defer func() { _ = pubsub.Close() }()

	healthy := true
	for {
		msg, err := pubsub.ReceiveTimeout(ctx, receiveTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// Timeouts are keepalive probes on an idle channel, not
			// failures.
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if healthy {
				healthy = false
				slog.WarnContext(ctx, "realtime stream interrupted",
					slog.String("conversation_id", s.conversationID),
					slog.String("error", err.Error()),
				)
				if h.OnDisconnect != nil {
					h.OnDisconnect(err)
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectBackoff):
			}
			continue
		}

		if !healthy {
			// go-redis resubscribes under the hood; a successful receive
			// means the stream is live again.
			healthy = true
			slog.InfoContext(ctx, "realtime stream recovered",
				slog.String("conversation_id", s.conversationID),
			)
			if h.OnReconnect != nil {
				h.OnReconnect()
			}
		}

		m, ok := msg.(*redis.Message)
		if !ok {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
			slog.WarnContext(ctx, "dropping malformed realtime event",
				slog.String("conversation_id", s.conversationID),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch ev.Type {
		case EventInsert:
			if h.OnInsert != nil {
				h.OnInsert(ev)
			}
		case EventDelete:
			if h.OnDelete != nil {
				h.OnDelete(ev)
			}
		}
	}
}
