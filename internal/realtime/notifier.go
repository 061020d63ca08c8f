package realtime

import (
	"context"
	"encoding/json"

	"jurutani/internal/models"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes conversation events. A nil Redis client turns every
// publish into a no-op so the engine still works single-process.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a notifier over the given Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishInsert announces a newly persisted message on its conversation
// channel.
func (n *Notifier) PublishInsert(ctx context.Context, msg *models.Message) error {
	return n.publish(ctx, Event{
		Type:           EventInsert,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Message:        msg,
	})
}

// PublishDelete announces a message removal on its conversation channel.
func (n *Notifier) PublishDelete(ctx context.Context, conversationID, messageID string) error {
	return n.publish(ctx, Event{
		Type:           EventDelete,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

func (n *Notifier) publish(ctx context.Context, ev Event) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, ConversationChannel(ev.ConversationID), payload).Err()
}
