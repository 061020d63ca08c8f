// Package realtime fans chat events out through Redis pub/sub so every
// open session on a conversation sees inserts and deletes as they happen.
package realtime

import (
	"fmt"

	"jurutani/internal/models"
)

// Event types carried on a conversation channel.
const (
	EventInsert = "insert"
	EventDelete = "delete"
)

// Event is the wire payload published for a conversation change. Inserts
// embed the full message; deletes carry only the message ID.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	Message        *models.Message `json:"message,omitempty"`
}

// ConversationChannel returns the pub/sub channel for a conversation.
func ConversationChannel(conversationID string) string {
	return fmt.Sprintf("chat:conv:%s", conversationID)
}
