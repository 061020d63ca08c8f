package chat

import (
	"strings"

	"jurutani/internal/models"
)

// FilterConversations returns the conversations whose partner name or
// preview text contains the query, case-insensitively. An empty query
// returns the input unchanged.
func FilterConversations(convs []*models.Conversation, selfID, query string) []*models.Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return convs
	}

	out := make([]*models.Conversation, 0, len(convs))
	for _, conv := range convs {
		if partner := conv.Partner(selfID); partner != nil {
			if strings.Contains(strings.ToLower(partner.FullName), query) {
				out = append(out, conv)
				continue
			}
		}
		if strings.Contains(strings.ToLower(conv.LastMessage), query) {
			out = append(out, conv)
		}
	}
	return out
}

// FilterMessages returns the messages whose content contains the query,
// case-insensitively. An empty query returns the input unchanged.
func FilterMessages(msgs []*models.Message, query string) []*models.Message {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return msgs
	}

	out := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if strings.Contains(strings.ToLower(msg.Content), query) {
			out = append(out, msg)
		}
	}
	return out
}
