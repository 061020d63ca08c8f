package chat

import "jurutani/internal/models"

// MessageList is the ordered in-memory view of one conversation's messages.
// Entries are kept in the conversation's total order (creation time, ties
// by ID) and deduplicated by ID: an optimistic entry, its persisted form
// and its realtime echo all collapse into one element.
//
// MessageList is not safe for concurrent use; the session serializes
// access to it.
type MessageList struct {
	items []*models.Message
}

// NewMessageList creates an empty list.
func NewMessageList() *MessageList {
	return &MessageList{}
}

// Len returns the number of messages in the list.
func (l *MessageList) Len() int {
	return len(l.items)
}

// Upsert inserts the message at its ordered position, or replaces the
// existing entry with the same ID in place. Replacement keeps the existing
// slot so a confirmed message does not jump past neighbors that share its
// timestamp.
func (l *MessageList) Upsert(msg *models.Message) {
	for i, existing := range l.items {
		if existing.ID == msg.ID {
			l.items[i] = msg
			return
		}
	}

	idx := len(l.items)
	for i, existing := range l.items {
		if msg.Before(existing) {
			idx = i
			break
		}
	}
	l.items = append(l.items, nil)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = msg
}

// Remove deletes the message with the given ID. Removing an absent ID is
// a no-op.
func (l *MessageList) Remove(id string) bool {
	for i, existing := range l.items {
		if existing.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Replace swaps the entire contents for a fresh history page.
func (l *MessageList) Replace(msgs []*models.Message) {
	l.items = append(l.items[:0:0], msgs...)
}

// Prepend merges an older page in front of the current contents, skipping
// IDs already present.
func (l *MessageList) Prepend(older []*models.Message) {
	seen := make(map[string]struct{}, len(l.items))
	for _, m := range l.items {
		seen[m.ID] = struct{}{}
	}

	merged := make([]*models.Message, 0, len(older)+len(l.items))
	for _, m := range older {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		merged = append(merged, m)
	}
	l.items = append(merged, l.items...)
}

// Earliest returns the oldest message, or nil when the list is empty. It
// is the pagination cursor for loading older history.
func (l *MessageList) Earliest() *models.Message {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

// Snapshot returns a copy of the current contents.
func (l *MessageList) Snapshot() []*models.Message {
	out := make([]*models.Message, len(l.items))
	copy(out, l.items)
	return out
}
