// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// Profile is a denormalized snapshot of a participant's display fields.
// It is refreshed whenever the participant is seen and is allowed to be
// stale; the auth backend remains the authority on user data.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// Conversation is the unique thread between two participants. The pair is
// unordered: participant columns are stored in canonical order (smaller ID
// first) so the composite unique index makes "one conversation per pair" a
// database constraint rather than an application promise.
type Conversation struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	ParticipantOneID string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:1" json:"participant_one_id"`
	ParticipantTwoID string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:2" json:"participant_two_id"`
	ParticipantOne   *Profile   `gorm:"foreignKey:ParticipantOneID" json:"participant_one,omitempty"`
	ParticipantTwo   *Profile   `gorm:"foreignKey:ParticipantTwoID" json:"participant_two,omitempty"`
	LastMessage      string     `json:"last_message,omitempty"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	UnreadCount      int64      `gorm:"-" json:"unread_count"`
}

// NormalizePair returns the two participant IDs in canonical storage order.
func NormalizePair(a, b string) (string, string) {
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether the user is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantOneID == userID || c.ParticipantTwoID == userID
}

// PartnerID returns the other participant's ID relative to selfID.
func (c *Conversation) PartnerID(selfID string) string {
	if c.ParticipantOneID == selfID {
		return c.ParticipantTwoID
	}
	return c.ParticipantOneID
}

// Partner returns the other participant's profile relative to selfID.
// May be nil when the snapshot has not been loaded.
func (c *Conversation) Partner(selfID string) *Profile {
	if c.ParticipantOneID == selfID {
		return c.ParticipantTwo
	}
	return c.ParticipantOne
}

// Message is a single chat message. IDs are generated by the sending client
// before the optimistic insert, so the local placeholder and the persisted
// row (and its realtime echo) share one key and collapse into one entry.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	SenderID       string    `gorm:"size:64;not null;index" json:"sender_id"`
	Sender         *Profile  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string    `gorm:"type:text" json:"content"`
	ImagePath      string    `json:"image_path,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	IsRead         bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`

	// Pending marks a locally inserted message that has not been confirmed
	// by the persistence layer yet. Never stored.
	Pending bool `gorm:"-" json:"pending,omitempty"`
}

// HasAttachment reports whether the message carries an image reference.
func (m *Message) HasAttachment() bool {
	return m.ImagePath != "" || m.ImageURL != ""
}

// Before reports whether m sorts before other in the conversation's total
// order: creation time ascending, ties broken by ID.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// ImagePlaceholder is the preview text used when a message has an
// attachment but no caption.
const ImagePlaceholder = "\U0001F4F7 Image"

// PreviewText returns the conversation-list preview for the message.
func (m *Message) PreviewText() string {
	text := strings.TrimSpace(m.Content)
	if text == "" && m.HasAttachment() {
		return ImagePlaceholder
	}
	return TruncatePreview(text, 50)
}

// TruncatePreview shortens text to at most max runes for list previews.
func TruncatePreview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
