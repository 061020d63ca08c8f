package chat

import (
	"testing"

	"jurutani/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFilterConversations(t *testing.T) {
	self := "user-alice"
	convs := []*models.Conversation{
		{
			ID:               "c1",
			ParticipantOneID: self,
			ParticipantTwoID: "user-budi",
			ParticipantTwo:   &models.Profile{ID: "user-budi", FullName: "Budi Santoso"},
			LastMessage:      "panen jagung minggu depan",
		},
		{
			ID:               "c2",
			ParticipantOneID: "user-citra",
			ParticipantTwoID: self,
			ParticipantOne:   &models.Profile{ID: "user-citra", FullName: "Citra Dewi"},
			LastMessage:      "terima kasih",
		},
	}

	t.Run("empty query returns everything", func(t *testing.T) {
		assert.Len(t, FilterConversations(convs, self, "  "), 2)
	})

	t.Run("matches partner name case-insensitively", func(t *testing.T) {
		got := FilterConversations(convs, self, "BUDI")
		assert.Len(t, got, 1)
		assert.Equal(t, "c1", got[0].ID)
	})

	t.Run("matches preview text", func(t *testing.T) {
		got := FilterConversations(convs, self, "terima")
		assert.Len(t, got, 1)
		assert.Equal(t, "c2", got[0].ID)
	})

	t.Run("no match yields empty", func(t *testing.T) {
		assert.Empty(t, FilterConversations(convs, self, "zzz"))
	})
}

func TestFilterMessages(t *testing.T) {
	msgs := []*models.Message{
		{ID: "m1", Content: "Harga pupuk naik lagi"},
		{ID: "m2", Content: "Sudah saya kirim"},
	}

	assert.Len(t, FilterMessages(msgs, ""), 2)

	got := FilterMessages(msgs, "pupuk")
	assert.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	assert.Empty(t, FilterMessages(msgs, "tidak ada"))
}
