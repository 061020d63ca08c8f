// Package seed populates the database with fake profiles and conversations
// for local development.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"jurutani/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var roles = []string{"farmer", "expert", "extension_worker"}

// Seeder writes demo chat data.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a seeder over the given database.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// ClearAll removes all chat data.
func (s *Seeder) ClearAll() error {
	for _, model := range []interface{}{
		&models.Message{},
		&models.Conversation{},
		&models.Profile{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Profiles creates n fake profiles.
func (s *Seeder) Profiles(n int) ([]*models.Profile, error) {
	profiles := make([]*models.Profile, 0, n)
	for i := 0; i < n; i++ {
		p := &models.Profile{
			ID:        uuid.NewString(),
			FullName:  gofakeit.Name(),
			AvatarURL: fmt.Sprintf("https://picsum.photos/seed/%s/128/128", gofakeit.UUID()),
			Role:      roles[rand.Intn(len(roles))],
		}
		if err := s.db.Create(p).Error; err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Conversations pairs up profiles and fills each thread with a short
// exchange. Pairs are stored in canonical order so reseeding never trips
// the pair index.
func (s *Seeder) Conversations(ctx context.Context, profiles []*models.Profile, messagesPer int) (int, error) {
	created := 0
	for i := 0; i < len(profiles)-1; i += 2 {
		a, b := profiles[i], profiles[i+1]
		one, two := models.NormalizePair(a.ID, b.ID)
		conv := &models.Conversation{
			ID:               uuid.NewString(),
			ParticipantOneID: one,
			ParticipantTwoID: two,
		}
		if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
			return created, fmt.Errorf("create conversation: %w", err)
		}
		created++

		var last *models.Message
		base := time.Now().Add(-time.Duration(rand.Intn(72)) * time.Hour).UTC()
		for j := 0; j < messagesPer; j++ {
			sender := a
			if j%2 == 1 {
				sender = b
			}
			msg := &models.Message{
				ID:             uuid.NewString(),
				ConversationID: conv.ID,
				SenderID:       sender.ID,
				Content:        gofakeit.Sentence(4 + rand.Intn(8)),
				IsRead:         j < messagesPer-1,
				CreatedAt:      base.Add(time.Duration(j) * time.Minute),
			}
			if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
				return created, fmt.Errorf("create message: %w", err)
			}
			last = msg
		}

		if last != nil {
			err := s.db.WithContext(ctx).Model(conv).Updates(map[string]interface{}{
				"last_message":    last.PreviewText(),
				"last_message_at": last.CreatedAt,
				"updated_at":      last.CreatedAt,
			}).Error
			if err != nil {
				return created, fmt.Errorf("update preview: %w", err)
			}
		}
	}
	return created, nil
}
