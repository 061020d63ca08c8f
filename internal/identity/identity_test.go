package identity

import (
	"context"
	"testing"
	"time"

	"jurutani/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextProvider(t *testing.T) {
	p := ContextProvider{}

	t.Run("no user on context", func(t *testing.T) {
		_, err := p.CurrentUser(context.Background())
		assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
	})

	t.Run("user on context", func(t *testing.T) {
		ctx := WithUser(context.Background(), &User{ID: "user-alice", FullName: "Alice Tani"})
		u, err := p.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "user-alice", u.ID)
	})

	t.Run("empty ID counts as unauthenticated", func(t *testing.T) {
		ctx := WithUser(context.Background(), &User{})
		_, err := p.CurrentUser(ctx)
		assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
	})
}

func TestStaticProvider(t *testing.T) {
	u, err := Static{User: &User{ID: "user-budi"}}.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-budi", u.ID)

	_, err = Static{}.CurrentUser(context.Background())
	assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret-for-chat-tokens")

	token, err := v.Sign(&User{
		ID:        "user-alice",
		FullName:  "Alice Tani",
		AvatarURL: "https://cdn.example.com/alice.png",
		Role:      "farmer",
	}, time.Hour)
	require.NoError(t, err)

	u, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", u.ID)
	assert.Equal(t, "Alice Tani", u.FullName)
	assert.Equal(t, "https://cdn.example.com/alice.png", u.AvatarURL)
	assert.Equal(t, "farmer", u.Role)
}

func TestTokenVerifierRejections(t *testing.T) {
	v := NewTokenVerifier("test-secret-for-chat-tokens")

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.Verify("not.a.token")
		assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenVerifier("a-different-secret-entirely")
		token, err := other.Sign(&User{ID: "user-alice"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := v.Sign(&User{ID: "user-alice"}, -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.Equal(t, models.CodeNotAuthenticated, models.CodeOf(err))
	})
}

func TestUserProfileSnapshot(t *testing.T) {
	u := &User{ID: "user-alice", FullName: "Alice Tani", Role: "farmer"}
	p := u.Profile()
	assert.Equal(t, "user-alice", p.ID)
	assert.Equal(t, "Alice Tani", p.FullName)
	assert.Equal(t, "farmer", p.Role)
}
