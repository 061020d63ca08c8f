// Package identity resolves the authenticated user for chat operations.
package identity

import (
	"context"
	"fmt"
	"time"

	"jurutani/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated principal attached to a request or session.
type User struct {
	ID        string
	FullName  string
	AvatarURL string
	Role      string
}

// Profile converts the principal into its denormalized profile snapshot.
func (u *User) Profile() *models.Profile {
	return &models.Profile{
		ID:        u.ID,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
	}
}

// Provider yields the current user. Implementations back onto request
// context, a verified token or a fixed principal for embedded use.
type Provider interface {
	// CurrentUser returns the authenticated user or an error with code
	// NOT_AUTHENTICATED when no session is present.
	CurrentUser(ctx context.Context) (*User, error)
}

type ctxKey struct{}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext retrieves the authenticated user stored by WithUser.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil && u.ID != ""
}

// ContextProvider resolves the user from the request context.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (*User, error) {
	if u, ok := FromContext(ctx); ok {
		return u, nil
	}
	return nil, models.NewNotAuthenticatedError()
}

// Static always returns the same user. Useful for embedding the chat
// engine in a process that has already authenticated, and in tests.
type Static struct {
	User *User
}

func (s Static) CurrentUser(context.Context) (*User, error) {
	if s.User == nil || s.User.ID == "" {
		return nil, models.NewNotAuthenticatedError()
	}
	return s.User, nil
}

// TokenVerifier validates HMAC-signed bearer tokens and extracts the
// principal from the standard and profile claims.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier over the shared HMAC secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token string and returns the principal.
func (v *TokenVerifier) Verify(tokenString string) (*User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, models.NewNotAuthenticatedError()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewNotAuthenticatedError()
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, models.NewNotAuthenticatedError()
	}

	u := &User{ID: sub}
	if v, ok := claims["name"].(string); ok {
		u.FullName = v
	}
	if v, ok := claims["avatar_url"].(string); ok {
		u.AvatarURL = v
	}
	if v, ok := claims["role"].(string); ok {
		u.Role = v
	}
	return u, nil
}

// Sign issues a token for the user, used by tests and local tooling.
func (v *TokenVerifier) Sign(u *User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": u.ID,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	if u.FullName != "" {
		claims["name"] = u.FullName
	}
	if u.AvatarURL != "" {
		claims["avatar_url"] = u.AvatarURL
	}
	if u.Role != "" {
		claims["role"] = u.Role
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
