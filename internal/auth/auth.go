// Package auth provides the identity provider: email/password accounts,
// email verification, and bearer sessions.
package auth

import (
	"context"
	"time"

	"trade-journal/internal/models"
)

// Session is a signed-in user and the bearer token that identifies them.
type Session struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Provider is an identity provider.
type Provider interface {
	// SignUp registers an account and returns the email verification token.
	SignUp(ctx context.Context, email, password, displayName string) (models.User, string, error)

	// SignIn checks credentials and opens a session.
	SignIn(ctx context.Context, email, password string) (Session, error)

	// VerifyEmail marks the account holding token as verified.
	VerifyEmail(ctx context.Context, token string) error

	// SignOut ends a session. Unknown tokens are not an error.
	SignOut(ctx context.Context, token string) error

	// Lookup returns the user a session token belongs to.
	Lookup(ctx context.Context, token string) (models.User, error)
}
