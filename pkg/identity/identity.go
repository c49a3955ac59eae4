package identity

import (
	"context"

	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
)

// Provider supplies credential verification for sensitive profile edits.
// Authentication itself is owned by the embedding application.
type Provider interface {
	VerifyCredential(ctx context.Context, identity, secret string) (bool, error)
}

// Session carries the caller's authenticated identity into store
// operations. It is passed explicitly; there is no ambient current user.
type Session struct {
	UserID string
	Name   string
	Avatar string
	Email  string
}

// Minimal returns the MinimalUser projection of the session identity.
func (s Session) Minimal() models.MinimalUser {
	return models.MinimalUser{ID: s.UserID, Name: s.Name, Avatar: s.Avatar, Email: s.Email}
}

// SessionFor builds a session from a directory user record.
func SessionFor(u models.User) Session {
	return Session{UserID: u.ID, Name: u.Name, Avatar: u.Avatar, Email: u.Email}
}
