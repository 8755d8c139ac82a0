// Package chat contains core concepts of the chat client.
// Sessions, messages and presence are plain values; no network or UI logic lives here.
package chat

import (
	"net/url"
	"time"
)

// Session is the authenticated identity reported by the auth service.
// A nil *Session means signed out.
type Session struct {
	UserID       string
	Email        string
	FullName     string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token is past its expiry at the given instant.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// DisplayName falls back to the e-mail when the provider gave no full name.
func (s *Session) DisplayName() string {
	if s == nil {
		return ""
	}
	if s.FullName != "" {
		return s.FullName
	}
	return s.Email
}

// AvatarOrFallback returns the provider avatar, or a generated one built from the display name.
func (s *Session) AvatarOrFallback() string {
	if s == nil {
		return FallbackAvatar("")
	}
	if s.AvatarURL != "" {
		return s.AvatarURL
	}
	return FallbackAvatar(s.DisplayName())
}

// SameUser is true when both sessions belong to the same user id.
func (s *Session) SameUser(other *Session) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.UserID == other.UserID
}

func FallbackAvatar(name string) string {
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}
