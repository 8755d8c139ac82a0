package auth

import (
	"chat-room/domain/chat"
	"chat-room/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type sessionRules struct {
	UserID      string `validate:"required"`
	Email       string `validate:"omitempty,email"`
	AvatarURL   string `validate:"omitempty,url"`
	AccessToken string `validate:"required"`
}

// ValidateSession rejects sessions the chat cannot work with: no user id or no token.
func ValidateSession(s *chat.Session) error {
	if s == nil {
		return fmt.Errorf("%w: empty session", errors.ErrAuthFailure)
	}
	err := validate.Struct(sessionRules{
		UserID:      s.UserID,
		Email:       s.Email,
		AvatarURL:   s.AvatarURL,
		AccessToken: s.AccessToken,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAuthFailure, err)
	}
	return nil
}
