package auth

import (
	"chat-room/contract"
	"chat-room/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalAuthService signs a fixed display name in without any provider.
// It backs the offline mode where the realtime hub is in-process.
type LocalAuthService struct {
	log         *slog.Logger
	displayName string
	secret      []byte
	duration    time.Duration

	mu        sync.Mutex
	session   *chat.Session
	listeners map[string]func(*chat.Session)
}

var _ contract.AuthService = (*LocalAuthService)(nil)

func NewLocalAuthService(log *slog.Logger, displayName string, secret []byte, duration time.Duration) *LocalAuthService {
	return &LocalAuthService{
		log:         log,
		displayName: displayName,
		secret:      secret,
		duration:    duration,
		listeners:   make(map[string]func(*chat.Session)),
	}
}

func (s *LocalAuthService) CurrentSession(_ context.Context) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *LocalAuthService) OnAuthStateChange(listener func(session *chat.Session)) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.listeners[id] = listener
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SignIn mints a session immediately; there is no URL to visit.
func (s *LocalAuthService) SignIn(_ context.Context, provider string) (string, error) {
	userID := "local-" + strings.ToLower(strings.ReplaceAll(s.displayName, " ", "-"))
	metadata := UserMetadata{FullName: s.displayName, AvatarURL: chat.FallbackAvatar(s.displayName)}
	token, err := GenerateToken(userID, "", metadata, s.secret, s.duration)
	if err != nil {
		return "", fmt.Errorf("minting local token: %w", err)
	}
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return "", err
	}
	session := SessionFromClaims(claims, token, "")
	s.log.Info("Signed in locally", "user_id", userID, "provider", provider)
	s.set(session)
	return "", nil
}

func (s *LocalAuthService) SignOut(_ context.Context) error {
	s.set(nil)
	return nil
}

func (s *LocalAuthService) set(session *chat.Session) {
	s.mu.Lock()
	s.session = session
	listeners := make([]func(*chat.Session), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l(session)
	}
}
