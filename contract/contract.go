//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-room/domain/chat"
	"chat-room/domain/event"
	"context"
	"encoding/json"
)

// AuthService is the hosted identity provider.
// It owns the session; callers only observe it.
type AuthService interface {
	CurrentSession(ctx context.Context) (*chat.Session, error)
	// OnAuthStateChange registers a listener invoked on every session change, nil on sign-out.
	OnAuthStateChange(listener func(session *chat.Session)) (unsubscribe func())
	// SignIn starts the provider flow and returns the URL the user must open.
	SignIn(ctx context.Context, provider string) (string, error)
	SignOut(ctx context.Context) error
}

type RealtimeService interface {
	OpenChannel(name string, opts chat.ChannelOptions) Channel
}

// Channel is one realtime topic supporting broadcast and presence.
// Handlers are registered before Subscribe and are invoked in delivery order,
// never from inside a call to Subscribe, Track, Send, UpdateAccessToken or Unsubscribe.
type Channel interface {
	Name() string
	OnBroadcast(event string, handler func(payload json.RawMessage))
	OnPresenceSync(handler func())
	Subscribe(ctx context.Context, onStatus func(status chat.SubscribeStatus, err error)) error
	Track(ctx context.Context, payload any) error
	Send(ctx context.Context, broadcast chat.Broadcast) error
	// UpdateAccessToken replaces the token used by the channel, pushing it to the server when joined.
	UpdateAccessToken(ctx context.Context, token string) error
	// Unsubscribe leaves the topic. Calling it more than once is a no-op.
	Unsubscribe(ctx context.Context) error
	PresenceState() chat.PresenceState
}

// FileSaver is the download surface handed a finished export.
type FileSaver interface {
	Save(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}
