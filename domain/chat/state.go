package chat

// SessionState is the lifecycle position of the chat session.
type SessionState int

const (
	SignedOut SessionState = iota
	SignedIn
	Subscribed
)

func (s SessionState) String() string {
	switch s {
	case SignedOut:
		return "signed-out"
	case SignedIn:
		return "signed-in"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}
