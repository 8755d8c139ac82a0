package chat

import (
	"time"
)

// TimestampLayout is the ISO-8601 layout used when stamping outgoing messages.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ChatMessage is the broadcast payload exchanged on the channel.
// Immutable once created; the JSON names are shared with every other participant.
type ChatMessage struct {
	Message   string `json:"message"`
	UserName  string `json:"user_name"`
	Avatar    string `json:"avatar"`
	Timestamp string `json:"timestamp"`
}

// NewChatMessage stamps a message authored by the session at the given instant.
func NewChatMessage(text string, session *Session, at time.Time) ChatMessage {
	msg := ChatMessage{
		Message:   text,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
	if session != nil {
		msg.UserName = session.DisplayName()
		msg.Avatar = session.AvatarURL
	}
	return msg
}

// Time parses the timestamp, returning fallback when it is empty or malformed.
func (m ChatMessage) Time(fallback time.Time) time.Time {
	if m.Timestamp == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return fallback
	}
	return t
}
