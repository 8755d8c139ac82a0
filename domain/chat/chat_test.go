package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChatMessage_Time(t *testing.T) {
	req := require.New(t)
	fallback := time.Date(2030, 5, 5, 5, 5, 0, 0, time.UTC)

	msg := ChatMessage{Timestamp: "2024-01-01T10:00:00Z"}
	req.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), msg.Time(fallback).UTC())

	msg = ChatMessage{Timestamp: "2024-01-01T10:00:00.123+02:00"}
	req.Equal(time.Date(2024, 1, 1, 8, 0, 0, 123_000_000, time.UTC), msg.Time(fallback).UTC())

	req.Equal(fallback, ChatMessage{}.Time(fallback))
	req.Equal(fallback, ChatMessage{Timestamp: "yesterday"}.Time(fallback))
}

func TestNewChatMessage_Stamps_Session_Identity(t *testing.T) {
	req := require.New(t)
	session := &Session{UserID: "u1", FullName: "Ana", AvatarURL: "https://img/ana.png"}
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	msg := NewChatMessage("hola", session, at)

	req.Equal("hola", msg.Message)
	req.Equal("Ana", msg.UserName)
	req.Equal("https://img/ana.png", msg.Avatar)
	req.Equal("2024-01-01T09:00:00.000Z", msg.Timestamp)
}

func TestNewPresenceSet_Skips_Empty_Keys(t *testing.T) {
	req := require.New(t)
	state := PresenceState{
		"u2": {{"id": "u2"}},
		"u1": {{"id": "u1"}, {"id": "u1"}},
		"u3": {},
	}

	set := NewPresenceSet(state)

	req.Equal(2, set.Len())
	req.Equal([]string{"u1", "u2"}, set.Keys())
	req.True(set.Contains("u1"))
	req.False(set.Contains("u3"))
}

func TestSession_AvatarOrFallback(t *testing.T) {
	req := require.New(t)

	req.Equal("https://img/a.png", (&Session{AvatarURL: "https://img/a.png"}).AvatarOrFallback())
	req.Equal("https://ui-avatars.com/api/?name=Ana+Mar%C3%ADa&background=random",
		(&Session{FullName: "Ana María"}).AvatarOrFallback())
	req.Equal("https://ui-avatars.com/api/?name=User&background=random", (*Session)(nil).AvatarOrFallback())
}

func TestSession_SameUser_And_Expired(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	a := &Session{UserID: "u1", ExpiresAt: now.Add(-time.Second)}
	b := &Session{UserID: "u1"}

	req.True(a.SameUser(b))
	req.False(a.SameUser(&Session{UserID: "u2"}))
	req.False(a.SameUser(nil))
	req.True((*Session)(nil).SameUser(nil))

	req.True(a.Expired(now))
	req.False(b.Expired(now))
}
