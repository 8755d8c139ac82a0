// Package event defines the notifications emitted by the chat session controller.
// Sinks consume them to re-render or to project state.
package event

import (
	"chat-room/domain/chat"
)

type DomainEvent interface {
	Kind() string
}

// SessionChanged is emitted whenever the auth service reports a session, nil included.
type SessionChanged struct {
	Session *chat.Session
}

func (SessionChanged) Kind() string { return "session_changed" }

type ChannelStatusChanged struct {
	Channel string
	Status  chat.SubscribeStatus
	Err     error
}

func (ChannelStatusChanged) Kind() string { return "channel_status_changed" }

// MessageReceived carries one broadcast payload in arrival order.
type MessageReceived struct {
	Message chat.ChatMessage
}

func (MessageReceived) Kind() string { return "message_received" }

// PresenceSynced carries the full presence set after a sync.
type PresenceSynced struct {
	Online chat.PresenceSet
}

func (PresenceSynced) Kind() string { return "presence_synced" }

// MessageDropped reports a send that never reached the channel.
type MessageDropped struct {
	Message chat.ChatMessage
	Err     error
}

func (MessageDropped) Kind() string { return "message_dropped" }

// ConversationCleared is emitted when the session goes away and local state is reset.
type ConversationCleared struct{}

func (ConversationCleared) Kind() string { return "conversation_cleared" }

// MessagePublished reports a message handed to the channel. Delivery is not confirmed.
type MessagePublished struct {
	Message chat.ChatMessage
}

func (MessagePublished) Kind() string { return "message_published" }
