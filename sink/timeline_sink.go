package sink

import (
	"chat-room/domain/chat"
	"chat-room/domain/event"
	"context"
	"sync"
)

// Timeline holds the conversation in arrival order.
// It never reorders nor deduplicates: display order is delivery order.
type Timeline struct {
	mu       sync.RWMutex
	messages []chat.ChatMessage
}

func NewTimeline() *Timeline {
	return &Timeline{
		messages: nil,
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageReceived:
		t.mu.Lock()
		t.messages = append(t.messages, evt.Message)
		t.mu.Unlock()
	case event.ConversationCleared:
		t.Reset()
	}
	return nil
}

func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
}

// Messages returns a copy safe to hand to an exporter or renderer.
func (t *Timeline) Messages() []chat.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]chat.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
