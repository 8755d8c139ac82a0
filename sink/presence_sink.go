package sink

import (
	"chat-room/domain/chat"
	"chat-room/domain/event"
	"context"
	"sync"
)

// Presence keeps the last synced presence set. Every sync replaces it wholesale.
type Presence struct {
	mu     sync.RWMutex
	online chat.PresenceSet
}

func NewPresence() *Presence {
	return &Presence{online: chat.PresenceSet{}}
}

func (p *Presence) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.PresenceSynced:
		p.mu.Lock()
		p.online = evt.Online.Clone()
		p.mu.Unlock()
	case event.ConversationCleared:
		p.Reset()
	}
	return nil
}

func (p *Presence) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = chat.PresenceSet{}
}

func (p *Presence) Snapshot() chat.PresenceSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online.Clone()
}
