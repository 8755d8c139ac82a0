package realtime

import (
	"chat-room/domain/chat"
	"sync"
)

const presenceRefKey = "phx_ref"

type presenceEntry struct {
	Metas []chat.PresenceMeta `json:"metas"`
}

type presenceDiff struct {
	Joins  map[string]presenceEntry `json:"joins"`
	Leaves map[string]presenceEntry `json:"leaves"`
}

// presence mirrors the server-side presence of one topic.
// A full state replaces everything; a diff adds joined metas and removes left ones by phx_ref.
type presence struct {
	mu    sync.RWMutex
	state chat.PresenceState
}

func newPresence() *presence {
	return &presence{state: chat.PresenceState{}}
}

func (p *presence) syncState(entries map[string]presenceEntry) {
	state := make(chat.PresenceState, len(entries))
	for key, entry := range entries {
		if len(entry.Metas) == 0 {
			continue
		}
		state[key] = append([]chat.PresenceMeta(nil), entry.Metas...)
	}
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *presence) syncDiff(diff presenceDiff) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, entry := range diff.Joins {
		current := p.state[key]
		for _, meta := range entry.Metas {
			if !containsRef(current, meta[presenceRefKey]) {
				current = append(current, meta)
			}
		}
		p.state[key] = current
	}
	for key, entry := range diff.Leaves {
		current, ok := p.state[key]
		if !ok {
			continue
		}
		kept := current[:0]
		for _, meta := range current {
			if !containsRef(entry.Metas, meta[presenceRefKey]) {
				kept = append(kept, meta)
			}
		}
		if len(kept) == 0 {
			delete(p.state, key)
			continue
		}
		p.state[key] = kept
	}
}

func (p *presence) snapshot() chat.PresenceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(chat.PresenceState, len(p.state))
	for key, metas := range p.state {
		out[key] = append([]chat.PresenceMeta(nil), metas...)
	}
	return out
}

func (p *presence) reset() {
	p.mu.Lock()
	p.state = chat.PresenceState{}
	p.mu.Unlock()
}

// A meta without phx_ref never matches, so it is always kept on join and never removed by a leave.
func containsRef(metas []chat.PresenceMeta, ref any) bool {
	if ref == nil {
		return false
	}
	for _, meta := range metas {
		if meta[presenceRefKey] == ref {
			return true
		}
	}
	return false
}
