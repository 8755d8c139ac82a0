package chat

import (
	"sort"

	"github.com/samber/lo"
)

// PresenceMeta is one tracked connection for a presence key.
type PresenceMeta map[string]any

// PresenceState is the raw snapshot held by a channel: presence key -> tracked metas.
type PresenceState map[string][]PresenceMeta

// PresenceSet holds the user ids currently online in the channel.
type PresenceSet map[string]struct{}

// NewPresenceSet derives the set from a full presence snapshot. Keys with no metas are skipped.
func NewPresenceSet(state PresenceState) PresenceSet {
	set := make(PresenceSet, len(state))
	for key, metas := range state {
		if len(metas) == 0 {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

func (p PresenceSet) Len() int { return len(p) }

func (p PresenceSet) Contains(userID string) bool {
	_, ok := p[userID]
	return ok
}

// Keys returns the user ids sorted, so renderings are stable.
func (p PresenceSet) Keys() []string {
	keys := lo.Keys(p)
	sort.Strings(keys)
	return keys
}

func (p PresenceSet) Clone() PresenceSet {
	out := make(PresenceSet, len(p))
	for k := range p {
		out[k] = struct{}{}
	}
	return out
}
