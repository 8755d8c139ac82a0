package realtime

import (
	"chat-room/domain/chat"
	"testing"

	"github.com/stretchr/testify/require"
)

func metas(refs ...string) presenceEntry {
	entry := presenceEntry{}
	for _, ref := range refs {
		entry.Metas = append(entry.Metas, chat.PresenceMeta{presenceRefKey: ref})
	}
	return entry
}

func TestPresence_SyncState_Replaces(t *testing.T) {
	req := require.New(t)
	p := newPresence()

	p.syncState(map[string]presenceEntry{"ana": metas("1"), "bob": metas("2")})
	p.syncState(map[string]presenceEntry{"clara": metas("3"), "ghost": {}})

	state := p.snapshot()
	req.Len(state, 1)
	req.Contains(state, "clara")
}

func TestPresence_SyncDiff(t *testing.T) {
	req := require.New(t)
	p := newPresence()
	p.syncState(map[string]presenceEntry{"ana": metas("1")})

	// When bob joins twice (two tabs) and ana joins again with the same ref
	p.syncDiff(presenceDiff{Joins: map[string]presenceEntry{
		"bob": metas("2", "3"),
		"ana": metas("1"),
	}})

	// Then
	state := p.snapshot()
	req.Len(state["ana"], 1)
	req.Len(state["bob"], 2)

	// When one bob tab leaves, then ana leaves
	p.syncDiff(presenceDiff{Leaves: map[string]presenceEntry{"bob": metas("2")}})
	p.syncDiff(presenceDiff{Leaves: map[string]presenceEntry{"ana": metas("1"), "nobody": metas("9")}})

	// Then only bob is left, with one connection
	state = p.snapshot()
	req.Equal([]string{"bob"}, chat.NewPresenceSet(state).Keys())
	req.Equal("3", state["bob"][0][presenceRefKey])
}

func TestPresence_Snapshot_Is_A_Copy(t *testing.T) {
	req := require.New(t)
	p := newPresence()
	p.syncState(map[string]presenceEntry{"ana": metas("1")})

	state := p.snapshot()
	delete(state, "ana")

	req.Len(p.snapshot(), 1)
	p.reset()
	req.Empty(p.snapshot())
}
