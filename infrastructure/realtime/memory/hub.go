// Package memory is an in-process realtime hub with the same channel contract as the websocket client.
// It backs the offline mode and end-to-end tests of the session controller.
package memory

import (
	"chat-room/contract"
	"chat-room/domain/chat"
	"chat-room/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type tracked struct {
	owner string
	meta  chat.PresenceMeta
}

// Hub routes broadcasts and presence between channels sharing a name.
type Hub struct {
	log *slog.Logger

	mu       sync.Mutex
	topics   map[string]map[string]*Channel
	presence map[string]map[string][]tracked
}

var _ contract.RealtimeService = (*Hub)(nil)

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		topics:   make(map[string]map[string]*Channel),
		presence: make(map[string]map[string][]tracked),
	}
}

func (h *Hub) OpenChannel(name string, opts chat.ChannelOptions) contract.Channel {
	return &Channel{
		hub:        h,
		id:         uuid.NewString(),
		name:       name,
		opts:       opts,
		broadcasts: make(map[string][]func(json.RawMessage)),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Subscribers returns how many channels are joined under name.
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[name])
}

func (h *Hub) join(ch *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[ch.name] == nil {
		h.topics[ch.name] = make(map[string]*Channel)
	}
	h.topics[ch.name][ch.id] = ch
	h.log.Debug("Channel joined", "channel", ch.name, "id", ch.id)
}

func (h *Hub) leave(ch *Channel) {
	h.mu.Lock()
	delete(h.topics[ch.name], ch.id)
	if len(h.topics[ch.name]) == 0 {
		delete(h.topics, ch.name)
	}
	h.untrackLocked(ch)
	h.mu.Unlock()
	h.syncPresence(ch.name)
}

func (h *Hub) track(ch *Channel, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	meta := chat.PresenceMeta{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("presence payload must be an object: %w", err)
	}
	meta["phx_ref"] = uuid.NewString()

	h.mu.Lock()
	h.untrackLocked(ch)
	if h.presence[ch.name] == nil {
		h.presence[ch.name] = make(map[string][]tracked)
	}
	key := ch.opts.PresenceKey
	h.presence[ch.name][key] = append(h.presence[ch.name][key], tracked{owner: ch.id, meta: meta})
	h.mu.Unlock()

	h.syncPresence(ch.name)
	return nil
}

func (h *Hub) untrackLocked(ch *Channel) {
	keys := h.presence[ch.name]
	for key, entries := range keys {
		kept := lo.Filter(entries, func(t tracked, _ int) bool { return t.owner != ch.id })
		if len(kept) == 0 {
			delete(keys, key)
			continue
		}
		keys[key] = kept
	}
}

func (h *Hub) snapshotLocked(name string) chat.PresenceState {
	state := make(chat.PresenceState)
	for key, entries := range h.presence[name] {
		state[key] = lo.Map(entries, func(t tracked, _ int) chat.PresenceMeta { return t.meta })
	}
	return state
}

// syncPresence pushes the full presence state to every joined channel.
func (h *Hub) syncPresence(name string) {
	h.mu.Lock()
	state := h.snapshotLocked(name)
	members := lo.Values(h.topics[name])
	h.mu.Unlock()
	for _, member := range members {
		member.receivePresence(state)
	}
}

func (h *Hub) broadcast(from *Channel, event string, payload json.RawMessage) {
	h.mu.Lock()
	members := lo.Values(h.topics[from.name])
	h.mu.Unlock()
	for _, member := range members {
		if member == from && !from.opts.BroadcastSelf {
			continue
		}
		member.receiveBroadcast(event, payload)
	}
}

// Channel delivers every callback on its own goroutine, in the order the hub produced them.
type Channel struct {
	hub  *Hub
	id   string
	name string
	opts chat.ChannelOptions

	mu         sync.Mutex
	joined     bool
	closed     bool
	broadcasts map[string][]func(json.RawMessage)
	syncs      []func()
	presence   chat.PresenceState
	queue      []func()
	wake       chan struct{}
	done       chan struct{}
}

var _ contract.Channel = (*Channel)(nil)

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) OnBroadcast(event string, handler func(payload json.RawMessage)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.broadcasts[event] = append(ch.broadcasts[event], handler)
}

func (ch *Channel) OnPresenceSync(handler func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.syncs = append(ch.syncs, handler)
}

func (ch *Channel) Subscribe(_ context.Context, onStatus func(status chat.SubscribeStatus, err error)) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrConnectionClosed, ch.name)
	}
	if ch.joined {
		ch.mu.Unlock()
		return nil
	}
	ch.joined = true
	ch.mu.Unlock()

	go ch.run()
	ch.hub.join(ch)
	ch.enqueue(func() { onStatus(chat.StatusSubscribed, nil) })
	ch.hub.syncPresence(ch.name)
	return nil
}

func (ch *Channel) Track(_ context.Context, payload any) error {
	if !ch.isJoined() {
		return fmt.Errorf("%w: %s", errors.ErrNotSubscribed, ch.name)
	}
	return ch.hub.track(ch, payload)
}

func (ch *Channel) Send(_ context.Context, broadcast chat.Broadcast) error {
	if !ch.isJoined() {
		return fmt.Errorf("%w: %s", errors.ErrNotSubscribed, ch.name)
	}
	raw, err := json.Marshal(broadcast.Payload)
	if err != nil {
		return err
	}
	ch.hub.broadcast(ch, broadcast.Event, raw)
	return nil
}

// UpdateAccessToken only records the token; the in-process hub does not authorize.
func (ch *Channel) UpdateAccessToken(_ context.Context, token string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.opts.AccessToken = token
	return nil
}

func (ch *Channel) Unsubscribe(_ context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	wasJoined := ch.joined
	ch.closed = true
	ch.joined = false
	ch.queue = nil
	ch.presence = nil
	ch.mu.Unlock()

	close(ch.done)
	if wasJoined {
		ch.hub.leave(ch)
	}
	return nil
}

func (ch *Channel) PresenceState() chat.PresenceState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make(chat.PresenceState, len(ch.presence))
	for key, metas := range ch.presence {
		out[key] = append([]chat.PresenceMeta(nil), metas...)
	}
	return out
}

func (ch *Channel) isJoined() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.joined
}

func (ch *Channel) receiveBroadcast(event string, payload json.RawMessage) {
	ch.enqueue(func() {
		ch.mu.Lock()
		handlers := append([]func(json.RawMessage){}, ch.broadcasts[event]...)
		ch.mu.Unlock()
		for _, h := range handlers {
			h(payload)
		}
	})
}

func (ch *Channel) receivePresence(state chat.PresenceState) {
	ch.enqueue(func() {
		ch.mu.Lock()
		ch.presence = state
		handlers := append([]func(){}, ch.syncs...)
		ch.mu.Unlock()
		for _, h := range handlers {
			h()
		}
	})
}

func (ch *Channel) enqueue(fn func()) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.queue = append(ch.queue, fn)
	ch.mu.Unlock()
	select {
	case ch.wake <- struct{}{}:
	default:
	}
}

func (ch *Channel) run() {
	for {
		select {
		case <-ch.done:
			return
		case <-ch.wake:
		}
		for {
			ch.mu.Lock()
			if ch.closed || len(ch.queue) == 0 {
				ch.mu.Unlock()
				break
			}
			fn := ch.queue[0]
			ch.queue = ch.queue[1:]
			ch.mu.Unlock()
			fn()
		}
	}
}
