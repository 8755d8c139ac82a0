package realtime

import (
	"chat-room/contract"
	"chat-room/domain/chat"
	"chat-room/errors"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type channelState int

const (
	channelClosed channelState = iota
	channelJoining
	channelJoined
	channelErrored
)

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast broadcastConfig `json:"broadcast"`
	Presence  presenceConfig  `json:"presence"`
}

type broadcastConfig struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

type presenceConfig struct {
	Key string `json:"key"`
}

type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type accessTokenPayload struct {
	AccessToken string `json:"access_token"`
}

// envelope wraps broadcast and presence pushes.
type envelope struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type Channel struct {
	client *Client
	name   string
	topic  string
	opts   chat.ChannelOptions

	mu         sync.Mutex
	state      channelState
	joinRef    string
	onStatus   func(chat.SubscribeStatus, error)
	broadcasts map[string][]func(json.RawMessage)
	syncs      []func()

	presence *presence
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

// Subscribe sends the join request. The outcome arrives later through onStatus.
// Subscribing a channel that is already joining or joined does nothing.
func (ch *Channel) Subscribe(ctx context.Context, onStatus func(status chat.SubscribeStatus, err error)) error {
	ch.mu.Lock()
	if ch.state == channelJoining || ch.state == channelJoined {
		ch.mu.Unlock()
		return nil
	}
	opts := ch.opts
	ch.mu.Unlock()

	if err := ch.client.Connect(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(joinPayload{
		Config: joinConfig{
			Broadcast: broadcastConfig{Self: opts.BroadcastSelf},
			Presence:  presenceConfig{Key: opts.PresenceKey},
		},
		AccessToken: opts.AccessToken,
	})
	if err != nil {
		return err
	}

	ref := ch.client.nextRef()
	ch.mu.Lock()
	ch.state = channelJoining
	ch.joinRef = ref
	ch.onStatus = onStatus
	ch.mu.Unlock()
	ch.client.register(ch)

	err = ch.client.push(ctx, frame{Topic: ch.topic, Event: eventJoin, Payload: payload, Ref: ref, JoinRef: ref})
	if err != nil {
		ch.mu.Lock()
		ch.state = channelClosed
		ch.mu.Unlock()
		ch.client.unregister(ch)
		return err
	}
	return nil
}

func (ch *Channel) Track(ctx context.Context, payload any) error {
	return ch.pushEnvelope(ctx, eventPresence, "presence", "track", payload)
}

func (ch *Channel) Send(ctx context.Context, broadcast chat.Broadcast) error {
	return ch.pushEnvelope(ctx, eventBroadcast, "broadcast", broadcast.Event, broadcast.Payload)
}

func (ch *Channel) pushEnvelope(ctx context.Context, event, kind, name string, payload any) error {
	ch.mu.Lock()
	joined := ch.state == channelJoined
	joinRef := ch.joinRef
	ch.mu.Unlock()
	if !joined {
		return fmt.Errorf("%w: %s", errors.ErrNotSubscribed, ch.name)
	}

	inner, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{Type: kind, Event: name, Payload: inner})
	if err != nil {
		return err
	}
	return ch.client.push(ctx, frame{
		Topic:   ch.topic,
		Event:   event,
		Payload: body,
		Ref:     ch.client.nextRef(),
		JoinRef: joinRef,
	})
}

// UpdateAccessToken keeps token for later joins and, when joined, sends it on the access_token event.
func (ch *Channel) UpdateAccessToken(ctx context.Context, token string) error {
	ch.mu.Lock()
	ch.opts.AccessToken = token
	joined := ch.state == channelJoined
	joinRef := ch.joinRef
	ch.mu.Unlock()
	if !joined {
		return nil
	}
	body, err := json.Marshal(accessTokenPayload{AccessToken: token})
	if err != nil {
		return err
	}
	return ch.client.push(ctx, frame{
		Topic:   ch.topic,
		Event:   eventAccessToken,
		Payload: body,
		Ref:     ch.client.nextRef(),
		JoinRef: joinRef,
	})
}

// Unsubscribe leaves the topic. A second call, or a call on a never-joined channel, is a no-op.
func (ch *Channel) Unsubscribe(ctx context.Context) error {
	ch.mu.Lock()
	if ch.state == channelClosed {
		ch.mu.Unlock()
		return nil
	}
	wasErrored := ch.state == channelErrored
	ch.state = channelClosed
	joinRef := ch.joinRef
	ch.mu.Unlock()

	ch.client.unregister(ch)
	ch.presence.reset()
	if wasErrored {
		return nil
	}
	return ch.client.push(ctx, frame{
		Topic:   ch.topic,
		Event:   eventLeave,
		Payload: json.RawMessage(`{}`),
		Ref:     ch.client.nextRef(),
		JoinRef: joinRef,
	})
}

func (ch *Channel) PresenceState() chat.PresenceState {
	return ch.presence.snapshot()
}

// dispatch runs on the client's read goroutine; handlers are called without holding the channel lock.
// Frames tagged with another join_ref belong to an earlier join of the same topic and are dropped.
func (ch *Channel) dispatch(f frame) {
	ch.mu.Lock()
	joinRef := ch.joinRef
	ch.mu.Unlock()
	if f.JoinRef != "" && f.JoinRef != joinRef {
		ch.client.log.Debug("Dropping frame from a previous join", "topic", f.Topic, "event", f.Event, "join_ref", f.JoinRef)
		return
	}

	switch f.Event {
	case eventReply:
		ch.handleReply(f)
	case eventBroadcast:
		var env envelope
		if err := json.Unmarshal(f.Payload, &env); err != nil {
			ch.client.log.Warn("Malformed broadcast frame", "topic", f.Topic, "error", err)
			return
		}
		ch.mu.Lock()
		handlers := append([]func(json.RawMessage){}, ch.broadcasts[env.Event]...)
		ch.mu.Unlock()
		for _, h := range handlers {
			h(env.Payload)
		}
	case eventState:
		var entries map[string]presenceEntry
		if err := json.Unmarshal(f.Payload, &entries); err != nil {
			ch.client.log.Warn("Malformed presence state", "topic", f.Topic, "error", err)
			return
		}
		ch.presence.syncState(entries)
		ch.notifySync()
	case eventDiff:
		var diff presenceDiff
		if err := json.Unmarshal(f.Payload, &diff); err != nil {
			ch.client.log.Warn("Malformed presence diff", "topic", f.Topic, "error", err)
			return
		}
		ch.presence.syncDiff(diff)
		ch.notifySync()
	case eventClose:
		ch.transition(channelClosed, chat.StatusClosed, nil)
		ch.client.unregister(ch)
	case eventError:
		ch.transition(channelErrored, chat.StatusChannelError, fmt.Errorf("server reported an error on %s", ch.topic))
	default:
		ch.client.log.Debug("Ignoring frame", "topic", f.Topic, "event", f.Event)
	}
}

func (ch *Channel) handleReply(f frame) {
	ch.mu.Lock()
	pending := ch.state == channelJoining && f.Ref == ch.joinRef
	ch.mu.Unlock()
	if !pending {
		return
	}
	var r reply
	if err := json.Unmarshal(f.Payload, &r); err != nil {
		ch.transition(channelErrored, chat.StatusChannelError, err)
		return
	}
	if r.Status != "ok" {
		ch.transition(channelErrored, chat.StatusChannelError, fmt.Errorf("join rejected: %s", string(r.Response)))
		return
	}
	ch.transition(channelJoined, chat.StatusSubscribed, nil)
}

func (ch *Channel) connectionLost() {
	ch.transition(channelErrored, chat.StatusChannelError, errors.ErrConnectionClosed)
}

func (ch *Channel) transition(state channelState, status chat.SubscribeStatus, err error) {
	ch.mu.Lock()
	if ch.state == channelClosed && state != channelClosed {
		ch.mu.Unlock()
		return
	}
	ch.state = state
	onStatus := ch.onStatus
	ch.mu.Unlock()
	if onStatus != nil {
		onStatus(status, err)
	}
}

func (ch *Channel) notifySync() {
	ch.mu.Lock()
	handlers := append([]func(){}, ch.syncs...)
	ch.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}
