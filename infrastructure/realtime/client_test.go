package realtime

import (
	"chat-room/domain/chat"
	"chat-room/errors"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer plays the realtime server side for one connection at a time.
type fakeServer struct {
	upgrader   websocket.Upgrader
	rejectJoin bool
	dropAfter  string
	// holdClose delays the phx_close of a leave, plus a stale broadcast, until the next join.
	holdClose bool

	mu     sync.Mutex
	query  url.Values
	frames  []frame
	keys    map[string]string
	pending []frame
}

func newFakeServer() *fakeServer {
	return &fakeServer{keys: make(map[string]string)}
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.mu.Lock()
	s.query = r.URL.Query()
	s.mu.Unlock()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, f)
		s.mu.Unlock()

		if f.Event == s.dropAfter {
			return
		}
		switch f.Event {
		case eventJoin:
			var join joinPayload
			_ = json.Unmarshal(f.Payload, &join)
			s.mu.Lock()
			s.keys[f.Topic] = join.Config.Presence.Key
			pending := s.pending
			s.pending = nil
			s.mu.Unlock()
			for _, p := range pending {
				_ = conn.WriteJSON(p)
			}
			status := `{"status":"ok","response":{}}`
			if s.rejectJoin {
				status = `{"status":"error","response":{"reason":"unauthorized"}}`
			}
			_ = conn.WriteJSON(frame{Topic: f.Topic, Event: eventReply, Payload: json.RawMessage(status), Ref: f.Ref, JoinRef: f.JoinRef})
			if !s.rejectJoin {
				_ = conn.WriteJSON(frame{Topic: f.Topic, Event: eventState, Payload: json.RawMessage(
					`{"bob":{"metas":[{"id":"bob","phx_ref":"b1"}]}}`), JoinRef: f.JoinRef})
			}
		case eventBroadcast:
			_ = conn.WriteJSON(frame{Topic: f.Topic, Event: eventBroadcast, Payload: f.Payload, JoinRef: f.JoinRef})
		case eventPresence:
			var env envelope
			_ = json.Unmarshal(f.Payload, &env)
			s.mu.Lock()
			key := s.keys[f.Topic]
			s.mu.Unlock()
			diff, _ := json.Marshal(map[string]any{
				"joins": map[string]any{key: map[string]any{"metas": []any{
					map[string]any{"phx_ref": "ref-" + f.Ref, "id": key},
				}}},
				"leaves": map[string]any{},
			})
			_ = conn.WriteJSON(frame{Topic: f.Topic, Event: eventDiff, Payload: diff, JoinRef: f.JoinRef})
		case eventLeave:
			_ = conn.WriteJSON(frame{Topic: f.Topic, Event: eventReply, Payload: json.RawMessage(`{"status":"ok","response":{}}`), Ref: f.Ref, JoinRef: f.JoinRef})
			closing := frame{Topic: f.Topic, Event: eventClose, Payload: json.RawMessage(`{}`), Ref: f.JoinRef, JoinRef: f.JoinRef}
			if !s.holdClose {
				_ = conn.WriteJSON(closing)
				continue
			}
			stale := frame{Topic: f.Topic, Event: eventBroadcast, JoinRef: f.JoinRef, Payload: json.RawMessage(
				`{"type":"broadcast","event":"message","payload":{"message":"stale","user_name":"Ana"}}`)}
			s.mu.Lock()
			s.pending = append(s.pending, closing, stale)
			s.mu.Unlock()
		}
	}
}

func (s *fakeServer) eventsFor(topic string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []string
	for _, f := range s.frames {
		if f.Topic == topic {
			events = append(events, f.Event)
		}
	}
	return events
}

func receive[T any](t *testing.T, c <-chan T) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the realtime server")
	}
	var zero T
	return zero
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(logger, Config{URL: srv.URL + "/realtime/v1", APIKey: "anon-key", HeartbeatInterval: 20 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestChannel_Join_Broadcast_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server := newFakeServer()
	client := newTestClient(t, server)

	statuses := make(chan chat.SubscribeStatus, 4)
	messages := make(chan chat.ChatMessage, 4)
	syncs := make(chan struct{}, 4)

	ch := client.OpenChannel("room_one", chat.ChannelOptions{PresenceKey: "ana", BroadcastSelf: true, AccessToken: "jwt"})
	ch.OnBroadcast(chat.MessageEvent, func(raw json.RawMessage) {
		msg, err := chat.DecodeMessage(raw)
		require.NoError(t, err)
		messages <- msg
	})
	ch.OnPresenceSync(func() { syncs <- struct{}{} })

	// When
	req.NoError(ch.Subscribe(ctx, func(status chat.SubscribeStatus, _ error) { statuses <- status }))

	// Then the join is acknowledged and the initial presence state arrives
	req.Equal(chat.StatusSubscribed, receive(t, statuses))
	receive(t, syncs)
	req.Equal([]string{"bob"}, chat.NewPresenceSet(ch.PresenceState()).Keys())

	// When tracking our identity
	req.NoError(ch.Track(ctx, chat.Tracked{ID: "ana"}))
	receive(t, syncs)
	req.Equal([]string{"ana", "bob"}, chat.NewPresenceSet(ch.PresenceState()).Keys())

	// When sending two messages, they come back in order
	first := chat.ChatMessage{Message: "uno", UserName: "Ana", Timestamp: "2024-01-01T10:00:00.000Z"}
	second := chat.ChatMessage{Message: "dos", UserName: "Ana", Timestamp: "2024-01-01T10:00:01.000Z"}
	req.NoError(ch.Send(ctx, chat.Broadcast{Event: chat.MessageEvent, Payload: first}))
	req.NoError(ch.Send(ctx, chat.Broadcast{Event: chat.MessageEvent, Payload: second}))
	req.Equal(first, receive(t, messages))
	req.Equal(second, receive(t, messages))

	// When leaving twice
	req.NoError(ch.Unsubscribe(ctx))
	req.NoError(ch.Unsubscribe(ctx))
	req.ErrorIs(ch.Send(ctx, chat.Broadcast{Event: chat.MessageEvent, Payload: first}), errors.ErrNotSubscribed)
	req.Empty(ch.PresenceState())

	req.Eventually(func() bool {
		events := server.eventsFor("realtime:room_one")
		return len(events) > 0 && events[len(events)-1] == eventLeave
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{eventJoin, eventPresence, eventBroadcast, eventBroadcast, eventLeave}, server.eventsFor("realtime:room_one"))

	server.mu.Lock()
	req.Equal("anon-key", server.query.Get("apikey"))
	req.Equal(protocolVersion, server.query.Get("vsn"))
	req.Equal("ana", server.keys["realtime:room_one"])
	server.mu.Unlock()

	// And heartbeats keep flowing on the phoenix topic
	req.Eventually(func() bool {
		return len(server.eventsFor(phoenixTopic)) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannel_Rejoin_After_Leave_Ignores_Previous_Join(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server := newFakeServer()
	server.holdClose = true
	client := newTestClient(t, server)

	// Given a first channel joined then left
	first := client.OpenChannel("room_one", chat.ChannelOptions{PresenceKey: "ana"})
	firstStatuses := make(chan chat.SubscribeStatus, 4)
	req.NoError(first.Subscribe(ctx, func(status chat.SubscribeStatus, _ error) { firstStatuses <- status }))
	req.Equal(chat.StatusSubscribed, receive(t, firstStatuses))
	req.NoError(first.Unsubscribe(ctx))

	// When a second channel joins the same topic and the server closes the first join late
	second := client.OpenChannel("room_one", chat.ChannelOptions{PresenceKey: "bob", BroadcastSelf: true})
	statuses := make(chan chat.SubscribeStatus, 4)
	messages := make(chan chat.ChatMessage, 4)
	second.OnBroadcast(chat.MessageEvent, func(raw json.RawMessage) {
		msg, err := chat.DecodeMessage(raw)
		require.NoError(t, err)
		messages <- msg
	})
	req.NoError(second.Subscribe(ctx, func(status chat.SubscribeStatus, _ error) { statuses <- status }))

	// Then the second channel is subscribed and only sees its own traffic
	req.Equal(chat.StatusSubscribed, receive(t, statuses))
	hello := chat.ChatMessage{Message: "hello", UserName: "Bob", Timestamp: "2024-01-01T10:00:00.000Z"}
	req.NoError(second.Send(ctx, chat.Broadcast{Event: chat.MessageEvent, Payload: hello}))
	req.Equal(hello, receive(t, messages))
	req.Empty(statuses)
	req.Empty(firstStatuses)
	req.Equal([]string{eventJoin, eventLeave, eventJoin, eventBroadcast}, server.eventsFor("realtime:room_one"))
}

func TestChannel_UpdateAccessToken(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server := newFakeServer()
	client := newTestClient(t, server)
	statuses := make(chan chat.SubscribeStatus, 2)
	ch := client.OpenChannel("room_one", chat.ChannelOptions{PresenceKey: "ana", AccessToken: "old"})

	// Before joining the token is only kept for the join
	req.NoError(ch.UpdateAccessToken(ctx, "before-join"))
	req.NoError(ch.Subscribe(ctx, func(status chat.SubscribeStatus, _ error) { statuses <- status }))
	req.Equal(chat.StatusSubscribed, receive(t, statuses))

	// Once joined it is pushed to the server
	req.NoError(ch.UpdateAccessToken(ctx, "refreshed"))
	req.Eventually(func() bool {
		events := server.eventsFor("realtime:room_one")
		return len(events) == 2 && events[1] == eventAccessToken
	}, 2*time.Second, 10*time.Millisecond)

	server.mu.Lock()
	defer server.mu.Unlock()
	var join joinPayload
	var update accessTokenPayload
	for _, f := range server.frames {
		switch f.Event {
		case eventJoin:
			req.NoError(json.Unmarshal(f.Payload, &join))
		case eventAccessToken:
			req.NoError(json.Unmarshal(f.Payload, &update))
			req.NotEmpty(f.JoinRef)
		}
	}
	req.Equal("before-join", join.AccessToken)
	req.Equal("refreshed", update.AccessToken)
}

func TestChannel_Join_Rejected(t *testing.T) {
	req := require.New(t)
	server := newFakeServer()
	server.rejectJoin = true
	client := newTestClient(t, server)
	statuses := make(chan chat.SubscribeStatus, 1)
	errs := make(chan error, 1)

	ch := client.OpenChannel("room_one", chat.ChannelOptions{PresenceKey: "ana"})
	req.NoError(ch.Subscribe(context.Background(), func(status chat.SubscribeStatus, err error) {
		statuses <- status
		errs <- err
	}))

	req.Equal(chat.StatusChannelError, receive(t, statuses))
	req.ErrorContains(receive(t, errs), "unauthorized")
	req.ErrorIs(ch.Track(context.Background(), chat.Tracked{ID: "ana"}), errors.ErrNotSubscribed)
}

func TestChannel_Send_Before_Subscribe(t *testing.T) {
	req := require.New(t)
	client := newTestClient(t, newFakeServer())

	ch := client.OpenChannel("room_one", chat.ChannelOptions{})

	req.ErrorIs(ch.Send(context.Background(), chat.Broadcast{Event: chat.MessageEvent}), errors.ErrNotSubscribed)
	req.NoError(ch.Unsubscribe(context.Background()))
}

func TestChannel_Connection_Lost(t *testing.T) {
	req := require.New(t)
	server := newFakeServer()
	server.dropAfter = eventPresence
	client := newTestClient(t, server)
	statuses := make(chan chat.SubscribeStatus, 2)

	ch := client.OpenChannel("room_one", chat.ChannelOptions{PresenceKey: "ana"})
	req.NoError(ch.Subscribe(context.Background(), func(status chat.SubscribeStatus, _ error) { statuses <- status }))
	req.Equal(chat.StatusSubscribed, receive(t, statuses))

	// When the server hangs up
	req.NoError(ch.Track(context.Background(), chat.Tracked{ID: "ana"}))

	// Then
	req.Equal(chat.StatusChannelError, receive(t, statuses))
	req.Error(ch.Send(context.Background(), chat.Broadcast{Event: chat.MessageEvent}))
	req.NoError(ch.Unsubscribe(context.Background()))
}

func TestClient_Endpoint(t *testing.T) {
	req := require.New(t)
	client := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{URL: "https://project.example.co/realtime/v1/", APIKey: "k"})

	endpoint, err := client.endpoint()

	req.NoError(err)
	req.Equal("wss://project.example.co/realtime/v1/websocket?apikey=k&vsn=1.0.0", endpoint)
}
