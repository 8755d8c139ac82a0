package services

import (
	"chat-room/contract"
	"chat-room/domain/chat"
	"chat-room/domain/event"
	"chat-room/errors"
	"chat-room/export"
	"chat-room/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type IChatSessionController interface {
	Start(ctx context.Context) error
	OnAuthStateObserved(ctx context.Context, session *chat.Session)
	EstablishChannel(ctx context.Context, session *chat.Session)
	SendMessage(ctx context.Context, text string) error
	ExportConversation(format export.Format) (export.Blob, error)
	SaveConversation(ctx context.Context, format export.Format) (string, error)
	SignIn(ctx context.Context, provider string) (string, error)
	SignOut(ctx context.Context) error
	SetInput(text string)
	Input() string
	Session() *chat.Session
	State() chat.SessionState
	Messages() []chat.ChatMessage
	Presence() chat.PresenceSet
	Close(ctx context.Context)
}

// ControllerConfig holds the fixed channel settings shared by every session.
type ControllerConfig struct {
	ChannelName   string
	BroadcastSelf bool
}

// ChatSessionController bridges the auth service and the realtime channel to the render state.
//
// It owns at most one channel handle at a time: a new session tears the previous channel down
// before opening its own, and a nil session leaves no channel, no messages and no presence.
// Every state change is published to the registered sinks, in the order it was applied.
// Sinks run while the controller lock is held and must not call back into the controller.
type ChatSessionController struct {
	log      *slog.Logger
	auth     contract.AuthService
	realtime contract.RealtimeService
	saver    contract.FileSaver
	exporter export.Exporter
	config   ControllerConfig
	now      func() time.Time

	mu       sync.Mutex
	session  *chat.Session
	channel  contract.Channel
	state    chat.SessionState
	input    string
	timeline *sink.Timeline
	presence *sink.Presence
	sinks    []contract.EventSink
	// generation is bumped on every teardown so callbacks from a replaced channel are ignored.
	generation      uint64
	unsubscribeAuth func()
}

func NewChatSessionController(
	log *slog.Logger,
	auth contract.AuthService,
	realtime contract.RealtimeService,
	saver contract.FileSaver,
	exporter export.Exporter,
	config ControllerConfig,
) *ChatSessionController {
	if config.ChannelName == "" {
		config.ChannelName = chat.DefaultChannelName
	}
	timeline := sink.NewTimeline()
	presence := sink.NewPresence()
	return &ChatSessionController{
		log:      log,
		auth:     auth,
		realtime: realtime,
		saver:    saver,
		exporter: exporter,
		config:   config,
		now:      time.Now,
		timeline: timeline,
		presence: presence,
		sinks:    []contract.EventSink{timeline, presence},
	}
}

// Add registers sinks notified after the controller's own projections.
func (c *ChatSessionController) Add(sinks ...contract.EventSink) *ChatSessionController {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sinks...)
	return c
}

// WithClock replaces the clock used to stamp outgoing messages.
func (c *ChatSessionController) WithClock(now func() time.Time) *ChatSessionController {
	c.now = now
	return c
}

// Start observes the current session and follows every later auth change.
// A failing session lookup is not fatal: the controller simply starts signed out.
func (c *ChatSessionController) Start(ctx context.Context) error {
	session, err := c.auth.CurrentSession(ctx)
	if err != nil {
		c.log.Warn("Could not read current session, starting signed out", "error", err)
		session = nil
	}
	c.OnAuthStateObserved(ctx, session)

	unsubscribe := c.auth.OnAuthStateChange(func(s *chat.Session) {
		c.OnAuthStateObserved(ctx, s)
	})
	c.mu.Lock()
	c.unsubscribeAuth = unsubscribe
	c.mu.Unlock()
	return nil
}

// OnAuthStateObserved replaces the current session. A nil session signs out:
// the channel is torn down and the conversation and presence are cleared.
// Observing the same user again (token refresh) keeps the open channel.
func (c *ChatSessionController) OnAuthStateObserved(ctx context.Context, session *chat.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.session
	c.session = session
	c.emitLocked(ctx, event.SessionChanged{Session: session})

	if session == nil {
		c.teardownLocked(ctx)
		c.state = chat.SignedOut
		c.emitLocked(ctx, event.ConversationCleared{})
		return
	}
	if c.channel != nil && previous.SameUser(session) {
		c.log.Debug("Session refreshed, keeping channel", "user_id", session.UserID)
		if previous.AccessToken != session.AccessToken {
			if err := c.channel.UpdateAccessToken(ctx, session.AccessToken); err != nil {
				c.log.Warn("Could not push refreshed token to channel", "channel", c.channel.Name(), "error", err)
			}
		}
		return
	}
	c.establishChannelLocked(ctx, session)
}

// EstablishChannel opens the single channel for session, tearing down any previous one.
func (c *ChatSessionController) EstablishChannel(ctx context.Context, session *chat.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session == nil {
		c.teardownLocked(ctx)
		return
	}
	c.establishChannelLocked(ctx, session)
}

func (c *ChatSessionController) establishChannelLocked(ctx context.Context, session *chat.Session) {
	if c.teardownLocked(ctx) {
		// Presence only ever reflects the active channel.
		c.emitLocked(ctx, event.PresenceSynced{Online: chat.PresenceSet{}})
	}
	generation := c.generation

	channel := c.realtime.OpenChannel(c.config.ChannelName, chat.ChannelOptions{
		PresenceKey:   session.UserID,
		BroadcastSelf: c.config.BroadcastSelf,
		AccessToken:   session.AccessToken,
	})
	channel.OnBroadcast(chat.MessageEvent, func(payload json.RawMessage) {
		c.onBroadcast(ctx, generation, payload)
	})
	channel.OnPresenceSync(func() {
		c.onPresenceSync(ctx, generation, channel)
	})
	c.channel = channel
	c.state = chat.SignedIn

	identity := chat.Tracked{ID: session.UserID}
	err := channel.Subscribe(ctx, func(status chat.SubscribeStatus, err error) {
		c.onStatus(ctx, generation, channel, identity, status, err)
	})
	if err != nil {
		c.log.Warn("Channel subscription failed", "channel", c.config.ChannelName, "error", err)
		c.emitLocked(ctx, event.ChannelStatusChanged{
			Channel: c.config.ChannelName,
			Status:  chat.StatusChannelError,
			Err:     err,
		})
		return
	}
	c.log.Debug("Channel opened", "channel", c.config.ChannelName, "user_id", session.UserID)
}

// teardownLocked is idempotent: without a channel it does nothing and returns false.
func (c *ChatSessionController) teardownLocked(ctx context.Context) bool {
	c.generation++
	if c.channel == nil {
		return false
	}
	channel := c.channel
	c.channel = nil
	if c.session != nil {
		c.state = chat.SignedIn
	} else {
		c.state = chat.SignedOut
	}
	if err := channel.Unsubscribe(ctx); err != nil {
		c.log.Debug("Channel unsubscribe failed", "channel", channel.Name(), "error", err)
	}
	return true
}

func (c *ChatSessionController) onBroadcast(ctx context.Context, generation uint64, payload json.RawMessage) {
	msg, err := chat.DecodeMessage(payload)
	if err != nil {
		c.log.Warn("Discarding malformed message payload", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.emitLocked(ctx, event.MessageReceived{Message: msg})
}

func (c *ChatSessionController) onPresenceSync(ctx context.Context, generation uint64, channel contract.Channel) {
	online := chat.NewPresenceSet(channel.PresenceState())
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.emitLocked(ctx, event.PresenceSynced{Online: online})
}

func (c *ChatSessionController) onStatus(
	ctx context.Context,
	generation uint64,
	channel contract.Channel,
	identity chat.Tracked,
	status chat.SubscribeStatus,
	err error,
) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}
	if status == chat.StatusSubscribed {
		c.state = chat.Subscribed
	} else {
		c.state = chat.SignedIn
		c.log.Warn("Channel left subscribed state", "channel", channel.Name(), "status", status, "error", err)
	}
	c.emitLocked(ctx, event.ChannelStatusChanged{Channel: channel.Name(), Status: status, Err: err})
	c.mu.Unlock()

	if status != chat.StatusSubscribed {
		return
	}
	if err := channel.Track(ctx, identity); err != nil {
		c.log.Warn("Presence track failed", "channel", channel.Name(), "error", err)
	}
}

// SendMessage publishes text on the owned channel and clears the input buffer whatever happens.
// Without a subscribed channel the message is dropped and ErrChannelUnavailable is returned.
// Delivery is not awaited; the sender only sees its message if the channel echoes it back.
func (c *ChatSessionController) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	c.input = ""
	msg := chat.NewChatMessage(text, c.session, c.now())
	channel := c.channel
	if channel == nil || c.state != chat.Subscribed {
		c.emitLocked(ctx, event.MessageDropped{Message: msg, Err: errors.ErrChannelUnavailable})
		c.mu.Unlock()
		return errors.ErrChannelUnavailable
	}
	c.mu.Unlock()

	err := channel.Send(ctx, chat.Broadcast{Event: chat.MessageEvent, Payload: msg})
	if err == nil {
		c.mu.Lock()
		c.emitLocked(ctx, event.MessagePublished{Message: msg})
		c.mu.Unlock()
		return nil
	}
	c.log.Warn("Message not delivered", "channel", channel.Name(), "error", err)
	err = fmt.Errorf("%w: %v", errors.ErrChannelUnavailable, err)
	c.mu.Lock()
	c.emitLocked(ctx, event.MessageDropped{Message: msg, Err: err})
	c.mu.Unlock()
	return err
}

// ExportConversation formats the visible conversation. It never touches the file system.
func (c *ChatSessionController) ExportConversation(format export.Format) (export.Blob, error) {
	return c.exporter.Export(c.timeline.Messages(), format)
}

// SaveConversation exports and hands the blob to the download surface.
func (c *ChatSessionController) SaveConversation(ctx context.Context, format export.Format) (string, error) {
	blob, err := c.ExportConversation(format)
	if err != nil {
		return "", err
	}
	path, err := c.saver.Save(ctx, blob.Data, blob.MIMEType, blob.Filename)
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", blob.Filename, err)
	}
	c.log.Info("Conversation exported", "path", path, "format", format)
	return path, nil
}

// SignIn returns the provider URL the user has to visit.
func (c *ChatSessionController) SignIn(ctx context.Context, provider string) (string, error) {
	authURL, err := c.auth.SignIn(ctx, provider)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrAuthFailure, err)
	}
	return authURL, nil
}

// SignOut asks the auth service to end the session. On failure nothing changes locally.
func (c *ChatSessionController) SignOut(ctx context.Context) error {
	if err := c.auth.SignOut(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAuthFailure, err)
	}
	// The auth service normally reports nil itself; this covers a provider that does not.
	if c.Session() != nil {
		c.OnAuthStateObserved(ctx, nil)
	}
	return nil
}

func (c *ChatSessionController) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

func (c *ChatSessionController) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *ChatSessionController) Session() *chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *ChatSessionController) State() chat.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ChatSessionController) Messages() []chat.ChatMessage {
	return c.timeline.Messages()
}

func (c *ChatSessionController) Presence() chat.PresenceSet {
	return c.presence.Snapshot()
}

// Close tears the channel down and stops following auth changes. Safe to call twice.
func (c *ChatSessionController) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(ctx)
	if c.unsubscribeAuth != nil {
		c.unsubscribeAuth()
		c.unsubscribeAuth = nil
	}
}

func (c *ChatSessionController) emitLocked(ctx context.Context, e event.DomainEvent) {
	for _, s := range c.sinks {
		if err := s.Consume(ctx, e); err != nil {
			c.log.Warn("Sink failed to consume event", "event", e.Kind(), "error", err)
		}
	}
}
