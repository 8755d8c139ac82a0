package chat

import "encoding/json"

// DefaultChannelName is the single shared room every client joins.
const DefaultChannelName = "room_one"

// MessageEvent is the broadcast event name carrying ChatMessage payloads.
const MessageEvent = "message"

// SubscribeStatus is reported by a channel while joining and afterwards.
type SubscribeStatus string

const (
	StatusSubscribed   SubscribeStatus = "SUBSCRIBED"
	StatusChannelError SubscribeStatus = "CHANNEL_ERROR"
	StatusTimedOut     SubscribeStatus = "TIMED_OUT"
	StatusClosed       SubscribeStatus = "CLOSED"
)

// ChannelOptions configures a channel before it is joined.
type ChannelOptions struct {
	PresenceKey   string
	BroadcastSelf bool
	AccessToken   string
}

// Broadcast is a fire-and-forget event published to every subscriber of a channel.
type Broadcast struct {
	Event   string
	Payload any
}

// Tracked is the identity announced to presence once subscribed.
type Tracked struct {
	ID string `json:"id"`
}

// DecodeMessage reads a ChatMessage out of a broadcast payload.
func DecodeMessage(raw json.RawMessage) (ChatMessage, error) {
	var msg ChatMessage
	err := json.Unmarshal(raw, &msg)
	return msg, err
}
