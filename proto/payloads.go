package proto

// ConnectionEstablishedData is the payload of pusher:connection_established.
type ConnectionEstablishedData struct {
	SocketID        string  `json:"socket_id"`
	ActivityTimeout float64 `json:"activity_timeout"`
}

// ErrorData is the payload of pusher:error. Reverb sets a numeric code in
// the 4000-4399 range for connection and subscription failures.
type ErrorData struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// SubscriptionSucceededData is the payload of
// pusher_internal:subscription_succeeded. Presence rosters arrive either as
// a flat {"hash": ...} or nested under a "presence" object depending on the
// broker; Roster handles both.
type SubscriptionSucceededData struct {
	Hash     map[string]any `json:"hash,omitempty"`
	Presence *PresenceData  `json:"presence,omitempty"`
}

type PresenceData struct {
	Count int            `json:"count,omitempty"`
	IDs   []string       `json:"ids,omitempty"`
	Hash  map[string]any `json:"hash,omitempty"`
}

// Roster returns the member hash regardless of which envelope form carried it.
func (d SubscriptionSucceededData) Roster() map[string]any {
	if d.Presence != nil && d.Presence.Hash != nil {
		return d.Presence.Hash
	}
	return d.Hash
}

// MemberData is the payload of pusher_internal:member_added and
// pusher_internal:member_removed.
type MemberData struct {
	UserID   string `json:"user_id"`
	UserInfo any    `json:"user_info,omitempty"`
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

// Subscribe builds a pusher:subscribe message. auth and channelData are
// empty for public channels; channelData is set only for presence channels.
func Subscribe(channel, auth, channelData string) Message {
	return Message{
		Event: EventSubscribe,
		Data:  subscribeData{Channel: channel, Auth: auth, ChannelData: channelData},
	}
}

// Unsubscribe builds a pusher:unsubscribe message.
func Unsubscribe(channel string) Message {
	return Message{Event: EventUnsubscribe, Data: unsubscribeData{Channel: channel}}
}

// Ping builds a pusher:ping message.
func Ping() Message {
	return Message{Event: EventPing, Data: map[string]any{}}
}

// Pong builds a pusher:pong message with an empty data object.
func Pong() Message {
	return Message{Event: EventPong, Data: map[string]any{}}
}

// ClientEvent builds a client event message. The caller is responsible for
// the client- prefix.
func ClientEvent(channel, event string, data any) Message {
	return Message{Event: event, Channel: channel, Data: data}
}
