package proto

// Pusher protocol event names (protocol version 7).
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventError                 = "pusher:error"

	EventSubscribe             = "pusher:subscribe"
	EventUnsubscribe           = "pusher:unsubscribe"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"

	EventMemberAdded   = "pusher_internal:member_added"
	EventMemberRemoved = "pusher_internal:member_removed"

	EventPing = "pusher:ping"
	EventPong = "pusher:pong"

	EventSignin = "pusher:signin"
)

// ClientEventPrefix marks events originated by a subscriber and relayed by
// the broker to other subscribers on the same channel.
const ClientEventPrefix = "client-"
