package bus

import "time"

// Event kinds published by the daemon components.
const (
	KindSocketState          = "socket.state_changed"
	KindSessionChanged       = "auth.session_changed"
	KindLoggedOut            = "auth.logged_out"
	KindConversationsChanged = "engine.conversations_changed"
	KindConnectionChanged    = "engine.connection_changed"
	KindSyncFailed           = "engine.sync_failed"
	KindReceiptSent          = "receipt.sent"
	KindReceiptFailed        = "receipt.failed"
)

// Event is a notification published on the bus. Payload is owned by the
// publisher's package; subscribers type-assert on Kind.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
