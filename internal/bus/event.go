package bus

import "time"

// Event is a session event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds.
const (
	KindStatusChanged       = "session.status_changed"
	KindConversationUpdated = "conversation.updated"
	KindConversationReset   = "conversation.reset"
	KindUnreadChanged       = "unread.changed"
	KindContactsChanged     = "contacts.changed"
	KindSearchResults       = "contacts.search_results"
	KindTransportConnected  = "transport.connected"
	KindTransportDown       = "transport.disconnected"
	KindSendFailed          = "message.send_failed"
)
