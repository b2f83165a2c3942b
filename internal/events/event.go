package events

import "time"

// Kinds published by the client. Subscribers match on prefix, so "toast."
// receives both toast kinds.
const (
	ToastError           = "toast.error"
	ToastInfo            = "toast.info"
	SessionLogout        = "session.logout"
	ConversationRedirect = "conversation.redirect"
)

// Event is one client-side notification.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Toast is the payload of the toast kinds.
type Toast struct {
	Title   string
	Message string
}

// Redirect asks the view to replace its route with the given conversation.
type Redirect struct {
	ConversationID uint
}
