package core

import "fmt"

// EventType is the closed set of change notifications the engine publishes.
// Subscribers are expected to switch exhaustively over these three values.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is broadcast to every other live context (tab, popup, background
// worker) after the engine changes a record. Delivery is best-effort,
// at-most-once per context; EventID is the deduplication key.
type Event struct {
	EventID   string    `json:"eventId"`
	Type      EventType `json:"type"`
	Kind      Kind      `json:"recordKind"`
	ID        string    `json:"id"`
	ParentRef string    `json:"parentRef,omitempty"`
}

// Topic renders the event's routing key, "{kind}/{parentRef}". Subscription
// filters match against it.
func (e Event) Topic() string {
	return string(e.Kind) + "/" + e.ParentRef
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Kind, e.ID)
}
