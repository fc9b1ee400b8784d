package journal

import "time"

// Event tells dependent views that a user's trade list or sync status
// changed. It carries no trades: receivers re-read the store.
type Event struct {
	UserID  string    `json:"userId"`
	Version uint64    `json:"version"`
	Status  Status    `json:"status"`
	Error   string    `json:"error,omitempty"`
	Count   int       `json:"count"`
	At      time.Time `json:"at"`
}

// Publisher receives store change events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e Event) {
	f(e)
}
