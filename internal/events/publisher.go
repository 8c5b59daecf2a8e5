// Package events carries dialer notifications to observers.
package events

import "time"

// Event names pushed to observers.
const (
	CallUpdate   = "callUpdate"
	CallEnded    = "callEnded"
	BulkStatus   = "bulkCallStatus"
	BulkProgress = "bulkProgress"
	BulkComplete = "bulkComplete"
	JobScheduled = "jobScheduled"
	CallsCleared = "callsCleared"
)

// Publisher broadcasts a named event. Implementations must not block the caller.
type Publisher interface {
	Publish(event string, payload any)
}

// Event is one published notification.
type Event struct {
	Name       string    `json:"event"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Keyed payloads provide a partitioning key for ordered transports.
type Keyed interface {
	EventKey() string
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event string, payload any)

// Publish calls f.
func (f PublisherFunc) Publish(event string, payload any) { f(event, payload) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(string, any) {})

type fanout []Publisher

// Fanout returns a Publisher that forwards to every non-nil publisher in order.
func Fanout(pubs ...Publisher) Publisher {
	out := make(fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f fanout) Publish(event string, payload any) {
	for _, p := range f {
		p.Publish(event, payload)
	}
}
