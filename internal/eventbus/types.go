package eventbus

import "context"

// Event is one progress/log notification published by a Coordinator after
// each state transition or counter change, pushed onto the event stream if
// a subscriber is attached.
type Event struct {
	Topic   string `json:"topic"`   // session_id the event belongs to
	Key     string `json:"key"`     // partition key, typically the session_id
	Payload any    `json:"payload"` // e.g. core.Progress, core.LogEntry
}

// Handler processes one Event. A returned error is logged by the bus and
// never propagates to the publisher.
type Handler func(event *Event) error

// Subscriber pairs a topic with its handler, used by batch-subscribe callers.
type Subscriber struct {
	Topic   string
	Handler Handler
}

// partition is one worker lane of the partitioned bus.
type partition struct {
	id      int
	queue   chan *Event
	ctx     context.Context
	cancel  context.CancelFunc
	handler Handler
}
