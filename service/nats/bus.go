package nats

import (
	"context"
	"time"
)

const (
	// StreamName is the name of the JetStream stream for console events.
	StreamName = "CONSOLE"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "console.>"

	// StreamRetention is how long console events are retained.
	StreamRetention = 24 * time.Hour

	subjectPrefix = "console."
)

// Publisher sends console events.
type Publisher interface {
	PublishEvent(ctx context.Context, event *ConsoleEvent) error
	Close() error
}

// Subscriber delivers console events of one kind, or all kinds when kind is empty,
// until ctx is done. The returned channel is closed when delivery stops.
type Subscriber interface {
	Subscribe(ctx context.Context, kind string) (<-chan *ConsoleEvent, error)
}

// Bus both publishes and subscribes.
type Bus interface {
	Publisher
	Subscriber
}
