package nats

import (
	"context"
	"log/slog"
	"sync"
)

// LocalBus fans console events out to in-process subscribers. It is used when
// no NATS server is configured. Slow subscribers lose events instead of blocking publishers.
type LocalBus struct {
	mu     sync.Mutex
	subs   map[*localSub]struct{}
	closed bool
	logger *slog.Logger
}

type localSub struct {
	kind string
	ch   chan *ConsoleEvent
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		subs:   make(map[*localSub]struct{}),
		logger: logger,
	}
}

// PublishEvent delivers event to every matching subscriber.
func (b *LocalBus) PublishEvent(ctx context.Context, event *ConsoleEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.kind != "" && sub.kind != event.Kind {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping console event for slow subscriber", "id", event.ID, "kind", event.Kind)
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, kind string) (<-chan *ConsoleEvent, error) {
	sub := &localSub{kind: kind, ch: make(chan *ConsoleEvent, 64)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, nil
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()
	return sub.ch, nil
}

func (b *LocalBus) remove(sub *localSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Close ends every subscription.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	return nil
}
