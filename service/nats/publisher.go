package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/ultraswap/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamBus carries console events over NATS JetStream so every API
// instance and worker shares one console.
type JetStreamBus struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewJetStreamBus connects to NATS and ensures the stream exists.
func NewJetStreamBus(natsURL, clientName string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(clientName),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &JetStreamBus{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := bus.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS console bus initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return bus, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (b *JetStreamBus) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.js.Stream(ctx, StreamName); err == nil {
		b.logger.Debug("JetStream stream already exists", "stream", StreamName)
		return nil
	}

	b.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err := b.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Console output of swap, balance and import actions",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishEvent publishes one console event on its kind's subject.
func (b *JetStreamBus) PublishEvent(ctx context.Context, event *ConsoleEvent) error {
	subject := event.Subject()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal console event: %w", err)
	}

	start := time.Now()
	_, err = b.js.Publish(ctx, subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish console event: %w", err)
	}

	b.logger.Debug("published console event", "subject", subject, "id", event.ID)
	return nil
}

// Subscribe creates an ephemeral consumer delivering only events published from now on.
func (b *JetStreamBus) Subscribe(ctx context.Context, kind string) (<-chan *ConsoleEvent, error) {
	cons, err := b.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject:     SubjectFor(kind),
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *ConsoleEvent, 16)
	var mu sync.Mutex
	stopped := false

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer func() { _ = msg.Ack() }()

		var event ConsoleEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			b.logger.Warn("failed to unmarshal console event", "error", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case out <- &event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		stopped = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

// Close closes the connection to NATS.
func (b *JetStreamBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
		b.logger.Info("NATS console bus closed")
	}
	return nil
}
