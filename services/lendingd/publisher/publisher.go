// Package publisher streams committed lending events to NATS JetStream.
// Subjects follow lending.events.{kind}, where kind is the event type
// without its "lending." prefix.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"lendcore/native/lending"
)

const subjectPrefix = "lending.events."

// Stream is the subset of jetstream.JetStream used for publishing.
type Stream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Publisher queues events from the pool and publishes them from Run. Emit
// never blocks; events are dropped when the queue is full.
type Publisher struct {
	stream  Stream
	queue   chan Envelope
	logger  *slog.Logger
	clock   func() time.Time
	dropped atomic.Uint64
}

// New returns a publisher with a queue of size buffer.
func New(stream Stream, buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		stream: stream,
		queue:  make(chan Envelope, buffer),
		logger: logger.With(slog.String("component", "publisher")),
		clock:  time.Now,
	}
}

// Subject maps an event type onto its stream subject.
func Subject(eventType string) string {
	kind := strings.TrimPrefix(strings.TrimSpace(eventType), "lending.")
	if kind == "" {
		kind = "unknown"
	}
	return subjectPrefix + kind
}

// Emit enqueues ev for publishing.
func (p *Publisher) Emit(ev lending.Event) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       ev.EventType(),
		Attributes: ev.Attributes(),
		Timestamp:  p.clock().UTC(),
	}
	select {
	case p.queue <- env:
	default:
		p.dropped.Add(1)
		p.logger.Warn("publish queue full, dropping event", slog.String("type", env.Type))
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if p.stream == nil {
		return errors.New("publisher: stream not configured")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-p.queue:
			if err := p.publish(ctx, env); err != nil {
				// Downstream consumers can backfill from the journal.
				p.logger.Warn("publish failed", slog.String("id", env.ID), slog.String("type", env.Type), slog.Any("error", err))
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.stream.Publish(ctx, Subject(env.Type), data, jetstream.WithMsgID(env.ID))
	return err
}

// Connect dials NATS and opens a JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	conn, err := nats.Connect(url, nats.Name("lendingd"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open jetstream: %w", err)
	}
	return conn, js, nil
}

// EnsureStream creates or updates the stream capturing every lending subject.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, maxAge time.Duration) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{subjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     maxAge,
		Replicas:   1,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}
