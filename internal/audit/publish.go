package audit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Pub/Sub channel events are published on.
const DefaultChannel = "warden.events"

const defaultPublishTimeout = 2 * time.Second

// Envelope wraps an event for the Redis event bus.
type Envelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// Message is a domain event published on the same bus as audit events, such
// as a request for the notification service to send an email.
type Message struct {
	Event     string
	Timestamp time.Time
	Payload   any
}

// MessageEnvelope wraps a Message for the Redis event bus. It has the same
// shape as Envelope so subscribers can route on the event field.
type MessageEnvelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Publisher is the subset of a Redis client needed to publish.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublishSink publishes events as JSON envelopes over Redis Pub/Sub.
// Publishing is fire-and-forget: failures are counted and logged, never
// returned to the caller.
type RedisPublishSink struct {
	client  Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
	failed  atomic.Uint64
}

func NewRedisPublishSink(client Publisher, channel string, logger *slog.Logger) *RedisPublishSink {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisPublishSink{
		client:  client,
		channel: channel,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}
}

// NewEnvelope stamps event with a ULID taken at the event timestamp.
func NewEnvelope(event Event) (Envelope, error) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(ts), rand.Reader)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        id.String(),
		Event:     event.EventType,
		Timestamp: ts,
		Payload:   event,
	}, nil
}

func (s *RedisPublishSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.client == nil {
		return
	}

	env, err := NewEnvelope(event)
	if err != nil {
		s.fail(ctx, event, err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.fail(ctx, event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.fail(ctx, event, err)
	}
}

// Failed returns the number of events that could not be published.
func (s *RedisPublishSink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

func (s *RedisPublishSink) fail(ctx context.Context, event Event, err error) {
	s.failed.Add(1)
	s.logger.WarnContext(ctx, "audit publish failed",
		slog.String("channel", s.channel),
		slog.String("event", event.EventType),
		slog.Any("error", err),
	)
}

// Notify publishes msg and reports whether Redis accepted it. Unlike Emit,
// failures are returned: a lost notification is visible to the caller.
func (s *RedisPublishSink) Notify(ctx context.Context, msg Message) error {
	if s == nil || s.client == nil {
		return errors.New("event bus is not configured")
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(ts), rand.Reader)
	if err != nil {
		return err
	}
	data, err := json.Marshal(MessageEnvelope{
		ID:        id.String(),
		Event:     msg.Event,
		Timestamp: ts,
		Payload:   msg.Payload,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.failed.Add(1)
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", s.channel),
			slog.String("event", msg.Event),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
