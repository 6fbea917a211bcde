package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/keystone-ai/research-agent/internal/model"
)

const (
	// StreamName is the name of the turn-event stream.
	StreamName = "AGENT_EVENTS"

	// SubjectPrefix is the prefix for all turn-event subjects.
	SubjectPrefix = "agent"
)

// EventPublisher publishes turn progress events to JetStream so out-of-band
// consumers can observe tool activity. All methods are nil-receiver safe:
// when the event bus is not configured the publisher is simply absent.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher creates a publisher on an established client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// EnsureStream ensures the turn-event stream exists with proper configuration.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Agent turn progress events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a thread's turn events.
func EventSubject(threadID string, eventType model.TurnEventType) string {
	return fmt.Sprintf("%s.turns.%s.%s", SubjectPrefix, threadID, eventType)
}

// PublishTurnEvent publishes a turn event. A nil publisher discards the
// event; a publish failure is reported but callers treat it as advisory.
func (p *EventPublisher) PublishTurnEvent(ctx context.Context, event model.TurnEvent) error {
	if p == nil || p.client == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.client.JetStream().Publish(ctx, EventSubject(event.ThreadID, event.Type), data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
