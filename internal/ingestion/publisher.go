package ingestion

import (
	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// streamPublisher is the subset of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed events to NATS for downstream
// consumers. Subjects follow the pattern synth.ledger.events.{event_type}.
type OutboundPublisher struct {
	js        streamPublisher
	inputChan <-chan engine.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
}

// PublishableEvent is one committed event in its outbound wire form.
type PublishableEvent struct {
	Sequence       int64       `json:"sequence"`
	Index          int         `json:"index"`
	EventType      string      `json:"event_type"`
	Operation      string      `json:"operation"`
	IdempotencyKey string      `json:"idempotency_key"`
	Caller         uuid.UUID   `json:"caller"`
	Payload        event.Event `json:"payload"`
	StateHash      event.Hash  `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js streamPublisher, inputChan <-chan engine.Output, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			for _, evt := range Publishable(out) {
				if err := op.publish(ctx, evt); err != nil {
					// Non-fatal: downstream consumers can read the event log.
					op.log.Warn().Err(err).Int64("sequence", evt.Sequence).Str("event_type", evt.EventType).Msg("outbound publish failed")
					if op.metrics != nil {
						op.metrics.PublishErrors.Inc()
					}
				}
			}
		}
	}
}

// Publishable flattens an output into one message per event.
func Publishable(out engine.Output) []PublishableEvent {
	env := out.Envelope
	msgs := make([]PublishableEvent, 0, len(env.Events))
	for i, e := range env.Events {
		msgs = append(msgs, PublishableEvent{
			Sequence:       env.Sequence,
			Index:          i,
			EventType:      e.EventType().String(),
			Operation:      env.Operation,
			IdempotencyKey: env.IdempotencyKey,
			Caller:         env.Caller,
			Payload:        e,
			StateHash:      env.StateHash,
			Timestamp:      env.Timestamp,
		})
	}
	return msgs
}

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return LedgerSubjectPrefix + eventType
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// The message id lets the stream drop republished events after a restart.
	msgID := fmt.Sprintf("%d-%d", evt.Sequence, evt.Index)
	_, err = op.js.Publish(ctx, Subject(evt.EventType), data, jetstream.WithMsgID(msgID))
	return err
}
