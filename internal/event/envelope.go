package event

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeCollateralDeposited
	EventTypeCollateralRedeemed
	EventTypeDebtIssued
	EventTypeDebtRepaid
	EventTypePositionLiquidated
)

func (et EventType) String() string {
	switch et {
	case EventTypeCollateralDeposited:
		return "CollateralDeposited"
	case EventTypeCollateralRedeemed:
		return "CollateralRedeemed"
	case EventTypeDebtIssued:
		return "DebtIssued"
	case EventTypeDebtRepaid:
		return "DebtRepaid"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, error) {
	for et := EventTypeCollateralDeposited; et <= EventTypePositionLiquidated; et++ {
		if et.String() == s {
			return et, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown event type %q", s)
}

func (et EventType) MarshalText() ([]byte, error) {
	return []byte(et.String()), nil
}

func (et *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*et = v
	return nil
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// Users returns the position owners whose state the event changed
	Users() []uuid.UUID
}

func newEvent(et EventType) (Event, error) {
	switch et {
	case EventTypeCollateralDeposited:
		return &CollateralDeposited{}, nil
	case EventTypeCollateralRedeemed:
		return &CollateralRedeemed{}, nil
	case EventTypeDebtIssued:
		return &DebtIssued{}, nil
	case EventTypeDebtRepaid:
		return &DebtRepaid{}, nil
	case EventTypePositionLiquidated:
		return &PositionLiquidated{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %d", et)
	}
}

// Hash is a SHA-256 state hash. It encodes as lowercase hex.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("state hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("state hash: got %d bytes, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

// Envelope wraps the events of one committed operation
type Envelope struct {
	// Global monotonic sequence assigned on commit
	Sequence int64

	// Request id supplied by the caller (or generated)
	IdempotencyKey string

	// Operation name, e.g. "deposit" or "liquidate"
	Operation string

	// Account that invoked the operation
	Caller uuid.UUID

	Timestamp time.Time

	// SHA-256 of state AFTER applying this operation
	StateHash Hash

	// Previous operation's state hash (chain integrity)
	PrevHash Hash

	Events []Event
}

type wireEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireEnvelope struct {
	Sequence       int64       `json:"sequence"`
	IdempotencyKey string      `json:"idempotency_key"`
	Operation      string      `json:"operation"`
	Caller         uuid.UUID   `json:"caller"`
	Timestamp      time.Time   `json:"timestamp"`
	StateHash      Hash        `json:"state_hash"`
	PrevHash       Hash        `json:"prev_hash"`
	Events         []wireEvent `json:"events"`
}

// MarshalJSON tags each event with its type so the envelope can be decoded
// without knowing the payload types in advance.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		Sequence:       e.Sequence,
		IdempotencyKey: e.IdempotencyKey,
		Operation:      e.Operation,
		Caller:         e.Caller,
		Timestamp:      e.Timestamp,
		StateHash:      e.StateHash,
		PrevHash:       e.PrevHash,
		Events:         make([]wireEvent, 0, len(e.Events)),
	}
	for _, evt := range e.Events {
		data, err := json.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
		}
		w.Events = append(w.Events, wireEvent{Type: evt.EventType(), Data: data})
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	events := make([]Event, 0, len(w.Events))
	for _, we := range w.Events {
		evt, err := newEvent(we.Type)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(we.Data, evt); err != nil {
			return fmt.Errorf("decode %s: %w", we.Type, err)
		}
		events = append(events, evt)
	}
	*e = Envelope{
		Sequence:       w.Sequence,
		IdempotencyKey: w.IdempotencyKey,
		Operation:      w.Operation,
		Caller:         w.Caller,
		Timestamp:      w.Timestamp,
		StateHash:      w.StateHash,
		PrevHash:       w.PrevHash,
		Events:         events,
	}
	return nil
}

// Users returns every user touched by the envelope's events, deduplicated,
// in first-seen order.
func (e *Envelope) Users() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, evt := range e.Events {
		for _, u := range evt.Users() {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
