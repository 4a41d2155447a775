package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried in the envelope.
const (
	EventSavingRecorded          = "saving.recorded"
	EventReconciliationCompleted = "reconciliation.completed"
)

// Event is the envelope of every message on the savings queue.
// ID is unique per event and doubles as the AMQP message id.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SavingRecordedMessage reports one ledger entry applied to a user's total.
type SavingRecordedMessage struct {
	UserID      string    `json:"user_id"`
	Month       string    `json:"month"`
	SavingCents int64     `json:"saving_cents"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ReconciliationCompletedMessage summarizes a run.
type ReconciliationCompletedMessage struct {
	Month        string    `json:"month"`
	Policy       string    `json:"policy"`
	Status       string    `json:"status"`
	Processed    int       `json:"processed"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Repaired     int       `json:"repaired"`
	RepairFailed int       `json:"repair_failed"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(eventType, runID string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON parses an envelope. Events without id or type are rejected.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" || e.Type == "" {
		return nil, errors.New("event without id or type")
	}
	return &e, nil
}

// DecodePayload unmarshals the payload into v.
func (e *Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
