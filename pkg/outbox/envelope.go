package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PayloadEnvelope wraps every loan event. EventID is the dedupe key consumers
// use; Data holds the event-specific payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     string          `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses raw into an envelope and checks that it carries an
// event id and a non-null payload.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, uuid.UUID, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return envelope, uuid.Nil, fmt.Errorf("invalid event id %q: %w", envelope.EventID, err)
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return envelope, eventID, fmt.Errorf("envelope %s has no payload", eventID)
	}
	return envelope, eventID, nil
}
