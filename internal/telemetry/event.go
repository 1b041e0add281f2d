package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the registry.
const (
	EventUnionRegistered    = "union_registered"
	EventUnionDecided       = "union_decided"
	EventFilingSubmitted    = "filing_submitted"
	EventDisclosureUpdated  = "disclosure_updated"
	EventVerificationIssued = "verification_code_issued"
	EventIdentityVerified   = "identity_verified"
)

// Event is a domain event published for downstream consumers (Kafka topic, OTel logs, Loki).
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	ActorID   string         `json:"actor_id,omitempty"`
	UnionID   string         `json:"union_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent returns an event of the given type stamped with a new id and the current time.
func NewEvent(eventType, source string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// With sets a metadata key and returns e for chaining.
func (e *Event) With(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}
