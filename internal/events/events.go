package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stream is the Redis stream terminal transitions are appended to.
const Stream = "earshot:events"

// Event types carried on the stream.
const (
	TypeEpisodeReady    = "episode.ready"
	TypeEpisodeFailed   = "episode.failed"
	TypeEpisodeArchived = "episode.archived"
	TypeUserDeleted     = "user.deleted"
)

// EpisodePayload is the data of episode.* events.
type EpisodePayload struct {
	EpisodeID string `json:"episode_id"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// UserPayload is the data of user.* events.
type UserPayload struct {
	UserID string `json:"user_id"`
}

// Envelope is the canonical message wrapper persisted to the stream.
// Attempt is stamped by the consumer from the group's delivery count; it is
// zero at publish time.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Attempt    int             `json:"attempt"`
	Data       json.RawMessage `json:"data"`
}

// ValidateBasic ensures mandatory envelope fields are present.
func (e *Envelope) ValidateBasic() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Attempt < 0 {
		return fmt.Errorf("attempt must be >= 0")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("data payload is required")
	}
	return nil
}

// Marshal returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope parses JSON bytes into an Envelope and validates required fields.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}
