package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the JSON form of a bus event. Dashboard snapshots carry the
// envelope of the event that triggered them.
type Envelope struct {
	EventType   EventName       `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

func NewEnvelope(ev Event, at time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	env := Envelope{
		EventType:  ev.Name(),
		OccurredAt: at,
		Payload:    payload,
	}
	switch e := ev.(type) {
	case ArtifactCreated:
		env.AggregateID = e.Record.ID.String()
	case ArtifactStatusUpdated:
		env.AggregateID = e.RecordID.String()
	}
	return env, nil
}
