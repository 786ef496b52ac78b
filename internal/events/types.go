package events

import (
	"github.com/google/uuid"

	"medportal/internal/domain/artifact"
)

// EventName identifies a kind of event on the bus.
type EventName string

const (
	ArtifactCreatedName       EventName = "artifact_created"
	ArtifactStatusUpdatedName EventName = "artifact_status_updated"
)

func (n EventName) Valid() bool {
	switch n {
	case ArtifactCreatedName, ArtifactStatusUpdatedName:
		return true
	}
	return false
}

// Event is implemented by one struct per EventName. Consumers type-switch on
// the concrete type to read its fields.
type Event interface {
	Name() EventName
}

// ArtifactCreated is published once a record is durably registered.
type ArtifactCreated struct {
	RecipientID string          `json:"recipient_id"`
	ProducerID  string          `json:"producer_id"`
	Record      artifact.Record `json:"record"`
}

func (ArtifactCreated) Name() EventName { return ArtifactCreatedName }

// ArtifactStatusUpdated is published when an existing record changes status.
type ArtifactStatusUpdated struct {
	RecordID  uuid.UUID       `json:"record_id"`
	NewStatus artifact.Status `json:"new_status"`
	Record    artifact.Record `json:"record"`
}

func (ArtifactStatusUpdated) Name() EventName { return ArtifactStatusUpdatedName }

// Concerns reports whether ev touches the given wallet as producer or
// recipient.
func Concerns(ev Event, wallet string) (producer, recipient bool) {
	switch e := ev.(type) {
	case ArtifactCreated:
		return e.ProducerID == wallet, e.RecipientID == wallet
	case ArtifactStatusUpdated:
		return e.Record.ProducerID == wallet, e.Record.RecipientID == wallet
	}
	return false, false
}
