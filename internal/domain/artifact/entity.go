package artifact

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a medical report artifact.
type Status string

const (
	// StatusCreated is a record whose ledger registration was confirmed.
	StatusCreated Status = "created"
	// StatusUnconfirmed is a locally simulated record; the ledger never
	// acknowledged it.
	StatusUnconfirmed Status = "unconfirmed"
	StatusFailed      Status = "failed"
	StatusReviewed    Status = "reviewed"
	StatusRevoked     Status = "revoked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusUnconfirmed, StatusFailed, StatusReviewed, StatusRevoked:
		return true
	}
	return false
}

// Confirmed reports whether the record is backed by a ledger transaction.
func (s Status) Confirmed() bool {
	switch s {
	case StatusCreated, StatusReviewed, StatusRevoked:
		return true
	}
	return false
}

// Record represents artifacts
type Record struct {
	ID            uuid.UUID `json:"id"`
	ProducerID    string    `json:"producer_id"`
	RecipientID   string    `json:"recipient_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	ContentType   string    `json:"content_type"`
	ContentKey    string    `json:"content_key"`
	ContentURL    string    `json:"content_url,omitempty"`
	ContentSHA256 string    `json:"content_sha256"`
	SizeBytes     int64     `json:"size_bytes"`
	MetadataURI   string    `json:"metadata_uri,omitempty"`
	LedgerTxID    string    `json:"ledger_tx_id,omitempty"`
	MintAddress   string    `json:"mint_address"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Record) TableName() string {
	return "artifacts"
}

// Metadata is the descriptor uploaded next to the content, in the shape NFT
// tooling expects.
type Metadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Image       string              `json:"image,omitempty"`
	Properties  MetadataProperties  `json:"properties"`
	Attributes  []MetadataAttribute `json:"attributes"`
}

type MetadataProperties struct {
	Files    []MetadataFile `json:"files"`
	Category string         `json:"category"`
}

type MetadataFile struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// NewMetadata builds the descriptor for r. ContentURL must already be set.
func NewMetadata(r Record) Metadata {
	return Metadata{
		Name:        r.Title,
		Description: r.Description,
		Image:       r.ContentURL,
		Properties: MetadataProperties{
			Files:    []MetadataFile{{URI: r.ContentURL, Type: r.ContentType}},
			Category: "medical_report",
		},
		Attributes: []MetadataAttribute{
			{TraitType: "producer", Value: r.ProducerID},
			{TraitType: "recipient", Value: r.RecipientID},
			{TraitType: "sha256", Value: r.ContentSHA256},
			{TraitType: "issued_at", Value: r.CreatedAt.UTC().Format(time.RFC3339)},
		},
	}
}
