package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medportal/internal/domain/artifact"
)

type ArtifactRepository interface {
	Create(ctx context.Context, r *artifact.Record) error
	GetByID(ctx context.Context, id uuid.UUID) (artifact.Record, error)
	ListByRecipient(ctx context.Context, wallet string) ([]artifact.Record, error)
	ListByProducer(ctx context.Context, wallet string) ([]artifact.Record, error)
	// ListUnconfirmed returns unconfirmed records that are due for a retry and
	// not claimed, least recently scheduled first.
	ListUnconfirmed(ctx context.Context, limit int) ([]artifact.Record, error)
	// ClaimReconcile reserves an unconfirmed record for one reconcile attempt
	// until the given time and returns the attempt number. ErrConflict means
	// another attempt holds the claim.
	ClaimReconcile(ctx context.Context, id uuid.UUID, until time.Time) (int, error)
	// ReleaseReconcile drops the claim after a failed attempt and schedules
	// the next background retry.
	ReleaseReconcile(ctx context.Context, id uuid.UUID, retryAt time.Time) error

	// UpdateStatus moves a record to status, enforcing the lifecycle rules
	// against the stored row.
	UpdateStatus(ctx context.Context, id uuid.UUID, status artifact.Status) (artifact.Record, error)
	// Reconfirm marks an unconfirmed record as registered on the ledger.
	Reconfirm(ctx context.Context, id uuid.UUID, in ReconfirmInput) (artifact.Record, error)
}

type ReconfirmInput struct {
	LedgerTxID  string
	MintAddress string
	// MetadataURI replaces the stored value when non-empty.
	MetadataURI string
}
