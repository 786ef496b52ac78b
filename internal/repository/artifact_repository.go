package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"medportal/internal/domain/artifact"
	portal_errors "medportal/pkg/errors"
)

const artifactColumns = `id, producer_id, recipient_id, title, description, content_type, content_key, content_url,
        content_sha256, size_bytes, metadata_uri, ledger_tx_id, mint_address, status, failure_reason, created_at, updated_at`

type artifactRepository struct {
	db  DBTX
	now func() time.Time
}

func NewArtifactRepository(db DBTX) ArtifactRepository {
	return &artifactRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row rowScanner) (artifact.Record, error) {
	var r artifact.Record
	err := row.Scan(
		&r.ID,
		&r.ProducerID,
		&r.RecipientID,
		&r.Title,
		&r.Description,
		&r.ContentType,
		&r.ContentKey,
		&r.ContentURL,
		&r.ContentSHA256,
		&r.SizeBytes,
		&r.MetadataURI,
		&r.LedgerTxID,
		&r.MintAddress,
		&r.Status,
		&r.FailureReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (r *artifactRepository) Create(ctx context.Context, rec *artifact.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := r.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO artifacts (`+artifactColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    `,
		rec.ID,
		rec.ProducerID,
		rec.RecipientID,
		rec.Title,
		rec.Description,
		rec.ContentType,
		rec.ContentKey,
		rec.ContentURL,
		rec.ContentSHA256,
		rec.SizeBytes,
		rec.MetadataURI,
		rec.LedgerTxID,
		rec.MintAddress,
		rec.Status,
		rec.FailureReason,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return portal_errors.ErrAlreadyExists
	}
	return err
}

func (r *artifactRepository) GetByID(ctx context.Context, id uuid.UUID) (artifact.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id)
	rec, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Record{}, portal_errors.ErrNotFound
	}
	return rec, err
}

func (r *artifactRepository) ListByRecipient(ctx context.Context, wallet string) ([]artifact.Record, error) {
	return r.list(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE recipient_id = $1 ORDER BY created_at DESC`, wallet)
}

func (r *artifactRepository) ListByProducer(ctx context.Context, wallet string) ([]artifact.Record, error) {
	return r.list(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE producer_id = $1 ORDER BY created_at DESC`, wallet)
}

func (r *artifactRepository) ListUnconfirmed(ctx context.Context, limit int) ([]artifact.Record, error) {
	return r.list(ctx, `
        SELECT `+artifactColumns+` FROM artifacts
        WHERE status = 'unconfirmed' AND next_attempt_at <= $1
          AND (reconcile_claimed_until IS NULL OR reconcile_claimed_until <= $1)
        ORDER BY next_attempt_at ASC, created_at ASC
        LIMIT $2
    `, r.now().UTC(), limit)
}

func (r *artifactRepository) ClaimReconcile(ctx context.Context, id uuid.UUID, until time.Time) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
        UPDATE artifacts
        SET reconcile_claimed_until = $2, reconcile_attempts = reconcile_attempts + 1
        WHERE id = $1 AND status = 'unconfirmed'
          AND (reconcile_claimed_until IS NULL OR reconcile_claimed_until <= $3)
        RETURNING reconcile_attempts
    `, id, until.UTC(), r.now().UTC()).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		rec, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		if rec.Status != artifact.StatusUnconfirmed {
			return 0, portal_errors.ErrInvalidTransition
		}
		return 0, portal_errors.ErrConflict
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *artifactRepository) ReleaseReconcile(ctx context.Context, id uuid.UUID, retryAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE artifacts
        SET reconcile_claimed_until = NULL, next_attempt_at = $2
        WHERE id = $1
    `, id, retryAt.UTC())
	return err
}

func (r *artifactRepository) list(ctx context.Context, query string, args ...interface{}) ([]artifact.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []artifact.Record{}
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *artifactRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status artifact.Status) (artifact.Record, error) {
	return r.mutate(ctx, id, func(rec *artifact.Record) error {
		return rec.Transition(status)
	})
}

func (r *artifactRepository) Reconfirm(ctx context.Context, id uuid.UUID, in ReconfirmInput) (artifact.Record, error) {
	return r.mutate(ctx, id, func(rec *artifact.Record) error {
		if rec.Status != artifact.StatusUnconfirmed {
			return portal_errors.ErrInvalidTransition
		}
		if err := rec.Transition(artifact.StatusCreated); err != nil {
			return err
		}
		rec.LedgerTxID = in.LedgerTxID
		rec.MintAddress = in.MintAddress
		if in.MetadataURI != "" {
			rec.MetadataURI = in.MetadataURI
		}
		rec.FailureReason = ""
		return nil
	})
}

// mutate locks the row, applies fn and writes back the mutable columns.
func (r *artifactRepository) mutate(ctx context.Context, id uuid.UUID, fn func(*artifact.Record) error) (artifact.Record, error) {
	var out artifact.Record
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		row := tx.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1 FOR UPDATE`, id)
		rec, err := scanArtifact(row)
		if errors.Is(err, sql.ErrNoRows) {
			return portal_errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		rec.UpdatedAt = r.now().UTC()

		_, err = tx.ExecContext(ctx, `
        UPDATE artifacts
        SET status = $2, metadata_uri = $3, ledger_tx_id = $4, mint_address = $5, failure_reason = $6, updated_at = $7
        WHERE id = $1
    `, rec.ID, rec.Status, rec.MetadataURI, rec.LedgerTxID, rec.MintAddress, rec.FailureReason, rec.UpdatedAt)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}
