package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medportal/internal/domain/artifact"
	"medportal/internal/events"
	"medportal/internal/idgen"
	"medportal/internal/identity"
	"medportal/internal/ledger"
	"medportal/internal/repository"
	"medportal/internal/storage"
	portal_errors "medportal/pkg/errors"
	"medportal/pkg/logger"
)

// ContentStore is the off-process blob store holding report content and
// metadata.
type ContentStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	FileURL(key string) string
}

type LedgerRegistrar interface {
	Register(ctx context.Context, entry ledger.Entry) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

type WorkflowStep string

const (
	StepUploadContent  WorkflowStep = "upload_content"
	StepUploadMetadata WorkflowStep = "upload_metadata"
	StepRegisterLedger WorkflowStep = "register_ledger"
	StepPersist        WorkflowStep = "persist"
)

// WorkflowError reports which step of artifact creation failed. Record is set
// when an unconfirmed placeholder was stored.
type WorkflowError struct {
	Step   WorkflowStep
	Err    error
	Record *artifact.Record
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("artifact workflow failed at %s: %v", e.Step, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

type CreateArtifactInput struct {
	ProducerID  string
	RecipientID string
	Title       string
	Description string
	ContentType string
	Content     []byte
}

type WorkflowConfig struct {
	MaxUploadBytes int64
	// SimulateOnFailure keeps an unconfirmed record when a step after the
	// content upload fails.
	SimulateOnFailure bool
	// ReconcileLease bounds how long one reconcile attempt holds a record.
	ReconcileLease time.Duration
}

const (
	defaultReconcileLease = 5 * time.Minute
	retryBaseDelay        = 30 * time.Second
	retryMaxDelay         = 30 * time.Minute
)

// retryDelay backs off exponentially with the number of failed attempts.
func retryDelay(attempts int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempts && delay < retryMaxDelay; i++ {
		delay *= 2
	}
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// ArtifactWorkflow uploads, registers and records a new artifact, then
// announces it on the bus.
type ArtifactWorkflow struct {
	store  ContentStore
	ledger LedgerRegistrar
	repo   repository.ArtifactRepository
	bus    Publisher
	cfg    WorkflowConfig
	log    *logger.Logger
	now    func() time.Time
}

func NewArtifactWorkflow(store ContentStore, registrar LedgerRegistrar, repo repository.ArtifactRepository, bus Publisher, cfg WorkflowConfig, log *logger.Logger) *ArtifactWorkflow {
	if cfg.ReconcileLease <= 0 {
		cfg.ReconcileLease = defaultReconcileLease
	}
	return &ArtifactWorkflow{
		store:  store,
		ledger: registrar,
		repo:   repo,
		bus:    bus,
		cfg:    cfg,
		log:    logger.OrNop(log).Named("artifact_workflow"),
		now:    time.Now,
	}
}

// Create runs the workflow. artifact_created is published only after every
// step succeeded and the record is stored with status created.
func (w *ArtifactWorkflow) Create(ctx context.Context, in CreateArtifactInput) (artifact.Record, error) {
	if err := w.validate(&in); err != nil {
		return artifact.Record{}, err
	}

	sum := sha256.Sum256(in.Content)
	rec := artifact.Record{
		ID:            uuid.New(),
		ProducerID:    in.ProducerID,
		RecipientID:   in.RecipientID,
		Title:         in.Title,
		Description:   in.Description,
		ContentType:   in.ContentType,
		ContentSHA256: hex.EncodeToString(sum[:]),
		SizeBytes:     int64(len(in.Content)),
		CreatedAt:     w.now().UTC(),
	}
	log := w.log.With(ctx).With(zap.String("record_id", rec.ID.String()))

	rec.ContentKey = storage.ContentKey(rec.ProducerID, rec.ID.String(), rec.ContentType)
	if err := w.store.PutObject(ctx, rec.ContentKey, rec.ContentType, in.Content); err != nil {
		log.Warn("content upload failed", zap.Error(err))
		return artifact.Record{}, &WorkflowError{Step: StepUploadContent, Err: err}
	}
	rec.ContentURL = w.store.FileURL(rec.ContentKey)

	if err := w.uploadMetadata(ctx, &rec); err != nil {
		return w.fail(ctx, rec, StepUploadMetadata, err)
	}

	txID, mint, err := w.register(ctx, rec)
	if err != nil {
		return w.fail(ctx, rec, StepRegisterLedger, err)
	}
	rec.LedgerTxID = txID
	rec.MintAddress = mint
	rec.Status = artifact.StatusCreated

	if err := w.repo.Create(ctx, &rec); err != nil {
		log.Error("failed to store registered artifact", zap.String("tx", txID), zap.Error(err))
		return w.fail(ctx, rec, StepPersist, err)
	}

	log.Info("artifact created", zap.String("tx", txID), zap.String("mint", mint))
	w.bus.Publish(ctx, events.ArtifactCreated{
		RecipientID: rec.RecipientID,
		ProducerID:  rec.ProducerID,
		Record:      rec,
	})
	return rec, nil
}

// Reconcile finishes an unconfirmed record: it uploads missing metadata,
// registers on the ledger unless a transaction id is already known, and
// stores the result. The record is claimed first so concurrent attempts
// cannot both register it. On success the record becomes created and is
// announced for the first time; on failure the next background retry is
// pushed back.
func (w *ArtifactWorkflow) Reconcile(ctx context.Context, rec artifact.Record) (artifact.Record, error) {
	if rec.Status != artifact.StatusUnconfirmed {
		return artifact.Record{}, portal_errors.ErrInvalidTransition
	}

	attempts, err := w.repo.ClaimReconcile(ctx, rec.ID, w.now().Add(w.cfg.ReconcileLease))
	if err != nil {
		return artifact.Record{}, err
	}
	log := w.log.With(ctx).With(zap.String("record_id", rec.ID.String()), zap.Int("attempt", attempts))

	updated, step, err := w.confirm(ctx, rec)
	if err != nil {
		retryAt := w.now().Add(retryDelay(attempts))
		log.Warn("reconcile attempt failed", zap.String("step", string(step)), zap.Time("retry_at", retryAt), zap.Error(err))
		if relErr := w.repo.ReleaseReconcile(context.WithoutCancel(ctx), rec.ID, retryAt); relErr != nil {
			log.Error("failed to release reconcile claim", zap.Error(relErr))
		}
		return artifact.Record{}, &WorkflowError{Step: step, Err: err}
	}

	log.Info("artifact reconciled", zap.String("tx", updated.LedgerTxID))
	w.bus.Publish(ctx, events.ArtifactCreated{
		RecipientID: updated.RecipientID,
		ProducerID:  updated.ProducerID,
		Record:      updated,
	})
	return updated, nil
}

func (w *ArtifactWorkflow) confirm(ctx context.Context, rec artifact.Record) (artifact.Record, WorkflowStep, error) {
	metadataURI := ""
	if rec.MetadataURI == "" {
		if err := w.uploadMetadata(ctx, &rec); err != nil {
			return artifact.Record{}, StepUploadMetadata, err
		}
		metadataURI = rec.MetadataURI
	}

	// A record stored after its registration keeps the original transaction.
	txID, mint := rec.LedgerTxID, rec.MintAddress
	if txID == "" {
		var err error
		if txID, mint, err = w.register(ctx, rec); err != nil {
			return artifact.Record{}, StepRegisterLedger, err
		}
	}

	updated, err := w.repo.Reconfirm(ctx, rec.ID, repository.ReconfirmInput{
		LedgerTxID:  txID,
		MintAddress: mint,
		MetadataURI: metadataURI,
	})
	if err != nil {
		return artifact.Record{}, StepPersist, err
	}
	return updated, "", nil
}

func (w *ArtifactWorkflow) validate(in *CreateArtifactInput) error {
	in.ProducerID = strings.TrimSpace(in.ProducerID)
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if err := identity.ValidateAddress(in.ProducerID); err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	if err := identity.ValidateAddress(in.RecipientID); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if in.Title == "" || len(in.Title) > 200 {
		return fmt.Errorf("title: %w", portal_errors.ErrInvalidInput)
	}
	if len(in.Content) == 0 {
		return portal_errors.ErrNotUploaded
	}
	if w.cfg.MaxUploadBytes > 0 && int64(len(in.Content)) > w.cfg.MaxUploadBytes {
		return portal_errors.ErrTooLarge
	}
	if err := storage.ValidateContentType(in.ContentType); err != nil {
		return fmt.Errorf("%w: %v", portal_errors.ErrInvalidInput, err)
	}
	return nil
}

func (w *ArtifactWorkflow) uploadMetadata(ctx context.Context, rec *artifact.Record) error {
	body, err := json.Marshal(artifact.NewMetadata(*rec))
	if err != nil {
		return err
	}
	key := storage.MetadataKey(rec.ProducerID, rec.ID.String())
	if err := w.store.PutObject(ctx, key, "application/json", body); err != nil {
		return err
	}
	rec.MetadataURI = w.store.FileURL(key)
	return nil
}

func (w *ArtifactWorkflow) register(ctx context.Context, rec artifact.Record) (txID, mint string, err error) {
	mint, err = idgen.MintAddress()
	if err != nil {
		return "", "", err
	}
	txID, err = w.ledger.Register(ctx, ledger.Entry{
		RecordID:      rec.ID.String(),
		MintAddress:   mint,
		ProducerID:    rec.ProducerID,
		RecipientID:   rec.RecipientID,
		ContentSHA256: rec.ContentSHA256,
		MetadataURI:   rec.MetadataURI,
	})
	if err != nil {
		return "", "", err
	}
	return txID, mint, nil
}

// fail handles a failure after the content reached the store. Nothing is
// published. With simulation enabled an unconfirmed record is kept so the
// dashboards still show the upload; a record that already reached the ledger
// keeps its transaction id and real mint address.
func (w *ArtifactWorkflow) fail(ctx context.Context, rec artifact.Record, step WorkflowStep, cause error) (artifact.Record, error) {
	log := w.log.With(ctx).With(zap.String("record_id", rec.ID.String()), zap.String("step", string(step)))
	log.Warn("artifact workflow step failed", zap.Error(cause))

	wfErr := &WorkflowError{Step: step, Err: cause}
	if !w.cfg.SimulateOnFailure {
		return artifact.Record{}, wfErr
	}

	if rec.LedgerTxID == "" {
		mint, err := idgen.SimulatedMintAddress()
		if err != nil {
			log.Error("failed to generate simulated mint address", zap.Error(err))
			return artifact.Record{}, wfErr
		}
		rec.MintAddress = mint
	}
	rec.Status = artifact.StatusUnconfirmed
	rec.FailureReason = fmt.Sprintf("%s: %v", step, cause)
	if err := w.repo.Create(ctx, &rec); err != nil {
		log.Error("failed to store unconfirmed artifact", zap.Error(err))
		return artifact.Record{}, wfErr
	}

	log.Info("unconfirmed artifact stored", zap.String("mint", rec.MintAddress), zap.String("tx", rec.LedgerTxID))
	wfErr.Record = &rec
	return rec, wfErr
}
