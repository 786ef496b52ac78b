package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medportal/internal/domain/artifact"
	"medportal/internal/events"
	"medportal/internal/identity"
	"medportal/internal/proxy"
	"medportal/internal/repository"
	portal_errors "medportal/pkg/errors"
	"medportal/pkg/logger"
)

type ListCache interface {
	Get(ctx context.Context, role identity.Role, wallet string) ([]artifact.Record, bool, error)
	Set(ctx context.Context, role identity.Role, wallet string, records []artifact.Record) error
	Invalidate(ctx context.Context, r artifact.Record) error
}

type ArtifactService struct {
	repo     repository.ArtifactRepository
	cache    ListCache
	workflow *ArtifactWorkflow
	bus      Publisher
	access   *proxy.AccessControl
	log      *logger.Logger
}

// NewArtifactService builds the read and lifecycle side of artifacts. cache may
// be nil.
func NewArtifactService(repo repository.ArtifactRepository, cache ListCache, workflow *ArtifactWorkflow, bus Publisher, log *logger.Logger) *ArtifactService {
	return &ArtifactService{
		repo:     repo,
		cache:    cache,
		workflow: workflow,
		bus:      bus,
		access:   proxy.NewAccessControl(),
		log:      logger.OrNop(log).Named("artifact_service"),
	}
}

func (s *ArtifactService) Create(ctx context.Context, in CreateArtifactInput) (artifact.Record, error) {
	return s.workflow.Create(ctx, in)
}

// ListForWallet returns what a dashboard shows: received records for a
// patient, produced records for a doctor.
func (s *ArtifactService) ListForWallet(ctx context.Context, wallet string, role identity.Role) ([]artifact.Record, error) {
	if !role.Valid() {
		return nil, portal_errors.ErrInvalidInput
	}
	if s.cache != nil {
		records, ok, err := s.cache.Get(ctx, role, wallet)
		if err != nil {
			s.log.With(ctx).Warn("artifact list cache read failed", zap.Error(err))
		} else if ok {
			return records, nil
		}
	}

	records, err := s.load(ctx, wallet, role)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, role, wallet, records); err != nil {
			s.log.With(ctx).Warn("artifact list cache write failed", zap.Error(err))
		}
	}
	return records, nil
}

// ListFresh is ListForWallet without the cache. Dashboards refresh through it:
// a list cached by a read that raced an insert could otherwise outlive the
// invalidation that followed the insert.
func (s *ArtifactService) ListFresh(ctx context.Context, wallet string, role identity.Role) ([]artifact.Record, error) {
	if !role.Valid() {
		return nil, portal_errors.ErrInvalidInput
	}
	return s.load(ctx, wallet, role)
}

func (s *ArtifactService) load(ctx context.Context, wallet string, role identity.Role) ([]artifact.Record, error) {
	if role == identity.RoleDoctor {
		return s.repo.ListByProducer(ctx, wallet)
	}
	return s.repo.ListByRecipient(ctx, wallet)
}

// Get returns a record to its producer or recipient.
func (s *ArtifactService) Get(ctx context.Context, id uuid.UUID, wallet string) (artifact.Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return artifact.Record{}, err
	}
	if err := s.access.CanView(wallet, rec); err != nil {
		return artifact.Record{}, err
	}
	return rec, nil
}

// UpdateStatus applies a lifecycle change. The recipient marks a record
// reviewed; the producer revokes it or discards an unconfirmed one.
func (s *ArtifactService) UpdateStatus(ctx context.Context, actor string, id uuid.UUID, status artifact.Status) (artifact.Record, error) {
	if !status.Valid() {
		return artifact.Record{}, portal_errors.ErrInvalidInput
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return artifact.Record{}, err
	}

	if err := s.access.CanSetStatus(actor, rec, status); err != nil {
		return artifact.Record{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return artifact.Record{}, err
	}

	s.log.With(ctx).Info("artifact status updated",
		zap.String("record_id", id.String()),
		zap.String("from", string(rec.Status)),
		zap.String("to", string(updated.Status)),
	)
	s.bus.Publish(ctx, events.ArtifactStatusUpdated{
		RecordID:  updated.ID,
		NewStatus: updated.Status,
		Record:    updated,
	})
	return updated, nil
}

// Reconcile retries ledger registration of an unconfirmed record owned by
// actor.
func (s *ArtifactService) Reconcile(ctx context.Context, actor string, id uuid.UUID) (artifact.Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return artifact.Record{}, err
	}
	if err := s.access.CanReconcile(actor, rec); err != nil {
		return artifact.Record{}, err
	}
	return s.workflow.Reconcile(ctx, rec)
}

// CacheInvalidator drops cached artifact lists touched by an event. It must be
// subscribed before any dashboard so refreshes read fresh data.
type CacheInvalidator struct {
	cache ListCache
}

func NewCacheInvalidator(cache ListCache) *CacheInvalidator {
	return &CacheInvalidator{cache: cache}
}

func (c *CacheInvalidator) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.ArtifactCreated:
		return c.cache.Invalidate(ctx, e.Record)
	case events.ArtifactStatusUpdated:
		return c.cache.Invalidate(ctx, e.Record)
	}
	return nil
}

// Register subscribes the invalidator to every artifact event.
func (c *CacheInvalidator) Register(bus *events.Bus) []*events.Subscription {
	return []*events.Subscription{
		bus.Subscribe(events.ArtifactCreatedName, c),
		bus.Subscribe(events.ArtifactStatusUpdatedName, c),
	}
}
