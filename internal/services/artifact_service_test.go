package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medportal/internal/dashboard"
	"medportal/internal/domain/artifact"
	"medportal/internal/events"
	"medportal/internal/identity"
	portal_errors "medportal/pkg/errors"
)

func seed(t *testing.T, repo *memRepo, status artifact.Status) artifact.Record {
	t.Helper()
	rec := artifact.Record{
		ID:          uuid.New(),
		ProducerID:  doctorWallet,
		RecipientID: walletABC,
		Title:       "X-ray",
		ContentType: "image/png",
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), &rec))
	return rec
}

func TestListForWalletByRole(t *testing.T) {
	repo := newMemRepo()
	rec := seed(t, repo, artifact.StatusCreated)
	svc := NewArtifactService(repo, nil, nil, events.NewBus(nil), nil)
	ctx := context.Background()

	received, err := svc.ListForWallet(ctx, walletABC, identity.RolePatient)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, rec.ID, received[0].ID)

	produced, err := svc.ListForWallet(ctx, doctorWallet, identity.RoleDoctor)
	require.NoError(t, err)
	assert.Len(t, produced, 1)

	none, err := svc.ListForWallet(ctx, doctorWallet, identity.RolePatient)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.ListForWallet(ctx, walletABC, identity.Role("admin"))
	assert.ErrorIs(t, err, portal_errors.ErrInvalidInput)
}

func TestListForWalletUsesCache(t *testing.T) {
	repo := newMemRepo()
	cache := &mockCache{}
	svc := NewArtifactService(repo, cache, nil, events.NewBus(nil), nil)
	ctx := context.Background()

	cached := []artifact.Record{{ID: uuid.New()}}
	cache.On("Get", ctx, identity.RolePatient, walletABC).Return(cached, true, nil).Once()

	got, err := svc.ListForWallet(ctx, walletABC, identity.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListForWalletFillsCacheOnMiss(t *testing.T) {
	repo := newMemRepo()
	seed(t, repo, artifact.StatusCreated)
	cache := &mockCache{}
	svc := NewArtifactService(repo, cache, nil, events.NewBus(nil), nil)
	ctx := context.Background()

	cache.On("Get", ctx, identity.RolePatient, walletABC).Return(nil, false, nil).Once()
	cache.On("Set", ctx, identity.RolePatient, walletABC, mock.MatchedBy(func(r []artifact.Record) bool {
		return len(r) == 1
	})).Return(nil).Once()

	got, err := svc.ListForWallet(ctx, walletABC, identity.RolePatient)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	cache.AssertExpectations(t)
}

func TestListForWalletSurvivesCacheErrors(t *testing.T) {
	repo := newMemRepo()
	seed(t, repo, artifact.StatusCreated)
	cache := &mockCache{}
	svc := NewArtifactService(repo, cache, nil, events.NewBus(nil), nil)
	ctx := context.Background()

	cache.On("Get", ctx, identity.RolePatient, walletABC).Return(nil, false, errors.New("redis down"))
	cache.On("Set", ctx, identity.RolePatient, walletABC, mock.Anything).Return(errors.New("redis down"))

	got, err := svc.ListForWallet(ctx, walletABC, identity.RolePatient)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetRestrictsToParties(t *testing.T) {
	repo := newMemRepo()
	rec := seed(t, repo, artifact.StatusCreated)
	svc := NewArtifactService(repo, nil, nil, events.NewBus(nil), nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, rec.ID, walletABC)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, rec.ID, doctorWallet)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, rec.ID, walletXYZ)
	assert.ErrorIs(t, err, portal_errors.ErrForbidden)
	_, err = svc.Get(ctx, uuid.New(), walletABC)
	assert.ErrorIs(t, err, portal_errors.ErrNotFound)
}

func TestUpdateStatusPublishesOnce(t *testing.T) {
	repo := newMemRepo()
	rec := seed(t, repo, artifact.StatusCreated)
	bus := events.NewBus(nil)
	svc := NewArtifactService(repo, nil, nil, bus, nil)

	var got []events.ArtifactStatusUpdated
	bus.Subscribe(events.ArtifactStatusUpdatedName, events.HandlerFunc(func(_ context.Context, ev events.Event) error {
		got = append(got, ev.(events.ArtifactStatusUpdated))
		return nil
	}))

	updated, err := svc.UpdateStatus(context.Background(), walletABC, rec.ID, artifact.StatusReviewed)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusReviewed, updated.Status)

	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].RecordID)
	assert.Equal(t, artifact.StatusReviewed, got[0].NewStatus)
	assert.Equal(t, walletABC, got[0].Record.RecipientID)
}

func TestUpdateStatusPermissions(t *testing.T) {
	repo := newMemRepo()
	bus := events.NewBus(nil)
	svc := NewArtifactService(repo, nil, nil, bus, nil)
	ctx := context.Background()
	published := 0
	bus.Subscribe(events.ArtifactStatusUpdatedName, countHandler(&published))

	rec := seed(t, repo, artifact.StatusCreated)

	_, err := svc.UpdateStatus(ctx, doctorWallet, rec.ID, artifact.StatusReviewed)
	assert.ErrorIs(t, err, portal_errors.ErrForbidden)
	_, err = svc.UpdateStatus(ctx, walletABC, rec.ID, artifact.StatusRevoked)
	assert.ErrorIs(t, err, portal_errors.ErrForbidden)
	_, err = svc.UpdateStatus(ctx, doctorWallet, rec.ID, artifact.StatusCreated)
	assert.ErrorIs(t, err, portal_errors.ErrInvalidTransition)
	_, err = svc.UpdateStatus(ctx, doctorWallet, rec.ID, artifact.Status("bogus"))
	assert.ErrorIs(t, err, portal_errors.ErrInvalidInput)
	_, err = svc.UpdateStatus(ctx, doctorWallet, rec.ID, artifact.StatusFailed)
	assert.ErrorIs(t, err, portal_errors.ErrInvalidTransition)

	assert.Equal(t, 0, published)

	_, err = svc.UpdateStatus(ctx, doctorWallet, rec.ID, artifact.StatusRevoked)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestReconcileRequiresProducer(t *testing.T) {
	repo := newMemRepo()
	rec := seed(t, repo, artifact.StatusUnconfirmed)
	svc := NewArtifactService(repo, nil, nil, events.NewBus(nil), nil)

	_, err := svc.Reconcile(context.Background(), walletABC, rec.ID)
	assert.ErrorIs(t, err, portal_errors.ErrForbidden)
}

func TestReconcileThroughService(t *testing.T) {
	f := newWorkflowFixture(t, true)
	rec := seed(t, f.repo, artifact.StatusUnconfirmed)
	rec.MetadataURI = "s3://reports/meta.json"
	f.repo.records[rec.ID] = rec
	f.ledger.On("Register", mock.Anything, mock.Anything).Return("tx-9", nil).Once()

	svc := NewArtifactService(f.repo, nil, f.workflow, f.bus, nil)
	published := 0
	f.bus.Subscribe(events.ArtifactCreatedName, countHandler(&published))

	updated, err := svc.Reconcile(context.Background(), doctorWallet, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusCreated, updated.Status)
	assert.Equal(t, "s3://reports/meta.json", updated.MetadataURI)
	assert.Equal(t, 1, published)
	f.store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCacheInvalidator(t *testing.T) {
	cache := &mockCache{}
	bus := events.NewBus(nil)
	inv := NewCacheInvalidator(cache)

	subs := inv.Register(bus)
	require.Len(t, subs, 2)
	assert.Len(t, inv.Register(bus), 2)
	assert.Equal(t, 1, bus.SubscriberCount(events.ArtifactCreatedName), "registering twice must not duplicate")

	rec := artifact.Record{ID: uuid.New(), ProducerID: doctorWallet, RecipientID: walletABC}
	cache.On("Invalidate", mock.Anything, rec).Return(nil).Twice()

	bus.Publish(context.Background(), events.ArtifactCreated{Record: rec, RecipientID: walletABC, ProducerID: doctorWallet})
	bus.Publish(context.Background(), events.ArtifactStatusUpdated{RecordID: rec.ID, Record: rec})

	cache.AssertExpectations(t)
}

func TestListFreshBypassesCache(t *testing.T) {
	repo := newMemRepo()
	rec := seed(t, repo, artifact.StatusCreated)
	cache := newMemCache()
	require.NoError(t, cache.Set(context.Background(), identity.RolePatient, walletABC, []artifact.Record{}))
	svc := NewArtifactService(repo, cache, nil, events.NewBus(nil), nil)

	got, err := svc.ListFresh(context.Background(), walletABC, identity.RolePatient)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)

	cached, ok, _ := cache.Get(context.Background(), identity.RolePatient, walletABC)
	assert.True(t, ok)
	assert.Empty(t, cached, "fresh reads leave the cache alone")

	_, err = svc.ListFresh(context.Background(), walletABC, identity.Role("admin"))
	assert.ErrorIs(t, err, portal_errors.ErrInvalidInput)
}

// A list read that started before an insert writes its old result into the
// cache after the insert's invalidation. The dashboard must still show the
// new record once artifact_created arrives.
func TestDashboardSeesRecordDespiteLateCacheWrite(t *testing.T) {
	f := newWorkflowFixture(t, false)
	f.store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.ledger.On("Register", mock.Anything, mock.Anything).Return("tx-1", nil).Once()

	cache := newMemCache()
	NewCacheInvalidator(cache).Register(f.bus)
	svc := NewArtifactService(f.repo, cache, f.workflow, f.bus, nil)
	ctx := context.Background()

	var (
		mu        sync.Mutex
		snapshots []dashboard.Snapshot
	)
	view := dashboard.NewView(f.bus, svc, dashboard.SinkFunc(func(s dashboard.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, s)
	}), nil)
	require.NoError(t, view.Mount(ctx, walletABC, identity.RolePatient))
	defer view.Unmount()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.repo.setBeforeList(func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	slowRead := make(chan struct{})
	go func() {
		defer close(slowRead)
		_, _ = svc.ListForWallet(ctx, walletABC, identity.RolePatient)
	}()
	<-entered

	rec, err := svc.Create(ctx, reportFor(walletABC))
	require.NoError(t, err)
	close(release)
	<-slowRead

	cached, ok, _ := cache.Get(ctx, identity.RolePatient, walletABC)
	require.True(t, ok)
	require.Empty(t, cached, "the late write left an old list behind")

	view.Wait()
	view.Refresh()
	view.Wait()

	mu.Lock()
	defer mu.Unlock()
	last := snapshots[len(snapshots)-1]
	require.Len(t, last.Records, 1)
	assert.Equal(t, rec.ID, last.Records[0].ID)

	var announced *dashboard.Snapshot
	for i := range snapshots {
		if snapshots[i].Trigger == string(events.ArtifactCreatedName) {
			announced = &snapshots[i]
		}
	}
	require.NotNil(t, announced)
	require.Len(t, announced.Records, 1)
	require.NotNil(t, announced.Event)
	assert.Equal(t, events.ArtifactCreatedName, announced.Event.EventType)
	assert.Equal(t, rec.ID.String(), announced.Event.AggregateID)
}
