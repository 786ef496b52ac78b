package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"medportal/internal/domain/artifact"
	"medportal/internal/identity"
	"medportal/internal/ledger"
	"medportal/internal/repository"
	portal_errors "medportal/pkg/errors"
)

var (
	doctorWallet = "DocWa11et" + strings.Repeat("1", 31)
	walletABC    = "ABCpatient" + strings.Repeat("1", 30)
	walletXYZ    = "XYZpatient" + strings.Repeat("1", 30)
)

// memRepo is an in-memory ArtifactRepository.
type memRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]artifact.Record
	createErr error
	// failCreates limits createErr to the next n Create calls; zero means
	// every call fails.
	failCreates int
	claims      map[uuid.UUID]time.Time
	attempts    map[uuid.UUID]int
	nextAttempt map[uuid.UUID]time.Time
	// beforeList runs after a list read and before it returns.
	beforeList func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		records:     map[uuid.UUID]artifact.Record{},
		claims:      map[uuid.UUID]time.Time{},
		attempts:    map[uuid.UUID]int{},
		nextAttempt: map[uuid.UUID]time.Time{},
	}
}

func (r *memRepo) Create(_ context.Context, rec *artifact.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr; err != nil {
		if r.failCreates > 0 {
			r.failCreates--
			if r.failCreates == 0 {
				r.createErr = nil
			}
		}
		return err
	}
	if _, ok := r.records[rec.ID]; ok {
		return portal_errors.ErrAlreadyExists
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (artifact.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return artifact.Record{}, portal_errors.ErrNotFound
	}
	return rec, nil
}

func (r *memRepo) ListByRecipient(_ context.Context, wallet string) ([]artifact.Record, error) {
	out := r.filter(func(rec artifact.Record) bool { return rec.RecipientID == wallet })
	r.afterRead()
	return out, nil
}

func (r *memRepo) ListByProducer(_ context.Context, wallet string) ([]artifact.Record, error) {
	out := r.filter(func(rec artifact.Record) bool { return rec.ProducerID == wallet })
	r.afterRead()
	return out, nil
}

func (r *memRepo) setBeforeList(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeList = fn
}

func (r *memRepo) afterRead() {
	r.mu.Lock()
	hook := r.beforeList
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *memRepo) ListUnconfirmed(_ context.Context, limit int) ([]artifact.Record, error) {
	now := time.Now()
	out := r.filter(func(rec artifact.Record) bool { return rec.Status == artifact.StatusUnconfirmed })
	r.mu.Lock()
	due := out[:0]
	for _, rec := range out {
		if until, ok := r.claims[rec.ID]; ok && until.After(now) {
			continue
		}
		if r.nextAttempt[rec.ID].After(now) {
			continue
		}
		due = append(due, rec)
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := r.nextAttempt[due[i].ID], r.nextAttempt[due[j].ID]
		if !a.Equal(b) {
			return a.Before(b)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	r.mu.Unlock()
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memRepo) ClaimReconcile(_ context.Context, id uuid.UUID, until time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return 0, portal_errors.ErrNotFound
	}
	if rec.Status != artifact.StatusUnconfirmed {
		return 0, portal_errors.ErrInvalidTransition
	}
	if held, ok := r.claims[id]; ok && held.After(time.Now()) {
		return 0, portal_errors.ErrConflict
	}
	r.claims[id] = until
	r.attempts[id]++
	return r.attempts[id], nil
}

func (r *memRepo) ReleaseReconcile(_ context.Context, id uuid.UUID, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, id)
	r.nextAttempt[id] = retryAt
	return nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, status artifact.Status) (artifact.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return artifact.Record{}, portal_errors.ErrNotFound
	}
	if err := rec.Transition(status); err != nil {
		return artifact.Record{}, err
	}
	r.records[id] = rec
	return rec, nil
}

func (r *memRepo) Reconfirm(_ context.Context, id uuid.UUID, in repository.ReconfirmInput) (artifact.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return artifact.Record{}, portal_errors.ErrNotFound
	}
	if rec.Status != artifact.StatusUnconfirmed {
		return artifact.Record{}, portal_errors.ErrInvalidTransition
	}
	rec.Status = artifact.StatusCreated
	rec.LedgerTxID = in.LedgerTxID
	rec.MintAddress = in.MintAddress
	if in.MetadataURI != "" {
		rec.MetadataURI = in.MetadataURI
	}
	rec.FailureReason = ""
	r.records[id] = rec
	return rec, nil
}

func (r *memRepo) filter(keep func(artifact.Record) bool) []artifact.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []artifact.Record{}
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (r *memRepo) all() []artifact.Record {
	return r.filter(func(artifact.Record) bool { return true })
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

func (m *mockStore) FileURL(key string) string {
	return "s3://reports/" + key
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Register(ctx context.Context, entry ledger.Entry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, role identity.Role, wallet string) ([]artifact.Record, bool, error) {
	args := m.Called(ctx, role, wallet)
	records, _ := args.Get(0).([]artifact.Record)
	return records, args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, role identity.Role, wallet string, records []artifact.Record) error {
	args := m.Called(ctx, role, wallet, records)
	return args.Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, r artifact.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// memCache is a map-backed ListCache.
type memCache struct {
	mu    sync.Mutex
	lists map[string][]artifact.Record
}

func newMemCache() *memCache {
	return &memCache{lists: map[string][]artifact.Record{}}
}

func cacheKey(role identity.Role, wallet string) string {
	return string(role) + ":" + wallet
}

func (c *memCache) Get(_ context.Context, role identity.Role, wallet string) ([]artifact.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, ok := c.lists[cacheKey(role, wallet)]
	return records, ok, nil
}

func (c *memCache) Set(_ context.Context, role identity.Role, wallet string, records []artifact.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[cacheKey(role, wallet)] = records
	return nil
}

func (c *memCache) Invalidate(_ context.Context, r artifact.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, cacheKey(identity.RoleDoctor, r.ProducerID))
	delete(c.lists, cacheKey(identity.RolePatient, r.RecipientID))
	return nil
}
