// Package dashboard keeps an open dashboard in sync with artifact events.
//
// A View loads its list when mounted and then refreshes whenever an event
// concerns the wallet it watches. The bus only carries the news; the list
// itself is always fetched again from the store.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"medportal/internal/domain/artifact"
	"medportal/internal/events"
	"medportal/internal/identity"
	portal_errors "medportal/pkg/errors"
	"medportal/pkg/logger"
)

// Lister reads a wallet's artifacts straight from the store. Views never read
// through a cache.
type Lister interface {
	ListFresh(ctx context.Context, wallet string, role identity.Role) ([]artifact.Record, error)
}

const (
	TriggerMount   = "mount"
	TriggerWatch   = "watch"
	TriggerRefresh = "refresh"
)

// Snapshot is the full list a view shows at one moment. Event is the bus
// event that caused the reload, if any; Records never depend on it.
type Snapshot struct {
	Wallet  string            `json:"wallet"`
	Role    identity.Role     `json:"role"`
	Trigger string            `json:"trigger"`
	Event   *events.Envelope  `json:"event,omitempty"`
	Records []artifact.Record `json:"records"`
	At      time.Time         `json:"at"`
}

// Sink receives snapshots. Deliver is called with the view's lock held and
// must not block.
type Sink interface {
	Deliver(Snapshot)
}

type SinkFunc func(Snapshot)

func (f SinkFunc) Deliver(s Snapshot) { f(s) }

type View struct {
	bus    *events.Bus
	lister Lister
	sink   Sink
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	mounted    bool
	closed     bool
	wallet     string
	role       identity.Role
	gen        uint64
	subs       []*events.Subscription
	refreshing bool
	pending    bool
	trigger    string
	cause      *events.Envelope
	wg         sync.WaitGroup
}

func NewView(bus *events.Bus, lister Lister, sink Sink, log *logger.Logger) *View {
	ctx, cancel := context.WithCancel(context.Background())
	return &View{
		bus:    bus,
		lister: lister,
		sink:   sink,
		log:    logger.OrNop(log).Named("dashboard"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Mount subscribes for wallet and then loads the initial list, so an event
// racing the load still triggers a refresh.
func (v *View) Mount(ctx context.Context, wallet string, role identity.Role) error {
	if !role.Valid() {
		return portal_errors.ErrInvalidInput
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return portal_errors.ErrConflict
	}
	if v.mounted {
		v.mu.Unlock()
		return portal_errors.ErrConflict
	}
	v.mounted = true
	v.role = role
	gen := v.observe(wallet)
	v.mu.Unlock()

	return v.load(ctx, gen, TriggerMount)
}

// Watch switches the view to another wallet, seen in the given role.
// Subscriptions for the old wallet are released before new ones are taken.
func (v *View) Watch(ctx context.Context, wallet string, role identity.Role) error {
	if !role.Valid() {
		return portal_errors.ErrInvalidInput
	}
	v.mu.Lock()
	if v.closed || !v.mounted {
		v.mu.Unlock()
		return portal_errors.ErrConflict
	}
	v.role = role
	gen := v.observe(wallet)
	v.mu.Unlock()

	return v.load(ctx, gen, TriggerWatch)
}

// Refresh reloads the list in the background.
func (v *View) Refresh() {
	v.mu.Lock()
	gen := v.gen
	v.mu.Unlock()
	v.requestRefresh(gen, TriggerRefresh, nil)
}

// Unmount releases every subscription. No snapshot is delivered once it
// returns. Safe to call more than once.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.release()
	v.cancel()
}

// Wait blocks until background refreshes have finished.
func (v *View) Wait() {
	v.wg.Wait()
}

func (v *View) Wallet() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wallet
}

func (v *View) Role() identity.Role {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.role
}

// observe replaces the subscriptions with ones for wallet. Caller holds mu.
func (v *View) observe(wallet string) uint64 {
	v.release()
	v.gen++
	v.wallet = wallet
	gen := v.gen
	role := v.role

	handler := events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		producer, recipient := events.Concerns(ev, wallet)
		if role == identity.RoleDoctor && !producer {
			return nil
		}
		if role == identity.RolePatient && !recipient {
			return nil
		}
		env, err := events.NewEnvelope(ev, time.Now().UTC())
		if err != nil {
			v.log.With(ctx).Warn("event envelope failed", zap.String("event", string(ev.Name())), zap.Error(err))
			v.requestRefresh(gen, string(ev.Name()), nil)
			return nil
		}
		v.requestRefresh(gen, string(ev.Name()), &env)
		return nil
	})
	v.subs = []*events.Subscription{
		v.bus.Subscribe(events.ArtifactCreatedName, handler),
		v.bus.Subscribe(events.ArtifactStatusUpdatedName, handler),
	}
	return gen
}

// release drops current subscriptions. Caller holds mu.
func (v *View) release() {
	for _, sub := range v.subs {
		sub.Unsubscribe()
	}
	v.subs = nil
}

func (v *View) load(ctx context.Context, gen uint64, trigger string) error {
	v.mu.Lock()
	wallet, role := v.wallet, v.role
	v.mu.Unlock()

	records, err := v.lister.ListFresh(ctx, wallet, role)
	if err != nil {
		v.log.With(ctx).Warn("dashboard load failed", zap.String("wallet", wallet), zap.Error(err))
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed && gen == v.gen {
		v.deliver(wallet, role, trigger, nil, records)
	}
	return nil
}

// requestRefresh starts a background refresh, or marks one pending when a
// refresh is already running so bursts of events collapse into one reload.
func (v *View) requestRefresh(gen uint64, trigger string, cause *events.Envelope) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.mounted || gen != v.gen {
		return
	}
	v.trigger = trigger
	v.cause = cause
	if v.refreshing {
		v.pending = true
		return
	}
	v.refreshing = true
	v.wg.Add(1)
	go v.refreshLoop()
}

func (v *View) refreshLoop() {
	defer v.wg.Done()
	for {
		v.mu.Lock()
		if v.closed {
			v.refreshing = false
			v.mu.Unlock()
			return
		}
		gen, wallet, role, trigger, cause := v.gen, v.wallet, v.role, v.trigger, v.cause
		v.pending = false
		v.cause = nil
		v.mu.Unlock()

		records, err := v.lister.ListFresh(v.ctx, wallet, role)

		v.mu.Lock()
		if v.closed {
			v.refreshing = false
			v.mu.Unlock()
			return
		}
		current := gen == v.gen
		if current {
			if err != nil {
				v.log.Warn("dashboard refresh failed", zap.String("wallet", wallet), zap.Error(err))
			} else {
				v.deliver(wallet, role, trigger, cause, records)
			}
		}
		if current && !v.pending {
			v.refreshing = false
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
	}
}

// deliver hands a snapshot to the sink. Caller holds mu.
func (v *View) deliver(wallet string, role identity.Role, trigger string, cause *events.Envelope, records []artifact.Record) {
	v.sink.Deliver(Snapshot{
		Wallet:  wallet,
		Role:    role,
		Trigger: trigger,
		Event:   cause,
		Records: records,
		At:      time.Now().UTC(),
	})
}
