package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"medportal/internal/repository"
	"medportal/pkg/logger"
)

// ReconcileWorker periodically retries ledger registration for records the
// workflow left unconfirmed.
type ReconcileWorker struct {
	repo      repository.ArtifactRepository
	workflow  *ArtifactWorkflow
	interval  time.Duration
	batchSize int
	log       *logger.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func NewReconcileWorker(repo repository.ArtifactRepository, workflow *ArtifactWorkflow, interval time.Duration, log *logger.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		repo:      repo,
		workflow:  workflow,
		interval:  interval,
		batchSize: 50,
		log:       logger.OrNop(log).Named("reconcile_worker"),
	}
}

// Start begins the worker loop
func (w *ReconcileWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.wg.Add(1)
	go w.run(w.stopChan)
}

// Stop waits for the current pass to finish
func (w *ReconcileWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *ReconcileWorker) run(stop <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			_, _ = w.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce makes one attempt at every due record in a batch and reports how
// many were confirmed. Records that fail again stay unconfirmed and are
// scheduled behind the rest with a growing delay, so a record that keeps
// failing cannot starve newer ones.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.repo.ListUnconfirmed(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("listing unconfirmed artifacts failed", zap.Error(err))
		return 0, err
	}

	confirmed := 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.workflow.Reconcile(ctx, rec); err != nil {
			w.log.Debug("reconcile attempt failed", zap.String("record_id", rec.ID.String()), zap.Error(err))
			continue
		}
		confirmed++
	}
	if confirmed > 0 {
		w.log.Info("reconciled artifacts", zap.Int("confirmed", confirmed), zap.Int("pending", len(pending)))
	}
	return confirmed, nil
}
