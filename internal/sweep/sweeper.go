package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/apsdehal/go-logger"

	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/model"
	"github.com/chungtau/txn-webhook/internal/queue"
)

// StaleLister finds transactions stuck in PROCESSING
type StaleLister interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]model.Transaction, error)
}

// Enqueuer schedules a transaction for completion
type Enqueuer interface {
	Enqueue(ctx context.Context, transactionID string) error
}

// Sweeper periodically re-schedules transactions left in PROCESSING by a
// failed or interrupted completion
type Sweeper struct {
	lister     StaleLister
	enqueuer   Enqueuer
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewSweeper(lister StaleLister, enqueuer Enqueuer, interval, staleAfter time.Duration, batchSize int, log *logger.Logger, m *metrics.Metrics) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		lister:     lister,
		enqueuer:   enqueuer,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        log,
		metrics:    m,
	}
}

// RetryStuck enqueues one batch of stale transactions and returns how many
// were requeued
func (s *Sweeper) RetryStuck(ctx context.Context) (int, error) {
	stale, err := s.lister.ListStale(ctx, s.staleAfter, s.batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, txn := range stale {
		if err := s.enqueuer.Enqueue(ctx, txn.TransactionID); err != nil {
			if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrClosed) {
				s.log.Warningf("Sweep stopped early after %d of %d: %s", requeued, len(stale), err)
				break
			}
			s.log.Errorf("Failed to requeue %s: %s", txn.TransactionID, err)
			continue
		}
		requeued++
	}

	if requeued > 0 {
		s.metrics.SweepRequeued.Add(float64(requeued))
		s.log.Infof("Requeued %d stuck transaction(s)", requeued)
	}
	return requeued, nil
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("Retry sweep disabled")
		<-ctx.Done()
		return nil
	}

	s.log.Infof("Retry sweep every %s for transactions older than %s", s.interval, s.staleAfter)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RetryStuck(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorf("Retry sweep failed: %s", err)
			}
		}
	}
}
