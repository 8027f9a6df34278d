package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/chungtau/txn-webhook/internal/logging"
	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/model"
	"github.com/chungtau/txn-webhook/internal/queue"
	"github.com/chungtau/txn-webhook/internal/repository"
	"github.com/chungtau/txn-webhook/internal/store"
)

type recordingEnqueuer struct {
	ids   []string
	limit int
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, id string) error {
	if e.limit > 0 && len(e.ids) >= e.limit {
		return queue.ErrQueueFull
	}
	e.ids = append(e.ids, id)
	return nil
}

type failingLister struct{}

func (failingLister) ListStale(context.Context, time.Duration, int) ([]model.Transaction, error) {
	return nil, errors.New("db down")
}

func seedAccessor(t *testing.T, created map[string]time.Time, processed ...string) *repository.Accessor {
	t.Helper()
	backend := store.NewMemoryStore()
	for id, at := range created {
		amount := decimal.NewFromInt(10)
		txn := model.NewTransaction(model.Submission{
			TransactionID:      id,
			SourceAccount:      "ACC001",
			DestinationAccount: "ACC002",
			Amount:             &amount,
			Currency:           "USD",
		}, at)
		if err := backend.Insert(context.Background(), txn); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	for _, id := range processed {
		now := time.Now()
		if _, err := backend.UpdateStatus(context.Background(), id, model.StatusProcessing, model.StatusProcessed, &now); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}
	return repository.NewAccessor(backend, repository.Timeouts{Short: time.Second, Medium: time.Second}, logging.Discard(), metrics.NewUnregistered())
}

func TestRetryStuckRequeuesOnlyStaleProcessing(t *testing.T) {
	now := time.Now()
	acc := seedAccessor(t, map[string]time.Time{
		"TXN00001": now.Add(-time.Hour),
		"TXN00002": now.Add(-2 * time.Hour),
		"TXN00003": now.Add(-time.Hour),
		"TXN00004": now,
	}, "TXN00003")

	enq := &recordingEnqueuer{}
	m := metrics.NewUnregistered()
	s := NewSweeper(acc, enq, time.Minute, 10*time.Minute, 10, logging.Discard(), m)

	n, err := s.RetryStuck(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 requeued, got %d", n)
	}
	if enq.ids[0] != "TXN00002" || enq.ids[1] != "TXN00001" {
		t.Errorf("expected oldest first, got %v", enq.ids)
	}
	if got := testutil.ToFloat64(m.SweepRequeued); got != 2 {
		t.Errorf("expected counter at 2, got %v", got)
	}
}

func TestRetryStuckStopsWhenQueueFull(t *testing.T) {
	now := time.Now()
	acc := seedAccessor(t, map[string]time.Time{
		"TXN00001": now.Add(-time.Hour),
		"TXN00002": now.Add(-2 * time.Hour),
	})

	enq := &recordingEnqueuer{limit: 1}
	s := NewSweeper(acc, enq, time.Minute, time.Minute, 10, logging.Discard(), metrics.NewUnregistered())

	n, err := s.RetryStuck(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued before the queue filled, got %d", n)
	}
}

func TestRetryStuckPropagatesListError(t *testing.T) {
	s := NewSweeper(failingLister{}, &recordingEnqueuer{}, time.Minute, time.Minute, 10, logging.Discard(), metrics.NewUnregistered())
	if _, err := s.RetryStuck(context.Background()); err == nil {
		t.Fatal("expected list error to be returned")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewSweeper(failingLister{}, &recordingEnqueuer{}, 5*time.Millisecond, time.Minute, 10, logging.Discard(), metrics.NewUnregistered())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
