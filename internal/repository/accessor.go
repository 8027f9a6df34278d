package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apsdehal/go-logger"

	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/model"
	"github.com/chungtau/txn-webhook/internal/store"
)

// ErrTimeout is returned when a store call does not finish within its timeout
var ErrTimeout = errors.New("store call timed out")

// Timeouts are the per-path bounds applied to store calls. A zero value
// means the call is unbounded.
type Timeouts struct {
	Short   time.Duration // request path
	Medium  time.Duration // status reads
	Default time.Duration // background work
}

// Accessor wraps a store.Backend with timeouts, retries and a failure side channel
type Accessor struct {
	backend  store.Backend
	log      *logger.Logger
	metrics  *metrics.Metrics
	Timeouts Timeouts

	backoff func(attempt int) time.Duration
	nowFn   func() time.Time
}

// NewAccessor creates an accessor over backend
func NewAccessor(backend store.Backend, timeouts Timeouts, log *logger.Logger, m *metrics.Metrics) *Accessor {
	return &Accessor{
		backend:  backend,
		log:      log,
		metrics:  m,
		Timeouts: timeouts,
		backoff:  ExponentialBackoff,
		nowFn:    time.Now,
	}
}

// ExponentialBackoff waits 2^attempt seconds, attempt being zero-indexed
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// WithBackoff overrides the delay between status update attempts (used in tests)
func (a *Accessor) WithBackoff(fn func(attempt int) time.Duration) {
	if fn != nil {
		a.backoff = fn
	}
}

// WithClock overrides the time provider (used in tests)
func (a *Accessor) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		a.nowFn = nowFn
	}
}

// Now returns the current UTC time from the accessor's clock
func (a *Accessor) Now() time.Time {
	return a.nowFn().UTC()
}

// Find looks up a transaction and reports why it could not be returned:
// store.ErrNotFound, ErrTimeout, or the backend error.
func (a *Accessor) Find(ctx context.Context, transactionID string, timeout time.Duration) (*model.Transaction, error) {
	txn, err := bounded(ctx, timeout, func(ctx context.Context) (*model.Transaction, error) {
		return a.backend.Get(ctx, transactionID)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.recordFailure("get", transactionID, err)
	}
	return txn, err
}

// Get looks up a transaction. Absence, timeouts and failures all return nil;
// failures are logged and counted.
func (a *Accessor) Get(ctx context.Context, transactionID string, timeout time.Duration) *model.Transaction {
	txn, err := a.Find(ctx, transactionID, timeout)
	if err != nil {
		return nil
	}
	return txn
}

// Insert persists txn and returns it with store-assigned fields populated.
// store.ErrAlreadyExists is returned when the transaction id is taken.
func (a *Accessor) Insert(ctx context.Context, txn *model.Transaction, timeout time.Duration) (*model.Transaction, error) {
	record := *txn
	_, err := bounded(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.backend.Insert(ctx, &record)
	})
	if err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			a.recordFailure("insert", txn.TransactionID, err)
		}
		return nil, err
	}
	return &record, nil
}

// UpdateStatus moves a PROCESSING transaction to status and reports whether
// the stored record now has that status. Failed or timed out attempts are
// retried up to maxRetries attempts in total; a call that matches no row is
// final. A failed attempt may still have committed, so a no-match after one
// is resolved by reading the record back.
func (a *Accessor) UpdateStatus(ctx context.Context, transactionID string, status model.Status, processedAt *time.Time, timeout time.Duration, maxRetries int) bool {
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err := bounded(ctx, timeout, func(ctx context.Context) (int64, error) {
			return a.backend.UpdateStatus(ctx, transactionID, model.StatusProcessing, status, processedAt)
		})

		if err == nil {
			if rows == 0 {
				if attempt > 0 && a.hasStatus(ctx, transactionID, status, timeout) {
					a.metrics.StatusUpdates.WithLabelValues("confirmed").Inc()
					a.log.Infof("Transaction %s already %s, an earlier attempt committed", transactionID, status)
					return true
				}
				a.metrics.StatusUpdates.WithLabelValues("no_match").Inc()
				a.log.Warningf("No PROCESSING row matched for transaction %s, status not changed", transactionID)
				return false
			}
			a.metrics.StatusUpdates.WithLabelValues("updated").Inc()
			a.log.Debugf("Transaction %s moved to %s after %d attempt(s)", transactionID, status, attempt+1)
			return true
		}

		a.metrics.StatusUpdates.WithLabelValues("failed").Inc()
		a.recordFailure("update_status", transactionID, err)

		if attempt == maxRetries-1 {
			break
		}

		delay := a.backoff(attempt)
		a.log.Infof("Retrying status update for %s in %s (attempt %d/%d)", transactionID, delay, attempt+2, maxRetries)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			a.log.Warningf("Status update for %s abandoned: %s", transactionID, ctx.Err())
			return false
		}
	}

	a.log.Errorf("Status update for %s failed after %d attempts", transactionID, maxRetries)
	return false
}

// hasStatus reads the record back; a failed read counts as a mismatch
func (a *Accessor) hasStatus(ctx context.Context, transactionID string, status model.Status, timeout time.Duration) bool {
	txn, err := a.Find(ctx, transactionID, timeout)
	return err == nil && txn.Status == status
}

// ListStale returns up to limit PROCESSING transactions created more than
// olderThan ago, oldest first.
func (a *Accessor) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]model.Transaction, error) {
	cutoff := a.Now().Add(-olderThan)
	txns, err := bounded(ctx, a.Timeouts.Medium, func(ctx context.Context) ([]model.Transaction, error) {
		return a.backend.ListByStatus(ctx, model.StatusProcessing, cutoff, limit)
	})
	if err != nil {
		a.recordFailure("list_stale", "", err)
		return nil, err
	}
	return txns, nil
}

// Stats counts transactions per status
func (a *Accessor) Stats(ctx context.Context, timeout time.Duration) (map[model.Status]int64, error) {
	counts, err := bounded(ctx, timeout, a.backend.CountByStatus)
	if err != nil {
		a.recordFailure("stats", "", err)
		return nil, err
	}
	return counts, nil
}

// Ping checks that the store is reachable within the short timeout
func (a *Accessor) Ping(ctx context.Context) error {
	_, err := bounded(ctx, a.Timeouts.Short, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.backend.Ping(ctx)
	})
	return err
}

func (a *Accessor) recordFailure(operation, transactionID string, err error) {
	reason := "error"
	if errors.Is(err, ErrTimeout) {
		reason = "timeout"
	}
	a.metrics.StoreFailures.WithLabelValues(operation, reason).Inc()

	if transactionID != "" {
		a.log.Errorf("Store %s failed for %s: %s", operation, transactionID, err)
	} else {
		a.log.Errorf("Store %s failed: %s", operation, err)
	}
}

// bounded runs fn and gives up once timeout elapses, even if fn ignores its
// context. A non-positive timeout runs fn unbounded.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.val, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
