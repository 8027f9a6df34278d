package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apsdehal/go-logger"

	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/model"
	"github.com/chungtau/txn-webhook/internal/repository"
	"github.com/chungtau/txn-webhook/internal/store"
	"github.com/chungtau/txn-webhook/internal/validate"
)

// Outcome classifies how a submission was handled
type Outcome int

const (
	// Accepted: new transaction stored and scheduled for completion
	Accepted Outcome = iota
	// Duplicate: transaction id already known, nothing stored or scheduled
	Duplicate
	// Invalid: submission rejected before touching the store
	Invalid
	// Unavailable: the store did not answer in time, the caller may retry
	Unavailable
	// Failed: the store rejected the write
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Invalid:
		return "invalid"
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the acknowledgment for a submission
type Result struct {
	Outcome     Outcome
	Message     string
	Timestamp   time.Time
	Transaction *model.Transaction
}

// Validator checks a submission; the returned error message is shown to the caller
type Validator interface {
	Validate(sub model.Submission) error
}

// Enqueuer schedules background completion without waiting for it
type Enqueuer interface {
	Enqueue(ctx context.Context, transactionID string) error
}

// Coordinator decides whether a submission is new, stores it and schedules
// its completion
type Coordinator struct {
	accessor  *repository.Accessor
	validator Validator
	enqueuer  Enqueuer
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewCoordinator(accessor *repository.Accessor, validator Validator, enqueuer Enqueuer, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		accessor:  accessor,
		validator: validator,
		enqueuer:  enqueuer,
		log:       log,
		metrics:   m,
	}
}

// Ingest handles one webhook delivery
func (c *Coordinator) Ingest(ctx context.Context, sub model.Submission) Result {
	start := time.Now()
	res := c.ingest(ctx, sub)
	res.Timestamp = c.accessor.Now()

	elapsed := time.Since(start)
	c.metrics.Ingestions.WithLabelValues(res.Outcome.String()).Inc()
	c.metrics.IngestDuration.Observe(elapsed.Seconds())
	c.log.Debugf("Ingest of %s took %s (%s)", sub.TransactionID, elapsed, res.Outcome)
	return res
}

func (c *Coordinator) ingest(ctx context.Context, sub model.Submission) Result {
	if err := c.validator.Validate(sub); err != nil {
		var vErr *validate.Error
		if errors.As(err, &vErr) {
			return Result{Outcome: Invalid, Message: vErr.Message}
		}
		return Result{Outcome: Invalid, Message: err.Error()}
	}

	short := c.accessor.Timeouts.Short

	// A failed lookup reads as absent; the insert below still refuses duplicates
	if existing := c.accessor.Get(ctx, sub.TransactionID, short); existing != nil {
		return duplicate(existing)
	}

	txn := model.NewTransaction(sub, c.accessor.Now())
	saved, err := c.accessor.Insert(ctx, txn, short)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		c.log.Infof("Transaction %s was stored concurrently, reporting as duplicate", sub.TransactionID)
		if existing := c.accessor.Get(ctx, sub.TransactionID, short); existing != nil {
			return duplicate(existing)
		}
		return Result{
			Outcome: Duplicate,
			Message: fmt.Sprintf("Transaction %s already received", sub.TransactionID),
		}
	case errors.Is(err, repository.ErrTimeout):
		return Result{
			Outcome: Unavailable,
			Message: "Transaction store timed out, please retry",
		}
	case err != nil:
		return Result{
			Outcome: Failed,
			Message: "Internal server error while processing webhook",
		}
	}

	c.schedule(ctx, saved.TransactionID)

	return Result{
		Outcome:     Accepted,
		Message:     fmt.Sprintf("Transaction %s accepted for processing", saved.TransactionID),
		Transaction: saved,
	}
}

// schedule hands the transaction to the completion queue. Failure leaves the
// record in PROCESSING for the retry sweep; the caller is still acknowledged.
func (c *Coordinator) schedule(ctx context.Context, transactionID string) {
	enqueueCtx := ctx
	if short := c.accessor.Timeouts.Short; short > 0 {
		var cancel context.CancelFunc
		enqueueCtx, cancel = context.WithTimeout(ctx, short)
		defer cancel()
	}

	if err := c.enqueuer.Enqueue(enqueueCtx, transactionID); err != nil {
		c.log.Warningf("Could not schedule %s, leaving it for the retry sweep: %s", transactionID, err)
	}
}

func duplicate(existing *model.Transaction) Result {
	var msg string
	switch existing.Status {
	case model.StatusProcessed:
		msg = fmt.Sprintf("Transaction %s already received and processed", existing.TransactionID)
	case model.StatusProcessing:
		msg = fmt.Sprintf("Transaction %s already received and is still processing", existing.TransactionID)
	default:
		msg = fmt.Sprintf("Transaction %s already received with status %s", existing.TransactionID, existing.Status)
	}
	return Result{
		Outcome:     Duplicate,
		Message:     msg,
		Transaction: existing,
	}
}
