package worker

import (
	"context"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/openzipkin/zipkin-go"

	"github.com/chungtau/txn-webhook/internal/events"
	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/model"
	"github.com/chungtau/txn-webhook/internal/repository"
)

// Completer finishes accepted transactions in the background
type Completer struct {
	accessor   *repository.Accessor
	processor  Processor
	publisher  events.Publisher
	tracer     *zipkin.Tracer
	log        *logger.Logger
	metrics    *metrics.Metrics
	maxRetries int
}

// NewCompleter creates a completer; maxRetries bounds the attempts made to
// persist the final status
func NewCompleter(
	accessor *repository.Accessor,
	processor Processor,
	publisher events.Publisher,
	tracer *zipkin.Tracer,
	log *logger.Logger,
	m *metrics.Metrics,
	maxRetries int,
) *Completer {
	return &Completer{
		accessor:   accessor,
		processor:  processor,
		publisher:  publisher,
		tracer:     tracer,
		log:        log,
		metrics:    m,
		maxRetries: maxRetries,
	}
}

// Complete processes transactionID and moves it to PROCESSED. It returns true
// when the transaction is PROCESSED on return, including when it already was.
func (c *Completer) Complete(ctx context.Context, transactionID string) bool {
	start := time.Now()
	span, ctx := c.tracer.StartSpanFromContext(ctx, "complete_transaction")
	span.Tag("transaction.id", transactionID)
	defer span.Finish()

	result, ok := c.complete(ctx, transactionID)
	if !ok {
		span.Tag(string(zipkin.TagError), result)
	}

	elapsed := time.Since(start)
	c.metrics.Completions.WithLabelValues(result).Inc()
	c.metrics.CompletionDuration.Observe(elapsed.Seconds())
	c.log.Debugf("Completion of %s finished in %s (%s)", transactionID, elapsed, result)
	return ok
}

// Handle adapts Complete to the queue handler signature
func (c *Completer) Handle(ctx context.Context, transactionID string) {
	c.Complete(ctx, transactionID)
}

func (c *Completer) complete(ctx context.Context, transactionID string) (string, bool) {
	txn := c.accessor.Get(ctx, transactionID, c.accessor.Timeouts.Default)
	if txn == nil {
		c.log.Errorf("Transaction %s not found for completion", transactionID)
		return "missing", false
	}

	if txn.IsProcessed() {
		c.log.Infof("Transaction %s already processed, skipping", transactionID)
		return "already_processed", true
	}

	outcome, err := c.processor.Process(ctx, txn)
	if err != nil {
		c.log.Warningf("Processing failed for %s, left in %s: %s", transactionID, txn.Status, err)
		return "processing_failed", false
	}

	processedAt := c.accessor.Now()
	if !c.accessor.UpdateStatus(ctx, transactionID, model.StatusProcessed, &processedAt, c.accessor.Timeouts.Default, c.maxRetries) {
		c.log.Errorf("Failed to mark %s as %s", transactionID, model.StatusProcessed)
		return "update_failed", false
	}

	c.log.Infof("Transaction %s processed: amount %s %s, fee %s, net %s",
		transactionID, outcome.ProcessedAmount, txn.Currency, outcome.Fee, outcome.NetAmount)

	txn.Status = model.StatusProcessed
	txn.ProcessedAt = &processedAt
	evt := events.NewProcessedEvent(txn, outcome.Fee.String(), outcome.NetAmount.String())
	if err := c.publisher.PublishProcessed(ctx, evt); err != nil {
		c.log.Warningf("Transaction %s processed but event was not published: %s", transactionID, err)
	}

	return "processed", true
}
