package queue

import (
	"context"
	"sync"

	"github.com/apsdehal/go-logger"

	"github.com/chungtau/txn-webhook/internal/metrics"
)

// Pool is a bounded in-process queue drained by a fixed set of workers.
// Work still queued when the process stops is lost.
type Pool struct {
	jobs    chan string
	handler Handler
	workers int
	log     *logger.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with the given worker count and queue capacity
func NewPool(handler Handler, workers, size int, log *logger.Logger, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 100
	}
	return &Pool{
		jobs:    make(chan string, size),
		handler: handler,
		workers: workers,
		log:     log,
		metrics: m,
	}
}

// Enqueue schedules transactionID without waiting for a worker
func (p *Pool) Enqueue(_ context.Context, transactionID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.jobs <- transactionID:
		p.metrics.QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight completion has returned
func (p *Pool) Run(ctx context.Context) error {
	p.log.Infof("Starting %d completion workers (queue capacity %d)", p.workers, cap(p.jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-p.jobs:
					p.metrics.QueueDepth.Dec()
					p.handler(ctx, id)
				}
			}
		}()
	}

	wg.Wait()
	p.log.Infof("Completion workers stopped, %d job(s) left in queue", len(p.jobs))
	return nil
}

// Close stops accepting new work
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
