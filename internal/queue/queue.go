package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when the in-memory queue has no free slot
	ErrQueueFull = errors.New("completion queue is full")

	// ErrClosed is returned by Enqueue after Close
	ErrClosed = errors.New("completion queue is closed")
)

// Handler completes a single transaction
type Handler func(ctx context.Context, transactionID string)

// Message is the unit of work carried by a queue
type Message struct {
	TransactionID string `json:"transaction_id"`
}

// Dispatcher decouples acknowledging a webhook from completing it. Enqueue
// must not block on the handler; Run consumes work until ctx is cancelled.
type Dispatcher interface {
	Enqueue(ctx context.Context, transactionID string) error
	Run(ctx context.Context) error
	Close() error
}
