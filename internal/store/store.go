package store

import (
	"context"
	"errors"
	"time"

	"github.com/chungtau/txn-webhook/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the transaction id
	ErrNotFound = errors.New("transaction not found")

	// ErrAlreadyExists is returned by Insert when the transaction id is taken
	ErrAlreadyExists = errors.New("transaction already exists")
)

// Backend is the durable transaction table. Implementations must enforce
// uniqueness of TransactionID in Insert and apply UpdateStatus only to rows
// whose current status equals from.
type Backend interface {
	Get(ctx context.Context, transactionID string) (*model.Transaction, error)
	Insert(ctx context.Context, txn *model.Transaction) error
	UpdateStatus(ctx context.Context, transactionID string, from, to model.Status, processedAt *time.Time) (int64, error)
	ListByStatus(ctx context.Context, status model.Status, createdBefore time.Time, limit int) ([]model.Transaction, error)
	CountByStatus(ctx context.Context) (map[model.Status]int64, error)
	Ping(ctx context.Context) error
	Close() error
}
