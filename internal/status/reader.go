package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/chungtau/txn-webhook/internal/model"
	"github.com/chungtau/txn-webhook/internal/repository"
	"github.com/chungtau/txn-webhook/internal/store"
)

// ErrNotFound means the transaction id has never been received
var ErrNotFound = errors.New("transaction not found")

// View is the externally visible state of a transaction
type View struct {
	TransactionID      string  `json:"transaction_id"`
	SourceAccount      string  `json:"source_account"`
	DestinationAccount string  `json:"destination_account"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"created_at"`
	ProcessedAt        *string `json:"processed_at"`
}

// Stats is the number of transactions in each status
type Stats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Reader serves point lookups for external callers
type Reader struct {
	accessor *repository.Accessor
}

func NewReader(accessor *repository.Accessor) *Reader {
	return &Reader{accessor: accessor}
}

// Status returns the view of transactionID, ErrNotFound when it does not
// exist, or a wrapped store error
func (r *Reader) Status(ctx context.Context, transactionID string) (*View, error) {
	txn, err := r.accessor.Find(ctx, transactionID, r.accessor.Timeouts.Medium)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %s: %w", transactionID, err)
	}
	return NewView(txn), nil
}

// Stats counts transactions per status. Both known statuses are always present.
func (r *Reader) Stats(ctx context.Context) (*Stats, error) {
	counts, err := r.accessor.Stats(ctx, r.accessor.Timeouts.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	stats := &Stats{
		ByStatus: map[string]int64{
			string(model.StatusProcessing): 0,
			string(model.StatusProcessed):  0,
		},
	}
	for s, n := range counts {
		stats.ByStatus[string(s)] = n
		stats.Total += n
	}
	return stats, nil
}

func NewView(txn *model.Transaction) *View {
	v := &View{
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             txn.Amount.InexactFloat64(),
		Currency:           txn.Currency,
		Status:             string(txn.Status),
		CreatedAt:          model.FormatTimestamp(txn.CreatedAt),
	}
	if txn.ProcessedAt != nil {
		at := model.FormatTimestamp(*txn.ProcessedAt)
		v.ProcessedAt = &at
	}
	return v
}
