package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chungtau/txn-webhook/internal/model"
)

// MemoryStore implements Backend in process memory for development and tests
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.Transaction
	nextID  uint
}

// NewMemoryStore creates an empty in-memory backend
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.Transaction),
	}
}

func (s *MemoryStore) Get(ctx context.Context, transactionID string) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.records[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(txn), nil
}

func (s *MemoryStore) Insert(ctx context.Context, txn *model.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[txn.TransactionID]; ok {
		return ErrAlreadyExists
	}

	s.nextID++
	txn.ID = s.nextID
	s.records[txn.TransactionID] = clone(txn)
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, transactionID string, from, to model.Status, processedAt *time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.records[transactionID]
	if !ok || txn.Status != from {
		return 0, nil
	}

	txn.Status = to
	if processedAt != nil {
		at := processedAt.UTC()
		txn.ProcessedAt = &at
	}
	return 1, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status model.Status, createdBefore time.Time, limit int) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, txn := range s.records {
		if txn.Status == status && txn.CreatedAt.Before(createdBefore) {
			out = append(out, *clone(txn))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Status]int64)
	for _, txn := range s.records {
		counts[txn.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func clone(txn *model.Transaction) *model.Transaction {
	cp := *txn
	if txn.ProcessedAt != nil {
		at := *txn.ProcessedAt
		cp.ProcessedAt = &at
	}
	return &cp
}
