package worker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chungtau/txn-webhook/internal/model"
)

// ErrInvalidAmount rejects a transaction whose amount is not positive
var ErrInvalidAmount = errors.New("invalid transaction amount")

var (
	feeRate = decimal.RequireFromString("0.01")
	netRate = decimal.RequireFromString("0.99")
)

// Outcome is what processing a transaction produced
type Outcome struct {
	ProcessedAmount decimal.Decimal
	Fee             decimal.Decimal
	NetAmount       decimal.Decimal
}

// Processor performs the payment-side work for a transaction
type Processor interface {
	Process(ctx context.Context, txn *model.Transaction) (Outcome, error)
}

// Simulator stands in for the external payment call: it waits, then charges
// a flat 1% fee
type Simulator struct {
	Delay             time.Duration
	ExternalCallDelay time.Duration
}

// NewSimulator creates a simulator with the given processing and external call delays
func NewSimulator(delay, externalCallDelay time.Duration) *Simulator {
	return &Simulator{
		Delay:             delay,
		ExternalCallDelay: externalCallDelay,
	}
}

func (s *Simulator) Process(ctx context.Context, txn *model.Transaction) (Outcome, error) {
	if err := sleep(ctx, s.Delay); err != nil {
		return Outcome{}, err
	}

	if !txn.Amount.IsPositive() {
		return Outcome{}, ErrInvalidAmount
	}

	outcome := Outcome{
		ProcessedAmount: txn.Amount,
		Fee:             txn.Amount.Mul(feeRate),
		NetAmount:       txn.Amount.Mul(netRate),
	}

	if err := sleep(ctx, s.ExternalCallDelay); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
