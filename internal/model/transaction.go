package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the processing state of a transaction
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
)

// Amounts are stored as decimal(20,8)
const (
	AmountScale         = 8
	AmountIntegerDigits = 12
)

var maxAmount = decimal.New(1, AmountIntegerDigits)

// AmountFits reports whether d is stored without rounding or overflow
func AmountFits(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale)) && d.Abs().LessThan(maxAmount)
}

// Transaction is the persisted record of a received webhook
type Transaction struct {
	ID                 uint            `gorm:"primaryKey" json:"-"`
	TransactionID      string          `gorm:"column:transaction_id;size:128;not null;uniqueIndex" json:"transaction_id"`
	SourceAccount      string          `gorm:"column:source_account;size:128;not null" json:"source_account"`
	DestinationAccount string          `gorm:"column:destination_account;size:128;not null" json:"destination_account"`
	Amount             decimal.Decimal `gorm:"column:amount;type:decimal(20,8);not null" json:"amount"`
	Currency           string          `gorm:"column:currency;size:3;not null" json:"currency"`
	Status             Status          `gorm:"column:status;size:16;not null;index" json:"status"`
	CreatedAt          time.Time       `gorm:"column:created_at;not null;index" json:"created_at"`
	ProcessedAt        *time.Time      `gorm:"column:processed_at" json:"processed_at"`
}

// Submission is the payload delivered by a payment processor webhook
type Submission struct {
	TransactionID      string           `json:"transaction_id" validate:"required,min=5"`
	SourceAccount      string           `json:"source_account" validate:"required,min=3"`
	DestinationAccount string           `json:"destination_account" validate:"required,min=3,nefield=SourceAccount"`
	Amount             *decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Currency           string           `json:"currency" validate:"required,len=3"`
}

// NewTransaction builds the initial PROCESSING record for a submission
func NewTransaction(sub Submission, createdAt time.Time) *Transaction {
	amount := decimal.Zero
	if sub.Amount != nil {
		amount = *sub.Amount
	}
	return &Transaction{
		TransactionID:      sub.TransactionID,
		SourceAccount:      sub.SourceAccount,
		DestinationAccount: sub.DestinationAccount,
		Amount:             amount,
		Currency:           sub.Currency,
		Status:             StatusProcessing,
		CreatedAt:          createdAt.UTC(),
	}
}

// IsProcessed reports whether the transaction reached its terminal state
func (t *Transaction) IsProcessed() bool {
	return t.Status == StatusProcessed
}

// FormatTimestamp renders times the way every API payload exposes them
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
