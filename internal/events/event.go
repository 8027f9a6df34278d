package events

import (
	"github.com/chungtau/txn-webhook/internal/model"
)

// TransactionProcessedEvent is published once a transaction reaches PROCESSED
type TransactionProcessedEvent struct {
	TransactionID      string `json:"transactionId"`
	SourceAccount      string `json:"sourceAccount"`
	DestinationAccount string `json:"destinationAccount"`
	Amount             string `json:"amount"`
	Fee                string `json:"fee"`
	NetAmount          string `json:"netAmount"`
	Currency           string `json:"currency"`
	Status             string `json:"status"`
	CreatedAt          string `json:"createdAt"`
	ProcessedAt        string `json:"processedAt"`
}

// NewProcessedEvent describes txn after completion. Monetary values are kept
// as decimal strings.
func NewProcessedEvent(txn *model.Transaction, fee, net string) TransactionProcessedEvent {
	evt := TransactionProcessedEvent{
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             txn.Amount.String(),
		Fee:                fee,
		NetAmount:          net,
		Currency:           txn.Currency,
		Status:             string(model.StatusProcessed),
		CreatedAt:          model.FormatTimestamp(txn.CreatedAt),
	}
	if txn.ProcessedAt != nil {
		evt.ProcessedAt = model.FormatTimestamp(*txn.ProcessedAt)
	}
	return evt
}
