package elasticsearch

import (
	"testing"
	"time"

	"github.com/chungtau/txn-webhook/internal/events"
)

func TestNewDocument(t *testing.T) {
	indexedAt := time.Date(2026, 1, 1, 8, 0, 0, 0, time.FixedZone("UTC+8", 8*3600))
	doc, err := NewDocument(events.TransactionProcessedEvent{
		TransactionID: "TXN00123",
		Amount:        "100.50",
		Fee:           "1.005",
		NetAmount:     "99.495",
		Currency:      "USD",
		Status:        "PROCESSED",
	}, indexedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Amount != 100.5 || doc.AmountRaw != "100.50" {
		t.Errorf("unexpected amount: %v %q", doc.Amount, doc.AmountRaw)
	}
	if doc.Fee != 1.005 || doc.NetAmount != 99.495 {
		t.Errorf("unexpected fee split: %v %v", doc.Fee, doc.NetAmount)
	}
	if doc.IndexedAt.Location() != time.UTC {
		t.Error("expected indexedAt in UTC")
	}
}

func TestNewDocumentRejectsBadAmounts(t *testing.T) {
	for _, evt := range []events.TransactionProcessedEvent{
		{TransactionID: "A", Amount: ""},
		{TransactionID: "B", Amount: "ten"},
		{TransactionID: "C", Amount: "10", Fee: "x"},
	} {
		if _, err := NewDocument(evt, time.Now()); err == nil {
			t.Errorf("%s: expected error", evt.TransactionID)
		}
	}
}

func TestNewDocumentMissingFeeIsZero(t *testing.T) {
	doc, err := NewDocument(events.TransactionProcessedEvent{TransactionID: "D", Amount: "5"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Fee != 0 || doc.NetAmount != 0 {
		t.Errorf("expected zero fee and net, got %v %v", doc.Fee, doc.NetAmount)
	}
}
