// Package audit projects processed-transaction events into a searchable index.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/segmentio/kafka-go"

	"github.com/chungtau/txn-webhook/internal/audit/dlq"
	"github.com/chungtau/txn-webhook/internal/audit/elasticsearch"
	"github.com/chungtau/txn-webhook/internal/events"
)

// Indexer stores audit documents
type Indexer interface {
	IndexTransaction(ctx context.Context, doc elasticsearch.TransactionDocument, rawJSON []byte) error
}

// MessageReader is the part of a Kafka consumer group reader the projection uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads processed events and hands them to the indexer
type Consumer struct {
	reader  MessageReader
	indexer Indexer
	dlq     dlq.Sender // optional
	topic   string
	log     *logger.Logger
	nowFn   func() time.Time
}

// NewReader joins groupID on topic
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func NewConsumer(reader MessageReader, indexer Indexer, sender dlq.Sender, topic string, log *logger.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		indexer: indexer,
		dlq:     sender,
		topic:   topic,
		log:     log,
		nowFn:   time.Now,
	}
}

// Run consumes until ctx is cancelled, then closes the reader
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Infof("Audit consumer started on topic [%s]", c.topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Errorf("Failed to close reader: %s", err)
		}
	}()

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Audit consumer stopped")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Errorf("Error reading message: %s", err)
			continue
		}
		c.Handle(ctx, m)
	}
}

// Handle projects one message. Undecodable payloads go straight to the DLQ.
func (c *Consumer) Handle(ctx context.Context, m kafka.Message) {
	c.log.Debugf("Received event | Key: %s | Partition: %d | Offset: %d", string(m.Key), m.Partition, m.Offset)

	var evt events.TransactionProcessedEvent
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		c.reject(ctx, string(m.Key), m.Value, "decode_error", err)
		return
	}
	if evt.TransactionID == "" {
		c.reject(ctx, string(m.Key), m.Value, "decode_error", errors.New("missing transactionId"))
		return
	}

	doc, err := elasticsearch.NewDocument(evt, c.nowFn())
	if err != nil {
		c.reject(ctx, evt.TransactionID, m.Value, "invalid_document", err)
		return
	}

	if err := c.indexer.IndexTransaction(ctx, doc, m.Value); err != nil {
		c.reject(ctx, evt.TransactionID, m.Value, "index_error", err)
		return
	}
	c.log.Infof("Audit: transaction [%s] processed. Amount: %s %s, fee %s", evt.TransactionID, evt.Amount, evt.Currency, evt.Fee)
}

func (c *Consumer) reject(ctx context.Context, id string, raw []byte, errorType string, cause error) {
	c.log.Errorf("Rejecting event [%s]: %s: %s", id, errorType, cause)
	if c.dlq == nil {
		return
	}
	doc := dlq.FailedDocument{
		OriginalDocument: rawOrString(raw),
		DocumentID:       id,
		ErrorType:        errorType,
		ErrorReason:      cause.Error(),
		FailedAt:         c.nowFn().UTC(),
		SourceTopic:      c.topic,
	}
	if err := c.dlq.SendToDeadLetter(ctx, doc); err != nil {
		c.log.Errorf("Failed to send [%s] to DLQ: %s", id, err)
	}
}

// rawOrString keeps invalid JSON embeddable in the DLQ record
func rawOrString(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
