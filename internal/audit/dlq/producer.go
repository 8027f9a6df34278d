package dlq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/segmentio/kafka-go"
)

// FailedDocument is an audit record that could not be projected
type FailedDocument struct {
	OriginalDocument json.RawMessage `json:"originalDocument"`
	DocumentID       string          `json:"documentId"`
	ErrorType        string          `json:"errorType"`
	ErrorReason      string          `json:"errorReason"`
	FailedAt         time.Time       `json:"failedAt"`
	RetryCount       int             `json:"retryCount"`
	SourceTopic      string          `json:"sourceTopic"`
}

// Sender accepts failed documents
type Sender interface {
	SendToDeadLetter(ctx context.Context, doc FailedDocument) error
}

// Producer writes failed documents to the dead letter topic
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *logger.Logger
}

// NewProducer creates a synchronous DLQ producer
func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	log.Infof("DLQ producer initialized for topic: %s", topic)
	return &Producer{
		writer: writer,
		topic:  topic,
		log:    log,
	}
}

// SendToDeadLetter keys the message by document id so failures of one
// transaction stay ordered
func (p *Producer) SendToDeadLetter(ctx context.Context, doc FailedDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(doc.DocumentID),
		Value: payload,
	})
	if err != nil {
		p.log.Errorf("Failed to send document [%s] to DLQ: %s", doc.DocumentID, err)
		return err
	}

	p.log.Warningf("Sent failed document [%s] to DLQ topic [%s] (%s)", doc.DocumentID, p.topic, doc.ErrorType)
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
