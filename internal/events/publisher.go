package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/segmentio/kafka-go"
)

// Publisher announces transaction lifecycle events
type Publisher interface {
	PublishProcessed(ctx context.Context, evt TransactionProcessedEvent) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by transaction id
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	log    *logger.Logger
}

// NewKafkaPublisher creates a synchronous publisher for topic
func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	log.Infof("Event publisher initialized for topic: %s", topic)
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		log:    log,
	}
}

func (p *KafkaPublisher) PublishProcessed(ctx context.Context, evt TransactionProcessedEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	// Same transaction always lands on the same partition
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.TransactionID),
		Value: payload,
	})
	if err != nil {
		p.log.Errorf("Failed to publish event for [%s]: %s", evt.TransactionID, err)
		return err
	}

	p.log.Debugf("Published TransactionProcessed [%s] to topic [%s]", evt.TransactionID, p.topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// NopPublisher drops every event; used when no brokers are configured
type NopPublisher struct{}

func (NopPublisher) PublishProcessed(context.Context, TransactionProcessedEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
