package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/segmentio/kafka-go"
)

// KafkaQueue carries completion work through a Kafka topic so accepted
// transactions survive a restart. Offsets are committed after the handler
// returns.
type KafkaQueue struct {
	writer      *kafka.Writer
	reader      *kafka.Reader
	handler     Handler
	concurrency int
	topic       string
	log         *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewKafkaQueue creates a producer and consumer-group reader on topic
func NewKafkaQueue(brokers []string, topic, groupID string, handler Handler, concurrency int, log *logger.Logger) *KafkaQueue {
	if concurrency <= 0 {
		concurrency = 4
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})

	log.Infof("Kafka completion queue initialized. Brokers: %v, Topic: %s, Group: %s", brokers, topic, groupID)
	return &KafkaQueue{
		writer:      writer,
		reader:      reader,
		handler:     handler,
		concurrency: concurrency,
		topic:       topic,
		log:         log,
	}
}

// Enqueue publishes transactionID; it blocks until the broker acknowledges
// or ctx expires
func (q *KafkaQueue) Enqueue(ctx context.Context, transactionID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(Message{TransactionID: transactionID})
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(transactionID),
		Value: payload,
	})
}

// Run consumes the topic until ctx is cancelled
func (q *KafkaQueue) Run(ctx context.Context) error {
	sem := make(chan struct{}, q.concurrency)
	var wg sync.WaitGroup

	q.log.Info("Completion consumer started, waiting for messages...")
	for {
		m, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			q.log.Errorf("Error reading completion message: %s", err)
			continue
		}

		var msg Message
		if err := json.Unmarshal(m.Value, &msg); err != nil || msg.TransactionID == "" {
			q.log.Errorf("Dropping malformed completion message at offset %d: %s", m.Offset, string(m.Value))
			q.commit(m)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(m kafka.Message, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			q.handler(ctx, id)
			// Interrupted work is redelivered after restart
			if ctx.Err() != nil {
				return
			}
			q.commit(m)
		}(m, msg.TransactionID)
	}

	wg.Wait()
	if err := q.reader.Close(); err != nil {
		q.log.Errorf("Failed to close completion reader: %s", err)
	}
	q.log.Info("Completion consumer stopped")
	return nil
}

// commit uses its own context so offsets are still stored during shutdown
func (q *KafkaQueue) commit(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.reader.CommitMessages(ctx, m); err != nil {
		q.log.Errorf("Failed to commit offset %d on %s: %s", m.Offset, q.topic, err)
	}
}

// Close stops accepting new work and flushes the producer
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.writer.Close()
}
