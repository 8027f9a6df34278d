package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/shopspring/decimal"

	"github.com/chungtau/txn-webhook/internal/audit/dlq"
	"github.com/chungtau/txn-webhook/internal/events"
)

// Client projects processed transactions into an Elasticsearch index
type Client struct {
	es          *elasticsearch.Client
	indexer     esutil.BulkIndexer
	index       string
	sourceTopic string
	dlq         dlq.Sender
	log         *logger.Logger
}

// Config holds Elasticsearch connection configuration
type Config struct {
	URL         string
	Index       string
	SourceTopic string
	DLQ         dlq.Sender // optional
}

// TransactionDocument is the indexed shape of a processed transaction
type TransactionDocument struct {
	TransactionID      string    `json:"transactionId"`
	SourceAccount      string    `json:"sourceAccount"`
	DestinationAccount string    `json:"destinationAccount"`
	Amount             float64   `json:"amount"`
	AmountRaw          string    `json:"amountRaw"`
	Fee                float64   `json:"fee"`
	NetAmount          float64   `json:"netAmount"`
	Currency           string    `json:"currency"`
	Status             string    `json:"status"`
	CreatedAt          string    `json:"createdAt"`
	ProcessedAt        string    `json:"processedAt"`
	IndexedAt          time.Time `json:"indexedAt"`
}

const indexMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0,
		"index": {
			"refresh_interval": "1s"
		}
	},
	"mappings": {
		"properties": {
			"transactionId": { "type": "keyword" },
			"sourceAccount": { "type": "keyword" },
			"destinationAccount": { "type": "keyword" },
			"amount": { "type": "scaled_float", "scaling_factor": 100000000 },
			"amountRaw": { "type": "keyword" },
			"fee": { "type": "scaled_float", "scaling_factor": 100000000 },
			"netAmount": { "type": "scaled_float", "scaling_factor": 100000000 },
			"currency": { "type": "keyword" },
			"status": { "type": "keyword" },
			"createdAt": { "type": "date", "format": "strict_date_optional_time||epoch_millis" },
			"processedAt": { "type": "date", "format": "strict_date_optional_time||epoch_millis" },
			"indexedAt": { "type": "date" }
		}
	}
}`

// NewDocument converts a processed event into its indexed form. Monetary
// strings that fail to parse are rejected.
func NewDocument(evt events.TransactionProcessedEvent, indexedAt time.Time) (TransactionDocument, error) {
	amount, err := decimal.NewFromString(evt.Amount)
	if err != nil {
		return TransactionDocument{}, fmt.Errorf("invalid amount %q: %w", evt.Amount, err)
	}
	fee, err := parseOptional(evt.Fee)
	if err != nil {
		return TransactionDocument{}, fmt.Errorf("invalid fee %q: %w", evt.Fee, err)
	}
	net, err := parseOptional(evt.NetAmount)
	if err != nil {
		return TransactionDocument{}, fmt.Errorf("invalid net amount %q: %w", evt.NetAmount, err)
	}

	return TransactionDocument{
		TransactionID:      evt.TransactionID,
		SourceAccount:      evt.SourceAccount,
		DestinationAccount: evt.DestinationAccount,
		Amount:             amount.InexactFloat64(),
		AmountRaw:          evt.Amount,
		Fee:                fee.InexactFloat64(),
		NetAmount:          net.InexactFloat64(),
		Currency:           evt.Currency,
		Status:             evt.Status,
		CreatedAt:          evt.CreatedAt,
		ProcessedAt:        evt.ProcessedAt,
		IndexedAt:          indexedAt.UTC(),
	}, nil
}

func parseOptional(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// NewClient connects, ensures the index exists and starts the bulk indexer
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}
	log.Infof("Connected to Elasticsearch: %s", res.Status())

	client := &Client{
		es:          es,
		index:       cfg.Index,
		sourceTopic: cfg.SourceTopic,
		dlq:         cfg.DLQ,
		log:         log,
	}

	if err := client.ensureIndex(); err != nil {
		return nil, fmt.Errorf("failed to ensure index: %w", err)
	}

	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		Index:         cfg.Index,
		NumWorkers:    2,
		FlushBytes:    5e+6,
		FlushInterval: 5 * time.Second,
		OnError: func(ctx context.Context, err error) {
			log.Errorf("Bulk indexer error: %s", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}
	client.indexer = indexer

	return client, nil
}

func (c *Client) ensureIndex() error {
	res, err := c.es.Indices.Exists([]string{c.index})
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		c.log.Infof("Index '%s' already exists", c.index)
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.Status())
	}

	c.log.Infof("Created index '%s' with mapping", c.index)
	return nil
}

// IndexTransaction queues doc for indexing under its transaction id, so
// redelivered events overwrite rather than duplicate. rawJSON is what lands
// in the DLQ when Elasticsearch rejects the document.
func (c *Client) IndexTransaction(ctx context.Context, doc TransactionDocument, rawJSON []byte) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	err = c.indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: doc.TransactionID,
		Body:       bytes.NewReader(body),
		OnSuccess: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem) {
			c.log.Debugf("Indexed transaction [%s]", doc.TransactionID)
		},
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			errorType, errorReason := "client_error", ""
			if err != nil {
				errorReason = err.Error()
			} else {
				errorType = res.Error.Type
				errorReason = res.Error.Reason
			}
			c.log.Errorf("Failed to index transaction [%s]: %s %s", doc.TransactionID, errorType, errorReason)
			c.deadLetter(doc.TransactionID, rawJSON, errorType, errorReason)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add to bulk indexer: %w", err)
	}
	return nil
}

func (c *Client) deadLetter(id string, rawJSON []byte, errorType, reason string) {
	if c.dlq == nil {
		return
	}
	// The bulk indexer callback context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := dlq.FailedDocument{
		OriginalDocument: rawJSON,
		DocumentID:       id,
		ErrorType:        errorType,
		ErrorReason:      reason,
		FailedAt:         time.Now().UTC(),
		SourceTopic:      c.sourceTopic,
	}
	if err := c.dlq.SendToDeadLetter(ctx, doc); err != nil {
		c.log.Errorf("Failed to send [%s] to DLQ: %s. Original payload: %s", id, err, string(rawJSON))
	}
}

// Close flushes and closes the bulk indexer
func (c *Client) Close(ctx context.Context) error {
	if c.indexer == nil {
		return nil
	}
	if err := c.indexer.Close(ctx); err != nil {
		return fmt.Errorf("failed to close bulk indexer: %w", err)
	}
	stats := c.indexer.Stats()
	c.log.Infof("Bulk indexer closed. Flushed: %d, Failed: %d", stats.NumFlushed, stats.NumFailed)
	return nil
}
