package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chungtau/txn-webhook/internal/audit"
	"github.com/chungtau/txn-webhook/internal/audit/dlq"
	"github.com/chungtau/txn-webhook/internal/audit/elasticsearch"
	"github.com/chungtau/txn-webhook/internal/config"
	"github.com/chungtau/txn-webhook/internal/logging"
)

const auditGroupID = "txn-audit-group"

func main() {
	configFile := flag.String("config-file", "", "Path to a JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}

	log, err := logging.New("TXN-AUDIT", cfg.LogLevel, os.Stdout)
	if err != nil {
		panic(err)
	}

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS must be set for the audit service")
	}
	log.Infof("Starting audit service. Brokers: %v, Topic: %s", brokers, cfg.KafkaEventsTopic)

	producer := dlq.NewProducer(brokers, cfg.DLQTopic, log)
	defer producer.Close()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		URL:         cfg.ESURL,
		Index:       cfg.ESIndex,
		SourceTopic: cfg.KafkaEventsTopic,
		DLQ:         producer,
	}, log)
	if err != nil {
		log.Fatalf("Failed to initialize Elasticsearch: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := audit.NewReader(brokers, cfg.KafkaEventsTopic, auditGroupID)
	consumer := audit.NewConsumer(reader, es, producer, cfg.KafkaEventsTopic, log)
	if err := consumer.Run(ctx); err != nil {
		log.Errorf("Audit consumer error: %s", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := es.Close(flushCtx); err != nil {
		log.Errorf("Failed to flush audit index: %s", err)
	}
	log.Info("Audit service stopped gracefully")
}
