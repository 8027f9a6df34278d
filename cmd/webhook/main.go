package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/apsdehal/go-logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/chungtau/txn-webhook/internal/config"
	"github.com/chungtau/txn-webhook/internal/events"
	"github.com/chungtau/txn-webhook/internal/ingest"
	"github.com/chungtau/txn-webhook/internal/logging"
	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/queue"
	"github.com/chungtau/txn-webhook/internal/repository"
	"github.com/chungtau/txn-webhook/internal/server"
	"github.com/chungtau/txn-webhook/internal/status"
	"github.com/chungtau/txn-webhook/internal/store"
	"github.com/chungtau/txn-webhook/internal/sweep"
	"github.com/chungtau/txn-webhook/internal/tracing"
	"github.com/chungtau/txn-webhook/internal/validate"
	"github.com/chungtau/txn-webhook/internal/worker"
)

func main() {
	configFile := flag.String("config-file", "", "Path to a JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.AppName, cfg.LogLevel, os.Stdout)
	if err != nil {
		panic(err)
	}
	log.Infof("Starting %s in %s", cfg.AppName, cfg.AppEnv)

	tracer, rep, err := tracing.New(cfg.AppName, "0.0.0.0:"+cfg.HTTPPort, cfg.ZipkinEndpoint, log)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %s", err)
	}
	defer rep.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, err := openStore(cfg, log)
	if err != nil {
		log.Fatalf("Failed to open transaction store: %s", err)
	}
	defer backend.Close()

	accessor := repository.NewAccessor(backend, repository.Timeouts{
		Short:   cfg.ShortTimeout(),
		Medium:  cfg.MediumTimeout(),
		Default: cfg.DefaultTimeout(),
	}, log, m)

	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaEventsTopic, log)
	}
	defer publisher.Close()

	completer := worker.NewCompleter(accessor,
		worker.NewSimulator(cfg.ProcessingDelay(), cfg.ExternalCallDelay()),
		publisher, tracer, log, m, cfg.MaxStatusRetries)

	var dispatcher queue.Dispatcher
	if cfg.QueueBackend == "kafka" {
		dispatcher = queue.NewKafkaQueue(cfg.Brokers(), cfg.KafkaCompletionTopic, cfg.KafkaGroupID, completer.Handle, cfg.WorkerCount, log)
	} else {
		dispatcher = queue.NewPool(completer.Handle, cfg.WorkerCount, cfg.QueueSize, log, m)
	}
	defer dispatcher.Close()

	coordinator := ingest.NewCoordinator(accessor, validate.New(), dispatcher, log, m)
	sweeper := sweep.NewSweeper(accessor, dispatcher, cfg.SweepInterval(), cfg.SweepStaleAfter(), cfg.SweepBatchSize, log, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	srv := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Ingester: coordinator,
		Reader:   status.NewReader(accessor),
		Store:    accessor,
		Redis:    redisClient,
		Gatherer: prometheus.Gatherers{reg, prometheus.DefaultGatherer},
	}, tracer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.GRPCHealthPort != "" {
		health := server.NewHealthServer(cfg.GRPCHealthPort, accessor, tracer, reg, log)
		g.Go(func() error { return health.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Errorf("Service stopped with error: %s", err)
		os.Exit(1)
	}
	log.Info("Service stopped")
}

func openStore(cfg *config.Config, log *logger.Logger) (store.Backend, error) {
	if cfg.StoreDriver == "memory" {
		log.Warning("Using in-memory transaction store; records do not survive a restart")
		return store.NewMemoryStore(), nil
	}
	return store.OpenMySQL(store.Options{
		Host:             cfg.DBHost,
		Port:             cfg.DBPort,
		Database:         cfg.DBDatabase,
		Table:            cfg.DBTable,
		User:             cfg.DBUser,
		Password:         cfg.DBPassword,
		ElevatedUser:     cfg.DBElevatedUser,
		ElevatedPassword: cfg.DBElevatedPassword,
	}, log)
}

// connectRedis returns nil when Redis is not configured or not reachable,
// which turns rate limiting off
func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ShortTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warningf("Redis unavailable at %s, rate limiting disabled: %s", cfg.RedisAddr, err)
		_ = client.Close()
		return nil
	}
	log.Infof("Redis is connected [%s]", cfg.RedisAddr)
	return client
}
