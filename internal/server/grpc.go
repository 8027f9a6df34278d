package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/apsdehal/go-logger"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/openzipkin/zipkin-go"
	zipkingrpc "github.com/openzipkin/zipkin-go/middleware/grpc"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chungtau/txn-webhook/internal/handler"
)

// ServiceName is the name reported to gRPC health checks
const ServiceName = "txnwebhook.Webhook"

const probeInterval = 10 * time.Second

// HealthServer exposes the standard gRPC health service, driven by store reachability
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	store      handler.Pinger
	port       string
	log        *logger.Logger
}

// NewHealthServer creates the gRPC server and registers its metrics with reg
func NewHealthServer(port string, store handler.Pinger, tracer *zipkin.Tracer, reg prometheus.Registerer, log *logger.Logger) *HealthServer {
	metrics := grpc_prometheus.NewServerMetrics()
	reg.MustRegister(metrics)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(metrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
	}
	if tracer != nil {
		opts = append(opts, grpc.StatsHandler(zipkingrpc.NewServerHandler(tracer)))
	}

	grpcServer := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	metrics.InitializeMetrics(grpcServer)

	return &HealthServer{
		grpcServer: grpcServer,
		health:     hs,
		store:      store,
		port:       port,
		log:        log,
	}
}

// Run serves health checks until ctx is cancelled
func (s *HealthServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.port, err)
	}

	go s.probe(ctx)

	errChan := make(chan error, 1)
	go func() {
		s.log.Infof("Starting gRPC health server on :%s", s.port)
		errChan <- s.grpcServer.Serve(lis)
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("gRPC health server error: %w", err)
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.log.Info("gRPC health server stopped")
	return nil
}

// probe keeps the serving status in line with store reachability
func (s *HealthServer) probe(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		s.setStatus(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *HealthServer) setStatus(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warningf("Store unreachable, reporting NOT_SERVING: %s", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
