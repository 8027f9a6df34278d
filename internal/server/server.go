package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/middleware/http"
)

const shutdownTimeout = 30 * time.Second

// Server is the HTTP front of the webhook service
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	devMode    bool
}

// New builds the router and wraps it with server-side tracing
func New(deps Deps, tracer *zipkin.Tracer) *Server {
	var h http.Handler = SetupRouter(deps)
	if tracer != nil {
		h = zipkinhttp.NewServerMiddleware(tracer, zipkinhttp.TagResponseSize(true))(h)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + deps.Config.HTTPPort,
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:     deps.Log,
		devMode: deps.Config.DevMode,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.log.Infof("Starting webhook server on %s", s.httpServer.Addr)
		if s.devMode {
			s.log.Info("Dev token endpoint available at POST /auth/dev/token")
		}

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.log.Info("Shutting down webhook server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.log.Info("Webhook server gracefully stopped")
	return nil
}
