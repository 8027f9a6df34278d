package tracing

import (
	"github.com/apsdehal/go-logger"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/reporter"
	zipkinhttpreporter "github.com/openzipkin/zipkin-go/reporter/http"
)

// New builds the process tracer. Spans are only reported when endpointURL
// is set; otherwise the tracer is a noop.
func New(serviceName, hostPort, endpointURL string, log *logger.Logger) (*zipkin.Tracer, reporter.Reporter, error) {
	var rep reporter.Reporter
	if endpointURL == "" {
		rep = reporter.NewNoopReporter()
	} else {
		rep = zipkinhttpreporter.NewReporter(endpointURL)
	}

	localEndpoint, err := zipkin.NewEndpoint(serviceName, hostPort)
	if err != nil {
		_ = rep.Close()
		return nil, nil, err
	}

	sampler, err := zipkin.NewCountingSampler(1.0)
	if err != nil {
		_ = rep.Close()
		return nil, nil, err
	}

	tracer, err := zipkin.NewTracer(rep,
		zipkin.WithSampler(sampler),
		zipkin.WithLocalEndpoint(localEndpoint),
		zipkin.WithSharedSpans(false),
		zipkin.WithNoopTracer(endpointURL == ""),
	)
	if err != nil {
		_ = rep.Close()
		return nil, nil, err
	}

	if endpointURL == "" {
		log.Info("Zipkin endpoint not configured, tracing disabled")
	} else {
		log.Infof("Zipkin is connected, endpoint url : [%s]", endpointURL)
	}
	return tracer, rep, nil
}

// Noop returns a tracer that records nothing
func Noop() *zipkin.Tracer {
	tracer, _ := zipkin.NewTracer(reporter.NewNoopReporter(), zipkin.WithNoopTracer(true))
	return tracer
}
