package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/chungtau/txn-webhook/internal/config"
	"github.com/chungtau/txn-webhook/internal/events"
	"github.com/chungtau/txn-webhook/internal/ingest"
	"github.com/chungtau/txn-webhook/internal/logging"
	"github.com/chungtau/txn-webhook/internal/metrics"
	"github.com/chungtau/txn-webhook/internal/middleware"
	"github.com/chungtau/txn-webhook/internal/queue"
	"github.com/chungtau/txn-webhook/internal/repository"
	"github.com/chungtau/txn-webhook/internal/status"
	"github.com/chungtau/txn-webhook/internal/store"
	"github.com/chungtau/txn-webhook/internal/tracing"
	"github.com/chungtau/txn-webhook/internal/validate"
	"github.com/chungtau/txn-webhook/internal/worker"
)

type testApp struct {
	router http.Handler
	cancel context.CancelFunc
}

func newTestApp(t *testing.T, cfg *config.Config, redisClient *redis.Client) *testApp {
	t.Helper()

	log := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	acc := repository.NewAccessor(store.NewMemoryStore(), repository.Timeouts{
		Short:  cfg.ShortTimeout(),
		Medium: cfg.MediumTimeout(),
	}, log, m)
	acc.WithBackoff(func(int) time.Duration { return time.Millisecond })

	completer := worker.NewCompleter(acc,
		worker.NewSimulator(cfg.ProcessingDelay(), cfg.ExternalCallDelay()),
		events.NopPublisher{}, tracing.Noop(), log, m, cfg.MaxStatusRetries)
	pool := queue.NewPool(completer.Handle, 2, 16, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = pool.Run(ctx) }()
	t.Cleanup(cancel)

	router := SetupRouter(Deps{
		Config:   cfg,
		Log:      log,
		Ingester: ingest.NewCoordinator(acc, validate.New(), pool, log, m),
		Reader:   status.NewReader(acc),
		Store:    acc,
		Redis:    redisClient,
		Gatherer: reg,
	})
	return &testApp{router: router, cancel: cancel}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.StoreDriver = "memory"
	cfg.ProcessingDelayMs = 20
	cfg.ExternalCallDelayMs = 5
	return &cfg
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestEndToEndProcessing(t *testing.T) {
	app := newTestApp(t, testConfig(), nil)

	w := app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
		"transaction_id":      "TXN00123",
		"source_account":      "ACC001",
		"destination_account": "ACC002",
		"amount":              100.0,
		"currency":            "USD",
	}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	ack := decode(t, w)
	if ack["status"] != "ACCEPTED" || ack["message"] != "Transaction TXN00123 accepted for processing" {
		t.Errorf("unexpected acknowledgment: %v", ack)
	}
	if _, err := time.Parse(time.RFC3339Nano, ack["timestamp"].(string)); err != nil {
		t.Errorf("timestamp is not RFC 3339: %v", ack["timestamp"])
	}

	var view map[string]interface{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w = app.do(t, http.MethodGet, "/v1/transactions/TXN00123", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		view = decode(t, w)
		if view["status"] == "PROCESSED" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if view["status"] != "PROCESSED" {
		t.Fatalf("transaction never processed: %v", view)
	}
	if view["processed_at"] == nil {
		t.Error("expected processed_at to be set")
	}
	if view["amount"] != 100.0 || view["currency"] != "USD" {
		t.Errorf("amount or currency changed: %v", view)
	}

	// Redelivery after completion reports the final state
	w = app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
		"transaction_id":      "TXN00123",
		"source_account":      "ACC001",
		"destination_account": "ACC002",
		"amount":              100.0,
		"currency":            "USD",
	}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on redelivery, got %d", w.Code)
	}
	if msg := decode(t, w)["message"]; msg != "Transaction TXN00123 already received and processed" {
		t.Errorf("unexpected redelivery message: %v", msg)
	}
}

func TestDuplicateAccountRejectedThenNotFound(t *testing.T) {
	app := newTestApp(t, testConfig(), nil)

	w := app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
		"transaction_id":      "TXN00124",
		"source_account":      "ACC001",
		"destination_account": "ACC001",
		"amount":              50,
		"currency":            "USD",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decode(t, w)
	if body["message"] != "source_account and destination_account cannot be the same" {
		t.Errorf("unexpected message: %v", body["message"])
	}

	w = app.do(t, http.MethodGet, "/v1/transactions/TXN00124", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if decode(t, w)["message"] != "Transaction TXN00124 not found" {
		t.Errorf("unexpected not-found body: %s", w.Body.String())
	}
}

func TestMalformedBody(t *testing.T) {
	app := newTestApp(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/transactions", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if decode(t, w)["code"] != "INVALID_REQUEST" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestMissingFieldsListed(t *testing.T) {
	app := newTestApp(t, testConfig(), nil)

	w := app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
		"transaction_id": "TXN00125",
		"source_account": "ACC001",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg := decode(t, w)["message"]; msg != "Missing required fields: destination_account, amount, currency" {
		t.Errorf("unexpected message: %v", msg)
	}
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t, testConfig(), nil)

	for _, path := range []string{"/", "/health"} {
		w := app.do(t, http.MethodGet, path, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		body := decode(t, w)
		if body["status"] != "HEALTHY" || body["current_time"] == "" {
			t.Errorf("%s: unexpected body %v", path, body)
		}
	}

	w := app.do(t, http.MethodGet, "/health/ready", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStatsAndMetrics(t *testing.T) {
	app := newTestApp(t, testConfig(), nil)

	app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
		"transaction_id":      "TXN00126",
		"source_account":      "ACC001",
		"destination_account": "ACC002",
		"amount":              10,
		"currency":            "EUR",
	}, nil)

	w := app.do(t, http.MethodGet, "/v1/transactions/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if total := decode(t, w)["total"]; total != 1.0 {
		t.Errorf("expected total 1, got %v", total)
	}

	w = app.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("txn_webhook_ingestions_total")) {
		t.Error("expected ingestion counter in metrics output")
	}
}

func TestStatusAPIRequiresTokenWhenAuthEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEnabled = true
	app := newTestApp(t, cfg, nil)

	w := app.do(t, http.MethodGet, "/v1/transactions/TXN00127", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	token, _, err := middleware.IssueToken(cfg.JWTSecret, "ops", middleware.ReadScope, time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	w = app.do(t, http.MethodGet, "/v1/transactions/TXN00127", nil, http.Header{"Authorization": {"Bearer " + token}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with a valid token, got %d", w.Code)
	}

	// Webhook delivery stays open
	w = app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
		"transaction_id":      "TXN00127",
		"source_account":      "ACC001",
		"destination_account": "ACC002",
		"amount":              10,
		"currency":            "EUR",
	}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestWebhookRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2
	app := newTestApp(t, cfg, client)

	codes := make([]int, 0, 3)
	for i, id := range []string{"TXN00201", "TXN00202", "TXN00203"} {
		w := app.do(t, http.MethodPost, "/v1/webhooks/transactions", map[string]interface{}{
			"transaction_id":      id,
			"source_account":      "ACC001",
			"destination_account": "ACC002",
			"amount":              i + 1,
			"currency":            "USD",
		}, nil)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 202, 202, 429, got %v", codes)
	}
}
