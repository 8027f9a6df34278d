package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{"STORE_DRIVER": "memory", "PROCESSING_DELAY_MS": 250, "WORKER_COUNT": 3}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != "memory" || cfg.WorkerCount != 3 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ProcessingDelay() != 250*time.Millisecond {
		t.Errorf("expected 250ms processing delay, got %v", cfg.ProcessingDelay())
	}
	if cfg.MaxStatusRetries != 3 || cfg.DBTable != "transactions" {
		t.Errorf("defaults lost: retries=%d table=%q", cfg.MaxStatusRetries, cfg.DBTable)
	}
}

func TestLoadEnvironmentWins(t *testing.T) {
	path := writeConfig(t, `{"STORE_DRIVER": "memory", "HTTP_PORT": "9000"}`)
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "9100" {
		t.Errorf("expected environment to override file, got %q", cfg.HTTPPort)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown store", `{"STORE_DRIVER": "postgres"}`},
		{"kafka without brokers", `{"QUEUE_BACKEND": "kafka"}`},
		{"unknown queue", `{"QUEUE_BACKEND": "sqs"}`},
		{"zero retries", `{"MAX_STATUS_RETRIES": -1}`},
		{"zero short timeout", `{"SHORT_TIMEOUT_MS": -5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefaultTimeouts(t *testing.T) {
	cfg := Default()
	if cfg.ShortTimeout() != time.Second || cfg.MediumTimeout() != 5*time.Second {
		t.Errorf("unexpected timeout profiles: %v %v", cfg.ShortTimeout(), cfg.MediumTimeout())
	}
	if cfg.DefaultTimeout() != 0 {
		t.Errorf("expected unbounded default profile, got %v", cfg.DefaultTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestBrokers(t *testing.T) {
	cfg := Config{KafkaBrokers: " kafka-1:9092, ,kafka-2:9092 "}
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if got := cfg.Brokers(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := (&Config{}).Brokers(); len(got) != 0 {
		t.Errorf("expected no brokers, got %v", got)
	}
}
