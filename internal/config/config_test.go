package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Listener: ListenerConfig{
			Address:         ":50051",
			ProtocolVersion: 1,
		},
		Dispatch: DispatchConfig{
			WorkerPoolSize:           4,
			QueueNotifyBuffer:        256,
			SyncOnConnect:            true,
			DefaultKeepWindowSeconds: 60,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			FetchMaxBytes: 52428800,
			TrustFeed:     ConsumerConfig{GroupID: "g1", Topics: []string{"t1"}},
		},
		Postgres: PostgresConfig{
			DSN:                "postgres://localhost/test",
			MaxConns:           10,
			MinConns:           2,
			ReloadIntervalSecs: 300,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty brokers")
	}
}

func TestValidate_NoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestValidate_NoTrustFeedGroupID(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.TrustFeed.GroupID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty trust_feed group_id")
	}
}

func TestValidate_NoTrustFeedTopics(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.TrustFeed.Topics = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty trust_feed topics")
	}
}

func TestValidate_NoListenerAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Listener.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty listener address")
	}
}

func TestValidate_WorkerPoolSizeZero(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatch.WorkerPoolSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for worker_pool_size = 0")
	}
}

func TestValidate_QueueNotifyBufferZero(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatch.QueueNotifyBuffer = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for queue_notify_buffer = 0")
	}
}

func TestValidate_DefaultKeepWindowZero(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatch.DefaultKeepWindowSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default_keep_window_seconds = 0")
	}
}

func TestValidate_ReloadIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.ReloadIntervalSecs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for reload_interval_seconds = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
kafka:
  brokers:
    - "localhost:9092"
  trust_feed:
    topics:
      - "aspa-objects"
postgres:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("RPKIVALIDATOR_POSTGRES__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("RPKIVALIDATOR_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvEmptyGroupIDFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("RPKIVALIDATOR_KAFKA__TRUST_FEED__GROUP_ID", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty trust_feed group_id via env")
	}
}
