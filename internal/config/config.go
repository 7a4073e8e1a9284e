// Package config loads and validates the validator's configuration:
// YAML file overlaid by environment variables, exactly as the teacher's
// koanf-based loader (internal/config/config.go in the retrieval pack).
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Listener ListenerConfig `koanf:"listener"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Postgres PostgresConfig `koanf:"postgres"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// ListenerConfig is the proxy-facing TCP socket the command dispatch pool
// reads from (the "external socket layer" collaborator, spec §1/§6).
type ListenerConfig struct {
	Address         string `koanf:"address"`
	ProtocolVersion uint16 `koanf:"protocol_version"`
}

// DispatchConfig covers the command-queue/worker-pool tunables (spec §4.6,
// §5).
type DispatchConfig struct {
	WorkerPoolSize           int  `koanf:"worker_pool_size"`
	QueueNotifyBuffer        int  `koanf:"queue_notify_buffer"`
	SyncOnConnect            bool `koanf:"sync_on_connect"`
	DefaultKeepWindowSeconds int  `koanf:"default_keep_window_seconds"`
}

type KafkaConfig struct {
	Brokers       []string       `koanf:"brokers"`
	ClientID      string         `koanf:"client_id"`
	TLS           TLSConfig      `koanf:"tls"`
	SASL          SASLConfig     `koanf:"sasl"`
	TrustFeed     ConsumerConfig `koanf:"trust_feed"`
	FetchMaxBytes int32          `koanf:"fetch_max_bytes"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type ConsumerConfig struct {
	GroupID string   `koanf:"group_id"`
	Topics  []string `koanf:"topics"`
}

// PostgresConfig backs the ASPA seed/reload source (SPEC_FULL.md domain
// stack: internal/aspadb).
type PostgresConfig struct {
	DSN                 string `koanf:"dsn"`
	MaxConns            int32  `koanf:"max_conns"`
	MinConns            int32  `koanf:"min_conns"`
	ReloadIntervalSecs  int    `koanf:"reload_interval_seconds"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: RPKIVALIDATOR_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("RPKIVALIDATOR_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "RPKIVALIDATOR_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "rpki-validator-1",
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
			ClientID:      "rpki-validator",
			FetchMaxBytes: 52428800,
			TrustFeed: ConsumerConfig{
				GroupID: "rpki-validator-trustfeed",
			},
		},
		Postgres: PostgresConfig{
			MaxConns:           10,
			MinConns:           2,
			ReloadIntervalSecs: 300,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Split comma-separated env strings for slice fields.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Kafka.TrustFeed.Topics) == 1 && strings.Contains(cfg.Kafka.TrustFeed.Topics[0], ",") {
		cfg.Kafka.TrustFeed.Topics = strings.Split(cfg.Kafka.TrustFeed.Topics[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Kafka.TrustFeed.GroupID == "" {
		return fmt.Errorf("config: kafka.trust_feed.group_id is required")
	}
	if len(c.Kafka.TrustFeed.Topics) == 0 {
		return fmt.Errorf("config: kafka.trust_feed.topics is required")
	}
	if c.Listener.Address == "" {
		return fmt.Errorf("config: listener.address is required")
	}
	if c.Dispatch.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: dispatch.worker_pool_size must be > 0 (got %d)", c.Dispatch.WorkerPoolSize)
	}
	if c.Dispatch.QueueNotifyBuffer <= 0 {
		return fmt.Errorf("config: dispatch.queue_notify_buffer must be > 0 (got %d)", c.Dispatch.QueueNotifyBuffer)
	}
	if c.Dispatch.DefaultKeepWindowSeconds <= 0 {
		return fmt.Errorf("config: dispatch.default_keep_window_seconds must be > 0 (got %d)", c.Dispatch.DefaultKeepWindowSeconds)
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Postgres.ReloadIntervalSecs <= 0 {
		return fmt.Errorf("config: postgres.reload_interval_seconds must be > 0 (got %d)", c.Postgres.ReloadIntervalSecs)
	}
	if c.Kafka.FetchMaxBytes <= 0 {
		return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
