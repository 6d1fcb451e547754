package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the sentinel daemon.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Policies   PoliciesConfig   `yaml:"policies"`
	Recipients RecipientsConfig `yaml:"recipients"`
	Store      StoreConfig      `yaml:"store"`
	State      StateConfig      `yaml:"state"`
	Cache      CacheConfig      `yaml:"cache"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

// ServerConfig controls the ops gRPC listener and the metrics endpoint.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AlertingConfig holds the evaluation knobs shared by all policies.
type AlertingConfig struct {
	// BaseToleranceInterval is multiplied by each policy's tolerance to yield
	// the debounce window.
	BaseToleranceInterval time.Duration `yaml:"baseToleranceInterval"`
}

// PoliciesConfig locates the signal/policy pack.
type PoliciesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// OrgRecipients lists the users notified for one organization's signals.
type OrgRecipients struct {
	Admins []string `yaml:"admins"`
	// Staff are global staff users holding a notification subscription for
	// this organization.
	Staff []string `yaml:"staff"`
}

// RecipientsConfig backs the config-driven recipient resolver.
type RecipientsConfig struct {
	Superusers    []string                 `yaml:"superusers"`
	Organizations map[string]OrgRecipients `yaml:"organizations"`
}

// PostgresConfig holds connection parameters for the durable sample store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// StoreConfig selects the sample store backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend  string         `yaml:"backend"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// StateConfig selects where per-signal health flags are persisted.
type StateConfig struct {
	// Backend is "memory" or "valkey"; valkey requires cache.enabled.
	Backend string `yaml:"backend"`
}

// CacheConfig controls the Valkey provider used for durable alert state.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// KafkaConfig wires sample ingestion and the notification sink. Empty broker
// lists disable the respective component.
type KafkaConfig struct {
	Brokers            []string      `yaml:"brokers"`
	SamplesTopic       string        `yaml:"samplesTopic"`
	GroupID            string        `yaml:"groupID"`
	NotificationsTopic string        `yaml:"notificationsTopic"`
	WriteTimeout       time.Duration `yaml:"writeTimeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Alerting.BaseToleranceInterval <= 0 {
		return nil, fmt.Errorf("alerting.baseToleranceInterval must be positive")
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Alerting: AlertingConfig{
			BaseToleranceInterval: time.Minute,
		},
		Policies: PoliciesConfig{Path: "configs/policies.yaml"},
		Store:    StoreConfig{Backend: "memory", Postgres: PostgresConfig{Port: 5432, SSLMode: "disable"}},
		State:    StateConfig{Backend: "memory"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Kafka: KafkaConfig{
			SamplesTopic:       "sentinel.samples",
			GroupID:            "sentinel-alerting",
			NotificationsTopic: "sentinel.notifications",
			WriteTimeout:       5 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_BASE_TOLERANCE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.BaseToleranceInterval = d
		}
	}
	if v := os.Getenv("SENTINEL_POLICIES_PATH"); v != "" {
		cfg.Policies.Path = v
	}
	if v := os.Getenv("SENTINEL_POLICIES_WATCH"); v != "" {
		cfg.Policies.Watch = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SENTINEL_PG_HOST"); v != "" {
		cfg.Store.Postgres.Host = v
	}
	if v := os.Getenv("SENTINEL_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.Port = port
		}
	}
	if v := os.Getenv("SENTINEL_PG_USER"); v != "" {
		cfg.Store.Postgres.User = v
	}
	if v := os.Getenv("SENTINEL_PG_PASSWORD"); v != "" {
		cfg.Store.Postgres.Password = v
	}
	if v := os.Getenv("SENTINEL_PG_DATABASE"); v != "" {
		cfg.Store.Postgres.Database = v
	}
	if v := os.Getenv("SENTINEL_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("SENTINEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SENTINEL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SENTINEL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitNonEmpty(v)
	}
	if v := os.Getenv("SENTINEL_KAFKA_SAMPLES_TOPIC"); v != "" {
		cfg.Kafka.SamplesTopic = v
	}
	if v := os.Getenv("SENTINEL_KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := os.Getenv("SENTINEL_KAFKA_NOTIFICATIONS_TOPIC"); v != "" {
		cfg.Kafka.NotificationsTopic = v
	}
}

func splitNonEmpty(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
