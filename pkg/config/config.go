// Package config loads per-service configuration from an optional YAML
// file merged with environment variables; an env var set for a key always
// wins over the YAML value for that same key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EventLogConfig configures the trades/DLQ log producer and consumer.
type EventLogConfig struct {
	Brokers          []string      `yaml:"brokers"`
	RawTradesTopic   string        `yaml:"raw_trades_topic"`
	TradesTopic      string        `yaml:"trades_topic"`
	DLQTopic         string        `yaml:"dlq_topic"`
	NumPartitions    int           `yaml:"num_partitions"`
	ConsumerGroup    string        `yaml:"consumer_group"`
	Linger           time.Duration `yaml:"linger"`
	BatchMaxBytes    int32         `yaml:"batch_max_bytes"`
}

// CacheConfig configures the Redis-backed position/price cache.
type CacheConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// StoreConfig configures the relational trade store and its batch writer.
type StoreConfig struct {
	Path           string        `yaml:"path"`
	BatchMaxSize   int           `yaml:"batch_max_size"`
	BatchMaxAge    time.Duration `yaml:"batch_max_age"`
}

// ArchiveConfig configures the raw-payload archive store.
type ArchiveConfig struct {
	Backend  string `yaml:"backend"` // "local" or "s3"
	LocalDir string `yaml:"local_dir"`
	MaxBytes int64  `yaml:"max_bytes"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

// RefDataConfig configures the reference-data source and refresh cadence.
type RefDataConfig struct {
	FilePath        string        `yaml:"file_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// HTTPConfig configures the /health and /metrics surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full per-service configuration document.
type Config struct {
	Service  string        `yaml:"service"`
	LogLevel string        `yaml:"log_level"`
	EventLog EventLogConfig `yaml:"event_log"`
	Cache    CacheConfig    `yaml:"cache"`
	Store    StoreConfig    `yaml:"store"`
	Archive  ArchiveConfig  `yaml:"archive"`
	RefData  RefDataConfig  `yaml:"refdata"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// Default returns a Config with every field set to a usable local-dev
// default, overridden by Load.
func Default(service string) Config {
	return Config{
		Service:  service,
		LogLevel: "info",
		EventLog: EventLogConfig{
			Brokers:        []string{"localhost:9092"},
			RawTradesTopic: "trades.raw",
			TradesTopic:    "trades",
			DLQTopic:       "trades-dlq",
			NumPartitions:  16,
			ConsumerGroup:  service,
			Linger:         10 * time.Millisecond,
			BatchMaxBytes:  1 << 20,
		},
		Cache: CacheConfig{Addr: "localhost:6379", DB: 0},
		Store: StoreConfig{
			Path:         "./data/" + service + ".db",
			BatchMaxSize: 5000,
			BatchMaxAge:  5 * time.Second,
		},
		Archive: ArchiveConfig{Backend: "local", LocalDir: "./data/archive", MaxBytes: 0},
		RefData: RefDataConfig{FilePath: "./data/refdata.json", RefreshInterval: 5 * time.Minute},
		HTTP:    HTTPConfig{Addr: ":8080"},
	}
}

// Load builds a Config for service: it starts from Default, applies an
// optional YAML file at yamlPath if non-empty and present, then overrides
// any field with a matching environment variable. Env vars win over YAML,
// matching this module's established getEnv-wins-if-set convention.
func Load(service, yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default(service)

	if yamlPath != "" {
		if raw, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("EVENT_LOG_BROKERS"); v != "" {
		cfg.EventLog.Brokers = splitCSV(v)
	}
	if v := os.Getenv("EVENT_LOG_RAW_TRADES_TOPIC"); v != "" {
		cfg.EventLog.RawTradesTopic = v
	}
	if v := os.Getenv("EVENT_LOG_TRADES_TOPIC"); v != "" {
		cfg.EventLog.TradesTopic = v
	}
	if v := os.Getenv("EVENT_LOG_DLQ_TOPIC"); v != "" {
		cfg.EventLog.DLQTopic = v
	}
	if v := os.Getenv("EVENT_LOG_NUM_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventLog.NumPartitions = n
		}
	}
	if v := os.Getenv("CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ARCHIVE_BACKEND"); v != "" {
		cfg.Archive.Backend = v
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
	}
	if v := os.Getenv("REFDATA_FILE_PATH"); v != "" {
		cfg.RefData.FilePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}

func splitCSV(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
