// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Harvest, Source, Datalake, Index, Postgres, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Harvest  HarvestConfig  `yaml:"harvest"`
	Source   SourceConfig   `yaml:"source"`
	Datalake DatalakeConfig `yaml:"datalake"`
	Index    IndexConfig    `yaml:"index"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HarvestConfig controls the acquisition control loop: how many new documents
// a session aims for, how many candidate draws it may spend, and how wide the
// candidate identifier space is.
type HarvestConfig struct {
	ControlDir         string `yaml:"controlDir"`
	TargetNewDownloads int    `yaml:"targetNewDownloads"`
	TotalTries         int    `yaml:"totalTries"`
	MaxRounds          int    `yaml:"maxRounds"`
	DownloadWorkers    int    `yaml:"downloadWorkers"`
	MaxCandidateID     int    `yaml:"maxCandidateId"`
}

// SourceConfig holds the remote document repository endpoint and the fetch
// retry policy.
type SourceConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	Suffixes    []string      `yaml:"suffixes"`
	UserAgent   string        `yaml:"userAgent"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	BreakerTrip int           `yaml:"breakerTrip"`
}

// DatalakeConfig holds the time-partitioned blob store layout. RawRoot, when
// set, receives an archive copy of each unprocessed payload.
type DatalakeConfig struct {
	Root    string `yaml:"root"`
	RawRoot string `yaml:"rawRoot"`
}

// IndexConfig holds the datamart locations and tokenization options for the
// cumulative inverted index.
type IndexConfig struct {
	DatamartDir     string        `yaml:"datamartDir"`
	RemoveStopwords bool          `yaml:"removeStopwords"`
	StoreTimeout    time.Duration `yaml:"storeTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the metadata
// store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters for the secondary index and
// metadata representations.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings for pipeline events.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents string `yaml:"documentEvents"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			ControlDir:         "control",
			TargetNewDownloads: 10,
			TotalTries:         100000,
			MaxRounds:          2,
			DownloadWorkers:    1,
			MaxCandidateID:     70000,
		},
		Source: SourceConfig{
			BaseURL:     "https://www.gutenberg.org/cache/epub",
			Suffixes:    []string{".txt", ".txt.utf8"},
			UserAgent:   "corpuskit-harvester/1.0",
			Timeout:     15 * time.Second,
			MaxRetries:  3,
			RetryDelay:  2 * time.Second,
			MaxDelay:    60 * time.Second,
			BreakerTrip: 5,
		},
		Datalake: DatalakeConfig{
			Root:    "data/datalake",
			RawRoot: "",
		},
		Index: IndexConfig{
			DatamartDir:     "data/datamarts",
			RemoveStopwords: true,
			StoreTimeout:    5 * time.Second,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "harvester",
			User:            "harvester",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				DocumentEvents: "harvest.document-events",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads HV_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HV_CONTROL_DIR"); v != "" {
		cfg.Harvest.ControlDir = v
	}
	if v := os.Getenv("HV_TARGET_NEW_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Harvest.TargetNewDownloads = n
		}
	}
	if v := os.Getenv("HV_DOWNLOAD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Harvest.DownloadWorkers = n
		}
	}
	if v := os.Getenv("HV_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("HV_DATALAKE_ROOT"); v != "" {
		cfg.Datalake.Root = v
	}
	if v := os.Getenv("HV_DATAMART_DIR"); v != "" {
		cfg.Index.DatamartDir = v
	}
	if v := os.Getenv("HV_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("HV_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("HV_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("HV_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("HV_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("HV_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HV_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HV_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HV_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HV_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HV_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
