// Package config loads and validates the word index configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// the indexer core and for every optional integration (metrics, tracing,
// Kafka publication, Redis sources).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
)

// DefaultQueueCapacity is the bound of every shard queue unless configured.
const DefaultQueueCapacity = 10

// Key normalization modes.
const (
	KeyModeExact = "exact"
	KeyModeTrim  = "trim"
	KeyModeFold  = "fold"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer IndexerConfig `yaml:"indexer"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// IndexerConfig controls task counts, queue bounds, and source resolution.
type IndexerConfig struct {
	Producers     int      `yaml:"producers"`
	Consumers     int      `yaml:"consumers"`
	QueueCapacity int      `yaml:"queueCapacity"`
	Sources       []string `yaml:"sources"`
	SourcePattern string   `yaml:"sourcePattern"`
	KeyMode       string   `yaml:"keyMode"`

	producersSet bool
}

// SetProducers records an explicitly chosen producer count. An explicit
// count is validated even when sources are listed.
func (c *IndexerConfig) SetProducers(n int) {
	c.Producers = n
	c.producersSet = true
}

// ProducersSet reports whether the producer count came from YAML, the
// environment, a flag, or the prompt rather than the default.
func (c IndexerConfig) ProducersSet() bool {
	return c.producersSet
}

// ResolveSources returns one source identifier per producer. An explicit
// source list wins; otherwise SourcePattern is expanded for i in 1..Producers.
func (c IndexerConfig) ResolveSources() ([]string, error) {
	if c.Producers < 0 || (c.producersSet && c.Producers == 0) {
		return nil, apperrors.Configf("producers must be positive, got %d", c.Producers)
	}
	if len(c.Sources) > 0 {
		if c.Producers > 0 && c.Producers != len(c.Sources) {
			return nil, apperrors.Configf("producers=%d does not match %d explicit sources", c.Producers, len(c.Sources))
		}
		out := make([]string, len(c.Sources))
		copy(out, c.Sources)
		return out, nil
	}
	if c.Producers <= 0 {
		return nil, apperrors.Configf("producers must be positive, got %d", c.Producers)
	}
	if !strings.Contains(c.SourcePattern, "%d") {
		return nil, apperrors.Configf("source pattern %q has no %%d verb", c.SourcePattern)
	}
	out := make([]string, 0, c.Producers)
	for i := 1; i <= c.Producers; i++ {
		out = append(out, fmt.Sprintf(c.SourcePattern, i))
	}
	return out, nil
}

// KafkaConfig holds broker settings for publishing the finished index.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexEntries string `yaml:"indexEntries"`
}

// RedisConfig holds the connection used by redis: list sources.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	PageSize int64  `yaml:"pageSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles the per-run span tree.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server and the optional
// textfile written at the end of a run.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Port     int    `yaml:"port"`
	Textfile string `yaml:"textfile"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values. Load does not validate; call Validate once flags are applied.
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
		var explicit struct {
			Indexer struct {
				Producers *int `yaml:"producers"`
			} `yaml:"indexer"`
		}
		if err := yaml.Unmarshal(data, &explicit); err == nil && explicit.Indexer.Producers != nil {
			cfg.Indexer.SetProducers(*explicit.Indexer.Producers)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate rejects configurations that would make the run impossible. It
// must succeed before any queue or task is created.
func (c *Config) Validate() error {
	if c.Indexer.Producers < 0 || (c.Indexer.producersSet && c.Indexer.Producers == 0) {
		return apperrors.Configf("producers must be positive, got %d", c.Indexer.Producers)
	}
	if c.Indexer.Producers == 0 && len(c.Indexer.Sources) == 0 {
		return apperrors.Configf("producers must be positive, got %d", c.Indexer.Producers)
	}
	if c.Indexer.Consumers <= 0 {
		return apperrors.Configf("consumers must be positive, got %d", c.Indexer.Consumers)
	}
	if c.Indexer.QueueCapacity < 1 {
		return apperrors.Configf("queue capacity must be >= 1, got %d", c.Indexer.QueueCapacity)
	}
	switch c.Indexer.KeyMode {
	case KeyModeExact, KeyModeTrim, KeyModeFold:
	default:
		return apperrors.Configf("unknown key mode %q", c.Indexer.KeyMode)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topics.IndexEntries == "") {
		return apperrors.Configf("kafka publication enabled without brokers or topic")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			QueueCapacity: DefaultQueueCapacity,
			SourcePattern: "foo%d.txt",
			KeyMode:       KeyModeExact,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexEntries: "word-index",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			PageSize: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// applyEnvOverrides reads WI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WI_PRODUCERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.SetProducers(n)
		}
	}
	if v := os.Getenv("WI_CONSUMERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Consumers = n
		}
	}
	if v := os.Getenv("WI_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.QueueCapacity = n
		}
	}
	if v := os.Getenv("WI_SOURCE_PATTERN"); v != "" {
		cfg.Indexer.SourcePattern = v
	}
	if v := os.Getenv("WI_KEY_MODE"); v != "" {
		cfg.Indexer.KeyMode = v
	}
	if v := os.Getenv("WI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
