package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sequence allocator backends.
const (
	SequenceMemory   = "memory"
	SequencePostgres = "postgres"
	SequenceRedis    = "redis"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Log       LogConfig       `yaml:"log"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig configures the forwarding handler. An empty broker list disables it.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	ForwardEventTypes []string `yaml:"forward_event_types"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type EventBusConfig struct {
	// SequenceBackend is one of memory, postgres, redis.
	SequenceBackend     string `yaml:"sequence_backend"`
	FundReviewThreshold string `yaml:"fund_review_threshold"`
}

type SweeperConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

// Load reads yaml file, applies env overrides and defaults.
func Load(path string) (*Config, error) {
	if p := os.Getenv("EVENTBUS_CONFIG"); p != "" {
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml bytes, applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.EventBus.SequenceBackend == "" {
		c.EventBus.SequenceBackend = SequencePostgres
	}
	if c.Sweeper.Interval == 0 {
		c.Sweeper.Interval = 30 * time.Second
	}
	if c.Sweeper.StaleAfter == 0 {
		c.Sweeper.StaleAfter = 5 * time.Minute
	}
	if c.Sweeper.BatchSize == 0 {
		c.Sweeper.BatchSize = 100
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.EventBus.SequenceBackend) {
	case SequenceMemory, SequencePostgres, SequenceRedis:
		c.EventBus.SequenceBackend = strings.ToLower(c.EventBus.SequenceBackend)
	default:
		return fmt.Errorf("unknown eventbus.sequence_backend %q", c.EventBus.SequenceBackend)
	}
	if c.EventBus.SequenceBackend == SequenceRedis && c.Redis.Addr == "" {
		return fmt.Errorf("eventbus.sequence_backend redis needs redis.addr")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}
