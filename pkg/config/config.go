package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type JoinStep struct {
	Table    string `yaml:"table"`
	LeftKey  string `yaml:"left_key"`
	RightKey string `yaml:"right_key"`
}

type Rolling struct {
	Column  string   `yaml:"column"`
	Windows []int    `yaml:"windows"`
	Funcs   []string `yaml:"funcs"`
}

type Lag struct {
	Name    string `yaml:"name"`
	Column  string `yaml:"column"`
	Periods int    `yaml:"periods"`
}

type Product struct {
	Name    string   `yaml:"name"`
	Factors []string `yaml:"factors"`
}

type Ratio struct {
	Name        string  `yaml:"name"`
	Numerator   string  `yaml:"numerator"`
	Denominator string  `yaml:"denominator"`
	Offset      float64 `yaml:"offset"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval"`
			Threshold int           `yaml:"threshold"`
			Topic     string        `yaml:"topic"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Store struct {
		Type         string        `yaml:"type"` // memory, csv, clickhouse
		CSVDir       string        `yaml:"csv_dir"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"store"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Predictions  string `yaml:"predictions"`
			EntityEvents string `yaml:"entity_events"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Registry struct {
		Source   string `yaml:"source"` // fs, minio
		Dir      string `yaml:"dir"`
		Manifest string `yaml:"manifest"`
		Minio    struct {
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			Bucket    string `yaml:"bucket"`
			Prefix    string `yaml:"prefix"`
			UseSSL    bool   `yaml:"use_ssl"`
		} `yaml:"minio"`
	} `yaml:"registry"`
	Reconcile struct {
		Fact      string     `yaml:"fact"`
		Steps     []JoinStep `yaml:"steps"`
		Timestamp string     `yaml:"timestamp"`
		Subject   string     `yaml:"subject"`
		Rolling   []Rolling  `yaml:"rolling"`
		Lags      []Lag      `yaml:"lags"`
		Products  []Product  `yaml:"products"`
		Ratios    []Ratio    `yaml:"ratios"`
		Epsilon   float64    `yaml:"epsilon"`
		Sentinel  string     `yaml:"sentinel"`
	} `yaml:"reconcile"`
	Forecast struct {
		WindowLength int `yaml:"window_length"`
		MaxHorizon   int `yaml:"max_horizon"`
	} `yaml:"forecast"`
	WindowCache struct {
		Enabled bool          `yaml:"enabled"`
		Backend string        `yaml:"backend"` // memory, redis
		TTL     time.Duration `yaml:"ttl"`
		LockTTL time.Duration `yaml:"lock_ttl"`
	} `yaml:"window_cache"`
	Snapshot struct {
		RefreshCron    string `yaml:"refresh_cron"`
		RefreshOnStart bool   `yaml:"refresh_on_start"`
		Queue          bool   `yaml:"queue"` // route refresh and export jobs through the redis queue
	} `yaml:"snapshot"`
	Pipeline struct {
		BufferSize int  `yaml:"buffer_size"`
		Persist    bool `yaml:"persist"`
	} `yaml:"pipeline"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"ratelimit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("STORE_CSV_DIR"); v != "" {
		c.Store.CSVDir = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REGISTRY_DIR"); v != "" {
		c.Registry.Dir = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Registry.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Registry.Minio.SecretKey = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Log.Collector.Interval == 0 {
		c.Log.Collector.Interval = 30 * time.Second
	}
	if c.Log.Collector.Threshold == 0 {
		c.Log.Collector.Threshold = 100
	}
	if c.Log.Collector.Topic == "" {
		c.Log.Collector.Topic = "invsight_error_logs"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.FetchTimeout == 0 {
		c.Store.FetchTimeout = 10 * time.Second
	}
	if c.Kafka.Topics.Predictions == "" {
		c.Kafka.Topics.Predictions = "invsight_predictions"
	}
	if c.Kafka.Topics.EntityEvents == "" {
		c.Kafka.Topics.EntityEvents = "invsight_entity_events"
	}
	// results are never fire-and-forget; an unset value means all replicas
	if c.Kafka.RequiredAcks == 0 {
		c.Kafka.RequiredAcks = -1
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "invsight"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "invsight"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "invsight"
	}
	if c.Registry.Source == "" {
		c.Registry.Source = "fs"
	}
	if c.Registry.Dir == "" {
		c.Registry.Dir = "artifacts"
	}
	if c.Registry.Manifest == "" {
		c.Registry.Manifest = "manifest.yaml"
	}
	if c.Forecast.WindowLength == 0 {
		c.Forecast.WindowLength = 30
	}
	if c.Forecast.MaxHorizon == 0 {
		c.Forecast.MaxHorizon = 365
	}
	if c.WindowCache.Backend == "" {
		c.WindowCache.Backend = "memory"
	}
	if c.WindowCache.TTL == 0 {
		c.WindowCache.TTL = time.Hour
	}
	if c.WindowCache.LockTTL == 0 {
		c.WindowCache.LockTTL = 5 * time.Second
	}
	if c.Pipeline.BufferSize == 0 {
		c.Pipeline.BufferSize = 1000
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Store.Type {
	case "memory", "csv", "clickhouse":
	default:
		return fmt.Errorf("store.type must be 'memory', 'csv' or 'clickhouse', got '%s'", c.Store.Type)
	}
	if c.Store.Type == "csv" && c.Store.CSVDir == "" {
		return fmt.Errorf("store.csv_dir is required for the csv store")
	}
	switch c.Registry.Source {
	case "fs":
	case "minio":
		if c.Registry.Minio.Endpoint == "" || c.Registry.Minio.Bucket == "" {
			return fmt.Errorf("registry.minio.endpoint and registry.minio.bucket are required")
		}
	default:
		return fmt.Errorf("registry.source must be 'fs' or 'minio', got '%s'", c.Registry.Source)
	}
	if c.WindowCache.Enabled {
		switch c.WindowCache.Backend {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("window_cache.backend=redis requires redis.enabled")
			}
		default:
			return fmt.Errorf("window_cache.backend must be 'memory' or 'redis', got '%s'", c.WindowCache.Backend)
		}
	}
	if c.Snapshot.Queue && !c.Redis.Enabled {
		return fmt.Errorf("snapshot.queue requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Log.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collector requires kafka.enabled")
	}
	if c.Forecast.WindowLength < 1 {
		return fmt.Errorf("forecast.window_length must be >= 1")
	}
	return nil
}
