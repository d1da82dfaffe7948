// Package config loads and validates configsync configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (IndexEngine, AWS, Poll, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRegions is the fixed list of regions processed when no region is
// given.
var DefaultRegions = []string{
	"us-west-1", "us-west-2", "eu-west-1", "us-east-1",
	"eu-central-1", "ap-southeast-1", "ap-northeast-1",
	"ap-southeast-2", "ap-northeast-2", "sa-east-1",
}

// Config is the top-level application configuration.
type Config struct {
	IndexEngine IndexEngineConfig `yaml:"indexEngine"`
	AWS         AWSConfig         `yaml:"aws"`
	Poll        PollConfig        `yaml:"poll"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// IndexEngineConfig points at the document-index engine and controls the
// default index template.
type IndexEngineConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	TemplateName    string        `yaml:"templateName"`
	RefreshInterval string        `yaml:"refreshInterval"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`

	// Consecutive failed requests that open the circuit, and how long it
	// stays open before a probe.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// AWSConfig selects the regions whose Config snapshots are ingested.
type AWSConfig struct {
	Regions []string `yaml:"regions"`
}

// PollConfig is the fixed-delay budget used while waiting for a snapshot to
// land in S3.
type PollConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
}

// SnapshotConfig controls where snapshot files are downloaded to.
type SnapshotConfig struct {
	DownloadDir string `yaml:"downloadDir"`
	KeepFiles   bool   `yaml:"keepFiles"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run ledger.
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

// KafkaConfig holds broker and topic settings for region outcome events.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig holds Redis connection parameters for the single-instance lock.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	LockKey  string        `yaml:"lockKey"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// EffectiveLevel returns "debug" when verbose logging is on, otherwise the
// configured level.
func (l LoggingConfig) EffectiveLevel() string {
	if l.Verbose {
		return "debug"
	}
	return l.Level
}

// MetricsConfig controls the Prometheus metrics server and Pushgateway push.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           int    `yaml:"port"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	JobName        string `yaml:"jobName"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
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

// Validate reports top-level misconfiguration. A missing index-engine
// destination is the only condition that stops a run before it starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.IndexEngine.Endpoint) == "" {
		return fmt.Errorf("index engine endpoint is required")
	}
	if len(c.AWS.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("poll.maxAttempts must be at least 1, got %d", c.Poll.MaxAttempts)
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka is enabled but brokers or topic are missing")
	}
	return nil
}

// NormalizeEndpoint turns the ip:port form accepted on the command line into
// a base URL. Endpoints that already carry a scheme are returned unchanged
// apart from a trailing slash.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}

func defaultConfig() *Config {
	return &Config{
		IndexEngine: IndexEngineConfig{
			TemplateName:     "configservice",
			RefreshInterval:  "5s",
			RequestTimeout:   30 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		AWS: AWSConfig{
			Regions: append([]string(nil), DefaultRegions...),
		},
		Poll: PollConfig{
			MaxAttempts: 20,
			Interval:    5 * time.Second,
		},
		Snapshot: SnapshotConfig{
			DownloadDir: os.TempDir(),
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "configsync",
			User:            "configsync",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "configsync.region-outcomes",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 2,
			LockKey:  "configsync:run-lock",
			LockTTL:  30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port:    9090,
			JobName: "configsync",
		},
	}
}

// applyEnvOverrides reads CFGSYNC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CFGSYNC_INDEX_ENDPOINT"); v != "" {
		cfg.IndexEngine.Endpoint = v
	}
	if v := os.Getenv("CFGSYNC_INDEX_REFRESH_INTERVAL"); v != "" {
		cfg.IndexEngine.RefreshInterval = v
	}
	if v := os.Getenv("CFGSYNC_REGIONS"); v != "" {
		cfg.AWS.Regions = splitList(v)
	}
	if v := os.Getenv("CFGSYNC_POLL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.MaxAttempts = n
		}
	}
	if v := os.Getenv("CFGSYNC_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.Interval = d
		}
	}
	if v := os.Getenv("CFGSYNC_DOWNLOAD_DIR"); v != "" {
		cfg.Snapshot.DownloadDir = v
	}
	if v := os.Getenv("CFGSYNC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("CFGSYNC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CFGSYNC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CFGSYNC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("CFGSYNC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("CFGSYNC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CFGSYNC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CFGSYNC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CFGSYNC_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
