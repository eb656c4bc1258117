package config

import (
	"fmt"
	"time"

	"github.com/serenitylabs/serenity/internal/merge"
	"github.com/serenitylabs/serenity/internal/utils"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Sources SourcesConfig `mapstructure:"sources"`
	Runs    RunsConfig    `mapstructure:"runs"`
	Store   StoreConfig   `mapstructure:"store"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // HTTP server port
}

// EngineConfig holds the forecasting defaults applied to every run
type EngineConfig struct {
	Horizon        int     `mapstructure:"horizon"`         // Forecast steps (days)
	SeasonalPeriod int     `mapstructure:"seasonal_period"` // Season length in observations
	AutoFit        bool    `mapstructure:"auto_fit"`        // Grid-search parameters
	Alpha          float64 `mapstructure:"alpha"`           // Manual-mode level weight
	Beta           float64 `mapstructure:"beta"`            // Manual-mode trend weight
	Gamma          float64 `mapstructure:"gamma"`           // Manual-mode seasonal weight
	Workers        int     `mapstructure:"workers"`         // Grid-search parallelism (0 = GOMAXPROCS)
	Strict         bool    `mapstructure:"strict"`          // Report dropped rows
	BandUp         float64 `mapstructure:"band_up"`         // Optimistic scenario fraction
	BandDown       float64 `mapstructure:"band_down"`       // Pessimistic scenario fraction
}

// SourcesConfig lists accepted column names per source
type SourcesConfig struct {
	Target    merge.SourceSpec `mapstructure:"target"`
	Index     merge.SourceSpec `mapstructure:"index"`
	Commodity merge.SourceSpec `mapstructure:"commodity"`
}

// RunsConfig controls the asynchronous run service
type RunsConfig struct {
	Workers         int           `mapstructure:"workers"`          // Concurrent runs
	QueueSize       int           `mapstructure:"queue_size"`       // Pending runs before rejecting
	Expiration      time.Duration `mapstructure:"expiration"`       // Finished runs are dropped after this
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // How often expired runs are purged
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`    // Request body limit
}

// StoreConfig selects where finished runs are kept
type StoreConfig struct {
	Type          string        `mapstructure:"type"`           // memory (default), redis, etcd
	URL           string        `mapstructure:"url"`            // Redis URL (e.g., redis://localhost:6379)
	RedisDB       int           `mapstructure:"redis_db"`       // Redis database number
	KeyPrefix     string        `mapstructure:"key_prefix"`     // Key namespace in Redis and etcd
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"` // etcd endpoints
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`   // Connection timeout
}

// QueueConfig represents message queue configuration for run events
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: memory (default), nats, redis, kafka, none
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication
	Subject  string `mapstructure:"subject"`  // Subject, stream or topic for run events
	Durable  string `mapstructure:"durable"`  // NATS durable consumer name for subscribers

	// Redis-specific options
	RedisDB    int    `mapstructure:"redis_db"`    // Redis database number (default: 0)
	RedisGroup string `mapstructure:"redis_group"` // Redis consumer group

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`  // Kafka broker addresses
	KafkaGroupID string   `mapstructure:"kafka_group_id"` // Kafka consumer group ID
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enable/disable API key authentication
	APIKeys []string `mapstructure:"api_keys"` // List of valid API keys
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339Nano, RFC3339, DateTime, Kitchen
}

// logTimeLayouts maps logging.time_format names to time layouts
var logTimeLayouts = map[string]string{
	"RFC3339Nano": time.RFC3339Nano,
	"RFC3339":     time.RFC3339,
	"DateTime":    time.DateTime,
	"Kitchen":     time.Kitchen,
}

// TimeLayout returns the layout for log timestamps, RFC3339Nano when unset
func (c LoggingConfig) TimeLayout() string {
	if layout, ok := logTimeLayouts[c.TimeFormat]; ok {
		return layout
	}
	return time.RFC3339Nano
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Sources.Validate(); err != nil {
		return fmt.Errorf("sources config: %w", err)
	}

	if err := c.Runs.Validate(); err != nil {
		return fmt.Errorf("runs config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates engine configuration
func (c *EngineConfig) Validate() error {
	if c.Horizon < 1 {
		return fmt.Errorf("engine.horizon must be at least 1")
	}

	if c.SeasonalPeriod < 1 {
		return fmt.Errorf("engine.seasonal_period must be at least 1")
	}

	for name, v := range map[string]float64{"alpha": c.Alpha, "beta": c.Beta, "gamma": c.Gamma} {
		if v < 0 || v > 1 {
			return fmt.Errorf("engine.%s must be within [0, 1]", name)
		}
	}

	if c.Workers < 0 {
		return fmt.Errorf("engine.workers cannot be negative")
	}

	if c.BandUp < 0 || c.BandDown < 0 || c.BandDown > 1 {
		return fmt.Errorf("engine.band_up and engine.band_down must be non-negative fractions")
	}

	return nil
}

// Validate validates the column candidates
func (c *SourcesConfig) Validate() error {
	for _, spec := range c.Specs() {
		if len(spec.DateFields) == 0 {
			return fmt.Errorf("sources.%s.date_fields is required", spec.Name)
		}
		if len(spec.ValueFields) == 0 {
			return fmt.Errorf("sources.%s.value_fields is required", spec.Name)
		}
	}
	return nil
}

// Validate validates run service configuration
func (c *RunsConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("runs.workers must be at least 1")
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("runs.queue_size must be at least 1")
	}

	if c.Expiration <= 0 {
		return fmt.Errorf("runs.expiration must be positive")
	}

	if c.CleanupInterval <= 0 {
		return fmt.Errorf("runs.cleanup_interval must be positive")
	}

	if c.MaxUploadMB < 1 {
		return fmt.Errorf("runs.max_upload_mb must be at least 1")
	}

	return nil
}

// Validate validates store configuration
func (c *StoreConfig) Validate() error {
	switch utils.StoreType(c.Type) {
	case utils.StoreTypeMemory:
	case utils.StoreTypeRedis:
		if c.URL == "" {
			return fmt.Errorf("store.url is required for redis")
		}
	case utils.StoreTypeEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return fmt.Errorf("store.etcd_endpoints is required for etcd")
		}
		if c.DialTimeout <= 0 {
			return fmt.Errorf("store.dial_timeout must be positive")
		}
	default:
		return fmt.Errorf("store.type must be one of: memory, redis, etcd")
	}
	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	switch utils.QueueType(c.Type) {
	case utils.QueueTypeMemory, utils.QueueTypeNone:
	case utils.QueueTypeNATS, utils.QueueTypeRedis:
		if c.URL == "" {
			return fmt.Errorf("queue.url is required for %s", c.Type)
		}
	case utils.QueueTypeKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("queue.kafka_brokers is required for kafka")
		}
	default:
		return fmt.Errorf("queue.type must be one of: memory, nats, redis, kafka, none")
	}

	if c.Subject == "" && utils.QueueType(c.Type) != utils.QueueTypeNone {
		return fmt.Errorf("queue.subject is required")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	if _, ok := logTimeLayouts[c.TimeFormat]; c.TimeFormat != "" && !ok {
		return fmt.Errorf("logging.time_format must be one of: RFC3339Nano, RFC3339, DateTime, Kitchen")
	}

	return nil
}
