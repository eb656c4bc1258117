package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/serenitylabs/serenity/internal/merge"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")             // Current directory
		v.AddConfigPath("./configs")     // Project configs directory
		v.AddConfigPath("./config")      // Alternative config directory
		v.AddConfigPath("/etc/serenity") // System-wide config
	}

	// Set defaults
	setDefaults(v)

	// Enable environment variable overrides: SERENITY_ENGINE_HORIZON -> engine.horizon
	v.SetEnvPrefix("SERENITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	// Server defaults
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.http_port", def.Server.HTTPPort)

	// Engine defaults
	v.SetDefault("engine.horizon", def.Engine.Horizon)
	v.SetDefault("engine.seasonal_period", def.Engine.SeasonalPeriod)
	v.SetDefault("engine.auto_fit", def.Engine.AutoFit)
	v.SetDefault("engine.alpha", def.Engine.Alpha)
	v.SetDefault("engine.beta", def.Engine.Beta)
	v.SetDefault("engine.gamma", def.Engine.Gamma)
	v.SetDefault("engine.workers", def.Engine.Workers)
	v.SetDefault("engine.strict", def.Engine.Strict)
	v.SetDefault("engine.band_up", def.Engine.BandUp)
	v.SetDefault("engine.band_down", def.Engine.BandDown)

	// Source column defaults
	for _, spec := range def.Sources.Specs() {
		v.SetDefault("sources."+spec.Name+".name", spec.Name)
		v.SetDefault("sources."+spec.Name+".date_fields", spec.DateFields)
		v.SetDefault("sources."+spec.Name+".value_fields", spec.ValueFields)
	}

	// Run service defaults
	v.SetDefault("runs.workers", def.Runs.Workers)
	v.SetDefault("runs.queue_size", def.Runs.QueueSize)
	v.SetDefault("runs.expiration", def.Runs.Expiration.String())
	v.SetDefault("runs.cleanup_interval", def.Runs.CleanupInterval.String())
	v.SetDefault("runs.max_upload_mb", def.Runs.MaxUploadMB)

	// Store defaults
	v.SetDefault("store.type", def.Store.Type)
	v.SetDefault("store.key_prefix", def.Store.KeyPrefix)
	v.SetDefault("store.etcd_endpoints", def.Store.EtcdEndpoints)
	v.SetDefault("store.dial_timeout", def.Store.DialTimeout.String())

	// Queue defaults
	v.SetDefault("queue.type", def.Queue.Type)
	v.SetDefault("queue.subject", def.Queue.Subject)
	v.SetDefault("queue.durable", def.Queue.Durable)
	v.SetDefault("queue.redis_group", def.Queue.RedisGroup)
	v.SetDefault("queue.kafka_group_id", def.Queue.KafkaGroupID)

	// Logging defaults
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output_path", def.Logging.OutputPath)
	v.SetDefault("logging.time_format", def.Logging.TimeFormat)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		// Return default configuration
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	specs := merge.DefaultSpecs()
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 5580,
		},
		Engine: EngineConfig{
			Horizon:        730,
			SeasonalPeriod: 365,
			AutoFit:        true,
			Alpha:          0.3,
			Beta:           0.1,
			Gamma:          0.1,
			BandUp:         0.10,
			BandDown:       0.10,
		},
		Sources: SourcesConfig{
			Target:    specs[0],
			Index:     specs[1],
			Commodity: specs[2],
		},
		Runs: RunsConfig{
			Workers:         2,
			QueueSize:       32,
			Expiration:      time.Hour,
			CleanupInterval: 5 * time.Minute,
			MaxUploadMB:     32,
		},
		Store: StoreConfig{
			Type:          "memory",
			KeyPrefix:     "serenity",
			EtcdEndpoints: []string{"http://localhost:2379"},
			DialTimeout:   5 * time.Second,
		},
		Queue: QueueConfig{
			Type:         "memory",
			Subject:      "runs",
			RedisGroup:   "serenity-group",
			KafkaGroupID: "serenity",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
			TimeFormat: "RFC3339Nano",
		},
	}
}
