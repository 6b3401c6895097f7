package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/pkg/config"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     config.ServerConfig  `yaml:"server"`
	DB         config.DBConfig      `yaml:"db"`
	Redis      config.RedisConfig   `yaml:"redis"`
	MQ         config.MQConfig      `yaml:"mq"`
	JWT        config.JWTConfig     `yaml:"jwt"`
	Storage    config.StorageConfig `yaml:"storage"`
	Outbox     config.OutboxConfig  `yaml:"outbox"`
	Otel       config.OtelConfig    `yaml:"otel"`
	Activation ActivationConfig     `yaml:"activation"`
	Worker     WorkerConfig         `yaml:"worker"`
}

// ActivationConfig tunes the stuck detector and the velocity windows.
type ActivationConfig struct {
	StuckThresholdDays     int `yaml:"stuck_threshold_days"`
	CriticalDays           int `yaml:"critical_days"`
	StudyVelocityWeeks     int `yaml:"study_velocity_weeks"`
	PortfolioVelocityWeeks int `yaml:"portfolio_velocity_weeks"`
	PortfolioConcurrency   int `yaml:"portfolio_concurrency"`
}

// WorkerConfig drives the activity consumer.
type WorkerConfig struct {
	Queue       string `yaml:"queue"`
	MaxRetries  int    `yaml:"max_retries"`
	DedupTTLS   int    `yaml:"dedup_ttl_seconds"`
	MetricsPort string `yaml:"metrics_port"`
}

// Load reads CONFIG_DIR/base.yaml merged with the CONFIG_ENV overlay, then
// applies environment overrides.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

// Env is the active CONFIG_ENV, "local" when unset.
func Env() string {
	return config.GetConfigEnv()
}

func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideStorageFromEnv(&cfg.Storage)
	config.OverrideOtelFromEnv(&cfg.Otel)
	overrideActivationFromEnv(&cfg.Activation)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideActivationFromEnv(cfg *ActivationConfig) {
	if v := os.Getenv("STUCK_THRESHOLD_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StuckThresholdDays = n
		}
	}
	if v := os.Getenv("STUCK_CRITICAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CriticalDays = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.MQ.Exchange == "" {
		c.MQ.Exchange = "activation.events"
	}
	if c.Outbox.PollIntervalMS <= 0 {
		c.Outbox.PollIntervalMS = 1000
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 50
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}

	a := &c.Activation
	if a.StuckThresholdDays <= 0 {
		a.StuckThresholdDays = pipeline.DefaultStuckThresholds.StuckDays
	}
	if a.CriticalDays <= 0 {
		a.CriticalDays = pipeline.DefaultStuckThresholds.CriticalDays
	}
	if a.StudyVelocityWeeks <= 0 {
		a.StudyVelocityWeeks = pipeline.DefaultSettings.StudyVelocityWeeks
	}
	if a.PortfolioVelocityWeeks <= 0 {
		a.PortfolioVelocityWeeks = pipeline.DefaultSettings.PortfolioVelocityWeeks
	}
	if a.PortfolioConcurrency <= 0 {
		a.PortfolioConcurrency = 4
	}

	if c.Worker.Queue == "" {
		c.Worker.Queue = "site_tracker.activity"
	}
	if c.Worker.MaxRetries <= 0 {
		c.Worker.MaxRetries = 3
	}
	if c.Worker.DedupTTLS <= 0 {
		c.Worker.DedupTTLS = 86400
	}
	if c.Worker.MetricsPort == "" {
		c.Worker.MetricsPort = "9091"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Activation.CriticalDays < c.Activation.StuckThresholdDays {
		return fmt.Errorf("activation.critical_days (%d) is below stuck_threshold_days (%d)",
			c.Activation.CriticalDays, c.Activation.StuckThresholdDays)
	}
	return nil
}

// Settings is the roll-up configuration handed to the analytics services.
func (c *Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		Stuck: pipeline.StuckThresholds{
			StuckDays:    c.Activation.StuckThresholdDays,
			CriticalDays: c.Activation.CriticalDays,
		},
		StudyVelocityWeeks:     c.Activation.StudyVelocityWeeks,
		PortfolioVelocityWeeks: c.Activation.PortfolioVelocityWeeks,
	}
}
