package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int `yaml:"port"`
		ReadTimeoutSec  int `yaml:"read_timeout_sec"`
		WriteTimeoutSec int `yaml:"write_timeout_sec"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Enabled         bool   `yaml:"enabled"`
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Secrets struct {
		LinkTokenSecret   string `yaml:"link_token_secret"`
		PaymentTokenKey   string `yaml:"payment_token_key"` // hex, 64 chars = 32 bytes
		SessionSecret     string `yaml:"session_secret"`
		SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	} `yaml:"secrets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Notify struct {
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
		MaxRetries    int     `yaml:"max_retries"`
	} `yaml:"notify"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tablio.db"
	}
	if cfg.Secrets.LinkTokenSecret == "" {
		return nil, fmt.Errorf("secrets.link_token_secret is required")
	}
	if cfg.Secrets.SessionSecret == "" {
		return nil, fmt.Errorf("secrets.session_secret is required")
	}
	if len(cfg.Secrets.PaymentTokenKey) != 64 {
		return nil, fmt.Errorf("secrets.payment_token_key must be 64 hex characters")
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ServerReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSec) * time.Second
}

func (c *Config) ServerWriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSec) * time.Second
}

func (c *Config) RedisCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	if c.Secrets.SessionTTLMinutes <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.Secrets.SessionTTLMinutes) * time.Minute
}
