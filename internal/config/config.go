package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines configuration for the provisioning engine.
type Config struct {
	RegistryURL      string        `yaml:"registry_url"`
	ModelsDir        string        `yaml:"models_dir"`
	APIToken         string        `yaml:"api_token"`
	ListenAddr       string        `yaml:"listen_addr"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	JobRetention     time.Duration `yaml:"job_retention"`
	StallTimeout     time.Duration `yaml:"stall_timeout"`
	TransferRetries  int           `yaml:"transfer_retries"`
	Retry            RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for registry queries.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		RegistryURL:      "https://civitai.com",
		ListenAddr:       ":8085",
		ProgressInterval: 500 * time.Millisecond,
		JobRetention:     15 * time.Minute,
		StallTimeout:     30 * time.Second,
		TransferRetries:  2,
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	RegistryURL      string          `yaml:"registry_url"`
	ModelsDir        string          `yaml:"models_dir"`
	APIToken         string          `yaml:"api_token"`
	ListenAddr       string          `yaml:"listen_addr"`
	ProgressInterval string          `yaml:"progress_interval"`
	JobRetention     string          `yaml:"job_retention"`
	StallTimeout     string          `yaml:"stall_timeout"`
	TransferRetries  int             `yaml:"transfer_retries"`
	Retry            yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.RegistryURL != "" {
		cfg.RegistryURL = yc.RegistryURL
	}
	if yc.ModelsDir != "" {
		cfg.ModelsDir = yc.ModelsDir
	}
	if yc.APIToken != "" {
		cfg.APIToken = yc.APIToken
	}
	if yc.ListenAddr != "" {
		cfg.ListenAddr = yc.ListenAddr
	}
	if yc.ProgressInterval != "" {
		d, err := time.ParseDuration(yc.ProgressInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse progress_interval: %w", err)
		}
		cfg.ProgressInterval = d
	}
	if yc.JobRetention != "" {
		d, err := time.ParseDuration(yc.JobRetention)
		if err != nil {
			return Config{}, fmt.Errorf("parse job_retention: %w", err)
		}
		cfg.JobRetention = d
	}
	if yc.StallTimeout != "" {
		d, err := time.ParseDuration(yc.StallTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse stall_timeout: %w", err)
		}
		cfg.StallTimeout = d
	}
	if yc.TransferRetries != 0 {
		cfg.TransferRetries = yc.TransferRetries
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the AICC_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("AICC_REGISTRY_URL"); v != "" {
		c.RegistryURL = v
	}
	if v := os.Getenv("AICC_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("AICC_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("AICC_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("AICC_PROGRESS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse AICC_PROGRESS_INTERVAL: %w", err)
		}
		c.ProgressInterval = d
	}
	if v := os.Getenv("AICC_JOB_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse AICC_JOB_RETENTION: %w", err)
		}
		c.JobRetention = d
	}
	if v := os.Getenv("AICC_STALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse AICC_STALL_TIMEOUT: %w", err)
		}
		c.StallTimeout = d
	}
	if v := os.Getenv("AICC_TRANSFER_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse AICC_TRANSFER_RETRIES: %w", err)
		}
		c.TransferRetries = n
	}
	if v := os.Getenv("AICC_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse AICC_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("AICC_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse AICC_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("AICC_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse AICC_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RegistryURL == "" {
		return errors.New("config: registry_url is required")
	}
	if c.ModelsDir == "" {
		return errors.New("config: models_dir is required")
	}
	if c.ProgressInterval <= 0 {
		return errors.New("config: progress_interval must be positive")
	}
	if c.JobRetention <= 0 {
		return errors.New("config: job_retention must be positive")
	}
	if c.StallTimeout <= 0 {
		return errors.New("config: stall_timeout must be positive")
	}
	if c.TransferRetries < 0 {
		return errors.New("config: transfer_retries must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.RegistryURL != "" {
		c.RegistryURL = override.RegistryURL
	}
	if override.ModelsDir != "" {
		c.ModelsDir = override.ModelsDir
	}
	if override.APIToken != "" {
		c.APIToken = override.APIToken
	}
	if override.ListenAddr != "" {
		c.ListenAddr = override.ListenAddr
	}
	if override.ProgressInterval != 0 {
		c.ProgressInterval = override.ProgressInterval
	}
	if override.JobRetention != 0 {
		c.JobRetention = override.JobRetention
	}
	if override.StallTimeout != 0 {
		c.StallTimeout = override.StallTimeout
	}
	if override.TransferRetries != 0 {
		c.TransferRetries = override.TransferRetries
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
