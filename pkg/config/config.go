// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mstoykov/envconfig"

	"dev/bravebird/pageload-verifier/pkg/host"
)

// Defaults
const (
	DefaultPagePath  = "bin/index.html"
	DefaultTaskQueue = "page-verification"
)

// Config holds settings shared by the CLI, the worker and the API server
type Config struct {
	// Verifier
	PagePath   string        `envconfig:"VERIFY_PAGE"`
	Headless   bool          `envconfig:"VERIFY_HEADLESS"`
	NoSandbox  bool          `envconfig:"VERIFY_NO_SANDBOX"`
	Timeout    time.Duration `envconfig:"VERIFY_TIMEOUT"`
	BrowserURL string        `envconfig:"VERIFY_BROWSER_URL"`
	ChromeBin  string        `envconfig:"CHROME_BIN"`

	// Logging
	LogLevel  string `envconfig:"VERIFY_LOG_LEVEL"`
	LogFormat string `envconfig:"VERIFY_LOG_FORMAT"`

	// Services
	TemporalHost  string `envconfig:"TEMPORAL_HOST"`
	TaskQueue     string `envconfig:"TEMPORAL_TASK_QUEUE"`
	MySQLDSN      string `envconfig:"MYSQL_DSN"`
	Port          string `envconfig:"PORT"`
	MaxConcurrent int    `envconfig:"VERIFY_MAX_CONCURRENT"`
}

// Default returns the configuration used when no environment variable is set
func Default() Config {
	return Config{
		PagePath:      DefaultPagePath,
		Headless:      true,
		NoSandbox:     true,
		LogLevel:      "info",
		LogFormat:     "text",
		TemporalHost:  "localhost:7233",
		TaskQueue:     DefaultTaskQueue,
		MySQLDSN:      "verifier:verifier@tcp(localhost:3306)/verifier?parseTime=true",
		Port:          "8080",
		MaxConcurrent: 5,
	}
}

// Load reads the configuration from the process environment
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration using lookup, starting from Default
func LoadFrom(lookup func(key string) (string, bool)) (Config, error) {
	cfg := Default()
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return cfg, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Timeout < 0 {
		return cfg, fmt.Errorf("invalid VERIFY_TIMEOUT %s: must not be negative", cfg.Timeout)
	}
	return cfg, nil
}

// RodConfig returns the browser settings for a rod page host
func (c Config) RodConfig() host.RodConfig {
	return host.RodConfig{
		Bin:        c.ChromeBin,
		ControlURL: c.BrowserURL,
		Headless:   c.Headless,
		NoSandbox:  c.NoSandbox,
		Timeout:    c.Timeout,
	}
}
