package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/duoload/pkg/client"
	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/Sternrassler/duoload/pkg/ratelimit"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains the remote endpoint settings.
type API struct {
	Endpoint       string `toml:"endpoint"`
	UserAgent      string `toml:"user_agent"`
	PageSize       int    `toml:"page_size"`
	RequestTimeout int    `toml:"request_timeout"` // seconds
}

// Fetch contains pacing and retry settings for page fetches.
type Fetch struct {
	PoliteDelayMS    int `toml:"polite_delay_ms"`
	PageTimeout      int `toml:"page_timeout"` // seconds
	MaxRetries       int `toml:"max_retries"`
	InitialBackoffMS int `toml:"initial_backoff_ms"`
	MaxBackoffMS     int `toml:"max_backoff_ms"`
}

// Pacing selects a shared polite-delay backend. Empty RedisURL keeps the
// delay in process.
type Pacing struct {
	RedisURL string `toml:"redis_url"`
	Key      string `toml:"key"` // Default: derived from the endpoint host
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, console or json
}

// Metrics configures the end-of-run metrics dump.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for duoload.
type Config struct {
	API     API     `toml:"api"`
	Fetch   Fetch   `toml:"fetch"`
	Pacing  Pacing  `toml:"pacing"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/duoload/config.toml")
}

// Load reads the file at path, or the default location when path is empty,
// on top of the defaults. A missing file is not an error; the returned bool
// reports whether one was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	return &cfg, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ClientConfig returns the fetcher settings for deckID. The pacer is left
// to the caller.
func (c *Config) ClientConfig(deckID string) client.Config {
	cfg := client.DefaultConfig(deckID)
	cfg.Endpoint = c.API.Endpoint
	cfg.UserAgent = c.API.UserAgent
	cfg.PageSize = c.API.PageSize
	cfg.RequestTimeout = time.Duration(c.API.RequestTimeout) * time.Second
	cfg.PageTimeout = time.Duration(c.Fetch.PageTimeout) * time.Second
	cfg.PoliteDelay = c.PoliteDelay()
	cfg.Retry.MaxRetries = c.Fetch.MaxRetries
	cfg.Retry.InitialBackoff = time.Duration(c.Fetch.InitialBackoffMS) * time.Millisecond
	cfg.Retry.MaxBackoff = time.Duration(c.Fetch.MaxBackoffMS) * time.Millisecond
	return cfg
}

// PoliteDelay returns the configured spacing between page requests.
func (c *Config) PoliteDelay() time.Duration {
	return time.Duration(c.Fetch.PoliteDelayMS) * time.Millisecond
}

// PacingKey returns the Redis lease key, derived from the endpoint when not set.
func (c *Config) PacingKey() string {
	if c.Pacing.Key != "" {
		return c.Pacing.Key
	}
	return ratelimit.LeaseKey(c.API.Endpoint)
}

// LoggingConfig returns the logger settings writing to out.
func (c *Config) LoggingConfig(out io.Writer) logging.Config {
	pretty := false
	switch c.Logging.Format {
	case "console":
		pretty = true
	case "auto":
		pretty = logging.IsTerminal(out)
	}
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Pretty: pretty,
		Output: out,
	}
}
