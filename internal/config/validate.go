package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/redis/go-redis/v9"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validatePacing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Endpoint == "" {
		return errors.New("api.endpoint must be set")
	}
	u, err := url.Parse(c.API.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.endpoint must be an http(s) URL (got %q)", c.API.Endpoint)
	}
	if c.API.UserAgent == "" {
		return errors.New("api.user_agent must be set")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be positive (got %d)", c.API.PageSize)
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive (got %d)", c.API.RequestTimeout)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.PoliteDelayMS < 0 {
		return fmt.Errorf("fetch.polite_delay_ms must be >= 0 (got %d)", c.Fetch.PoliteDelayMS)
	}
	if c.Fetch.PageTimeout <= 0 {
		return fmt.Errorf("fetch.page_timeout must be positive (got %d)", c.Fetch.PageTimeout)
	}
	if c.Fetch.MaxRetries < 0 || c.Fetch.MaxRetries > 10 {
		return fmt.Errorf("fetch.max_retries must be between 0 and 10 (got %d)", c.Fetch.MaxRetries)
	}
	if c.Fetch.InitialBackoffMS <= 0 {
		return fmt.Errorf("fetch.initial_backoff_ms must be positive (got %d)", c.Fetch.InitialBackoffMS)
	}
	if c.Fetch.MaxBackoffMS < c.Fetch.InitialBackoffMS {
		return fmt.Errorf("fetch.max_backoff_ms must be >= fetch.initial_backoff_ms (got %d < %d)",
			c.Fetch.MaxBackoffMS, c.Fetch.InitialBackoffMS)
	}
	return nil
}

func (c *Config) validatePacing() error {
	if c.Pacing.RedisURL == "" {
		return nil
	}
	if _, err := redis.ParseURL(c.Pacing.RedisURL); err != nil {
		return fmt.Errorf("pacing.redis_url: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(logging.LogLevel(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be auto, console or json (got %q)", c.Logging.Format)
	}
}
