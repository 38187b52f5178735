package config

import (
	"fmt"
	"os"
	"strings"
)

// RedisURLEnv overrides pacing.redis_url when set.
const RedisURLEnv = "DUOLOAD_REDIS_URL"

func (c *Config) normalize() error {
	c.API.Endpoint = strings.TrimSpace(c.API.Endpoint)
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)

	if value, ok := os.LookupEnv(RedisURLEnv); ok {
		c.Pacing.RedisURL = value
	}
	c.Pacing.RedisURL = strings.TrimSpace(c.Pacing.RedisURL)
	c.Pacing.Key = strings.TrimSpace(c.Pacing.Key)

	c.normalizeLogging()

	if c.Metrics.Textfile != "" {
		path, err := expandPath(strings.TrimSpace(c.Metrics.Textfile))
		if err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
		c.Metrics.Textfile = path
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
