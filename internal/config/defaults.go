package config

import (
	"github.com/Sternrassler/duoload/pkg/client"
	"github.com/Sternrassler/duoload/pkg/ratelimit"
)

const (
	defaultRequestTimeout   = 30
	defaultPageTimeout      = 120
	defaultMaxRetries       = 3
	defaultInitialBackoffMS = 1000
	defaultMaxBackoffMS     = 16000
	defaultLogLevel         = "warn"
	defaultLogFormat        = "auto"
)

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		API: API{
			Endpoint:       client.DefaultEndpoint,
			UserAgent:      client.DefaultUserAgent,
			PageSize:       client.DefaultPageSize,
			RequestTimeout: defaultRequestTimeout,
		},
		Fetch: Fetch{
			PoliteDelayMS:    int(ratelimit.DefaultDelay.Milliseconds()),
			PageTimeout:      defaultPageTimeout,
			MaxRetries:       defaultMaxRetries,
			InitialBackoffMS: defaultInitialBackoffMS,
			MaxBackoffMS:     defaultMaxBackoffMS,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
