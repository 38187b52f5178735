// Package config loads, normalizes, and validates duoload configuration.
//
// Every value has a default, so a configuration file is optional. When one
// is present it is read as TOML; DUOLOAD_REDIS_URL overrides the pacing
// backend. Command-line flags are applied on top by the caller.
package config
