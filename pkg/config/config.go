// Package config holds SensApp's process-wide configuration (§6.2):
// defaults, validation, and the byte-size parsing the teacher never
// needed but the original Rust config.rs did. The flag/YAML-default
// merging machinery itself lives in cmd/sensapp, following the
// teacher's own split (cmd/timemachine/main.go owns flag parsing;
// pkg/config only owned what Config itself validates).
package config

import (
	"github.com/sintef/sensapp-go/internal/datamodel"
)

// Config is the merged set of recognised process-wide keys (§6.2).
type Config struct {
	Endpoint                  string
	Port                      int
	HTTPBodyLimit             string
	BatchSize                 int
	SensorSalt                string
	MaxInferenceRows          int
	StorageConnectionString   string
	StorageSyncTimeoutSeconds int
	LogLevel                  string
}

// Default returns Config populated with §6.2's defaults.
func Default() Config {
	return Config{
		Endpoint:                  "127.0.0.1",
		Port:                      3000,
		HTTPBodyLimit:             "10mb",
		BatchSize:                 8192,
		SensorSalt:                "sensapp",
		MaxInferenceRows:          128,
		StorageSyncTimeoutSeconds: 30,
		LogLevel:                  "info",
	}
}

// Validate checks the invariants a flag/YAML merge can't enforce by
// construction: the body limit string parses and stays under 128 GB
// (§6.2, mirroring original_source/src/config.rs's own
// parse_http_body_limit check), and a storage connection string was
// supplied (the scheme itself is validated later, by
// internal/storage.Open, which already returns a ConfigError for an
// unrecognised scheme).
func (c Config) Validate() error {
	if _, err := ParseHTTPBodyLimit(c.HTTPBodyLimit); err != nil {
		return err
	}
	if c.StorageConnectionString == "" {
		return datamodel.NewError(datamodel.ConfigError, "config: a storage connection string is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return datamodel.NewError(datamodel.ConfigError, "config: invalid port %d", c.Port)
	}
	if c.BatchSize <= 0 {
		return datamodel.NewError(datamodel.ConfigError, "config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxInferenceRows <= 0 {
		return datamodel.NewError(datamodel.ConfigError, "config: max_inference_rows must be positive, got %d", c.MaxInferenceRows)
	}
	return nil
}

// BodyLimitBytes parses HTTPBodyLimit, returning 0 on a malformed
// value (callers that already ran Validate can ignore the error).
func (c Config) BodyLimitBytes() int64 {
	n, err := ParseHTTPBodyLimit(c.HTTPBodyLimit)
	if err != nil {
		return 0
	}
	return n
}
