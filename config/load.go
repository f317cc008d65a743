package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables that override file
// values.
const EnvPrefix = "KOTOBA"

// durationKeys lists the config fields that accept duration strings in
// files ("2s", "1m30s") alongside plain nanosecond numbers.
var durationKeys = map[string][]string{
	"nats":    {"reconnect_wait", "timeout"},
	"matcher": {"timeout"},
}

// Load reads a configuration file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file and
// yields the defaults plus overrides. YAML is chosen by a .yaml or .yml
// extension, anything else parses as JSON.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		raw, err := decodeRaw(data, filepath.Ext(path))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		parseDurations(raw)
		merged, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := json.Unmarshal(merged, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// decodeRaw parses the file into a raw map so a file can set part of a
// section without clearing the rest.
func decodeRaw(data []byte, ext string) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds ahead of JSON
// unmarshaling. Strings that do not parse are left alone and surface as a
// type error during decoding.
func parseDurations(raw map[string]any) {
	for section, keys := range durationKeys {
		m, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			if d, err := time.ParseDuration(s); err == nil {
				m[key] = d.Nanoseconds()
			}
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(EnvPrefix + "_NATS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.NATS.Enabled = enabled
		}
	}
	if v := os.Getenv(EnvPrefix + "_NATS_USERNAME"); v != "" {
		c.NATS.Username = v
	}
	if v := os.Getenv(EnvPrefix + "_NATS_PASSWORD"); v != "" {
		c.NATS.Password = v
	}
	if v := os.Getenv(EnvPrefix + "_NATS_TOKEN"); v != "" {
		c.NATS.Token = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
