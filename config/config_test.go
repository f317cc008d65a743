package config

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1024, cfg.Matcher.MaxMatches)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 16, cfg.Runner.MaxDepth)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "kotoba", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"zero limits are fine": {
			mutate: func(c *Config) {
				c.Matcher.MaxMatches = 0
				c.Scheduler.Workers = 0
				c.Runner.MaxDepth = 0
			},
		},
		"negative max matches": {
			mutate:  func(c *Config) { c.Matcher.MaxMatches = -1 },
			wantErr: "matcher.max_matches",
		},
		"negative matcher timeout": {
			mutate:  func(c *Config) { c.Matcher.Timeout = -1 },
			wantErr: "matcher.timeout",
		},
		"negative workers": {
			mutate:  func(c *Config) { c.Scheduler.Workers = -2 },
			wantErr: "scheduler.workers",
		},
		"negative depth": {
			mutate:  func(c *Config) { c.Runner.MaxDepth = -1 },
			wantErr: "runner.max_depth",
		},
		"nats enabled without url": {
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.URL = "  "
			},
			wantErr: "nats.url",
		},
		"tls without cert": {
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.TLS.Enabled = true
			},
			wantErr: "nats.tls.cert_file",
		},
		"tls without key": {
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.TLS.Enabled = true
				c.NATS.TLS.CertFile = "client.pem"
			},
			wantErr: "nats.tls.key_file",
		},
		"tls ignored when nats disabled": {
			mutate: func(c *Config) { c.NATS.TLS.Enabled = true },
		},
		"unknown log level": {
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		"unknown log format": {
			mutate:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: "logging.format",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.NATS.URL = "nats://origin:4222"

	clone := cfg.Clone()
	clone.NATS.URL = "nats://clone:4222"
	clone.Matcher.MaxMatches = 7

	assert.Equal(t, "nats://origin:4222", cfg.NATS.URL)
	assert.Equal(t, 1024, cfg.Matcher.MaxMatches)
	assert.Equal(t, "nats://clone:4222", clone.NATS.URL)

	var nilCfg *Config
	assert.NotNil(t, nilCfg.Clone())
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "debug", Format: "json"}.Logger(&buf)
	require.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("probe", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"probe"`)

	buf.Reset()
	logger = LogConfig{Level: "warn"}.Logger(&buf)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Warn("probe")
	assert.True(t, strings.HasPrefix(buf.String(), "time="), "text handler output: %q", buf.String())
}

func TestStringRendersJSON(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, `"matcher"`)
	assert.Contains(t, s, `"nats"`)
	assert.Contains(t, s, `"logging"`)
}
