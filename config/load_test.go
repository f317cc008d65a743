package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "engine.json", `{
		"matcher": {"max_matches": 5, "timeout": "250ms"},
		"nats": {"enabled": true, "url": "nats://broker:4222", "reconnect_wait": "3s"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Matcher.MaxMatches)
	assert.Equal(t, 250*time.Millisecond, cfg.Matcher.Timeout)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 3*time.Second, cfg.NATS.ReconnectWait)

	// Sections the file does not touch keep their defaults.
	assert.Equal(t, 1<<20, cfg.Matcher.MaxCandidates)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "kotoba", cfg.NATS.SubjectPrefix)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "engine.yaml", `
nats:
  enabled: true
  url: nats://broker:4222
  timeout: 1s
logging:
  level: debug
scheduler:
  workers: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, time.Second, cfg.NATS.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, 256, cfg.Scheduler.QueueSize)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Matcher, cfg.Matcher)
	assert.Equal(t, Default().Scheduler, cfg.Scheduler)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, "broken.json", `{"nats": [`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, "engine.json", `{"nats": {"enabled": true, "url": ""}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.url")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KOTOBA_NATS_URL", "nats://env:4222")
	t.Setenv("KOTOBA_NATS_ENABLED", "true")
	t.Setenv("KOTOBA_NATS_TOKEN", "s3cret")
	t.Setenv("KOTOBA_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "s3cret", cfg.NATS.Token)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := writeConfig(t, "engine.json", `{"nats": {"url": "nats://file:4222"}}`)
	t.Setenv("KOTOBA_NATS_URL", "nats://env:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
}

func TestParseDurations(t *testing.T) {
	raw := map[string]any{
		"nats":    map[string]any{"reconnect_wait": "2s", "timeout": float64(1000)},
		"matcher": map[string]any{"timeout": "not-a-duration"},
	}
	parseDurations(raw)

	nats := raw["nats"].(map[string]any)
	assert.Equal(t, int64(2*time.Second), nats["reconnect_wait"])
	assert.Equal(t, float64(1000), nats["timeout"])

	matcher := raw["matcher"].(map[string]any)
	assert.Equal(t, "not-a-duration", matcher["timeout"])
}
