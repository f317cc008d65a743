package config

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/com-junkawasaki/kotoba-sub011/rewrite"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

// Config is the complete engine configuration.
type Config struct {
	Matcher   rewrite.MatcherConfig   `json:"matcher"`
	Scheduler rewrite.SchedulerConfig `json:"scheduler"`
	Runner    workflow.RunnerConfig   `json:"runner"`
	NATS      NATSConfig              `json:"nats"`
	Logging   LogConfig               `json:"logging"`
}

// NATSConfig connects the engine to a NATS deployment. When Enabled is
// false the engine runs self-contained on the in-process bus and the
// in-memory catalog store.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URL           string        `json:"url,omitempty"`
	SubjectPrefix string        `json:"subject_prefix,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	TLS           TLSConfig     `json:"tls"`
}

// TLSConfig secures the NATS connection.
type TLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// Default returns the configuration the engine runs with when no file is
// given: default matcher, scheduler and runner limits, NATS disabled but
// pointed at localhost, text logging at info.
func Default() *Config {
	return &Config{
		Matcher:   rewrite.DefaultMatcherConfig(),
		Scheduler: rewrite.DefaultSchedulerConfig(),
		Runner:    workflow.DefaultRunnerConfig(),
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "kotoba",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values the engine cannot run
// with. Zero limits are fine, they fall back to the defaults.
func (c *Config) Validate() error {
	if c.Matcher.MaxMatches < 0 {
		return errors.New("matcher.max_matches cannot be negative")
	}
	if c.Matcher.MaxCandidates < 0 {
		return errors.New("matcher.max_candidates cannot be negative")
	}
	if c.Matcher.Timeout < 0 {
		return errors.New("matcher.timeout cannot be negative")
	}
	if c.Scheduler.Workers < 0 {
		return errors.New("scheduler.workers cannot be negative")
	}
	if c.Scheduler.MaxBatch < 0 {
		return errors.New("scheduler.max_batch cannot be negative")
	}
	if c.Runner.MaxDepth < 0 {
		return errors.New("runner.max_depth cannot be negative")
	}
	if c.Runner.MaxParallel < 0 {
		return errors.New("runner.max_parallel cannot be negative")
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.Logging.validate()
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if strings.TrimSpace(c.NATS.URL) == "" {
		return errors.New("nats.url is required when nats.enabled is true")
	}
	if c.NATS.TLS.Enabled {
		if c.NATS.TLS.CertFile == "" {
			return errors.New("nats.tls.cert_file is required when nats.tls.enabled is true")
		}
		if c.NATS.TLS.KeyFile == "" {
			return errors.New("nats.tls.key_file is required when nats.tls.enabled is true")
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// String returns an indented JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
