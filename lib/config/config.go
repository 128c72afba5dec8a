// Copyright 2026 The Stagelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Stagelink components.
//
// Configuration is loaded from a single YAML file specified by:
//   - STAGELINK_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Stagelink.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Gateway configures the externally reachable front door.
	Gateway GatewayConfig `yaml:"gateway"`

	// Worker configures the poller/executor running next to the
	// target application.
	Worker WorkerConfig `yaml:"worker"`

	// Broker configures the push-variant broker.
	Broker BrokerConfig `yaml:"broker"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Gateway *GatewayConfig `yaml:"gateway,omitempty"`
	Worker  *WorkerConfig  `yaml:"worker,omitempty"`
	Broker  *BrokerConfig  `yaml:"broker,omitempty"`
}

// GatewayConfig configures the gateway HTTP server.
type GatewayConfig struct {
	// ListenAddress is the TCP listen address.
	// Default: :8080
	ListenAddress string `yaml:"listen_address"`

	// APIKey is the shared secret for the X-API-Key header. Empty
	// disables authentication.
	APIKey string `yaml:"api_key"`

	// ResponseTTL evicts correlator entries (answered or not) older
	// than this age. Zero disables eviction entirely; entries then
	// accumulate for the process lifetime.
	// Default: 0 (disabled)
	ResponseTTL time.Duration `yaml:"response_ttl"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WorkerConfig configures the worker-side poller.
type WorkerConfig struct {
	// GatewayURL is the base URL of the gateway.
	// Default: http://localhost:8080
	GatewayURL string `yaml:"gateway_url"`

	// TargetURL is the base URL of the local presentation
	// application's API.
	// Default: http://localhost:1025
	TargetURL string `yaml:"target_url"`

	// WorkerID identifies this worker to the push broker.
	WorkerID string `yaml:"worker_id"`

	// BrokerAddress, when set, connects the worker to the push broker
	// at this host:port in addition to the poll loop. Empty disables
	// the push channel.
	BrokerAddress string `yaml:"broker_address"`

	// PollInterval is the delay between poll cycles.
	// Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// RequestTimeout bounds each outbound HTTP call.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RetryAttempts is the maximum number of attempts per call for
	// 5xx and connection-level failures.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoff is the initial backoff between attempts; it
	// doubles per retry.
	// Default: 1s
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// LocalListenAddress, when set, serves the pass-through proxy
	// (GET /version etc. forwarded to the target) on this address.
	// Empty disables the local listener.
	LocalListenAddress string `yaml:"local_listen_address"`
}

// BrokerConfig configures the push-variant broker.
type BrokerConfig struct {
	// ListenAddress is the TCP address workers connect to.
	// Default: :7890
	ListenAddress string `yaml:"listen_address"`

	// HTTPListenAddress is the address of the broker's HTTP API
	// (worker listing, request forwarding).
	// Default: :7891
	HTTPListenAddress string `yaml:"http_listen_address"`

	// APIKey guards the broker HTTP API. Empty disables the check.
	APIKey string `yaml:"api_key"`

	// RequestTimeout is how long a forwarded request waits for the
	// worker's reply before the caller gets a timeout.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values before the config file is merged in.
func Default() *Config {
	return &Config{
		Environment: Development,
		Gateway: GatewayConfig{
			ListenAddress:   ":8080",
			ResponseTTL:     0,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			GatewayURL:     "http://localhost:8080",
			TargetURL:      "http://localhost:1025",
			PollInterval:   5 * time.Second,
			RequestTimeout: 5 * time.Second,
			RetryAttempts:  3,
			RetryBackoff:   time.Second,
		},
		Broker: BrokerConfig{
			ListenAddress:     ":7890",
			HTTPListenAddress: ":7891",
			RequestTimeout:    10 * time.Second,
		},
	}
}

// Load loads configuration from the STAGELINK_CONFIG environment
// variable. There are no fallbacks — if STAGELINK_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("STAGELINK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("STAGELINK_CONFIG environment variable not set; " +
			"set it to the path of your stagelink.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that YAML decoding cannot.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive, got %v", c.Worker.PollInterval)
	}
	if c.Worker.RetryAttempts < 1 {
		return fmt.Errorf("worker.retry_attempts must be at least 1, got %d", c.Worker.RetryAttempts)
	}
	if c.Gateway.ResponseTTL < 0 {
		return fmt.Errorf("gateway.response_ttl must not be negative, got %v", c.Gateway.ResponseTTL)
	}
	if c.Worker.BrokerAddress != "" && c.Worker.WorkerID == "" {
		return fmt.Errorf("worker.worker_id is required when worker.broker_address is set")
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Gateway != nil {
		if overrides.Gateway.ListenAddress != "" {
			c.Gateway.ListenAddress = overrides.Gateway.ListenAddress
		}
		if overrides.Gateway.APIKey != "" {
			c.Gateway.APIKey = overrides.Gateway.APIKey
		}
		if overrides.Gateway.ResponseTTL != 0 {
			c.Gateway.ResponseTTL = overrides.Gateway.ResponseTTL
		}
		if overrides.Gateway.ShutdownTimeout != 0 {
			c.Gateway.ShutdownTimeout = overrides.Gateway.ShutdownTimeout
		}
	}

	if overrides.Worker != nil {
		if overrides.Worker.GatewayURL != "" {
			c.Worker.GatewayURL = overrides.Worker.GatewayURL
		}
		if overrides.Worker.TargetURL != "" {
			c.Worker.TargetURL = overrides.Worker.TargetURL
		}
		if overrides.Worker.WorkerID != "" {
			c.Worker.WorkerID = overrides.Worker.WorkerID
		}
		if overrides.Worker.BrokerAddress != "" {
			c.Worker.BrokerAddress = overrides.Worker.BrokerAddress
		}
		if overrides.Worker.PollInterval != 0 {
			c.Worker.PollInterval = overrides.Worker.PollInterval
		}
		if overrides.Worker.RequestTimeout != 0 {
			c.Worker.RequestTimeout = overrides.Worker.RequestTimeout
		}
		if overrides.Worker.RetryAttempts != 0 {
			c.Worker.RetryAttempts = overrides.Worker.RetryAttempts
		}
		if overrides.Worker.RetryBackoff != 0 {
			c.Worker.RetryBackoff = overrides.Worker.RetryBackoff
		}
		if overrides.Worker.LocalListenAddress != "" {
			c.Worker.LocalListenAddress = overrides.Worker.LocalListenAddress
		}
	}

	if overrides.Broker != nil {
		if overrides.Broker.ListenAddress != "" {
			c.Broker.ListenAddress = overrides.Broker.ListenAddress
		}
		if overrides.Broker.HTTPListenAddress != "" {
			c.Broker.HTTPListenAddress = overrides.Broker.HTTPListenAddress
		}
		if overrides.Broker.APIKey != "" {
			c.Broker.APIKey = overrides.Broker.APIKey
		}
		if overrides.Broker.RequestTimeout != 0 {
			c.Broker.RequestTimeout = overrides.Broker.RequestTimeout
		}
	}
}
