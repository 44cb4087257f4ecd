// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Warden daemon.
//
// Configuration is a single YAML file passed via --config. There are
// no fallbacks or automatic discovery: this keeps the daemon's
// effective configuration deterministic and auditable, which matters
// for a process that executes commands as root. Flags override file
// values; the file overrides built-in defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// RunDir is the runtime directory for sockets and the pid file.
	RunDir string `yaml:"run_dir"`

	// PolicyDir is the directory of action definition files.
	PolicyDir string `yaml:"policy_dir"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// RequestTimeout bounds how long a connected client may take to
	// deliver its single request frame. Short: a well-behaved client
	// sends immediately after connecting, and a slow sender is more
	// likely a client trying to pin a session goroutine than a slow
	// machine.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RunDir:         "/run/warden",
		PolicyDir:      "/etc/warden/actions.d",
		LogLevel:       "info",
		RequestTimeout: 5 * time.Second,
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are
// rejected: a typo in the config of a root daemon should fail loudly,
// not silently fall back to a default.
func Load(path string) (Config, error) {
	configuration := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&configuration); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := configuration.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return configuration, nil
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.RunDir == "" {
		return fmt.Errorf("run_dir must not be empty")
	}
	if c.PolicyDir == "" {
		return fmt.Errorf("policy_dir must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}
