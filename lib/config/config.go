// Copyright 2026 The Vaultkeep Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
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

// Config is the master configuration for the vault kernel.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Daemon configures the vault daemon's network-facing behavior.
	Daemon DaemonConfig `yaml:"daemon"`

	// License configures offline/online license verification.
	License LicenseConfig `yaml:"license"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Daemon  *DaemonConfig  `yaml:"daemon,omitempty"`
	License *LicenseConfig `yaml:"license,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for vault data: salt.txt, vault.enc,
	// license.json, server-info.json, and archived log shards.
	Root string `yaml:"root"`

	// LogArchive is where rolled-over, zstd-compressed audit log
	// shards are written. Defaults to Root/logs.
	LogArchive string `yaml:"log_archive"`
}

// DaemonConfig configures the vault daemon's loopback access server
// and auto-lock behavior.
type DaemonConfig struct {
	// ListenAddress is the loopback TCP address the access server
	// binds. Port 0 lets the OS assign an ephemeral port, published
	// via the handshake file.
	// Default: 127.0.0.1:0
	ListenAddress string `yaml:"listen_address"`

	// IdleLockTimeout is how long the vault stays unlocked with no
	// access server activity before it is automatically locked.
	// Default: 5m
	IdleLockTimeout string `yaml:"idle_lock_timeout"`

	// RequireApproval controls whether secret reads/writes are gated
	// by the interactive approval broker. Default: true
	RequireApproval bool `yaml:"require_approval"`
}

// LicenseConfig configures license verification.
type LicenseConfig struct {
	// ProductTag identifies this build for license matching.
	// Default: vaultkeep
	ProductTag string `yaml:"product_tag"`

	// ActivationURL is the entitlement server endpoint used for
	// online activation.
	ActivationURL string `yaml:"activation_url"`

	// NetworkTimeout is a duration string for activation HTTP
	// requests. Default: 10s. lib/license does not read it: its HTTP
	// client uses a fixed 10-second timeout.
	NetworkTimeout string `yaml:"network_timeout"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "vaultkeep")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:       defaultRoot,
			LogArchive: filepath.Join(defaultRoot, "logs"),
		},
		Daemon: DaemonConfig{
			ListenAddress:   "127.0.0.1:0",
			IdleLockTimeout: "5m",
			RequireApproval: true,
		},
		License: LicenseConfig{
			ProductTag:     "vaultkeep",
			ActivationURL:  "",
			NetworkTimeout: "10s",
		},
	}
}

// Load loads configuration from the VAULTKEEP_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if VAULTKEEP_CONFIG is not set, this
// fails. This ensures deterministic, auditable configuration with no hidden
// overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("VAULTKEEP_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("VAULTKEEP_CONFIG environment variable not set; " +
			"set it to the path of your vaultkeep.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
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
		// Production defaults: require approval even if the file
		// omits the daemon section entirely.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Daemon: &DaemonConfig{RequireApproval: true},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.LogArchive != "" {
			c.Paths.LogArchive = overrides.Paths.LogArchive
		}
	}

	if overrides.Daemon != nil {
		if overrides.Daemon.ListenAddress != "" {
			c.Daemon.ListenAddress = overrides.Daemon.ListenAddress
		}
		if overrides.Daemon.IdleLockTimeout != "" {
			c.Daemon.IdleLockTimeout = overrides.Daemon.IdleLockTimeout
		}
		// RequireApproval is a bool, so we always apply it from overrides.
		c.Daemon.RequireApproval = overrides.Daemon.RequireApproval
	}

	if overrides.License != nil {
		if overrides.License.ProductTag != "" {
			c.License.ProductTag = overrides.License.ProductTag
		}
		if overrides.License.ActivationURL != "" {
			c.License.ActivationURL = overrides.License.ActivationURL
		}
		if overrides.License.NetworkTimeout != "" {
			c.License.NetworkTimeout = overrides.License.NetworkTimeout
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"VAULTKEEP_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["VAULTKEEP_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.LogArchive = expandVars(c.Paths.LogArchive, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Daemon.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("daemon.listen_address is required"))
	}

	if _, err := time.ParseDuration(c.Daemon.IdleLockTimeout); err != nil {
		errs = append(errs, fmt.Errorf("daemon.idle_lock_timeout: %w", err))
	}

	if _, err := time.ParseDuration(c.License.NetworkTimeout); err != nil {
		errs = append(errs, fmt.Errorf("license.network_timeout: %w", err))
	}

	if c.License.ProductTag == "" {
		errs = append(errs, fmt.Errorf("license.product_tag is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IdleLockTimeout parses Daemon.IdleLockTimeout. Callers should
// Validate the config before relying on this not erroring.
func (c *Config) IdleLockTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Daemon.IdleLockTimeout)
}

// NetworkTimeout parses License.NetworkTimeout.
func (c *Config) NetworkTimeout() (time.Duration, error) {
	return time.ParseDuration(c.License.NetworkTimeout)
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root, c.Paths.LogArchive}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
