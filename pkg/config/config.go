// Package config loads and validates the broker's YAML configuration and
// watches it for changes at runtime. Only the log level is hot-reloadable;
// everything else requires a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// CloudConfig describes one cloud managed by this member.
type CloudConfig struct {
	// Name is the cloud identifier orders address via CloudName.
	Name string `yaml:"name" validate:"required"`

	// Driver selects the plugin implementation for this cloud.
	Driver string `yaml:"driver" validate:"required"`

	// ReadyAfterPolls tunes the stub driver only; real drivers ignore it.
	ReadyAfterPolls int `yaml:"ready_after_polls,omitempty"`
}

// PeerConfig describes one remote federation member.
type PeerConfig struct {
	Member   string `yaml:"member" validate:"required"`
	Endpoint string `yaml:"endpoint" validate:"required,url"`
}

// CredentialConfig maps local user identities to cloud credentials.
type CredentialConfig struct {
	// Default applies to users without a per-user entry.
	Default CredentialEntry `yaml:"default"`

	// Users maps a requesting-user identity to its credential.
	Users map[string]CredentialEntry `yaml:"users,omitempty"`
}

// CredentialEntry is one cloud credential.
type CredentialEntry struct {
	ProjectID string `yaml:"project_id"`
	Username  string `yaml:"username"`
	Token     string `yaml:"token"`
}

// ProcessorConfig tunes the reconciliation loops.
type ProcessorConfig struct {
	// SleepInterval is how long a processor sleeps after an empty sweep.
	SleepInterval time.Duration `yaml:"sleep_interval"`
}

// StoreConfig configures order persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path"`
}

// FederationConfig tunes the inter-member HTTP channel.
type FederationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the top-level broker configuration.
type Config struct {
	// Member is this broker's federation member identity.
	Member string `yaml:"member" validate:"required"`

	// ListenAddress is the HTTP bind address for the federation and
	// operational endpoints.
	ListenAddress string `yaml:"listen_address"`

	Clouds      []CloudConfig    `yaml:"clouds" validate:"dive"`
	Peers       []PeerConfig     `yaml:"peers,omitempty" validate:"dive"`
	Credentials CredentialConfig `yaml:"credentials"`
	Processors  ProcessorConfig  `yaml:"processors"`
	Store       StoreConfig      `yaml:"store"`
	Federation  FederationConfig `yaml:"federation"`
	Telemetry   telemetry.Config `yaml:"telemetry"`
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8400"
	}
	if c.Processors.SleepInterval == 0 {
		c.Processors.SleepInterval = 5 * time.Second
	}
	if c.Federation.Timeout == 0 {
		c.Federation.Timeout = 10 * time.Second
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "fedbroker"
	}
	c.Telemetry.ApplyDefaults()
}

// Validate checks structural constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Clouds))
	for _, cloud := range c.Clouds {
		if _, dup := seen[cloud.Name]; dup {
			return fmt.Errorf("invalid configuration: duplicate cloud %q", cloud.Name)
		}
		seen[cloud.Name] = struct{}{}
	}

	for _, peer := range c.Peers {
		if peer.Member == c.Member {
			return fmt.Errorf("invalid configuration: peer %q is the local member", peer.Member)
		}
	}
	return nil
}

// PeerEndpoints returns the member-to-endpoint map for the federation
// client.
func (c *Config) PeerEndpoints() map[string]string {
	endpoints := make(map[string]string, len(c.Peers))
	for _, peer := range c.Peers {
		endpoints[peer.Member] = peer.Endpoint
	}
	return endpoints
}
