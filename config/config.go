// Package config holds the runtime settings of the tree server and the
// layered override mechanism used to load them from files and flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/treestore/internal/paths"
	"github.com/brettbedarf/treestore/internal/util"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 12004

	// DefaultMaxConnections matches the listen backlog the protocol was first
	// served with
	DefaultMaxConnections = 20

	// DefaultMaxLineBytes bounds a single request line including the value
	DefaultMaxLineBytes = 4096

	// DefaultMetricsAddr disables the metrics endpoint
	DefaultMetricsAddr = ""

	DefaultLogLvl = util.InfoLevel
)

// CLI verbosity levels. Verbosity runs opposite to [util.LogLevel]: higher
// verbosity means a lower (chattier) log level.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Seed entry types
const (
	SeedNode = "node"
	SeedLeaf = "leaf"
)

// SeedEntry describes one node or leaf created at startup.
// Entries are applied in order, so parents must be listed before children.
type SeedEntry struct {
	Type  string `yaml:"type" json:"type"`
	Path  string `yaml:"path" json:"path"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// DefaultSeed returns the demo tree the server starts with.
func DefaultSeed() []SeedEntry {
	return []SeedEntry{
		{Type: SeedNode, Path: "/Users"},
		{Type: SeedLeaf, Path: "/Users/readme", Value: "This is a user directory."},
	}
}

// Config contains runtime configuration values for the tree server.
type Config struct {
	Host           string        // Interface to listen on (Default 127.0.0.1)
	Port           int           // TCP port of the line protocol (Default 12004)
	MaxConnections int           // Concurrent client sessions; extra clients are turned away (Default 20)
	MaxLineBytes   int           // Longest accepted request line in bytes (Default 4096)
	MetricsAddr    string        // host:port of the Prometheus endpoint, empty disables it
	LogLvl         util.LogLevel // Log level (Default info)
	Seed           []SeedEntry   // Entries created at startup (Default /Users and /Users/readme)
}

// Addr returns the host:port the protocol listener binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	Host           *string `yaml:"host,omitempty" json:"host,omitempty"`
	Port           *int    `yaml:"port,omitempty" json:"port,omitempty"`
	MaxConnections *int    `yaml:"max_connections,omitempty" json:"max_connections,omitempty"`
	MaxLineBytes   *int    `yaml:"max_line_bytes,omitempty" json:"max_line_bytes,omitempty"`
	MetricsAddr    *string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	// LogLvl is a verbosity between 1 (error) and 5 (trace), not a [util.LogLevel]
	LogLvl *int `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	// Seed replaces the default seed entirely. An empty, non-nil list disables seeding.
	Seed *[]SeedEntry `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		MaxConnections: DefaultMaxConnections,
		MaxLineBytes:   DefaultMaxLineBytes,
		MetricsAddr:    DefaultMetricsAddr,
		LogLvl:         DefaultLogLvl,
		Seed:           DefaultSeed(),
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Host != nil {
		c.Host = *override.Host
	}
	if override.Port != nil {
		c.Port = *override.Port
	}
	if override.MaxConnections != nil {
		c.MaxConnections = *override.MaxConnections
	}
	if override.MaxLineBytes != nil {
		c.MaxLineBytes = *override.MaxLineBytes
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.Seed != nil {
		c.Seed = append([]SeedEntry{}, (*override.Seed)...)
	}
}

// VerboseToLogLevel maps a CLI verbosity (clamped to 1..5) to a log level.
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = max(ErrorVerbose, min(TraceVerbose, verbose))
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return logLvls[verbose-1]
}

// Validate reports every setting that would keep the server from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("max_connections must be positive: %d", c.MaxConnections))
	}
	if c.MaxLineBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_line_bytes must be positive: %d", c.MaxLineBytes))
	}
	for i, e := range c.Seed {
		if e.Type != SeedNode && e.Type != SeedLeaf {
			errs = append(errs, fmt.Errorf("seed[%d]: unknown type %q", i, e.Type))
		}
		if !paths.IsMutable(e.Path) {
			errs = append(errs, fmt.Errorf("seed[%d]: invalid path %q", i, e.Path))
		}
	}
	return errors.Join(errs...)
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
