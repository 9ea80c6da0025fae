// Package config loads and validates the tunables a Sequencer is
// constructed with: window size, run lock table geometry, and the
// downstream page target it reports merge output against.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/akumuli/sequencer/pkg/telemetry"
)

const CurrentConfigVersion = 1

var (
	// ErrInvalidConfig is returned by Validate when a tunable is out of
	// range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds every tunable a Sequencer and its surrounding composition
// root need at startup.
type Config struct {
	Version int `json:"version" toml:"version"`

	// WindowSize is the checkpoint window, in the same units as a
	// value's timestamp. Checkpoint id = floor(timestamp / WindowSize).
	WindowSize uint64 `json:"window_size" toml:"window_size"`

	// RunLockSize is the Run Lock Table's stripe count. Must be a power
	// of two.
	RunLockSize int `json:"run_lock_size" toml:"run_lock_size"`

	// BusyCount is the number of spin iterations a run lock attempts
	// before falling back to sleep backoff.
	BusyCount int `json:"busy_count" toml:"busy_count"`

	// MaxBackoffMillis caps the sleep backoff applied to a contended
	// run lock.
	MaxBackoffMillis int64 `json:"max_backoff_millis" toml:"max_backoff_millis"`

	// PageID identifies the downstream page this Sequencer's merge
	// output is tagged with; the page itself is an external
	// collaborator this module never opens or writes to.
	PageID string `json:"page_id" toml:"page_id"`

	Telemetry telemetry.Config `json:"telemetry" toml:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values for
// the given downstream page.
func NewDefaultConfig(pageID string) *Config {
	return &Config{
		Version:          CurrentConfigVersion,
		WindowSize:       1 << 20,
		RunLockSize:      64,
		BusyCount:        1000,
		MaxBackoffMillis: 16,
		PageID:           pageID,
		Telemetry:        telemetry.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid. An invalid config is a
// programmer error per the construction-time contract; callers that load
// config from disk should treat a Validate failure as fatal before
// constructing a Sequencer.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}
	if c.WindowSize == 0 {
		return fmt.Errorf("%w: window_size must be greater than zero", ErrInvalidConfig)
	}
	if c.RunLockSize <= 0 || c.RunLockSize&(c.RunLockSize-1) != 0 {
		return fmt.Errorf("%w: run_lock_size must be a power of two, got %d", ErrInvalidConfig, c.RunLockSize)
	}
	if c.BusyCount < 0 {
		return fmt.Errorf("%w: busy_count must not be negative", ErrInvalidConfig)
	}
	if c.MaxBackoffMillis <= 0 {
		return fmt.Errorf("%w: max_backoff_millis must be positive", ErrInvalidConfig)
	}
	if c.PageID == "" {
		return fmt.Errorf("%w: page_id not specified", ErrInvalidConfig)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Load reads and validates a JSON configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadTOML reads and validates a TOML configuration file, the format
// operators typically hand-edit for this kind of tunable set.
func LoadTOML(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Update applies the given function to modify the configuration under
// lock, then re-validates.
func (c *Config) Update(fn func(*Config)) error {
	c.mu.Lock()
	fn(c)
	c.mu.Unlock()
	return c.Validate()
}
