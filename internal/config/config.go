// Package config loads, validates, and saves the workspace source list
// stored in .apidb/config.json. Sync treats a loaded config as input
// data; it never writes one.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// Version is the only supported config schema version.
const Version = 1

var sourceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Config is the parsed contents of config.json.
type Config struct {
	Version int             `json:"version"`
	Sources []domain.Source `json:"sources"`
}

// EnabledSources returns the sources participating in sync and
// exact-resolution scoping, in config order.
func (c *Config) EnabledSources() []domain.Source {
	var enabled []domain.Source //nolint:prealloc // size unknown until filtered
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// Init writes an empty config if none exists yet.
func Init(h workspace.Handle) error {
	if err := h.EnsureDir(); err != nil {
		return fmt.Errorf("creating workspace directory: %w", err)
	}

	if _, err := os.Stat(h.ConfigPath()); err == nil {
		return nil
	}

	return Save(h, &Config{Version: Version, Sources: []domain.Source{}})
}

// Load reads and validates config.json.
func Load(h workspace.Handle) (*Config, error) {
	raw, err := os.ReadFile(h.ConfigPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist (run `apidb init` first)",
				domain.ErrInvalidConfig, h.ConfigPath())
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	if cfg.Sources == nil {
		cfg.Sources = []domain.Source{}
	}
	return &cfg, nil
}

// Save validates and writes config.json.
func Save(h workspace.Handle, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := h.EnsureDir(); err != nil {
		return fmt.Errorf("creating workspace directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(h.ConfigPath(), append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks structural constraints: version, id charset, unique
// ids, known type, non-empty location.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty document", domain.ErrInvalidConfig)
	}
	if cfg.Version != Version {
		return fmt.Errorf("%w: version must be %d, got %d", domain.ErrInvalidConfig, Version, cfg.Version)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if !sourceIDPattern.MatchString(s.ID) {
			return fmt.Errorf("%w: invalid source id %q", domain.ErrInvalidConfig, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate source id %q", domain.ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true

		if s.Type != domain.SourceTypeOpenAPI {
			return fmt.Errorf("%w: invalid type %q for source %s", domain.ErrInvalidConfig, s.Type, s.ID)
		}
		if s.Location == "" {
			return fmt.Errorf("%w: empty location for source %s", domain.ErrInvalidConfig, s.ID)
		}
	}
	return nil
}

// AddOpenAPISource returns a copy of cfg with a new enabled source
// appended and validated. The input config is not mutated.
func AddOpenAPISource(cfg *Config, id, location string) (*Config, error) {
	next := &Config{
		Version: cfg.Version,
		Sources: append([]domain.Source{}, cfg.Sources...),
	}
	next.Sources = append(next.Sources, domain.Source{
		ID:       id,
		Type:     domain.SourceTypeOpenAPI,
		Location: location,
		Enabled:  true,
		AddedAt:  time.Now().UTC(),
	})

	if err := Validate(next); err != nil {
		return nil, err
	}
	return next, nil
}
