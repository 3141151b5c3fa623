// Package settings reads optional workspace tuning from
// .apidb/settings.toml. A missing file yields defaults; CLI flags
// override whatever is loaded here.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/workspace"
)

// Defaults applied when settings.toml is absent or a field is unset.
const (
	DefaultMaxSourceBytes         = 50 * 1024 * 1024
	DefaultFetchTimeoutSeconds    = 30
	DefaultFetchRequestsPerSecond = 4.0
	DefaultFetchBurst             = 4
)

// Settings holds workspace-level tuning for the sync pipeline.
type Settings struct {
	// MaxSourceBytes is the per-source fetch byte ceiling.
	MaxSourceBytes int64 `toml:"max_source_bytes"`

	// AllowPrivateNet disables the SSRF defence for this workspace.
	AllowPrivateNet bool `toml:"allow_private_net"`

	// FetchTimeoutSeconds bounds each HTTP request.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`

	// FetchRequestsPerSecond and FetchBurst configure the outbound
	// token-bucket rate limit.
	FetchRequestsPerSecond float64 `toml:"fetch_requests_per_second"`
	FetchBurst             int     `toml:"fetch_burst"`
}

// Default returns the settings used when no settings.toml exists.
func Default() Settings {
	return Settings{
		MaxSourceBytes:         DefaultMaxSourceBytes,
		FetchTimeoutSeconds:    DefaultFetchTimeoutSeconds,
		FetchRequestsPerSecond: DefaultFetchRequestsPerSecond,
		FetchBurst:             DefaultFetchBurst,
	}
}

// Load reads settings.toml from the workspace, filling unset fields with
// defaults. A missing file is not an error; a malformed one is.
func Load(h workspace.Handle) (Settings, error) {
	s := Default()

	raw, err := os.ReadFile(h.SettingsPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("reading settings: %w", err)
	}

	if err := toml.Unmarshal(raw, &s); err != nil {
		return Default(), fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, h.SettingsPath(), err)
	}

	if s.MaxSourceBytes <= 0 {
		s.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if s.FetchTimeoutSeconds <= 0 {
		s.FetchTimeoutSeconds = DefaultFetchTimeoutSeconds
	}
	if s.FetchRequestsPerSecond <= 0 {
		s.FetchRequestsPerSecond = DefaultFetchRequestsPerSecond
	}
	if s.FetchBurst <= 0 {
		s.FetchBurst = DefaultFetchBurst
	}
	return s, nil
}
