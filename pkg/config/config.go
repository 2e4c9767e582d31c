package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ereinha3/eznas/pkg/types"
)

// ErrNotFound is returned when the stack document does not exist yet.
var ErrNotFound = errors.New("stack config not found")

// Default returns a stack document with every field at its default.
// Paths are left empty and must be filled by the caller.
func Default() *types.StackConfig {
	return &types.StackConfig{
		Version: types.ConfigVersion,
		Services: types.ServicesConfig{
			Qbittorrent: types.ServiceConfig{
				Enabled:           true,
				Port:              8080,
				StopAfterDownload: true,
				Username:          "admin",
				Password:          "adminadmin",
			},
			Radarr:     types.ServiceConfig{Enabled: true, Port: 7878},
			Sonarr:     types.ServiceConfig{Enabled: true, Port: 8989},
			Prowlarr:   types.ServiceConfig{Enabled: true, Port: 9696, LanguageFilter: true},
			Jellyfin:   types.ServiceConfig{Enabled: true, Port: 8096},
			Jellyseerr: types.ServiceConfig{Enabled: true, Port: 5055},
			Pipeline:   types.ServiceConfig{Enabled: true},
		},
		Proxy: types.TraefikConfig{
			Image:    "traefik:v3.1",
			HTTPPort: 80,
		},
		DownloadPolicy: types.DownloadPolicy{
			Categories: types.DownloadCategories{Radarr: "movies", Sonarr: "tv"},
		},
		MediaPolicy: types.MediaPolicy{
			Movies: types.MediaPolicyEntry{
				KeepAudio: []string{"eng", "und"},
				KeepSubs:  []string{"eng"},
			},
		},
		Quality: types.QualityConfig{
			Preset:             "balanced",
			PreferredContainer: "mkv",
		},
		UI:      types.UIConfig{Port: 8443},
		Runtime: types.RuntimeConfig{UserID: 1000, GroupID: 1000, Timezone: "UTC"},
	}
}

// Load reads and validates the stack document at path. Absent fields take
// their defaults.
func Load(path string) (*types.StackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read stack config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML stack document over the defaults and validates it.
func Parse(data []byte) (*types.StackConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse stack config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stack config: %w", err)
	}
	return cfg, nil
}

// Marshal encodes the stack document as YAML.
func Marshal(cfg *types.StackConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stack config: %w", err)
	}
	return data, nil
}

// Root returns the orchestrator state root, ORCH_ROOT or the fallback.
func Root(fallback string) string {
	if root := os.Getenv("ORCH_ROOT"); root != "" {
		return root
	}
	return fallback
}

// PipelineInterval returns the pipeline poll interval from
// PIPELINE_INTERVAL (seconds), defaulting to 60s.
func PipelineInterval() time.Duration {
	raw := os.Getenv("PIPELINE_INTERVAL")
	if raw == "" {
		return 60 * time.Second
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(secs * float64(time.Second))
}

// DebugEnabled reports whether the DEBUG env var asks for verbose logs.
func DebugEnabled() bool {
	switch os.Getenv("DEBUG") {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
