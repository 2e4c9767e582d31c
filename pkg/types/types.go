package types

import (
	"fmt"
	"time"
)

// ConfigVersion is the stack configuration schema version this build
// understands. Loading a document with a different version fails.
const ConfigVersion = 1

// PathConfig holds the three host roots everything else derives from.
type PathConfig struct {
	// Pool is the bulk storage root (media library, completed downloads).
	Pool string `yaml:"pool" json:"pool"`
	// Scratch is optional fast storage for incomplete downloads and
	// post-processing staging. Empty means use Pool.
	Scratch string `yaml:"scratch,omitempty" json:"scratch,omitempty"`
	// Appdata holds per-service configuration directories.
	Appdata string `yaml:"appdata" json:"appdata"`
}

// EffectiveScratch returns the scratch root, falling back to the pool
// when no dedicated scratch path is configured.
func (p PathConfig) EffectiveScratch() string {
	if p.Scratch != "" {
		return p.Scratch
	}
	return p.Pool
}

// RuntimeConfig carries the uid/gid/timezone passed into every container.
type RuntimeConfig struct {
	UserID   int    `yaml:"user_id" json:"user_id"`
	GroupID  int    `yaml:"group_id" json:"group_id"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// ServiceConfig is the per-service block of the stack document. Fields
// that only apply to some services stay zero-valued for the rest.
type ServiceConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	ProxyURL string `yaml:"proxy_url,omitempty" json:"proxy_url,omitempty"`

	// qBittorrent only.
	StopAfterDownload bool   `yaml:"stop_after_download,omitempty" json:"stop_after_download,omitempty"`
	Username          string `yaml:"username,omitempty" json:"username,omitempty"`
	Password          string `yaml:"password,omitempty" json:"password,omitempty"`

	// Prowlarr only. When true, only indexers matching the media policy
	// languages are auto-populated.
	LanguageFilter bool `yaml:"language_filter,omitempty" json:"language_filter,omitempty"`
}

// ServicesConfig maps each managed service to its block.
type ServicesConfig struct {
	Qbittorrent ServiceConfig `yaml:"qbittorrent" json:"qbittorrent"`
	Radarr      ServiceConfig `yaml:"radarr" json:"radarr"`
	Sonarr      ServiceConfig `yaml:"sonarr" json:"sonarr"`
	Prowlarr    ServiceConfig `yaml:"prowlarr" json:"prowlarr"`
	Jellyfin    ServiceConfig `yaml:"jellyfin" json:"jellyfin"`
	Jellyseerr  ServiceConfig `yaml:"jellyseerr" json:"jellyseerr"`
	Pipeline    ServiceConfig `yaml:"pipeline" json:"pipeline"`
}

// ByName returns the block for a service name, ok=false for unknown names.
func (s *ServicesConfig) ByName(name string) (*ServiceConfig, bool) {
	switch name {
	case "qbittorrent":
		return &s.Qbittorrent, true
	case "radarr":
		return &s.Radarr, true
	case "sonarr":
		return &s.Sonarr, true
	case "prowlarr":
		return &s.Prowlarr, true
	case "jellyfin":
		return &s.Jellyfin, true
	case "jellyseerr":
		return &s.Jellyseerr, true
	case "pipeline":
		return &s.Pipeline, true
	}
	return nil, false
}

// TraefikConfig describes the optional reverse proxy in front of the stack.
type TraefikConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Image          string   `yaml:"image" json:"image"`
	HTTPPort       int      `yaml:"http_port" json:"http_port"`
	HTTPSPort      int      `yaml:"https_port,omitempty" json:"https_port,omitempty"`
	Dashboard      bool     `yaml:"dashboard" json:"dashboard"`
	AdditionalArgs []string `yaml:"additional_args,omitempty" json:"additional_args,omitempty"`
}

// DownloadCategories names the qBittorrent category each library manager
// tags its downloads with.
type DownloadCategories struct {
	Radarr string `yaml:"radarr" json:"radarr"`
	Sonarr string `yaml:"sonarr" json:"sonarr"`
}

// DownloadPolicy groups download-side behavior.
type DownloadPolicy struct {
	Categories DownloadCategories `yaml:"categories" json:"categories"`
}

// MediaPolicyEntry lists which audio and subtitle languages survive the
// post-processing remux. Language codes are ISO 639-2.
type MediaPolicyEntry struct {
	KeepAudio []string `yaml:"keep_audio" json:"keep_audio"`
	KeepSubs  []string `yaml:"keep_subs" json:"keep_subs"`
}

// MediaPolicy maps media kinds to their stream-keeping rules.
type MediaPolicy struct {
	Movies MediaPolicyEntry `yaml:"movies" json:"movies"`
}

// QualityConfig drives quality profile selection in the library managers.
type QualityConfig struct {
	Preset             string `yaml:"preset" json:"preset"`
	TargetResolution   string `yaml:"target_resolution,omitempty" json:"target_resolution,omitempty"`
	MaxBitrateMbps     int    `yaml:"max_bitrate_mbps,omitempty" json:"max_bitrate_mbps,omitempty"`
	PreferredContainer string `yaml:"preferred_container" json:"preferred_container"`
}

// UIConfig is retained for compatibility with existing documents; the
// orchestrator itself serves no UI.
type UIConfig struct {
	Port int `yaml:"port" json:"port"`
}

// UserEntry is a declared stack user. Roles: owner, admin, editor, viewer.
type UserEntry struct {
	Username string `yaml:"username" json:"username"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty"`
	Role     string `yaml:"role" json:"role"`
}

// StackConfig is the full declarative stack document.
type StackConfig struct {
	Version        int            `yaml:"version" json:"version"`
	Paths          PathConfig     `yaml:"paths" json:"paths"`
	Services       ServicesConfig `yaml:"services" json:"services"`
	Proxy          TraefikConfig  `yaml:"proxy" json:"proxy"`
	DownloadPolicy DownloadPolicy `yaml:"download_policy" json:"download_policy"`
	MediaPolicy    MediaPolicy    `yaml:"media_policy" json:"media_policy"`
	Quality        QualityConfig  `yaml:"quality" json:"quality"`
	UI             UIConfig       `yaml:"ui" json:"ui"`
	Runtime        RuntimeConfig  `yaml:"runtime" json:"runtime"`
	Users          []UserEntry    `yaml:"users,omitempty" json:"users,omitempty"`
}

// Validate checks structural invariants that YAML decoding cannot express.
func (c *StackConfig) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("unsupported config version %d (want %d)", c.Version, ConfigVersion)
	}
	if c.Paths.Pool == "" || c.Paths.Pool[0] != '/' {
		return fmt.Errorf("paths.pool must be an absolute path")
	}
	if c.Paths.Appdata == "" || c.Paths.Appdata[0] != '/' {
		return fmt.Errorf("paths.appdata must be an absolute path")
	}
	if c.Paths.Scratch != "" && c.Paths.Scratch[0] != '/' {
		return fmt.Errorf("paths.scratch must be an absolute path")
	}
	for _, p := range []struct {
		name string
		port int
	}{
		{"qbittorrent", c.Services.Qbittorrent.Port},
		{"radarr", c.Services.Radarr.Port},
		{"sonarr", c.Services.Sonarr.Port},
		{"prowlarr", c.Services.Prowlarr.Port},
		{"jellyfin", c.Services.Jellyfin.Port},
		{"jellyseerr", c.Services.Jellyseerr.Port},
	} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("services.%s.port out of range: %d", p.name, p.port)
		}
	}
	if p := c.Services.Pipeline.Port; p != 0 && (p < 1 || p > 65535) {
		return fmt.Errorf("services.pipeline.port out of range: %d", p)
	}
	for _, u := range c.Users {
		switch u.Role {
		case "owner", "admin", "editor", "viewer":
		default:
			return fmt.Errorf("user %q has unsupported role %q", u.Username, u.Role)
		}
	}
	return nil
}

// StageStatus is the lifecycle state of a converge stage.
type StageStatus string

const (
	StageStarted StageStatus = "started"
	StageOK      StageStatus = "ok"
	StageWarning StageStatus = "warning"
	StageFailed  StageStatus = "failed"
)

// StageEvent is one entry in a run's event stream.
type StageEvent struct {
	Stage  string      `json:"stage"`
	Status StageStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// RunRecord is the persisted record of one converge run. OK stays nil
// until the run reaches a terminal state.
type RunRecord struct {
	RunID   string       `json:"run_id"`
	OK      *bool        `json:"ok"`
	Events  []StageEvent `json:"events"`
	Summary string       `json:"summary,omitempty"`
}

// Outcome is the result of a service client's ensure pass. A failed
// ensure is a value, not an error: the scheduler uses it to decide which
// dependents to skip.
type Outcome struct {
	Detail  string
	Changed bool
	Success bool
}

// ValidationResult maps check names to "ok" or a failure description.
type ValidationResult struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// RenderResult points at the artifacts produced by one render pass.
type RenderResult struct {
	ComposePath string
	EnvPath     string
	SecretsDir  string
	SecretFiles map[string]string
}

// AuthUser is a persisted account in the auth state section.
type AuthUser struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthState is the auth section of the state store.
type AuthState struct {
	Version             int                 `json:"version"`
	SessionTimeoutHours int                 `json:"session_timeout_hours"`
	SudoTimeoutMinutes  int                 `json:"sudo_timeout_minutes"`
	Users               map[string]AuthUser `json:"users"`
}
