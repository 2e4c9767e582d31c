package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MinimalDocument(t *testing.T) {
	doc := []byte(`
version: 1
paths:
  pool: /mnt/pool
  appdata: /mnt/pool/appdata
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	// Defaults fill everything the document omits.
	assert.Equal(t, 8080, cfg.Services.Qbittorrent.Port)
	assert.Equal(t, "admin", cfg.Services.Qbittorrent.Username)
	assert.True(t, cfg.Services.Qbittorrent.StopAfterDownload)
	assert.Equal(t, "movies", cfg.DownloadPolicy.Categories.Radarr)
	assert.Equal(t, []string{"eng", "und"}, cfg.MediaPolicy.Movies.KeepAudio)
	assert.Equal(t, "balanced", cfg.Quality.Preset)
	assert.Equal(t, "mkv", cfg.Quality.PreferredContainer)
	assert.Equal(t, 1000, cfg.Runtime.UserID)
	assert.Equal(t, "UTC", cfg.Runtime.Timezone)
	assert.Equal(t, "traefik:v3.1", cfg.Proxy.Image)
	assert.False(t, cfg.Proxy.Enabled)
	assert.True(t, cfg.Services.Prowlarr.LanguageFilter)
	assert.Equal(t, "", cfg.Paths.Scratch)
	assert.Equal(t, "/mnt/pool", cfg.Paths.EffectiveScratch())
}

func TestParse_OverridesDefaults(t *testing.T) {
	doc := []byte(`
version: 1
paths:
  pool: /mnt/pool
  scratch: /mnt/fast
  appdata: /mnt/pool/appdata
services:
  radarr:
    enabled: true
    port: 17878
  jellyseerr:
    enabled: false
proxy:
  enabled: true
  https_port: 443
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, 17878, cfg.Services.Radarr.Port)
	assert.False(t, cfg.Services.Jellyseerr.Enabled)
	assert.True(t, cfg.Proxy.Enabled)
	assert.Equal(t, 443, cfg.Proxy.HTTPSPort)
	assert.Equal(t, "/mnt/fast", cfg.Paths.EffectiveScratch())
}

func TestParse_RejectsRelativePaths(t *testing.T) {
	doc := []byte(`
version: 1
paths:
  pool: relative/pool
  appdata: /mnt/pool/appdata
`)
	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.pool")
}

func TestParse_RejectsUnknownVersion(t *testing.T) {
	doc := []byte(`
version: 2
paths:
  pool: /mnt/pool
  appdata: /mnt/pool/appdata
`)
	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config version")
}

func TestParse_RejectsBadUserRole(t *testing.T) {
	doc := []byte(`
version: 1
paths:
  pool: /mnt/pool
  appdata: /mnt/pool/appdata
users:
  - username: alice
    role: superuser
`)
	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported role")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Paths.Pool = "/mnt/pool"
	cfg.Paths.Appdata = "/mnt/pool/appdata"

	data, err := Marshal(cfg)
	require.NoError(t, err)

	reparsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, reparsed)
}

func TestPipelineInterval(t *testing.T) {
	t.Setenv("PIPELINE_INTERVAL", "15")
	assert.Equal(t, 15*time.Second, PipelineInterval())

	t.Setenv("PIPELINE_INTERVAL", "bogus")
	assert.Equal(t, 60*time.Second, PipelineInterval())

	t.Setenv("PIPELINE_INTERVAL", "")
	assert.Equal(t, 60*time.Second, PipelineInterval())
}

func TestDebugEnabled(t *testing.T) {
	t.Setenv("DEBUG", "1")
	assert.True(t, DebugEnabled())
	t.Setenv("DEBUG", "false")
	assert.False(t, DebugEnabled())
}

func TestDependencyGraphIsConsistent(t *testing.T) {
	position := make(map[string]int, len(DependencyOrder))
	for i, name := range DependencyOrder {
		position[name] = i
	}
	for service, deps := range Dependencies {
		for _, dep := range deps {
			assert.Less(t, position[dep], position[service],
				"%s must be ordered after its dependency %s", service, dep)
		}
	}
}
