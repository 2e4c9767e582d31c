package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/config"
)

func TestEnsureDirectories_CreatesTree(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Pool = filepath.Join(root, "pool")
	cfg.Paths.Scratch = filepath.Join(root, "scratch")
	cfg.Paths.Appdata = filepath.Join(root, "appdata")
	cfg.Proxy.Enabled = true

	s := New(t.TempDir(), false)
	created, err := s.EnsureDirectories(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, created)

	for _, dir := range []string{
		filepath.Join(cfg.Paths.Appdata, "qbittorrent"),
		filepath.Join(cfg.Paths.Appdata, "radarr"),
		filepath.Join(cfg.Paths.Appdata, "traefik", "certs"),
		filepath.Join(cfg.Paths.Scratch, "downloads", "complete", "movies"),
		filepath.Join(cfg.Paths.Scratch, "downloads", "complete", "tv"),
		filepath.Join(cfg.Paths.Scratch, "downloads", "incomplete"),
		filepath.Join(cfg.Paths.Scratch, "postproc"),
		filepath.Join(cfg.Paths.Scratch, "transcode"),
		filepath.Join(cfg.Paths.Pool, "media", "movies"),
		filepath.Join(cfg.Paths.Pool, "media", "tv"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestEnsureDirectories_NoScratchFallsBackToPool(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Pool = filepath.Join(root, "pool")
	cfg.Paths.Appdata = filepath.Join(root, "appdata")

	s := New(t.TempDir(), false)
	_, err := s.EnsureDirectories(cfg)
	require.NoError(t, err)

	// Downloads live under pool/downloads when no scratch is configured.
	info, err := os.Stat(filepath.Join(cfg.Paths.Pool, "downloads", "complete"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureDirectories_SkipsDisabledServices(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Pool = filepath.Join(root, "pool")
	cfg.Paths.Appdata = filepath.Join(root, "appdata")
	cfg.Services.Jellyseerr.Enabled = false

	s := New(t.TempDir(), false)
	_, err := s.EnsureDirectories(cfg)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.Paths.Appdata, "jellyseerr"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureDirectories_PermissionErrorCarriesFix(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission checks do not apply")
	}

	root := t.TempDir()
	sealed := filepath.Join(root, "sealed")
	require.NoError(t, os.MkdirAll(sealed, 0o555))
	t.Cleanup(func() { _ = os.Chmod(sealed, 0o755) })

	cfg := config.Default()
	cfg.Paths.Pool = filepath.Join(sealed, "pool")
	cfg.Paths.Appdata = filepath.Join(root, "appdata")

	s := New(t.TempDir(), false)
	_, err := s.EnsureDirectories(cfg)
	require.Error(t, err)

	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.FixCmd, "sudo chown -R 1000:1000")
	assert.Contains(t, perr.FixCmd, "sudo chmod -R 775")
}
