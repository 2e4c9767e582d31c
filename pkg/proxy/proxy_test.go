package proxy

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/types"
)

func proxyConfig(t *testing.T) *types.StackConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Appdata = t.TempDir()
	cfg.Proxy.Enabled = true
	cfg.Proxy.HTTPSPort = 443
	cfg.Services.Radarr.ProxyURL = "https://radarr.lan"
	cfg.Services.Jellyfin.ProxyURL = "jellyfin.lan"
	return cfg
}

func newManager(cfg *types.StackConfig) *Manager {
	return New(config.NewTranslator(cfg.Paths))
}

func TestHostnames(t *testing.T) {
	cfg := proxyConfig(t)
	assert.Equal(t, []string{"jellyfin.lan", "radarr.lan"}, Hostnames(cfg))
}

func TestHostnames_FallbackWhenNoneConfigured(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, []string{defaultHostname}, Hostnames(cfg))
}

func TestHostnameOf(t *testing.T) {
	assert.Equal(t, "radarr.lan", hostnameOf("https://radarr.lan/path"))
	assert.Equal(t, "radarr.lan", hostnameOf("radarr.lan"))
	assert.Equal(t, "radarr.lan", hostnameOf(" radarr.lan "))
	assert.Empty(t, hostnameOf(""))
}

func TestEnsureAssets_Disabled(t *testing.T) {
	cfg := proxyConfig(t)
	cfg.Proxy.Enabled = false

	changed, detail, err := newManager(cfg).EnsureAssets(cfg)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "skipped (proxy disabled)", detail)
}

func TestEnsureAssets_HTTPSDisabled(t *testing.T) {
	cfg := proxyConfig(t)
	cfg.Proxy.HTTPSPort = 0

	changed, detail, err := newManager(cfg).EnsureAssets(cfg)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "skipped (https disabled)", detail)
}

func TestEnsureAssets_WritesCertificateAndTLSDocument(t *testing.T) {
	cfg := proxyConfig(t)

	changed, detail, err := newManager(cfg).EnsureAssets(cfg)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, detail, "jellyfin.lan, radarr.lan")

	certsDir := filepath.Join(cfg.Paths.Appdata, "traefik", "certs")
	raw, err := os.ReadFile(filepath.Join(certsDir, "local.crt"))
	require.NoError(t, err)
	block, _ := pem.Decode(raw)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"jellyfin.lan", "radarr.lan"}, cert.DNSNames)
	assert.Equal(t, "jellyfin.lan", cert.Subject.CommonName)

	keyInfo, err := os.Stat(filepath.Join(certsDir, "local.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())

	tls, err := os.ReadFile(filepath.Join(cfg.Paths.Appdata, "traefik", "tls.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(tls), "defaultCertificate")
}

func TestEnsureAssets_ReusesUnchangedCertificate(t *testing.T) {
	cfg := proxyConfig(t)
	m := newManager(cfg)

	_, _, err := m.EnsureAssets(cfg)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(cfg.Paths.Appdata, "traefik", "certs", "local.crt"))
	require.NoError(t, err)

	changed, _, err := m.EnsureAssets(cfg)
	require.NoError(t, err)
	assert.False(t, changed)
	after, err := os.ReadFile(filepath.Join(cfg.Paths.Appdata, "traefik", "certs", "local.crt"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEnsureAssets_RegeneratesOnHostnameChange(t *testing.T) {
	cfg := proxyConfig(t)
	m := newManager(cfg)

	_, _, err := m.EnsureAssets(cfg)
	require.NoError(t, err)

	cfg.Services.Sonarr.ProxyURL = "https://sonarr.lan"
	changed, _, err := m.EnsureAssets(cfg)
	require.NoError(t, err)
	assert.True(t, changed)

	raw, err := os.ReadFile(filepath.Join(cfg.Paths.Appdata, "traefik", "certs", "local.crt"))
	require.NoError(t, err)
	block, _ := pem.Decode(raw)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Contains(t, cert.DNSNames, "sonarr.lan")
}
