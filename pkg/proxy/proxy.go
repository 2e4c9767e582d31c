package proxy

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

const (
	certKeyBits  = 4096
	certValidity = 825 * 24 * time.Hour

	// defaultHostname covers installs where no service declares a
	// proxy_url yet.
	defaultHostname = "nas-orchestrator.local"
)

// tlsDocument tells traefik where the stack certificate lives inside
// its dynamic-config mount.
const tlsDocument = `tls:
  certificates:
    - certFile: /etc/traefik/dynamic/certs/local.crt
      keyFile: /etc/traefik/dynamic/certs/local.key
  stores:
    default:
      defaultCertificate:
        certFile: /etc/traefik/dynamic/certs/local.crt
        keyFile: /etc/traefik/dynamic/certs/local.key
`

// Manager maintains the traefik TLS assets under appdata/traefik.
type Manager struct {
	paths  *config.Translator
	logger zerolog.Logger
}

// New builds a proxy asset manager.
func New(paths *config.Translator) *Manager {
	return &Manager{paths: paths, logger: log.WithComponent("proxy")}
}

type certMetadata struct {
	Hostnames []string `json:"hostnames"`
}

// EnsureAssets makes sure a self-signed certificate covering the
// configured proxy hostnames exists, along with the traefik TLS
// document. The certificate is reused across runs until the hostname
// set changes.
func (m *Manager) EnsureAssets(cfg *types.StackConfig) (bool, string, error) {
	if !cfg.Proxy.Enabled {
		return false, "skipped (proxy disabled)", nil
	}
	if cfg.Proxy.HTTPSPort == 0 {
		return false, "skipped (https disabled)", nil
	}

	traefikDir := m.paths.ToContainer(filepath.Join(cfg.Paths.Appdata, "traefik"))
	certsDir := filepath.Join(traefikDir, "certs")
	if err := os.MkdirAll(certsDir, 0o755); err != nil {
		return false, "", fmt.Errorf("creating traefik dirs: %w", err)
	}

	hostnames := Hostnames(cfg)
	changed := false

	certChanged, err := m.ensureCertificate(certsDir, hostnames)
	if err != nil {
		return false, "", err
	}
	changed = changed || certChanged

	tlsChanged, err := ensureTLSDocument(filepath.Join(traefikDir, "tls.yml"))
	if err != nil {
		return false, "", err
	}
	changed = changed || tlsChanged

	return changed, "tls assets ready (" + strings.Join(hostnames, ", ") + ")", nil
}

// Hostnames collects the distinct hostnames from every service's
// proxy_url, sorted, with a stable fallback when none are set.
func Hostnames(cfg *types.StackConfig) []string {
	set := map[string]bool{}
	for _, name := range config.DependencyOrder {
		svc, ok := cfg.Services.ByName(name)
		if !ok {
			continue
		}
		if host := hostnameOf(svc.ProxyURL); host != "" {
			set[host] = true
		}
	}
	if len(set) == 0 {
		return []string{defaultHostname}
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// hostnameOf extracts the host component, tolerating bare hostnames
// without a scheme.
func hostnameOf(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return parsed.Hostname()
}

func (m *Manager) ensureCertificate(certsDir string, hostnames []string) (bool, error) {
	certPath := filepath.Join(certsDir, "local.crt")
	keyPath := filepath.Join(certsDir, "local.key")
	metaPath := filepath.Join(certsDir, "metadata.json")

	if fileExists(certPath) && fileExists(keyPath) {
		if raw, err := os.ReadFile(metaPath); err == nil {
			var meta certMetadata
			if json.Unmarshal(raw, &meta) == nil && equalStrings(meta.Hostnames, hostnames) {
				return false, nil
			}
		}
	}

	m.logger.Info().Strs("hostnames", hostnames).Msg("generating self-signed certificate")

	key, err := rsa.GenerateKey(rand.Reader, certKeyBits)
	if err != nil {
		return false, fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return false, fmt.Errorf("generating serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hostnames[0]},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              hostnames,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return false, fmt.Errorf("creating certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	meta, err := json.MarshalIndent(certMetadata{Hostnames: hostnames}, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encoding metadata: %w", err)
	}

	if err := renameio.WriteFile(certPath, certPEM, 0o644); err != nil {
		return false, fmt.Errorf("writing certificate: %w", err)
	}
	if err := renameio.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return false, fmt.Errorf("writing key: %w", err)
	}
	if err := renameio.WriteFile(metaPath, meta, 0o644); err != nil {
		return false, fmt.Errorf("writing metadata: %w", err)
	}
	return true, nil
}

func ensureTLSDocument(path string) (bool, error) {
	if raw, err := os.ReadFile(path); err == nil && string(raw) == tlsDocument {
		return false, nil
	}
	if err := renameio.WriteFile(path, []byte(tlsDocument), 0o644); err != nil {
		return false, fmt.Errorf("writing tls.yml: %w", err)
	}
	return true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
