package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ereinha3/eznas/pkg/types"
)

// Fixed mount points inside the orchestrator container.
const (
	mountAppdata = "/appdata"
	mountData    = "/data"
	mountScratch = "/scratch"
	mountHost    = "/host"
)

// Translator rewrites host paths from the stack document into paths the
// orchestrator process can reach. Outside a container it is the identity.
// The mapping is decided once at construction, not per call.
type Translator struct {
	paths types.PathConfig

	inContainer bool
	hostMount   bool
	poolDst     string
	scratchDst  string
	appdataDst  string
}

// NewTranslator builds a translator for the given host roots. It inspects
// the fixed container mount points and the ORCH_PATH_* overrides.
func NewTranslator(paths types.PathConfig) *Translator {
	t := &Translator{paths: paths}

	t.inContainer = dirExists(mountAppdata) || os.Getenv("ORCH_ROOT") == "/config"
	if !t.inContainer {
		return t
	}
	t.hostMount = dirExists(mountHost)

	t.poolDst = mountFor("ORCH_PATH_POOL", mountData)
	t.scratchDst = mountFor("ORCH_PATH_SCRATCH", mountScratch)
	t.appdataDst = mountFor("ORCH_PATH_APPDATA", mountAppdata)
	return t
}

func mountFor(env, fallback string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if dirExists(fallback) {
		return fallback
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ToContainer translates a host path into its reachable equivalent.
// The /host bind mount wins when present; otherwise the path is rebased
// onto the matching appdata/pool/scratch mount. Unrecognized paths are
// returned unchanged.
func (t *Translator) ToContainer(hostPath string) string {
	if !t.inContainer {
		return hostPath
	}
	if t.hostMount {
		return filepath.Join(mountHost, strings.TrimPrefix(hostPath, "/"))
	}
	if p, ok := rebase(hostPath, t.paths.Appdata, t.appdataDst); ok {
		return p
	}
	if p, ok := rebase(hostPath, t.paths.Pool, t.poolDst); ok {
		return p
	}
	if p, ok := rebase(hostPath, t.paths.Scratch, t.scratchDst); ok {
		return p
	}
	return hostPath
}

func rebase(path, prefix, dst string) (string, bool) {
	if prefix == "" || dst == "" || !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
	if rel == "" {
		return dst, true
	}
	return filepath.Join(dst, rel), true
}

// ServiceConfigDir returns the reachable appdata directory for a service.
func (t *Translator) ServiceConfigDir(service string) string {
	return t.ToContainer(filepath.Join(t.paths.Appdata, service))
}
