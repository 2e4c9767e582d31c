package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

const (
	portProbeTimeout = 200 * time.Millisecond
	dockerSocketPath = "/var/run/docker.sock"
)

// Validator runs the pre-flight checks an apply depends on: usable
// paths, free ports, and a reachable docker.
type Validator struct {
	paths  *config.Translator
	runner execx.Runner
	logger zerolog.Logger

	// Seams for tests.
	portFree   func(port int) bool
	lookPath   func(name string) (string, error)
	socketPath string
}

// New builds a validator. A nil runner uses the local one.
func New(paths *config.Translator, runner execx.Runner) *Validator {
	if runner == nil {
		runner = execx.Local
	}
	return &Validator{
		paths:      paths,
		runner:     runner,
		logger:     log.WithComponent("validate"),
		portFree:   portFree,
		lookPath:   exec.LookPath,
		socketPath: dockerSocketPath,
	}
}

// Run executes every check and reports them keyed by config path. Any
// failing non-informational check flips OK to false; each failure value
// carries the exact remediation where one exists.
func (v *Validator) Run(ctx context.Context, cfg *types.StackConfig) types.ValidationResult {
	result := types.ValidationResult{OK: true, Checks: map[string]string{}}

	v.checkPaths(cfg, &result)
	v.checkUIPort(cfg, &result)
	v.checkProxyPorts(ctx, cfg, &result)
	v.checkServicePorts(ctx, cfg, &result)
	v.checkDocker(&result)

	return result
}

func (v *Validator) checkPaths(cfg *types.StackConfig, result *types.ValidationResult) {
	uid, gid := cfg.Runtime.UserID, cfg.Runtime.GroupID
	entries := []struct {
		label    string
		path     string
		optional bool
	}{
		{"paths.pool", cfg.Paths.Pool, false},
		{"paths.scratch", cfg.Paths.Scratch, true},
		{"paths.appdata", cfg.Paths.Appdata, false},
	}

	for _, entry := range entries {
		if entry.path == "" {
			if entry.optional {
				result.Checks[entry.label] = "not_configured"
			} else {
				result.Checks[entry.label] = "missing"
				result.OK = false
			}
			continue
		}

		probe := v.paths.ToContainer(entry.path)
		info, err := os.Stat(probe)
		switch {
		case err != nil:
			result.Checks[entry.label] = fmt.Sprintf("missing (run: sudo mkdir -p %s)", entry.path)
			result.OK = false
		case !info.IsDir():
			result.Checks[entry.label] = "not_directory"
			result.OK = false
		case !writable(probe):
			result.Checks[entry.label] = fmt.Sprintf(
				"not_writable (run: sudo chown -R %d:%d %s && sudo chmod -R 775 %s)",
				uid, gid, entry.path, entry.path)
			result.OK = false
		default:
			result.Checks[entry.label] = "ok"
		}
	}
}

// checkUIPort tolerates the orchestrator's own listener: validation
// always runs while the UI is serving, so its port being busy is not a
// conflict.
func (v *Validator) checkUIPort(cfg *types.StackConfig, result *types.ValidationResult) {
	port := cfg.UI.Port
	if v.portFree(port) || v.isOwnPort(port) {
		result.Checks["ui.port"] = "ok"
		return
	}
	result.Checks["ui.port"] = "in_use"
	result.OK = false
}

func (v *Validator) isOwnPort(port int) bool {
	if env := os.Getenv("ORCH_UI_PORT"); env != "" {
		if p, err := strconv.Atoi(env); err == nil && p == port {
			return true
		}
	}
	return port == 8443
}

func (v *Validator) checkProxyPorts(ctx context.Context, cfg *types.StackConfig, result *types.ValidationResult) {
	if !cfg.Proxy.Enabled {
		return
	}

	v.checkPublishedPort(ctx, result, "proxy.http_port", "traefik", cfg.Proxy.HTTPPort)

	if cfg.Proxy.HTTPSPort == 0 {
		result.Checks["proxy.https_port"] = "skipped"
		return
	}
	v.checkPublishedPort(ctx, result, "proxy.https_port", "traefik", cfg.Proxy.HTTPSPort)
}

func (v *Validator) checkServicePorts(ctx context.Context, cfg *types.StackConfig, result *types.ValidationResult) {
	for _, name := range config.DependencyOrder {
		svc, ok := cfg.Services.ByName(name)
		if !ok {
			continue
		}
		key := "services." + name + ".port"
		switch {
		case !svc.Enabled:
			result.Checks[key] = "skipped"
		case svc.Port == 0 && name == "pipeline":
			result.Checks[key] = "optional"
		case svc.Port == 0:
			result.Checks[key] = "not_set"
			result.OK = false
		default:
			v.checkPublishedPort(ctx, result, key, config.ContainerNames[name], svc.Port)
		}
	}
}

// checkPublishedPort marks a busy port as in_use_by_stack when the
// expected container already publishes it, which an apply handles by
// recreating the container rather than failing.
func (v *Validator) checkPublishedPort(ctx context.Context, result *types.ValidationResult, key, container string, port int) {
	switch {
	case v.portFree(port):
		result.Checks[key] = "ok"
	case v.portOwnedByContainer(ctx, container, port):
		result.Checks[key] = "in_use_by_stack"
	default:
		result.Checks[key] = "in_use"
		result.OK = false
	}
}

func (v *Validator) portOwnedByContainer(ctx context.Context, container string, port int) bool {
	res, err := v.runner.Run(ctx, execx.Cmd{
		Name:    "docker",
		Args:    []string{"inspect", container, "--format", "{{json .NetworkSettings.Ports}}"},
		Timeout: 10 * time.Second,
	})
	if err != nil || !res.OK() {
		return false
	}

	var published map[string][]struct {
		HostPort string `json:"HostPort"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &published); err != nil {
		return false
	}
	for _, bindings := range published {
		for _, binding := range bindings {
			if p, err := strconv.Atoi(binding.HostPort); err == nil && p == port {
				return true
			}
		}
	}
	return false
}

// checkDocker is informational: a missing CLI with a live socket still
// works through the API, and actual docker operations fail with their
// own clear errors.
func (v *Validator) checkDocker(result *types.ValidationResult) {
	if _, err := v.lookPath("docker"); err == nil {
		result.Checks["docker.cli"] = "present"
		return
	}
	if _, err := os.Stat(v.socketPath); err == nil {
		result.Checks["docker.cli"] = "socket_only"
		return
	}
	result.Checks["docker.cli"] = "missing"
}

func portFree(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), portProbeTimeout)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

func writable(path string) bool {
	return unix.Access(path, unix.W_OK|unix.X_OK) == nil
}
