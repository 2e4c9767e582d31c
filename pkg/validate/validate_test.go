package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/types"
)

func testValidator(cfg *types.StackConfig, runner execx.Runner) *Validator {
	v := New(config.NewTranslator(cfg.Paths), runner)
	v.portFree = func(int) bool { return true }
	v.lookPath = func(string) (string, error) { return "/usr/bin/docker", nil }
	return v
}

func validConfig(t *testing.T) *types.StackConfig {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.Pool = filepath.Join(root, "pool")
	cfg.Paths.Appdata = filepath.Join(root, "appdata")
	require.NoError(t, os.MkdirAll(cfg.Paths.Pool, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.Appdata, 0o755))
	return cfg
}

func TestRun_AllChecksPass(t *testing.T) {
	cfg := validConfig(t)
	result := testValidator(cfg, nil).Run(context.Background(), cfg)

	assert.True(t, result.OK)
	assert.Equal(t, "ok", result.Checks["paths.pool"])
	assert.Equal(t, "not_configured", result.Checks["paths.scratch"])
	assert.Equal(t, "ok", result.Checks["paths.appdata"])
	assert.Equal(t, "ok", result.Checks["ui.port"])
	assert.Equal(t, "ok", result.Checks["services.radarr.port"])
	assert.Equal(t, "optional", result.Checks["services.pipeline.port"])
	assert.Equal(t, "present", result.Checks["docker.cli"])
}

func TestRun_MissingPathCarriesRemediation(t *testing.T) {
	cfg := validConfig(t)
	cfg.Paths.Pool = filepath.Join(t.TempDir(), "nonexistent")

	result := testValidator(cfg, nil).Run(context.Background(), cfg)
	assert.False(t, result.OK)
	assert.Contains(t, result.Checks["paths.pool"], "missing (run: sudo mkdir -p")
	assert.Contains(t, result.Checks["paths.pool"], cfg.Paths.Pool)
}

func TestRun_UnconfiguredPoolFails(t *testing.T) {
	cfg := validConfig(t)
	cfg.Paths.Pool = ""

	result := testValidator(cfg, nil).Run(context.Background(), cfg)
	assert.False(t, result.OK)
	assert.Equal(t, "missing", result.Checks["paths.pool"])
}

func TestRun_NotDirectory(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "pool")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.Paths.Pool = file

	result := testValidator(cfg, nil).Run(context.Background(), cfg)
	assert.False(t, result.OK)
	assert.Equal(t, "not_directory", result.Checks["paths.pool"])
}

func TestRun_DisabledServicePortSkipped(t *testing.T) {
	cfg := validConfig(t)
	cfg.Services.Sonarr.Enabled = false

	result := testValidator(cfg, nil).Run(context.Background(), cfg)
	assert.Equal(t, "skipped", result.Checks["services.sonarr.port"])
}

func TestRun_BusyPortOwnedByStackContainer(t *testing.T) {
	cfg := validConfig(t)
	runner := execx.RunnerFunc(func(_ context.Context, cmd execx.Cmd) (execx.Result, error) {
		require.Equal(t, "docker", cmd.Name)
		require.Equal(t, "inspect", cmd.Args[0])
		if cmd.Args[1] == "radarr" {
			return execx.Result{Stdout: `{"7878/tcp":[{"HostIp":"0.0.0.0","HostPort":"7878"}]}`}, nil
		}
		return execx.Result{ExitCode: 1, Stderr: "No such object"}, nil
	})

	v := testValidator(cfg, runner)
	v.portFree = func(port int) bool { return port != 7878 && port != 8989 }

	result := v.Run(context.Background(), cfg)
	assert.Equal(t, "in_use_by_stack", result.Checks["services.radarr.port"])
	assert.Equal(t, "in_use", result.Checks["services.sonarr.port"])
	assert.False(t, result.OK)
}

func TestRun_ProxyPorts(t *testing.T) {
	cfg := validConfig(t)
	cfg.Proxy.Enabled = true
	cfg.Proxy.HTTPPort = 80

	result := testValidator(cfg, nil).Run(context.Background(), cfg)
	assert.Equal(t, "ok", result.Checks["proxy.http_port"])
	assert.Equal(t, "skipped", result.Checks["proxy.https_port"])

	cfg.Proxy.HTTPSPort = 443
	result = testValidator(cfg, nil).Run(context.Background(), cfg)
	assert.Equal(t, "ok", result.Checks["proxy.https_port"])
}

func TestRun_ProxyDisabledOmitsProxyChecks(t *testing.T) {
	cfg := validConfig(t)
	result := testValidator(cfg, nil).Run(context.Background(), cfg)
	_, present := result.Checks["proxy.http_port"]
	assert.False(t, present)
}

func TestCheckDocker_SocketOnly(t *testing.T) {
	cfg := validConfig(t)
	socket := filepath.Join(t.TempDir(), "docker.sock")
	require.NoError(t, os.WriteFile(socket, nil, 0o644))

	v := testValidator(cfg, nil)
	v.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	v.socketPath = socket

	result := v.Run(context.Background(), cfg)
	assert.Equal(t, "socket_only", result.Checks["docker.cli"])
	assert.True(t, result.OK)
}

func TestCheckDocker_MissingIsInformational(t *testing.T) {
	cfg := validConfig(t)
	v := testValidator(cfg, nil)
	v.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	v.socketPath = filepath.Join(t.TempDir(), "absent.sock")

	result := v.Run(context.Background(), cfg)
	assert.Equal(t, "missing", result.Checks["docker.cli"])
	assert.True(t, result.OK)
}
