package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/log"
)

// Dev containers are stopped by fixed name so the check works whether the
// orchestrator runs on the host or inside its own container.
const devSuffix = "-dev"

const (
	upTimeout   = 5 * time.Minute
	downTimeout = 2 * time.Minute
	cmdTimeout  = 30 * time.Second
)

// Driver wraps the docker compose CLI for the generated bundle. Every
// invocation runs in the compose file's directory so the adjacent .env
// is picked up, and carries COMPOSE_PROJECT_NAME.
type Driver struct {
	composePath string
	projectName string
	runner      execx.Runner
	logger      zerolog.Logger
}

// New builds a driver for the compose file at composePath.
func New(composePath string, runner execx.Runner) *Driver {
	if runner == nil {
		runner = execx.Local
	}
	return &Driver{
		composePath: composePath,
		projectName: config.ComposeProjectName,
		runner:      runner,
		logger:      log.WithComponent("compose"),
	}
}

// Up brings the stack up detached, removing orphaned containers from
// earlier configurations. Detail carries stdout on success and stderr on
// failure.
func (d *Driver) Up(ctx context.Context) (bool, string) {
	return d.compose(ctx, upTimeout, "up", "-d", "--remove-orphans")
}

// Down stops and removes the stack's containers.
func (d *Driver) Down(ctx context.Context) (bool, string) {
	return d.compose(ctx, downTimeout, "down")
}

func (d *Driver) compose(ctx context.Context, timeout time.Duration, args ...string) (bool, string) {
	cmd := execx.Cmd{
		Name: "docker",
		Args: append([]string{
			"compose",
			"-f", d.composePath,
			"--project-name", d.projectName,
		}, args...),
		Dir:     filepath.Dir(d.composePath),
		Env:     []string{"COMPOSE_PROJECT_NAME=" + d.projectName},
		Timeout: timeout,
	}
	d.logger.Debug().Str("command", cmd.CommandLine()).Msg("running compose")

	res, err := d.runner.Run(ctx, cmd)
	if err != nil {
		return false, err.Error()
	}
	if !res.OK() {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = "failed"
		}
		return false, detail
	}
	detail := strings.TrimSpace(res.Stdout)
	if detail == "" {
		detail = "ok"
	}
	return true, detail
}

// StopConflictingDevServices stops development containers whose names
// collide with services about to start (<service>-dev). Development
// stacks bind the same host ports, so a leftover dev container makes
// compose up fail. Returns the services whose dev containers were
// stopped.
func StopConflictingDevServices(ctx context.Context, runner execx.Runner, enabled []string) (bool, string, []string) {
	if runner == nil {
		runner = execx.Local
	}
	logger := log.WithComponent("compose")

	if len(enabled) == 0 {
		return true, "no services to check", nil
	}

	type target struct {
		service   string
		container string
	}
	var running []target
	for _, service := range enabled {
		if _, ok := config.ContainerNames[service]; !ok {
			continue
		}
		container := service + devSuffix
		if containerRunning(ctx, runner, container) {
			running = append(running, target{service: service, container: container})
		}
	}
	if len(running) == 0 {
		return true, "no conflicting dev services running", nil
	}

	var stopped []string
	for _, t := range running {
		res, err := runner.Run(ctx, execx.Cmd{
			Name:    "docker",
			Args:    []string{"stop", "--time", "10", t.container},
			Timeout: cmdTimeout,
		})
		if err == nil && res.OK() {
			stopped = append(stopped, t.service)
			continue
		}
		// A hung container ignores stop; kill is the fallback.
		res, err = runner.Run(ctx, execx.Cmd{
			Name:    "docker",
			Args:    []string{"kill", t.container},
			Timeout: cmdTimeout,
		})
		if err == nil && res.OK() {
			stopped = append(stopped, t.service)
			continue
		}
		logger.Warn().Str("container", t.container).Msg("failed to stop dev container")
	}

	if len(stopped) == 0 {
		return false, "failed to stop any dev services", nil
	}

	// Give the kernel a moment to release the ports, then re-check.
	sleepCtx(ctx, time.Second)
	var stillRunning []string
	for _, t := range running {
		if contains(stopped, t.service) && containerRunning(ctx, runner, t.container) {
			stillRunning = append(stillRunning, t.service)
		}
	}

	detail := fmt.Sprintf("stopped %d dev service(s): %s", len(stopped), strings.Join(stopped, ", "))
	if len(stillRunning) > 0 {
		detail += fmt.Sprintf(" (warning: %s may still be running)", strings.Join(stillRunning, ", "))
	}
	return true, detail, stopped
}

func containerRunning(ctx context.Context, runner execx.Runner, name string) bool {
	res, err := runner.Run(ctx, execx.Cmd{
		Name:    "docker",
		Args:    []string{"ps", "--format", "{{.Names}}", "--filter", "name=^" + name + "$"},
		Timeout: cmdTimeout,
	})
	return err == nil && res.OK() && strings.TrimSpace(res.Stdout) != ""
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
