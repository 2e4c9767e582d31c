package apply

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/compose"
	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/diff"
	"github.com/ereinha3/eznas/pkg/events"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/health"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/metrics"
	"github.com/ereinha3/eznas/pkg/proxy"
	"github.com/ereinha3/eznas/pkg/render"
	"github.com/ereinha3/eznas/pkg/scheduler"
	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
	"github.com/ereinha3/eznas/pkg/validate"
)

// diffDetailCap bounds how many summary lines land in the diff stage
// detail before eliding the rest.
const diffDetailCap = 10

// Runner drives one converge run end to end: diff, preflight,
// filesystem and proxy preparation, render, deploy, per-service
// configuration and verification. Every stage appends to the persisted
// run record and, when a broker is attached, to the live event stream.
type Runner struct {
	store    *store.Store
	renderer *render.Renderer
	services *scheduler.Configurator
	broker   *events.Broker
	runner   execx.Runner
	logger   zerolog.Logger

	// Stage seams; tests swap these to avoid real sockets and certs.
	validateFn func(ctx context.Context, cfg *types.StackConfig) types.ValidationResult
	proxyFn    func(cfg *types.StackConfig) (bool, string, error)
	waitFn     func(ctx context.Context, service string, port int) (bool, string)
}

// New wires a runner over the store. The broker may be nil; a nil exec
// runner means real subprocesses.
func New(st *store.Store, renderer *render.Renderer, services *scheduler.Configurator,
	broker *events.Broker, runner execx.Runner) *Runner {
	if runner == nil {
		runner = execx.Local
	}
	r := &Runner{
		store:    st,
		renderer: renderer,
		services: services,
		broker:   broker,
		runner:   runner,
		logger:   log.WithComponent("apply"),
	}
	r.validateFn = func(ctx context.Context, cfg *types.StackConfig) types.ValidationResult {
		return validate.New(config.NewTranslator(cfg.Paths), r.runner).Run(ctx, cfg)
	}
	r.proxyFn = func(cfg *types.StackConfig) (bool, string, error) {
		return proxy.New(config.NewTranslator(cfg.Paths)).EnsureAssets(cfg)
	}
	r.waitFn = waitForPort
	return r
}

// Preview diffs the proposed config against the saved one without
// applying anything. A missing saved config yields an empty diff.
func (r *Runner) Preview(desired *types.StackConfig) (*diff.Diff, error) {
	current, err := r.store.LoadStack()
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return &diff.Diff{}, nil
		}
		return nil, err
	}
	return diff.Compute(current, desired)
}

// run carries the mutable state of one apply pass.
type run struct {
	id     string
	events []types.StageEvent
	timers map[string]*metrics.Timer
}

// Run executes one apply end to end and returns the terminal status with
// the full event list. The run record is persisted incrementally, so
// readers polling the store see stages as they land.
func (r *Runner) Run(ctx context.Context, runID string, desired *types.StackConfig) (bool, []types.StageEvent) {
	rr := &run{id: runID, timers: make(map[string]*metrics.Timer)}
	if err := r.store.StartRun(runID); err != nil {
		r.logger.Error().Err(err).Str("run_id", runID).Msg("run record creation failed")
	}

	// Stage 1: advisory diff. Never fails the run.
	if d, err := r.Preview(desired); err != nil {
		r.record(rr, "diff", types.StageOK, fmt.Sprintf("diff unavailable: %v", err))
	} else {
		r.record(rr, "diff", types.StageOK, diffDetail(d))
	}

	// Stage 2: preflight validation.
	r.record(rr, "validate", types.StageStarted, "")
	validation := r.validateFn(ctx, desired)
	status := types.StageOK
	if !validation.OK {
		status = types.StageFailed
	}
	r.record(rr, "validate", status, checksSummary(validation))
	if !validation.OK {
		return r.finish(rr, false, "Validation failed")
	}

	// Stage 3: directory tree with remediation on permission errors.
	created, err := r.store.EnsureDirectories(desired)
	if err != nil {
		r.record(rr, "prepare.paths", types.StageFailed, err.Error())
		return r.finish(rr, false, "Directory permissions error")
	}
	detail := "directories ready"
	if len(created) > 0 {
		detail = strings.Join(created, ", ")
	}
	r.record(rr, "prepare.paths", types.StageOK, detail)

	// Stage 4: TLS assets for the reverse proxy.
	if _, proxyDetail, err := r.proxyFn(desired); err != nil {
		r.record(rr, "prepare.proxy", types.StageFailed, err.Error())
		return r.finish(rr, false, "Proxy preparation failed")
	} else {
		r.record(rr, "prepare.proxy", types.StageOK, proxyDetail)
	}

	// Stage 5: harmonize the secrets section with the config.
	secretsDetail, secretsBefore, err := r.ensureSecrets(desired)
	if err != nil {
		r.record(rr, "prepare.secrets", types.StageFailed, err.Error())
		return r.finish(rr, false, "Secrets preparation failed")
	}
	r.record(rr, "prepare.secrets", types.StageOK, secretsDetail)

	// Stage 6: render the compose bundle.
	r.record(rr, "render", types.StageStarted, "")
	secrets, _ := r.store.LoadSecrets()
	result, err := r.renderer.Render(desired, secrets, r.store.GeneratedDir())
	if err != nil {
		r.record(rr, "render", types.StageFailed, err.Error())
		return r.finish(rr, false, "Render failed")
	}
	r.record(rr, "render", types.StageOK, renderDetail(result))

	// Stage 7: the proposed config becomes the authoritative copy.
	if err := r.store.SaveStack(desired); err != nil {
		r.record(rr, "persist", types.StageFailed, err.Error())
		return r.finish(rr, false, "Persist failed")
	}
	r.record(rr, "persist", types.StageOK, r.store.StackPath())

	// Stage 8: best-effort stop of conflicting dev containers.
	if enabled := enabledServices(desired); len(enabled) > 0 {
		r.record(rr, "prepare.conflicts", types.StageStarted, "")
		ok, conflictDetail, _ := compose.StopConflictingDevServices(ctx, r.runner, enabled)
		status := types.StageOK
		if !ok {
			status = types.StageWarning
		}
		r.record(rr, "prepare.conflicts", status, conflictDetail)
	}

	// Stage 9: bring the stack up.
	r.record(rr, "deploy.compose", types.StageStarted, "")
	driver := compose.New(result.ComposePath, r.runner)
	upOK, upDetail := driver.Up(ctx)
	status = types.StageOK
	if !upOK {
		status = types.StageFailed
	}
	r.record(rr, "deploy.compose", status, upDetail)
	if !upOK {
		return r.finish(rr, false, "Compose up failed")
	}

	// Stage 10: readiness waits, one per enabled published service.
	if !r.waitForServices(ctx, rr, desired) {
		return r.finish(rr, false, "Service readiness failed")
	}

	// Stage 11: per-service configuration.
	var configured []string
	for _, event := range r.services.Ensure(ctx, desired) {
		r.record(rr, event.Stage, event.Status, event.Detail)
		if event.Status == types.StageOK && !strings.HasPrefix(event.Detail, "skipped") {
			configured = append(configured, strings.TrimPrefix(event.Stage, "configure."))
		}
	}

	// Stage 12: re-render secret files if configuration minted any.
	if latest, err := r.store.LoadSecrets(); err == nil && !secretsEqual(secretsBefore, latest) {
		_, files, err := r.renderer.RenderSecrets(desired, latest, r.store.GeneratedDir())
		if err != nil {
			r.record(rr, "render.secrets", types.StageFailed, err.Error())
			return r.finish(rr, false, "Secret render failed")
		}
		r.record(rr, "render.secrets", types.StageOK,
			fmt.Sprintf("%d secrets refreshed", len(files)))
	}

	// Stage 13: verification. A failed verify fails the run but every
	// service is still checked.
	verifyOK := true
	var verified []string
	for _, event := range r.services.Verify(ctx, desired) {
		r.record(rr, event.Stage, event.Status, event.Detail)
		if event.Status == types.StageFailed {
			verifyOK = false
		}
		if event.Status == types.StageOK && !strings.HasPrefix(event.Detail, "skipped") {
			verified = append(verified, strings.TrimPrefix(event.Stage, "verify."))
		}
	}
	if !verifyOK {
		return r.finish(rr, false, "Verification failed")
	}

	summary := "Rendered compose bundle"
	if len(configured) > 0 {
		summary += "; configured " + strings.Join(configured, ", ")
	}
	if len(verified) > 0 {
		summary += "; verified " + strings.Join(verified, ", ")
	}
	return r.finish(rr, true, summary)
}

func (r *Runner) waitForServices(ctx context.Context, rr *run, cfg *types.StackConfig) bool {
	for _, name := range config.DependencyOrder {
		svc, ok := cfg.Services.ByName(name)
		if !ok || !svc.Enabled || svc.Port == 0 {
			continue
		}
		port := config.InternalPorts[name]
		if port == 0 {
			port = svc.Port
		}
		stage := "wait." + name
		r.record(rr, stage, types.StageStarted, fmt.Sprintf("container=%s:%d", name, port))
		ok, detail := r.waitFn(ctx, name, port)
		status := types.StageOK
		if !ok {
			status = types.StageFailed
		}
		r.record(rr, stage, status, detail)
		if !ok {
			return false
		}
	}
	return true
}

// record appends a stage event everywhere it needs to land: the run
// record, the live broker, the log, and the stage metrics.
func (r *Runner) record(rr *run, stage string, status types.StageStatus, detail string) {
	event := types.StageEvent{Stage: stage, Status: status, Detail: detail}
	rr.events = append(rr.events, event)
	if err := r.store.AppendRunEvent(rr.id, event); err != nil {
		r.logger.Error().Err(err).Str("stage", stage).Msg("run event append failed")
	}
	if r.broker != nil {
		r.broker.Publish(&events.Event{
			RunID:     rr.id,
			Stage:     stage,
			Status:    status,
			Detail:    detail,
			Timestamp: time.Now(),
		})
	}

	switch status {
	case types.StageStarted:
		rr.timers[stage] = metrics.NewTimer()
	default:
		if timer, ok := rr.timers[stage]; ok {
			timer.ObserveDurationVec(metrics.StageDuration, stage)
			delete(rr.timers, stage)
		}
	}
	if status == types.StageFailed {
		metrics.StageFailuresTotal.WithLabelValues(stage).Inc()
		r.logger.Warn().Str("stage", stage).Str("detail", detail).Msg("stage failed")
	} else {
		r.logger.Debug().Str("stage", stage).Str("status", string(status)).Msg("stage recorded")
	}
}

func (r *Runner) finish(rr *run, ok bool, summary string) (bool, []types.StageEvent) {
	if err := r.store.FinalizeRun(rr.id, ok, summary); err != nil {
		r.logger.Error().Err(err).Str("run_id", rr.id).Msg("run finalize failed")
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	metrics.ApplyRunsTotal.WithLabelValues(result).Inc()
	if r.broker != nil {
		status := types.StageOK
		if !ok {
			status = types.StageFailed
		}
		r.broker.Publish(&events.Event{
			RunID:     rr.id,
			Stage:     "run",
			Status:    status,
			Detail:    summary,
			Timestamp: time.Now(),
		})
	}
	r.logger.Info().Str("run_id", rr.id).Bool("ok", ok).Str("summary", summary).Msg("run finished")
	return ok, rr.events
}

func waitForPort(ctx context.Context, service string, port int) (bool, string) {
	checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", service, port))
	if err := health.WaitFor(ctx, checker, health.DefaultWaitConfig()); err != nil {
		return false, err.Error()
	}
	return true, "ready"
}

func enabledServices(cfg *types.StackConfig) []string {
	var enabled []string
	for _, name := range config.DependencyOrder {
		if name == "pipeline" {
			continue
		}
		if svc, ok := cfg.Services.ByName(name); ok && svc.Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

func diffDetail(d *diff.Diff) string {
	lines := d.SummaryLines()
	if len(lines) > diffDetailCap {
		lines = append(lines[:diffDetailCap], fmt.Sprintf("(+%d more)", len(lines)-diffDetailCap))
	}
	return strings.Join(lines, "; ")
}

func checksSummary(v types.ValidationResult) string {
	parts := make([]string, 0, len(v.Checks))
	for _, key := range sortedKeys(v.Checks) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, v.Checks[key]))
	}
	return strings.Join(parts, ", ")
}

func renderDetail(result *types.RenderResult) string {
	parts := []string{filepath.Base(result.ComposePath), filepath.Base(result.EnvPath)}
	if len(result.SecretFiles) > 0 {
		parts = append(parts, fmt.Sprintf("%d secrets", len(result.SecretFiles)))
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
