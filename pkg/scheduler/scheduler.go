package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/clients"
	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// Configurator walks the managed services in dependency order, running
// each client's ensure or verify pass and turning the outcomes into
// stage events.
type Configurator struct {
	clients map[string]clients.Client
	logger  zerolog.Logger
}

// New builds a configurator over the given service clients. The map is
// normally clients.All; tests inject fakes.
func New(serviceClients map[string]clients.Client) *Configurator {
	return &Configurator{
		clients: serviceClients,
		logger:  log.WithComponent("scheduler"),
	}
}

// Ensure configures every enabled service in dependency order. When a
// service fails, everything downstream of it is skipped with a detail
// naming the blocking dependencies.
func (c *Configurator) Ensure(ctx context.Context, cfg *types.StackConfig) []types.StageEvent {
	var events []types.StageEvent
	failed := map[string]bool{}

	for _, name := range config.DependencyOrder {
		stage := "configure." + name
		if !enabled(cfg, name) {
			events = append(events, types.StageEvent{
				Stage: stage, Status: types.StageOK, Detail: "skipped (disabled)",
			})
			continue
		}

		if blocked := blockedBy(name, failed); len(blocked) > 0 {
			failed[name] = true
			detail := "skipped (dependency failed: " + strings.Join(blocked, ", ") + ")"
			events = append(events, types.StageEvent{
				Stage: stage, Status: types.StageFailed, Detail: detail,
			})
			c.logger.Warn().Str("service", name).Strs("blocked_by", blocked).
				Msg("skipping service with failed dependencies")
			continue
		}

		client, ok := c.clients[name]
		if !ok {
			// The pipeline is compose-only: the worker reconciles it
			// in-process, so ensure has nothing to do here.
			if name == "pipeline" {
				events = append(events, types.StageEvent{
					Stage: stage, Status: types.StageOK, Detail: "skipped (no ensure required)",
				})
			} else {
				failed[name] = true
				events = append(events, types.StageEvent{
					Stage: stage, Status: types.StageFailed, Detail: "unsupported service",
				})
			}
			continue
		}

		outcome := c.safeEnsure(ctx, client, cfg)
		status := types.StageOK
		if !outcome.Success {
			status = types.StageFailed
			failed[name] = true
			c.logger.Warn().Str("service", name).Str("detail", outcome.Detail).
				Msg("service failed to configure")
		}
		events = append(events, types.StageEvent{
			Stage: stage, Status: status, Detail: outcome.Detail,
		})
	}
	return events
}

// Verify checks every enabled service in the same order. Unlike Ensure
// it never skips downstream of a failure: the point of verification is
// the full health picture.
func (c *Configurator) Verify(ctx context.Context, cfg *types.StackConfig) []types.StageEvent {
	var events []types.StageEvent

	for _, name := range config.DependencyOrder {
		stage := "verify." + name
		if !enabled(cfg, name) {
			events = append(events, types.StageEvent{
				Stage: stage, Status: types.StageOK, Detail: "skipped (disabled)",
			})
			continue
		}

		client, ok := c.clients[name]
		if !ok {
			events = append(events, types.StageEvent{
				Stage: stage, Status: types.StageOK, Detail: "skipped (no client)",
			})
			continue
		}

		outcome := client.Verify(ctx, cfg)
		status := types.StageOK
		if !outcome.Success {
			status = types.StageFailed
		}
		events = append(events, types.StageEvent{
			Stage: stage, Status: status, Detail: outcome.Detail,
		})
	}
	return events
}

// safeEnsure converts a panicking client into a failed outcome so one
// bad service cannot take down the whole run.
func (c *Configurator) safeEnsure(ctx context.Context, client clients.Client, cfg *types.StackConfig) (outcome types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("service", client.Name()).Interface("panic", r).
				Msg("unhandled panic in ensure")
			outcome = types.Outcome{Detail: fmt.Sprintf("%v", r), Success: false}
		}
	}()
	return client.Ensure(ctx, cfg)
}

func enabled(cfg *types.StackConfig, name string) bool {
	svc, ok := cfg.Services.ByName(name)
	if !ok {
		return false
	}
	return svc.Enabled
}

func blockedBy(name string, failed map[string]bool) []string {
	var blocked []string
	for _, dep := range config.Dependencies[name] {
		if failed[dep] {
			blocked = append(blocked, dep)
		}
	}
	sort.Strings(blocked)
	return blocked
}
