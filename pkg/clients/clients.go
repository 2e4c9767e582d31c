package clients

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
)

// Client reconciles one managed service. Ensure brings the live service
// into the state the config demands and is idempotent; Verify asserts the
// live state matches and never mutates. Failures are Outcome values, not
// errors, so the scheduler can decide which dependents to skip.
type Client interface {
	Name() string
	Ensure(ctx context.Context, cfg *types.StackConfig) types.Outcome
	Verify(ctx context.Context, cfg *types.StackConfig) types.Outcome
}

// Deps carries the shared collaborators every client needs.
type Deps struct {
	Store  *store.Store
	Paths  *config.Translator
	Runner execx.Runner
	HTTP   *http.Client
}

func (d Deps) httpClient() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (d Deps) runner() execx.Runner {
	if d.Runner != nil {
		return d.Runner
	}
	return execx.Local
}

// All returns every service client keyed by name. The pipeline has no
// client: it is reconciled in-process by the worker, not over HTTP.
func All(deps Deps) map[string]Client {
	return map[string]Client{
		"qbittorrent": NewQbittorrent(deps),
		"radarr":      NewRadarr(deps),
		"sonarr":      NewSonarr(deps),
		"prowlarr":    NewProwlarr(deps),
		"jellyfin":    NewJellyfin(deps),
		"jellyseerr":  NewJellyseerr(deps),
	}
}

// failure builds a failed outcome with a detail string.
func failure(detail string) types.Outcome {
	return types.Outcome{Detail: detail, Success: false}
}

// describeChanges folds per-step (changed, message) pairs into one
// aggregate, mirroring the detail strings the run log shows operators.
func describeChanges(changes []changeNote) (bool, string) {
	var messages []string
	changed := false
	for _, c := range changes {
		if c.changed {
			changed = true
		}
		if c.message != "" {
			messages = append(messages, c.message)
		}
	}
	return changed, strings.Join(messages, "; ")
}

type changeNote struct {
	changed bool
	message string
}
