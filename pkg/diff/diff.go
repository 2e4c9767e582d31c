package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ereinha3/eznas/pkg/types"
)

// Change is a single leaf-level configuration edit.
type Change struct {
	Path             string   `json:"path"`
	OldValue         any      `json:"old_value"`
	NewValue         any      `json:"new_value"`
	AffectedServices []string `json:"affected_services"`
}

// Diff is the result of comparing two stack configs: the ordered change
// list plus the two service sets the apply runner acts on.
type Diff struct {
	Changes     []Change `json:"changes"`
	Restart     []string `json:"services_to_restart"`
	Reconfigure []string `json:"services_to_reconfigure"`
}

// HasChanges reports whether the configs differ at all.
func (d *Diff) HasChanges() bool { return len(d.Changes) > 0 }

// SummaryLines renders the diff for the run log and the CLI.
func (d *Diff) SummaryLines() []string {
	if !d.HasChanges() {
		return []string{"No changes detected"}
	}
	var lines []string
	for _, c := range d.Changes {
		lines = append(lines, fmt.Sprintf("%s: %s → %s",
			c.Path, formatValue(c.OldValue), formatValue(c.NewValue)))
	}
	if len(d.Restart) > 0 {
		lines = append(lines, "Services to restart: "+strings.Join(d.Restart, ", "))
	}
	if len(d.Reconfigure) > 0 {
		lines = append(lines, "Services to reconfigure: "+strings.Join(d.Reconfigure, ", "))
	}
	return lines
}

type impact struct {
	restart     []string
	reconfigure []string
}

var allServices = []string{
	"qbittorrent", "radarr", "sonarr", "prowlarr", "jellyfin", "jellyseerr", "pipeline",
}

// changeImpact maps config path prefixes to affected services, resolved
// by longest-prefix match. Restart means the container must be
// recreated (mounts, ports, env); reconfigure means a re-ensure over
// the API is enough.
var changeImpact = map[string]impact{
	"paths.pool":    {restart: allServices},
	"paths.scratch": {restart: []string{"qbittorrent", "pipeline"}},
	"paths.appdata": {restart: []string{"qbittorrent", "radarr", "sonarr", "prowlarr", "jellyfin", "jellyseerr"}},

	"services.qbittorrent.port": {restart: []string{"qbittorrent"}, reconfigure: []string{"radarr", "sonarr"}},
	"services.radarr.port":      {restart: []string{"radarr"}, reconfigure: []string{"prowlarr", "jellyseerr"}},
	"services.sonarr.port":      {restart: []string{"sonarr"}, reconfigure: []string{"prowlarr", "jellyseerr"}},
	"services.prowlarr.port":    {restart: []string{"prowlarr"}},
	"services.jellyfin.port":    {restart: []string{"jellyfin"}, reconfigure: []string{"jellyseerr"}},
	"services.jellyseerr.port":  {restart: []string{"jellyseerr"}},

	"services.qbittorrent.enabled": {restart: []string{"qbittorrent"}, reconfigure: []string{"radarr", "sonarr"}},
	"services.radarr.enabled":      {restart: []string{"radarr"}, reconfigure: []string{"prowlarr", "jellyseerr"}},
	"services.sonarr.enabled":      {restart: []string{"sonarr"}, reconfigure: []string{"prowlarr", "jellyseerr"}},
	"services.prowlarr.enabled":    {restart: []string{"prowlarr"}},
	"services.jellyfin.enabled":    {restart: []string{"jellyfin"}, reconfigure: []string{"jellyseerr"}},
	"services.jellyseerr.enabled":  {restart: []string{"jellyseerr"}},
	"services.pipeline.enabled":    {restart: []string{"pipeline"}},

	"services.qbittorrent.username":            {reconfigure: []string{"qbittorrent"}},
	"services.qbittorrent.password":            {reconfigure: []string{"qbittorrent"}},
	"services.qbittorrent.stop_after_download": {reconfigure: []string{"qbittorrent"}},
	"services.prowlarr.language_filter":        {reconfigure: []string{"prowlarr"}},

	"services.qbittorrent.proxy_url": {restart: []string{"qbittorrent"}},
	"services.radarr.proxy_url":      {restart: []string{"radarr"}},
	"services.sonarr.proxy_url":      {restart: []string{"sonarr"}},
	"services.prowlarr.proxy_url":    {restart: []string{"prowlarr"}},
	"services.jellyfin.proxy_url":    {restart: []string{"jellyfin"}},
	"services.jellyseerr.proxy_url":  {restart: []string{"jellyseerr"}},

	"download_policy": {reconfigure: []string{"qbittorrent", "radarr", "sonarr"}},
	"media_policy":    {reconfigure: []string{"pipeline"}},
	"quality":         {reconfigure: []string{"radarr", "sonarr"}},
	"proxy":           {restart: allServices},
	"runtime":         {restart: allServices},

	// The orchestrator restarts itself out of band.
	"ui.port": {},
}

// Compute compares two configs leaf by leaf and maps every change to
// the services it affects.
func Compute(current, desired *types.StackConfig) (*Diff, error) {
	oldLeaves, err := flattenConfig(current)
	if err != nil {
		return nil, fmt.Errorf("flattening current config: %w", err)
	}
	newLeaves, err := flattenConfig(desired)
	if err != nil {
		return nil, fmt.Errorf("flattening new config: %w", err)
	}

	paths := map[string]bool{}
	for p := range oldLeaves {
		paths[p] = true
	}
	for p := range newLeaves {
		paths[p] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	d := &Diff{}
	restart := map[string]bool{}
	reconfigure := map[string]bool{}

	for _, path := range sorted {
		oldVal, newVal := oldLeaves[path], newLeaves[path]
		if equalLeaf(oldVal, newVal) {
			continue
		}
		rule := resolveImpact(path)
		affected := map[string]bool{}
		for _, s := range rule.restart {
			restart[s] = true
			affected[s] = true
		}
		for _, s := range rule.reconfigure {
			reconfigure[s] = true
			affected[s] = true
		}
		d.Changes = append(d.Changes, Change{
			Path:             path,
			OldValue:         oldVal,
			NewValue:         newVal,
			AffectedServices: sortedKeys(affected),
		})
	}

	// Restart implies a full re-ensure cycle, so restarting services
	// drop out of the reconfigure set.
	for s := range restart {
		delete(reconfigure, s)
	}
	d.Restart = sortedKeys(restart)
	d.Reconfigure = sortedKeys(reconfigure)
	return d, nil
}

// flattenConfig reduces the config to dot-path → leaf value via its
// JSON form. Lists stay atomic so reordering reads as one change, not
// element noise.
func flattenConfig(cfg *types.StackConfig) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	out := map[string]any{}
	flatten(tree, "", out)
	return out, nil
}

func flatten(node map[string]any, prefix string, out map[string]any) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			flatten(child, path, out)
			continue
		}
		out[path] = value
	}
}

func equalLeaf(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

// resolveImpact walks the path from most to least specific so
// services.radarr.port beats a hypothetical services.radarr rule.
func resolveImpact(path string) impact {
	parts := strings.Split(path, ".")
	for i := len(parts); i > 0; i-- {
		candidate := strings.Join(parts[:i], ".")
		if rule, ok := changeImpact[candidate]; ok {
			return rule
		}
	}
	return impact{}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return fmt.Sprintf("%q", val)
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		if len(val) <= 3 {
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = formatValue(item)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		}
		return fmt.Sprintf("[%d items]", len(val))
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
