package clients

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/health"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// Categories in the indexer capability taxonomy.
const (
	torznabCategoryMovies = 2000
	torznabCategoryTV     = 5000
)

// Prowlarr provisions the indexer aggregator: forms auth, one
// "application" linkage per enabled library manager, and a one-shot
// auto-population of public indexers.
type Prowlarr struct {
	deps    Deps
	baseURL string
	logger  zerolog.Logger
}

// NewProwlarr builds the indexer aggregator client.
func NewProwlarr(deps Deps) *Prowlarr {
	return &Prowlarr{
		deps: deps,
		baseURL: fmt.Sprintf("http://prowlarr:%d%s",
			config.InternalPorts["prowlarr"], config.APIPrefix["prowlarr"]),
		logger: log.WithService("prowlarr"),
	}
}

// Name implements Client.
func (p *Prowlarr) Name() string { return "prowlarr" }

// Ensure implements Client.
func (p *Prowlarr) Ensure(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	var details []string
	changed := false

	configDir := p.deps.Paths.ServiceConfigDir("prowlarr")
	if err := os.MkdirAll(configDir, 0o775); err != nil {
		return failure(fmt.Sprintf("creating config dir: %v", err))
	}

	apiKey, bootMsg, ok := bootstrapArrAPIKey(ctx, p.deps.Store, "prowlarr", configDir)
	if !ok {
		return failure(bootMsg)
	}
	if bootMsg != "" {
		details = append(details, bootMsg)
	}

	// The linkages need the library managers' keys; without them there
	// is nothing to link yet and the scheduler should see a failure.
	radarrKey, _ := p.deps.Store.GetSecret("radarr", "api_key")
	sonarrKey, _ := p.deps.Store.GetSecret("sonarr", "api_key")
	if cfg.Services.Radarr.Enabled && radarrKey == "" {
		return failure("waiting for Radarr API key")
	}
	if cfg.Services.Sonarr.Enabled && sonarrKey == "" {
		return failure("waiting for Sonarr API key")
	}

	checker := health.NewHTTPChecker(p.baseURL + "/system/status")
	checker.Client = p.deps.httpClient()
	if err := health.WaitFor(ctx, checker, health.DefaultWaitConfig()); err != nil {
		return failure(fmt.Sprintf("Prowlarr not ready (%v)", err))
	}

	api := newArrAPI("prowlarr", p.baseURL, apiKey, p.deps.httpClient())

	var status map[string]any
	if err := api.GetJSON(ctx, "/system/status", &status); err != nil {
		return failure(fmt.Sprintf("Prowlarr unreachable at %s: %v", p.baseURL, err))
	}
	details = append(details, onlineDetail(status))

	username, password, err := uiCredentials(p.deps.Store, cfg, "prowlarr")
	if err != nil {
		return failure(fmt.Sprintf("resolving UI credentials: %v", err))
	}
	authChanged, authMsg, err := ensureFormsAuth(ctx, api, configDir, "prowlarr.db", username, password)
	if err != nil {
		return failure(err.Error())
	}
	notes := []changeNote{{authChanged, authMsg}}

	if cfg.Services.Radarr.Enabled && radarrKey != "" {
		appChanged, msg, err := p.ensureApplication(ctx, api, cfg, "Radarr", "radarr", radarrKey)
		if err != nil {
			return failure(err.Error())
		}
		notes = append(notes, changeNote{appChanged, msg})
	}
	if cfg.Services.Sonarr.Enabled && sonarrKey != "" {
		appChanged, msg, err := p.ensureApplication(ctx, api, cfg, "Sonarr", "sonarr", sonarrKey)
		if err != nil {
			return failure(err.Error())
		}
		notes = append(notes, changeNote{appChanged, msg})
	}

	popChanged, popMsg, err := p.autoPopulateIndexers(ctx, api, cfg)
	if err != nil {
		// Indexer population is best-effort enrichment; the linkages
		// above are the contract.
		p.logger.Warn().Err(err).Msg("indexer auto-population failed")
		notes = append(notes, changeNote{false, fmt.Sprintf("indexer population failed: %v", err)})
	} else if popMsg != "" {
		notes = append(notes, changeNote{popChanged, popMsg})
	}

	changedAny, aggregated := describeChanges(notes)
	if aggregated != "" {
		details = append(details, aggregated)
	}
	changed = changed || changedAny

	detail := strings.Join(details, "; ")
	if detail == "" {
		detail = "ok"
	}
	return types.Outcome{Detail: detail, Changed: changed, Success: true}
}

// Verify implements Client.
func (p *Prowlarr) Verify(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	apiKey, err := p.deps.Store.GetSecret("prowlarr", "api_key")
	if err != nil || apiKey == "" {
		return failure("missing api key")
	}
	api := newArrAPI("prowlarr", p.baseURL, apiKey, p.deps.httpClient())

	var existing []map[string]any
	if err := api.GetJSON(ctx, "/applications", &existing); err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err))
	}

	var expected []appTarget
	if cfg.Services.Radarr.Enabled {
		expected = append(expected, p.appTarget(cfg, "Radarr", "radarr"))
	}
	if cfg.Services.Sonarr.Enabled {
		expected = append(expected, p.appTarget(cfg, "Sonarr", "sonarr"))
	}

	var missing, mismatched []string
	for _, target := range expected {
		found := findApplication(existing, target.implementation)
		if found == nil {
			missing = append(missing, target.implementation)
			continue
		}
		fields := fieldsToMap(anySliceToMaps(found["fields"]))
		if normalizeBaseURL(stringField(fields, "baseUrl")) != target.baseURL ||
			normalizeBaseURL(stringField(fields, "prowlarrUrl")) != target.prowlarrURL {
			mismatched = append(mismatched, target.implementation)
		}
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing apps: "+strings.Join(missing, ", "))
	}
	if len(mismatched) > 0 {
		problems = append(problems, "mismatched apps: "+strings.Join(mismatched, ", "))
	}
	if len(problems) > 0 {
		return failure(strings.Join(problems, "; "))
	}
	return types.Outcome{Detail: "applications ok", Success: true}
}

// appTarget is the expected linkage for one library manager.
type appTarget struct {
	implementation string
	baseURL        string
	prowlarrURL    string
}

func (p *Prowlarr) appTarget(cfg *types.StackConfig, implementation, service string) appTarget {
	return appTarget{
		implementation: implementation,
		baseURL:        normalizeBaseURL(p.serviceURL(cfg, service)),
		prowlarrURL:    normalizeBaseURL(p.serviceURL(cfg, "prowlarr")),
	}
}

// serviceURL builds the in-network URL for a service. The service's own
// config.xml wins for port and URL base since operators can change both
// from the service UI.
func (p *Prowlarr) serviceURL(cfg *types.StackConfig, service string) string {
	configDir := p.deps.Paths.ServiceConfigDir(service)
	port := readArrPort(configDir)
	if port == 0 {
		port = config.InternalPorts[service]
	}
	base := fmt.Sprintf("http://%s:%d", config.ContainerNames[service], port)
	if urlBase := readArrURLBase(configDir); urlBase != "" {
		base = base + "/" + urlBase
	}
	return base
}

func findApplication(apps []map[string]any, implementation string) map[string]any {
	for _, entry := range apps {
		if strings.EqualFold(stringField(entry, "implementation"), implementation) {
			return entry
		}
	}
	return nil
}

func (p *Prowlarr) ensureApplication(ctx context.Context, api *arrAPI, cfg *types.StackConfig, implementation, service, serviceKey string) (bool, string, error) {
	target := p.appTarget(cfg, implementation, service)
	desired := map[string]any{
		"prowlarrUrl": p.serviceURL(cfg, "prowlarr"),
		"baseUrl":     p.serviceURL(cfg, service),
		"apiKey":      serviceKey,
	}

	var existing []map[string]any
	if err := api.GetJSON(ctx, "/applications", &existing); err != nil {
		return false, "", fmt.Errorf("reading applications: %w", err)
	}
	if entry := findApplication(existing, implementation); entry != nil {
		id, _ := intFromAny(entry["id"])
		fields := fieldsToMap(anySliceToMaps(entry["fields"]))
		if normalizeBaseURL(stringField(fields, "baseUrl")) == target.baseURL &&
			normalizeBaseURL(stringField(fields, "prowlarrUrl")) == target.prowlarrURL &&
			stringField(fields, "apiKey") == serviceKey {
			return false, fmt.Sprintf("application %s ready", implementation), nil
		}

		updated := make(map[string]any, len(entry))
		for k, v := range entry {
			updated[k] = v
		}
		updated["fields"] = setFieldValues(anySliceToMaps(entry["fields"]), desired)
		if err := api.PutJSON(ctx, fmt.Sprintf("/applications/%d", id), updated, nil); err != nil {
			return false, "", fmt.Errorf("updating %s application: %w", implementation, err)
		}
		return true, fmt.Sprintf("updated %s application", implementation), nil
	}

	var schema []map[string]any
	if err := api.GetJSON(ctx, "/applications/schema", &schema); err != nil {
		return false, "", fmt.Errorf("reading application schema: %w", err)
	}
	var template map[string]any
	for _, entry := range schema {
		if strings.EqualFold(stringField(entry, "implementation"), implementation) {
			template = entry
			break
		}
	}
	if template == nil {
		return false, fmt.Sprintf("schema for %s not found", implementation), nil
	}

	payload := make(map[string]any, len(template)+6)
	for k, v := range template {
		if k == "fields" || k == "id" || k == "protocol" {
			continue
		}
		payload[k] = v
	}
	payload["name"] = implementation
	payload["implementation"] = defaultString(template, "implementation", implementation)
	payload["implementationName"] = defaultString(template, "implementationName", implementation)
	payload["protocol"] = defaultString(template, "protocol", "torrent")
	payload["configContract"] = template["configContract"]
	payload["enable"] = true
	if _, ok := template["syncProfileId"]; !ok {
		payload["syncProfileId"] = 1
	}
	payload["tags"] = []int{}
	payload["fields"] = setFieldValues(anySliceToMaps(template["fields"]), desired)

	if err := api.PostJSON(ctx, "/applications", payload, nil); err != nil {
		return false, "", fmt.Errorf("creating %s application: %w", implementation, err)
	}
	return true, fmt.Sprintf("created %s application", implementation), nil
}

// autoPopulateIndexers adds every public indexer definition that serves
// movies or TV. It runs once; the gate flag in the services section
// suppresses later passes so operator-curated indexer lists survive.
func (p *Prowlarr) autoPopulateIndexers(ctx context.Context, api *arrAPI, cfg *types.StackConfig) (bool, string, error) {
	state, err := p.deps.Store.LoadServicesState()
	if err != nil {
		return false, "", fmt.Errorf("loading service state: %w", err)
	}
	if state.GetBool("prowlarr", "indexers_populated") {
		return false, "", nil
	}

	var schema []map[string]any
	if err := api.GetJSON(ctx, "/indexer/schema", &schema); err != nil {
		return false, "", fmt.Errorf("reading indexer schema: %w", err)
	}

	added := 0
	for _, definition := range schema {
		if !indexerEligible(definition, cfg) {
			continue
		}
		payload := make(map[string]any, len(definition)+2)
		for k, v := range definition {
			if k == "id" {
				continue
			}
			payload[k] = v
		}
		payload["enable"] = true
		payload["appProfileId"] = 1
		if err := api.PostJSON(ctx, "/indexer", payload, nil); err != nil {
			// Individual definitions fail for reasons outside our
			// control (dead trackers, captchas); keep going.
			p.logger.Debug().Err(err).
				Str("indexer", stringField(definition, "name")).
				Msg("indexer add rejected")
			continue
		}
		added++
	}

	state.Set("prowlarr", "indexers_populated", true)
	if err := p.deps.Store.SaveServicesState(state); err != nil {
		return false, "", fmt.Errorf("saving service state: %w", err)
	}
	return true, fmt.Sprintf("added %d public indexers", added), nil
}

// indexerEligible keeps public definitions that serve the movies or TV
// categories with RSS or search support, optionally filtered to the
// configured audio languages.
func indexerEligible(definition map[string]any, cfg *types.StackConfig) bool {
	if !strings.EqualFold(stringField(definition, "privacy"), "public") {
		return false
	}

	caps, _ := definition["capabilities"].(map[string]any)
	if caps == nil {
		return false
	}
	supportsRSS, _ := caps["supportsRss"].(bool)
	supportsSearch, _ := caps["supportsSearch"].(bool)
	if !supportsRSS && !supportsSearch {
		return false
	}
	if !capabilityHasCategory(caps, torznabCategoryMovies) &&
		!capabilityHasCategory(caps, torznabCategoryTV) {
		return false
	}

	if cfg.Services.Prowlarr.LanguageFilter {
		language := strings.ToLower(stringField(definition, "language"))
		if language == "" {
			return false
		}
		for _, keep := range cfg.MediaPolicy.Movies.KeepAudio {
			if keep == "und" || len(keep) < 2 {
				continue
			}
			if strings.HasPrefix(language, strings.ToLower(keep[:2])) {
				return true
			}
		}
		return false
	}
	return true
}

func capabilityHasCategory(caps map[string]any, want int) bool {
	categories, _ := caps["categories"].([]any)
	for _, entry := range categories {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := intFromAny(m["id"]); ok {
			// Category ids are hierarchical; 2030 is a subcategory of
			// 2000.
			if id/1000 == want/1000 {
				return true
			}
		}
	}
	return false
}
