package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// Jellyseerr initializes the request broker against the media server
// and links it to the enabled library managers.
type Jellyseerr struct {
	deps    Deps
	baseURL string
	logger  zerolog.Logger
}

// NewJellyseerr builds the request broker client.
func NewJellyseerr(deps Deps) *Jellyseerr {
	return &Jellyseerr{
		deps: deps,
		baseURL: fmt.Sprintf("http://jellyseerr:%d%s",
			config.InternalPorts["jellyseerr"], config.APIPrefix["jellyseerr"]),
		logger: log.WithService("jellyseerr"),
	}
}

// Name implements Client.
func (j *Jellyseerr) Name() string { return "jellyseerr" }

// readJellyseerrAPIKey pulls the broker's key from its own settings
// file. The broker mints the key on first boot, before the setup
// wizard, so the file is usable for the whole ensure pass.
func readJellyseerrAPIKey(configDir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "settings.json"))
	if err != nil {
		return "", err
	}
	var settings struct {
		Main struct {
			APIKey string `json:"apiKey"`
		} `json:"main"`
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return "", fmt.Errorf("parsing settings.json: %w", err)
	}
	return settings.Main.APIKey, nil
}

func (j *Jellyseerr) waitForAPIKey(ctx context.Context, configDir string) (string, error) {
	deadline := time.Now().Add(arrConfigWaitTimeout)
	for {
		key, err := readJellyseerrAPIKey(configDir)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("settings.json did not appear at %s", configDir)
		}
		if err := sleep(ctx, arrConfigWaitInterval); err != nil {
			return "", err
		}
	}
}

// Ensure implements Client.
func (j *Jellyseerr) Ensure(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	configDir := j.deps.Paths.ServiceConfigDir("jellyseerr")
	apiKey, err := j.waitForAPIKey(ctx, configDir)
	if err != nil {
		return failure(err.Error())
	}
	api := newArrAPI("jellyseerr", j.baseURL, apiKey, j.deps.httpClient())

	var public map[string]any
	if err := api.GetJSON(ctx, "/settings/public", &public); err != nil {
		return failure(fmt.Sprintf("Jellyseerr unreachable at %s: %v", j.baseURL, err))
	}
	initialized, _ := public["initialized"].(bool)

	var notes []changeNote
	if !initialized {
		if err := j.runSetup(ctx, api, cfg); err != nil {
			return failure(fmt.Sprintf("first-run setup: %v", err))
		}
		notes = append(notes, changeNote{true, "completed first-run setup"})
	} else {
		notes = append(notes, changeNote{false, "initialized"})
	}

	if cfg.Services.Radarr.Enabled {
		changed, msg, err := j.ensureArrLink(ctx, api, cfg, "radarr")
		if err != nil {
			return failure(err.Error())
		}
		notes = append(notes, changeNote{changed, msg})
	}
	if cfg.Services.Sonarr.Enabled {
		changed, msg, err := j.ensureArrLink(ctx, api, cfg, "sonarr")
		if err != nil {
			return failure(err.Error())
		}
		notes = append(notes, changeNote{changed, msg})
	}

	if err := j.deps.Store.SetSecret("jellyseerr", "api_key", apiKey); err != nil {
		return failure(fmt.Sprintf("persisting api key: %v", err))
	}

	changed, detail := describeChanges(notes)
	return types.Outcome{Detail: detail, Changed: changed, Success: true}
}

// Verify implements Client.
func (j *Jellyseerr) Verify(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	apiKey, err := readJellyseerrAPIKey(j.deps.Paths.ServiceConfigDir("jellyseerr"))
	if err != nil || apiKey == "" {
		return failure("missing api key in settings.json")
	}
	api := newArrAPI("jellyseerr", j.baseURL, apiKey, j.deps.httpClient())

	var public map[string]any
	if err := api.GetJSON(ctx, "/settings/public", &public); err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err))
	}
	if ok, _ := public["initialized"].(bool); !ok {
		return failure("not initialized")
	}

	var missing []string
	for _, service := range []string{"radarr", "sonarr"} {
		if !serviceEnabled(cfg, service) {
			continue
		}
		var links []map[string]any
		if err := api.GetJSON(ctx, "/settings/"+service, &links); err != nil {
			return failure(fmt.Sprintf("listing %s links: %v", service, err))
		}
		if findArrLink(links, config.ContainerNames[service]) == nil {
			missing = append(missing, service)
		}
	}
	if len(missing) > 0 {
		return failure("missing links: " + strings.Join(missing, ", "))
	}
	return types.Outcome{Detail: "links ok", Success: true}
}

// runSetup signs the media server's admin in through the broker, which
// both creates the broker's owner account and records the server
// connection, then flips the initialized flag.
func (j *Jellyseerr) runSetup(ctx context.Context, api *arrAPI, cfg *types.StackConfig) error {
	username, err := j.deps.Store.GetSecret("jellyfin", "admin_username")
	if err != nil || username == "" {
		username = "admin"
		for _, u := range cfg.Users {
			if u.Role == "owner" {
				username = u.Username
				break
			}
		}
	}
	password, err := j.deps.Store.GetSecret("jellyfin", "admin_password")
	if err != nil || password == "" {
		return fmt.Errorf("media server admin password not in secrets yet")
	}

	login := map[string]any{
		"username":   username,
		"password":   password,
		"hostname":   config.ContainerNames["jellyfin"],
		"port":       config.InternalPorts["jellyfin"],
		"useSsl":     false,
		"urlBase":    "",
		"serverType": 2,
		"email":      username + "@local",
	}
	if err := api.PostJSON(ctx, "/auth/jellyfin", login, nil); err != nil {
		return fmt.Errorf("media server login: %w", err)
	}
	if err := api.PostJSON(ctx, "/settings/initialize", map[string]any{}, nil); err != nil {
		return fmt.Errorf("marking initialized: %w", err)
	}
	return nil
}

func serviceEnabled(cfg *types.StackConfig, service string) bool {
	switch service {
	case "radarr":
		return cfg.Services.Radarr.Enabled
	case "sonarr":
		return cfg.Services.Sonarr.Enabled
	default:
		return false
	}
}

func findArrLink(links []map[string]any, hostname string) map[string]any {
	for _, link := range links {
		if strings.EqualFold(stringField(link, "hostname"), hostname) {
			return link
		}
	}
	return nil
}

// ensureArrLink upserts one library manager connection. The broker's
// own test endpoint discovers the manager's quality profiles and root
// folders, so the payload always reflects the manager's live schema.
func (j *Jellyseerr) ensureArrLink(ctx context.Context, api *arrAPI, cfg *types.StackConfig, service string) (bool, string, error) {
	serviceKey, err := j.deps.Store.GetSecret(service, "api_key")
	if err != nil || serviceKey == "" {
		return false, "", fmt.Errorf("%s API key not in secrets yet", service)
	}
	hostname := config.ContainerNames[service]
	port := config.InternalPorts[service]

	probe := map[string]any{
		"hostname": hostname,
		"port":     port,
		"apiKey":   serviceKey,
		"useSsl":   false,
		"baseUrl":  "",
	}
	var discovered struct {
		Profiles []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"profiles"`
		RootFolders []struct {
			ID   int    `json:"id"`
			Path string `json:"path"`
		} `json:"rootFolders"`
		LanguageProfiles []struct {
			ID int `json:"id"`
		} `json:"languageProfiles"`
	}
	if err := api.PostJSON(ctx, "/settings/"+service+"/test", probe, &discovered); err != nil {
		return false, "", fmt.Errorf("testing %s connection: %w", service, err)
	}
	if len(discovered.Profiles) == 0 || len(discovered.RootFolders) == 0 {
		return false, "", fmt.Errorf("%s reported no profiles or root folders", service)
	}

	wantRoot := config.ContainerMediaMovies
	if service == "sonarr" {
		wantRoot = config.ContainerMediaTV
	}
	activeDir := discovered.RootFolders[0].Path
	for _, rf := range discovered.RootFolders {
		if rf.Path == wantRoot {
			activeDir = rf.Path
			break
		}
	}

	payload := map[string]any{
		"name":              config.ContainerNames[service],
		"hostname":          hostname,
		"port":              port,
		"apiKey":            serviceKey,
		"useSsl":            false,
		"baseUrl":           "",
		"activeProfileId":   discovered.Profiles[0].ID,
		"activeProfileName": discovered.Profiles[0].Name,
		"activeDirectory":   activeDir,
		"is4k":              false,
		"isDefault":         true,
		"syncEnabled":       true,
	}
	if service == "radarr" {
		payload["minimumAvailability"] = "released"
	} else {
		payload["enableSeasonFolders"] = true
		if len(discovered.LanguageProfiles) > 0 {
			payload["activeLanguageProfileId"] = discovered.LanguageProfiles[0].ID
		}
	}

	var existing []map[string]any
	if err := api.GetJSON(ctx, "/settings/"+service, &existing); err != nil {
		return false, "", fmt.Errorf("listing %s links: %w", service, err)
	}
	if link := findArrLink(existing, hostname); link != nil {
		id, _ := intFromAny(link["id"])
		linkPort, _ := intFromAny(link["port"])
		if linkPort == port &&
			stringField(link, "apiKey") == serviceKey &&
			stringField(link, "activeDirectory") == activeDir {
			return false, fmt.Sprintf("%s link ready", service), nil
		}
		if err := api.PutJSON(ctx, fmt.Sprintf("/settings/%s/%d", service, id), payload, nil); err != nil {
			return false, "", fmt.Errorf("updating %s link: %w", service, err)
		}
		return true, fmt.Sprintf("updated %s link", service), nil
	}
	if err := api.PostJSON(ctx, "/settings/"+service, payload, nil); err != nil {
		return false, "", fmt.Errorf("creating %s link: %w", service, err)
	}
	return true, fmt.Sprintf("created %s link", service), nil
}
