package clients

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// Radarr provisions the movie library manager: API key bootstrap, forms
// auth, the root folder, and the qBittorrent download client linkage.
type Radarr struct {
	deps    Deps
	baseURL string
	logger  zerolog.Logger
}

// NewRadarr builds the movie library client.
func NewRadarr(deps Deps) *Radarr {
	return &Radarr{
		deps: deps,
		baseURL: fmt.Sprintf("http://radarr:%d%s",
			config.InternalPorts["radarr"], config.APIPrefix["radarr"]),
		logger: log.WithService("radarr"),
	}
}

// Name implements Client.
func (r *Radarr) Name() string { return "radarr" }

// Ensure implements Client.
func (r *Radarr) Ensure(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	var details []string
	changed := false

	configDir := r.deps.Paths.ServiceConfigDir("radarr")
	if err := os.MkdirAll(configDir, 0o775); err != nil {
		return failure(fmt.Sprintf("creating config dir: %v", err))
	}

	apiKey, bootMsg, ok := bootstrapArrAPIKey(ctx, r.deps.Store, "radarr", configDir)
	if !ok {
		return failure(bootMsg)
	}
	if bootMsg != "" {
		details = append(details, bootMsg)
	}

	api := newArrAPI("radarr", r.baseURL, apiKey, r.deps.httpClient())

	var status map[string]any
	if err := api.GetJSON(ctx, "/system/status", &status); err != nil {
		return failure(fmt.Sprintf("Radarr unreachable at %s: %v", r.baseURL, err))
	}
	details = append(details, onlineDetail(status))

	username, password, err := uiCredentials(r.deps.Store, cfg, "radarr")
	if err != nil {
		return failure(fmt.Sprintf("resolving UI credentials: %v", err))
	}
	authChanged, authMsg, err := ensureFormsAuth(ctx, api, configDir, "radarr.db", username, password)
	if err != nil {
		return failure(err.Error())
	}
	changed = changed || authChanged

	secrets, err := r.deps.Store.LoadSecrets()
	if err != nil {
		return failure(fmt.Sprintf("loading secrets: %v", err))
	}
	qbUser := secrets.Get("qbittorrent", "username")
	if qbUser == "" {
		qbUser = cfg.Services.Qbittorrent.Username
	}
	qbPass := secrets.Get("qbittorrent", "password")
	if qbPass == "" {
		qbPass = cfg.Services.Qbittorrent.Password
	}

	rfChanged, rfMsg, folderID, err := r.ensureRootFolder(ctx, api)
	if err != nil {
		return failure(err.Error())
	}
	dlChanged, dlMsg, clientID, err := ensureDownloadClient(ctx, api, downloadClientSpec{
		category: cfg.DownloadPolicy.Categories.Radarr,
		username: qbUser,
		password: qbPass,
	})
	if err != nil {
		return failure(err.Error())
	}

	changedAny, aggregated := describeChanges([]changeNote{
		{authChanged, authMsg},
		{rfChanged, rfMsg},
		{dlChanged, dlMsg},
	})
	if aggregated != "" {
		details = append(details, aggregated)
	}
	changed = changed || changedAny

	state, err := r.deps.Store.LoadServicesState()
	if err == nil {
		dirty := false
		if folderID > 0 {
			state.Set("radarr", "root_folder_id", folderID)
			dirty = true
		}
		if clientID > 0 {
			state.Set("radarr", "download_client_id", clientID)
			dirty = true
		}
		if dirty {
			if err := r.deps.Store.SaveServicesState(state); err != nil {
				r.logger.Warn().Err(err).Msg("failed to persist service state")
			}
		}
	}

	detail := strings.Join(details, "; ")
	if detail == "" {
		detail = "ok"
	}
	return types.Outcome{Detail: detail, Changed: changed, Success: true}
}

// Verify implements Client.
func (r *Radarr) Verify(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	apiKey, err := r.deps.Store.GetSecret("radarr", "api_key")
	if err != nil || apiKey == "" {
		return failure("missing api key")
	}
	api := newArrAPI("radarr", r.baseURL, apiKey, r.deps.httpClient())

	var status map[string]any
	if err := api.GetJSON(ctx, "/system/status", &status); err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err))
	}

	var problems []string
	var folders []map[string]any
	if err := api.GetJSON(ctx, "/rootfolder", &folders); err != nil {
		return failure(fmt.Sprintf("reading root folders: %v", err))
	}
	if !hasRootFolder(folders, config.ContainerMediaMovies) {
		problems = append(problems, "root folder missing "+config.ContainerMediaMovies)
	}

	var downloadClients []map[string]any
	if err := api.GetJSON(ctx, "/downloadclient", &downloadClients); err != nil {
		return failure(fmt.Sprintf("reading download clients: %v", err))
	}
	if findQbittorrentClient(downloadClients, cfg.DownloadPolicy.Categories.Radarr) == nil {
		problems = append(problems, "qBittorrent download client missing or misconfigured")
	}

	if len(problems) > 0 {
		return failure(strings.Join(problems, "; "))
	}
	return types.Outcome{Detail: "root folder ok; download client ok", Success: true}
}

func (r *Radarr) ensureRootFolder(ctx context.Context, api *arrAPI) (bool, string, int, error) {
	target := config.ContainerMediaMovies

	var existing []map[string]any
	if err := api.GetJSON(ctx, "/rootfolder", &existing); err != nil {
		return false, "", 0, fmt.Errorf("reading root folders: %w", err)
	}
	for _, entry := range existing {
		if stringField(entry, "path") == target {
			id, _ := intFromAny(entry["id"])
			return false, "root folder ready " + target, id, nil
		}
	}

	var profiles []map[string]any
	if err := api.GetJSON(ctx, "/qualityprofile", &profiles); err != nil {
		return false, "", 0, fmt.Errorf("reading quality profiles: %w", err)
	}
	var metaProfiles []map[string]any
	// Older Radarr versions have no metadata profiles; absence is fine.
	_ = api.GetJSON(ctx, "/metadataprofile", &metaProfiles)

	qualityID := firstProfileID(profiles)
	metadataID := firstProfileID(metaProfiles)

	payload := map[string]any{
		"path":                     target,
		"name":                     "movies",
		"defaultQualityProfileId":  qualityID,
		"defaultMetadataProfileId": metadataID,
		"defaultTags":              []int{},
	}
	var created map[string]any
	if err := api.PostJSON(ctx, "/rootfolder", payload, &created); err != nil {
		return false, "", 0, fmt.Errorf("creating root folder: %w", err)
	}
	id, _ := intFromAny(created["id"])
	return true, "root folder created " + target, id, nil
}

func onlineDetail(status map[string]any) string {
	if version := stringField(status, "version"); version != "" {
		return "online (v" + version + ")"
	}
	return "online"
}

func firstProfileID(profiles []map[string]any) int {
	if len(profiles) == 0 {
		return 1
	}
	if id, ok := intFromAny(profiles[0]["id"]); ok {
		return id
	}
	return 1
}

func hasRootFolder(folders []map[string]any, path string) bool {
	for _, entry := range folders {
		if stringField(entry, "path") == path {
			return true
		}
	}
	return false
}
