package clients

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/types"
)

// Sonarr provisions the TV library manager. It mirrors the movie
// manager but keeps two root folders: the standard series library and a
// separate anime library with its own default quality profile.
type Sonarr struct {
	deps    Deps
	baseURL string
	logger  zerolog.Logger
}

// NewSonarr builds the TV library client.
func NewSonarr(deps Deps) *Sonarr {
	return &Sonarr{
		deps: deps,
		baseURL: fmt.Sprintf("http://sonarr:%d%s",
			config.InternalPorts["sonarr"], config.APIPrefix["sonarr"]),
		logger: log.WithService("sonarr"),
	}
}

// Name implements Client.
func (s *Sonarr) Name() string { return "sonarr" }

// Ensure implements Client.
func (s *Sonarr) Ensure(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	var details []string
	changed := false

	configDir := s.deps.Paths.ServiceConfigDir("sonarr")
	if err := os.MkdirAll(configDir, 0o775); err != nil {
		return failure(fmt.Sprintf("creating config dir: %v", err))
	}

	apiKey, bootMsg, ok := bootstrapArrAPIKey(ctx, s.deps.Store, "sonarr", configDir)
	if !ok {
		return failure(bootMsg)
	}
	if bootMsg != "" {
		details = append(details, bootMsg)
	}

	api := newArrAPI("sonarr", s.baseURL, apiKey, s.deps.httpClient())

	var status map[string]any
	if err := api.GetJSON(ctx, "/system/status", &status); err != nil {
		return failure(fmt.Sprintf("Sonarr unreachable at %s: %v", s.baseURL, err))
	}
	details = append(details, onlineDetail(status))

	username, password, err := uiCredentials(s.deps.Store, cfg, "sonarr")
	if err != nil {
		return failure(fmt.Sprintf("resolving UI credentials: %v", err))
	}
	authChanged, authMsg, err := ensureFormsAuth(ctx, api, configDir, "sonarr.db", username, password)
	if err != nil {
		return failure(err.Error())
	}

	var notes []changeNote
	notes = append(notes, changeNote{authChanged, authMsg})

	state, stateErr := s.deps.Store.LoadServicesState()
	stateDirty := false

	tvChanged, tvMsg, tvID, err := s.ensureRootFolder(ctx, api, config.ContainerMediaTV, "Standard")
	if err != nil {
		return failure(err.Error())
	}
	notes = append(notes, changeNote{tvChanged, tvMsg})
	if stateErr == nil && tvID > 0 {
		state.Set("sonarr", "root_tv_id", tvID)
		stateDirty = true
	}

	animeChanged, animeMsg, animeID, err := s.ensureRootFolder(ctx, api, config.ContainerMediaAnime, "Anime")
	if err != nil {
		return failure(err.Error())
	}
	notes = append(notes, changeNote{animeChanged, animeMsg})
	if stateErr == nil && animeID > 0 {
		state.Set("sonarr", "root_anime_id", animeID)
		stateDirty = true
	}

	secrets, err := s.deps.Store.LoadSecrets()
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

	dlChanged, dlMsg, clientID, err := ensureDownloadClient(ctx, api, downloadClientSpec{
		category: cfg.DownloadPolicy.Categories.Sonarr,
		username: qbUser,
		password: qbPass,
	})
	if err != nil {
		return failure(err.Error())
	}
	notes = append(notes, changeNote{dlChanged, dlMsg})
	if stateErr == nil && clientID > 0 {
		state.Set("sonarr", "download_client_id", clientID)
		stateDirty = true
	}

	if stateDirty {
		if err := s.deps.Store.SaveServicesState(state); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist service state")
		}
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
func (s *Sonarr) Verify(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	apiKey, err := s.deps.Store.GetSecret("sonarr", "api_key")
	if err != nil || apiKey == "" {
		return failure("missing api key")
	}
	api := newArrAPI("sonarr", s.baseURL, apiKey, s.deps.httpClient())

	var status map[string]any
	if err := api.GetJSON(ctx, "/system/status", &status); err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err))
	}

	var problems []string
	var folders []map[string]any
	if err := api.GetJSON(ctx, "/rootfolder", &folders); err != nil {
		return failure(fmt.Sprintf("reading root folders: %v", err))
	}
	for _, target := range []string{config.ContainerMediaTV, config.ContainerMediaAnime} {
		if !hasRootFolder(folders, target) {
			problems = append(problems, "root folder missing "+target)
		}
	}

	var downloadClients []map[string]any
	if err := api.GetJSON(ctx, "/downloadclient", &downloadClients); err != nil {
		return failure(fmt.Sprintf("reading download clients: %v", err))
	}
	if findQbittorrentClient(downloadClients, cfg.DownloadPolicy.Categories.Sonarr) == nil {
		problems = append(problems, "qBittorrent download client missing or misconfigured")
	}

	if len(problems) > 0 {
		return failure(strings.Join(problems, "; "))
	}
	return types.Outcome{Detail: "root folders ok; download client ok", Success: true}
}

func (s *Sonarr) ensureRootFolder(ctx context.Context, api *arrAPI, target, profileName string) (bool, string, int, error) {
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

	var qualityProfiles []map[string]any
	if err := api.GetJSON(ctx, "/qualityprofile", &qualityProfiles); err != nil {
		return false, "", 0, fmt.Errorf("reading quality profiles: %w", err)
	}
	var languageProfiles []map[string]any
	// Recent Sonarr merged language into quality profiles; absence is fine.
	_ = api.GetJSON(ctx, "/languageprofile", &languageProfiles)

	payload := map[string]any{
		"path":                     target,
		"name":                     path.Base(target),
		"defaultQualityProfileId":  profileIDByName(qualityProfiles, profileName),
		"defaultLanguageProfileId": firstProfileID(languageProfiles),
		"defaultTags":              []int{},
	}
	var created map[string]any
	if err := api.PostJSON(ctx, "/rootfolder", payload, &created); err != nil {
		return false, "", 0, fmt.Errorf("creating root folder: %w", err)
	}
	id, _ := intFromAny(created["id"])
	return true, "root folder created " + target, id, nil
}

// profileIDByName matches a profile by exact name, falling back to the
// first profile when no name matches.
func profileIDByName(profiles []map[string]any, name string) int {
	for _, profile := range profiles {
		if stringField(profile, "name") == name {
			if id, ok := intFromAny(profile["id"]); ok {
				return id
			}
		}
	}
	return firstProfileID(profiles)
}
