package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
)

// Jellyfin drives the media server through its first-run wizard and
// keeps the virtual libraries pointed at the container media paths.
type Jellyfin struct {
	deps    Deps
	baseURL string
	logger  zerolog.Logger
}

// NewJellyfin builds the media server client.
func NewJellyfin(deps Deps) *Jellyfin {
	return &Jellyfin{
		deps:    deps,
		baseURL: fmt.Sprintf("http://jellyfin:%d", config.InternalPorts["jellyfin"]),
		logger:  log.WithService("jellyfin"),
	}
}

// Name implements Client.
func (j *Jellyfin) Name() string { return "jellyfin" }

// jellyfinAPI wraps the Emby style HTTP surface. Every request carries
// the X-Emby-Authorization header; token is filled in after login.
type jellyfinAPI struct {
	base  string
	http  *http.Client
	token string
}

func (a *jellyfinAPI) authHeader() string {
	header := `MediaBrowser Client="eznas", Device="eznas", DeviceId="eznas", Version="1.0"`
	if a.token != "" {
		header += fmt.Sprintf(`, Token=%q`, a.token)
	}
	return header
}

func (a *jellyfinAPI) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	target := a.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	resp, err := doWithRetry(ctx, a.http, "jellyfin", func() (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Emby-Authorization", a.authHeader())
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// adminCredentials resolves the admin login the same way the library
// managers do, stored under the media server's own secret keys.
func (j *Jellyfin) adminCredentials(cfg *types.StackConfig) (string, string, error) {
	username := "admin"
	for _, u := range cfg.Users {
		if u.Role == "owner" {
			username = u.Username
			break
		}
	}
	if username == "admin" && len(cfg.Users) > 0 {
		username = cfg.Users[0].Username
	}
	password, _, err := j.deps.Store.EnsureSecret("jellyfin", "admin_password", func() string {
		return store.GenerateToken(18)
	})
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// Ensure implements Client.
func (j *Jellyfin) Ensure(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	api := &jellyfinAPI{base: j.baseURL, http: j.deps.httpClient()}

	var info map[string]any
	if err := api.do(ctx, http.MethodGet, "/System/Info/Public", nil, nil, &info); err != nil {
		return failure(fmt.Sprintf("Jellyfin unreachable at %s: %v", j.baseURL, err))
	}
	wizardDone, _ := info["StartupWizardCompleted"].(bool)

	username, password, err := j.adminCredentials(cfg)
	if err != nil {
		return failure(fmt.Sprintf("resolving admin credentials: %v", err))
	}

	notes := []changeNote{{false, fmt.Sprintf("online (v%s)", defaultString(info, "Version", "unknown"))}}

	if !wizardDone {
		if err := j.runWizard(ctx, api, username, password); err != nil {
			return failure(fmt.Sprintf("first-run wizard: %v", err))
		}
		notes = append(notes, changeNote{true, "completed first-run wizard"})
	}

	if err := j.authenticate(ctx, api, username, password); err != nil {
		return failure(fmt.Sprintf("admin login failed: %v", err))
	}

	libChanged, libMsg, err := j.ensureLibraries(ctx, api)
	if err != nil {
		return failure(err.Error())
	}
	notes = append(notes, changeNote{libChanged, libMsg})

	if err := j.deps.Store.SetSecret("jellyfin", "admin_username", username); err != nil {
		return failure(fmt.Sprintf("persisting admin username: %v", err))
	}

	changed, detail := describeChanges(notes)
	return types.Outcome{Detail: detail, Changed: changed, Success: true}
}

// Verify implements Client.
func (j *Jellyfin) Verify(ctx context.Context, cfg *types.StackConfig) types.Outcome {
	api := &jellyfinAPI{base: j.baseURL, http: j.deps.httpClient()}

	var info map[string]any
	if err := api.do(ctx, http.MethodGet, "/System/Info/Public", nil, nil, &info); err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err))
	}
	if done, _ := info["StartupWizardCompleted"].(bool); !done {
		return failure("first-run wizard not completed")
	}

	username, password, err := j.adminCredentials(cfg)
	if err != nil {
		return failure(fmt.Sprintf("resolving admin credentials: %v", err))
	}
	if err := j.authenticate(ctx, api, username, password); err != nil {
		return failure(fmt.Sprintf("admin login failed: %v", err))
	}

	folders, err := j.virtualFolders(ctx, api)
	if err != nil {
		return failure(fmt.Sprintf("listing libraries: %v", err))
	}
	var missing []string
	for _, want := range j.desiredLibraries() {
		if findLibrary(folders, want.path) == nil {
			missing = append(missing, want.name)
		}
	}
	if len(missing) > 0 {
		return failure("missing libraries: " + strings.Join(missing, ", "))
	}
	return types.Outcome{Detail: "libraries ok", Success: true}
}

// runWizard walks the startup wizard: locale, admin user, remote
// access, complete. The wizard endpoints accept the unauthenticated
// MediaBrowser header until Complete is posted.
func (j *Jellyfin) runWizard(ctx context.Context, api *jellyfinAPI, username, password string) error {
	locale := map[string]any{
		"UICulture":                 "en-US",
		"MetadataCountryCode":       "US",
		"PreferredMetadataLanguage": "en",
	}
	if err := api.do(ctx, http.MethodPost, "/Startup/Configuration", nil, locale, nil); err != nil {
		return fmt.Errorf("startup configuration: %w", err)
	}
	// The wizard seeds the first user record on this GET; the POST
	// below fails without it.
	if err := api.do(ctx, http.MethodGet, "/Startup/User", nil, nil, nil); err != nil {
		return fmt.Errorf("startup user fetch: %w", err)
	}
	user := map[string]any{"Name": username, "Password": password}
	if err := api.do(ctx, http.MethodPost, "/Startup/User", nil, user, nil); err != nil {
		return fmt.Errorf("startup user: %w", err)
	}
	remote := map[string]any{
		"EnableRemoteAccess":         true,
		"EnableAutomaticPortMapping": false,
	}
	if err := api.do(ctx, http.MethodPost, "/Startup/RemoteAccess", nil, remote, nil); err != nil {
		return fmt.Errorf("remote access: %w", err)
	}
	if err := api.do(ctx, http.MethodPost, "/Startup/Complete", nil, nil, nil); err != nil {
		return fmt.Errorf("wizard complete: %w", err)
	}
	return nil
}

func (j *Jellyfin) authenticate(ctx context.Context, api *jellyfinAPI, username, password string) error {
	body := map[string]any{"Username": username, "Pw": password}
	var result struct {
		AccessToken string `json:"AccessToken"`
	}
	if err := api.do(ctx, http.MethodPost, "/Users/AuthenticateByName", nil, body, &result); err != nil {
		return err
	}
	if result.AccessToken == "" {
		return fmt.Errorf("login response carried no access token")
	}
	api.token = result.AccessToken
	return nil
}

type jellyfinLibrary struct {
	name           string
	collectionType string
	path           string
}

func (j *Jellyfin) desiredLibraries() []jellyfinLibrary {
	return []jellyfinLibrary{
		{name: "Movies", collectionType: "movies", path: config.ContainerMediaMovies},
		{name: "Shows", collectionType: "tvshows", path: config.ContainerMediaTV},
	}
}

func (j *Jellyfin) virtualFolders(ctx context.Context, api *jellyfinAPI) ([]map[string]any, error) {
	var folders []map[string]any
	if err := api.do(ctx, http.MethodGet, "/Library/VirtualFolders", nil, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// findLibrary matches on location so renamed libraries still count.
func findLibrary(folders []map[string]any, path string) map[string]any {
	for _, folder := range folders {
		locations, _ := folder["Locations"].([]any)
		for _, loc := range locations {
			if s, ok := loc.(string); ok && s == path {
				return folder
			}
		}
	}
	return nil
}

func (j *Jellyfin) ensureLibraries(ctx context.Context, api *jellyfinAPI) (bool, string, error) {
	folders, err := j.virtualFolders(ctx, api)
	if err != nil {
		return false, "", fmt.Errorf("listing libraries: %w", err)
	}

	var added []string
	for _, want := range j.desiredLibraries() {
		if findLibrary(folders, want.path) != nil {
			continue
		}
		query := url.Values{}
		query.Set("name", want.name)
		query.Set("collectionType", want.collectionType)
		query.Set("refreshLibrary", "true")
		body := map[string]any{
			"LibraryOptions": map[string]any{
				"PathInfos": []map[string]any{{"Path": want.path}},
			},
		}
		if err := api.do(ctx, http.MethodPost, "/Library/VirtualFolders", query, body, nil); err != nil {
			return false, "", fmt.Errorf("creating %s library: %w", want.name, err)
		}
		added = append(added, want.name)
	}
	if len(added) == 0 {
		return false, "libraries ok", nil
	}
	return true, "added libraries: " + strings.Join(added, ", "), nil
}
