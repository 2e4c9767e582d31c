package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/config"
)

func TestJellyfinAPI_AuthHeaderCarriesToken(t *testing.T) {
	api := &jellyfinAPI{}
	assert.NotContains(t, api.authHeader(), "Token")
	api.token = "tok123"
	assert.Contains(t, api.authHeader(), `Token="tok123"`)
	assert.Contains(t, api.authHeader(), `Client="eznas"`)
}

func TestJellyfinRunWizard_PostsAllSteps(t *testing.T) {
	var steps []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/Startup/User" && r.Method == http.MethodPost {
			var user map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&user))
			assert.Equal(t, "alice", user["Name"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	j := &Jellyfin{}
	api := &jellyfinAPI{base: server.URL, http: server.Client()}
	require.NoError(t, j.runWizard(context.Background(), api, "alice", "pw"))

	assert.Equal(t, []string{
		"POST /Startup/Configuration",
		"GET /Startup/User",
		"POST /Startup/User",
		"POST /Startup/RemoteAccess",
		"POST /Startup/Complete",
	}, steps)
}

func TestJellyfinAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Users/AuthenticateByName", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["Pw"] == "good" {
			json.NewEncoder(w).Encode(map[string]any{"AccessToken": "tok"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	j := &Jellyfin{}
	api := &jellyfinAPI{base: server.URL, http: server.Client()}
	require.Error(t, j.authenticate(context.Background(), api, "alice", "bad"))
	require.NoError(t, j.authenticate(context.Background(), api, "alice", "good"))
	assert.Equal(t, "tok", api.token)
}

func TestJellyfinEnsureLibraries_SkipsExisting(t *testing.T) {
	var created []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]map[string]any{
				{"Name": "Movies", "Locations": []any{config.ContainerMediaMovies}},
			})
		case r.Method == http.MethodPost:
			created = append(created, r.URL.Query().Get("name"))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	j := &Jellyfin{}
	api := &jellyfinAPI{base: server.URL, http: server.Client()}
	changed, msg, err := j.ensureLibraries(context.Background(), api)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"Shows"}, created)
	assert.Contains(t, msg, "Shows")
}

func TestFindLibrary_MatchesOnLocation(t *testing.T) {
	folders := []map[string]any{
		{"Name": "Films", "Locations": []any{"/data/media/movies"}},
	}
	assert.NotNil(t, findLibrary(folders, "/data/media/movies"))
	assert.Nil(t, findLibrary(folders, "/data/media/tv"))
}
