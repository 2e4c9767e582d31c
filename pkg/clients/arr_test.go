package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_TruncatesBody(t *testing.T) {
	err := &apiError{Status: 500, Body: strings.Repeat("x", 500)}
	assert.Len(t, err.Error(), len("API error 500: ")+200)
}

func TestArrAPI_SendsKeyHeader(t *testing.T) {
	var gotKey, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	api := newArrAPI("radarr", server.URL, "secret", server.Client())
	var out map[string]any
	require.NoError(t, api.PostJSON(context.Background(), "/rootfolder", map[string]any{"path": "/data"}, &out))
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, true, out["ok"])
}

func TestArrAPI_NonSuccessIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad"}`))
	}))
	defer server.Close()

	api := newArrAPI("radarr", server.URL, "secret", server.Client())
	err := api.GetJSON(context.Background(), "/qualityprofile", nil)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestArrAPI_RetriesBodyOnServerError(t *testing.T) {
	stubSleep(t)
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		raw, _ := json.Marshal(payload)
		bodies = append(bodies, string(raw))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	api := newArrAPI("sonarr", server.URL, "k", server.Client())
	require.NoError(t, api.PostJSON(context.Background(), "/downloadclient", map[string]any{"name": "qb"}, nil))
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}

func TestFieldsToMap(t *testing.T) {
	fields := []map[string]any{
		{"name": "host", "value": "qbittorrent"},
		{"name": "port", "value": float64(8080)},
		{"name": "unset"},
	}
	m := fieldsToMap(fields)
	assert.Equal(t, "qbittorrent", m["host"])
	assert.Equal(t, float64(8080), m["port"])
	assert.Nil(t, m["unset"])
}

func TestSetFieldValues_OverridesWithoutMutating(t *testing.T) {
	fields := []map[string]any{
		{"name": "host", "value": "old"},
		{"name": "port", "value": float64(9999)},
	}
	out := setFieldValues(fields, map[string]any{"host": "qbittorrent"})
	assert.Equal(t, "qbittorrent", out[0]["value"])
	assert.Equal(t, float64(9999), out[1]["value"])
	assert.Equal(t, "old", fields[0]["value"])
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://radarr:7878", normalizeBaseURL("http://radarr:7878/"))
	assert.Equal(t, "http://radarr:7878", normalizeBaseURL(" http://radarr:7878 "))
	assert.Equal(t, "", normalizeBaseURL("/"))
}

func TestIntFromAny(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{7, 7, true},
		{int64(8), 8, true},
		{float64(9), 9, true},
		{"10", 10, true},
		{"x", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := intFromAny(tc.in)
		assert.Equal(t, tc.ok, ok)
		assert.Equal(t, tc.want, got)
	}
}
