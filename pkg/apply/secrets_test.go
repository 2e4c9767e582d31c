package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/types"
)

func TestEnsureSecrets_CopiesTorrentCredentials(t *testing.T) {
	r := newTestRunner(t, nil, nil)
	cfg := testConfig(t)

	detail, snapshot, err := r.ensureSecrets(cfg)
	require.NoError(t, err)
	assert.Contains(t, detail, "qbittorrent username set")
	assert.Contains(t, detail, "qbittorrent password set")
	assert.Equal(t, "admin", snapshot.Get("qbittorrent", "username"))
	assert.Equal(t, "adminadmin", snapshot.Get("qbittorrent", "password"))

	// Persisted, and a second pass is a no-op.
	secrets, err := r.store.LoadSecrets()
	require.NoError(t, err)
	assert.Equal(t, "admin", secrets.Get("qbittorrent", "username"))

	detail, _, err = r.ensureSecrets(cfg)
	require.NoError(t, err)
	assert.Equal(t, "secrets unchanged", detail)
}

func TestEnsureSecrets_AdminUsernameFromAuthState(t *testing.T) {
	r := newTestRunner(t, nil, nil)
	require.NoError(t, r.store.SaveAuth(&types.AuthState{
		Users: map[string]types.AuthUser{
			"viewer": {Username: "viewer", Role: "user"},
			"alice":  {Username: "alice", Role: "admin"},
		},
	}))

	_, snapshot, err := r.ensureSecrets(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "alice", snapshot.Get("jellyfin", "admin_username"))
	assert.Equal(t, "alice", snapshot.Get("jellyseerr", "admin_username"))
}

func TestEnsureSecrets_KeepsRecordedAdminWithoutAuthUsers(t *testing.T) {
	r := newTestRunner(t, nil, nil)
	require.NoError(t, r.store.SetSecret("jellyfin", "admin_username", "owner"))

	_, snapshot, err := r.ensureSecrets(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "owner", snapshot.Get("jellyfin", "admin_username"))
	assert.Equal(t, "owner", snapshot.Get("jellyseerr", "admin_username"))
}

func TestSecretsEqual(t *testing.T) {
	a := types.SecretsState{"radarr": {"api_key": "x"}}
	b := types.SecretsState{"radarr": {"api_key": "x"}}
	assert.True(t, secretsEqual(a, b))

	b.Set("radarr", "api_key", "y")
	assert.False(t, secretsEqual(a, b))

	b.Set("radarr", "api_key", "x")
	b.Set("sonarr", "api_key", "z")
	assert.False(t, secretsEqual(a, b))
}

func TestSnapshotSecretsIsDeep(t *testing.T) {
	secrets := types.SecretsState{"radarr": {"api_key": "x"}}
	snapshot := snapshotSecrets(secrets)
	secrets.Set("radarr", "api_key", "mutated")
	assert.Equal(t, "x", snapshot.Get("radarr", "api_key"))
}
