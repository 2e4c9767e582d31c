package apply

import (
	"sort"
	"strings"

	"github.com/ereinha3/eznas/pkg/types"
)

// ensureSecrets harmonizes the secrets section with the config before
// anything renders: torrent client credentials come from the config, and
// the media server admin username derives from the orchestrator's admin
// account. Passwords are never invented here; the service clients mint
// those during configure. Returns the stage detail and a snapshot used
// to detect credentials minted later in the run.
func (r *Runner) ensureSecrets(cfg *types.StackConfig) (string, types.SecretsState, error) {
	secrets, err := r.store.LoadSecrets()
	if err != nil {
		return "", nil, err
	}

	var details []string
	dirty := false
	set := func(service, key, value, message string) {
		if value == "" {
			return
		}
		if secrets.Get(service, key) != value {
			secrets.Set(service, key, value)
			details = append(details, message)
			dirty = true
		}
	}

	qb := cfg.Services.Qbittorrent
	set("qbittorrent", "username", qb.Username, "qbittorrent username set")
	set("qbittorrent", "password", qb.Password, "qbittorrent password set")

	if admin := r.adminUsername(secrets); admin != "" {
		set("jellyfin", "admin_username", admin, "jellyfin admin username set")
		set("jellyseerr", "admin_username", admin, "jellyseerr admin username set")
	}

	if dirty {
		if err := r.store.SaveSecrets(secrets); err != nil {
			return "", nil, err
		}
	}

	detail := "secrets unchanged"
	if len(details) > 0 {
		detail = strings.Join(details, ", ")
	}
	return detail, snapshotSecrets(secrets), nil
}

// adminUsername picks the orchestrator admin account's name, falling
// back to whatever a previous run already recorded.
func (r *Runner) adminUsername(secrets types.SecretsState) string {
	auth, err := r.store.LoadAuth()
	if err == nil && auth != nil {
		names := make([]string, 0, len(auth.Users))
		for name := range auth.Users {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if user := auth.Users[name]; user.Role == "admin" {
				return user.Username
			}
		}
	}
	return secrets.Get("jellyfin", "admin_username")
}

func snapshotSecrets(secrets types.SecretsState) types.SecretsState {
	snapshot := make(types.SecretsState, len(secrets))
	for service, kv := range secrets {
		copied := make(map[string]string, len(kv))
		for k, v := range kv {
			copied[k] = v
		}
		snapshot[service] = copied
	}
	return snapshot
}

func secretsEqual(a, b types.SecretsState) bool {
	if len(a) != len(b) {
		return false
	}
	for service, kv := range a {
		other, ok := b[service]
		if !ok || len(kv) != len(other) {
			return false
		}
		for k, v := range kv {
			if other[k] != v {
				return false
			}
		}
	}
	return true
}
