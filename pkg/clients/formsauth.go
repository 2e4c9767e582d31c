package clients

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
)

// uiCredentials resolves the UI login for an *arr style service: the
// username comes from the stack's owner (falling back to the first
// declared user, then "admin"), the password is minted once and kept in
// the secrets section.
func uiCredentials(st *store.Store, cfg *types.StackConfig, service string) (string, string, error) {
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

	password, _, err := st.EnsureSecret(service, "ui_password", func() string {
		return store.GenerateToken(18)
	})
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// ensureFormsAuth forces the service's host config to forms
// authentication with analytics off and the expected UI credentials.
// The password check goes through the service's SQLite user store since
// the host config API never echoes passwords back.
func ensureFormsAuth(ctx context.Context, api *arrAPI, configDir, dbName, username, password string) (bool, string, error) {
	var host map[string]any
	if err := api.GetJSON(ctx, "/config/host", &host); err != nil {
		return false, "", fmt.Errorf("reading host config: %w", err)
	}

	dbPath := filepath.Join(configDir, dbName)
	authOK := stringField(host, "authenticationMethod") == "forms" &&
		stringField(host, "authenticationRequired") == "enabled" &&
		stringField(host, "username") == username
	analyticsOff := true
	if v, ok := host["analyticsEnabled"].(bool); ok {
		analyticsOff = !v
	}
	if authOK && analyticsOff && arrPasswordMatches(dbPath, username, password) {
		return false, "auth ok", nil
	}

	updated := make(map[string]any, len(host)+4)
	for k, v := range host {
		updated[k] = v
	}
	updated["authenticationMethod"] = "forms"
	updated["authenticationRequired"] = "enabled"
	updated["analyticsEnabled"] = false
	updated["username"] = username
	updated["password"] = password
	updated["passwordConfirmation"] = password

	id, _ := intFromAny(host["id"])
	path := "/config/host"
	if id > 0 {
		path = fmt.Sprintf("/config/host/%d", id)
	}
	if err := api.PutJSON(ctx, path, updated, nil); err != nil {
		return false, "", fmt.Errorf("updating host config: %w", err)
	}
	return true, "enforced forms auth", nil
}
