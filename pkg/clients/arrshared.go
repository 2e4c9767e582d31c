package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/store"
)

// bootstrapArrAPIKey resolves a service's API key: the stored secret
// wins; otherwise poll the mounted config.xml until the service mints
// one on first launch, then persist it. The returned message is empty
// when nothing happened.
func bootstrapArrAPIKey(ctx context.Context, st *store.Store, service, configDir string) (string, string, bool) {
	key, err := st.GetSecret(service, "api_key")
	if err != nil {
		return "", fmt.Sprintf("loading secrets: %v", err), false
	}
	if key != "" {
		return key, "", true
	}

	if !waitForArrConfig(ctx, configDir) {
		return "", fmt.Sprintf("config.xml did not appear at %s", configDir), false
	}
	key = readArrAPIKey(configDir)
	if key == "" {
		return "", fmt.Sprintf("API key missing in config.xml at %s", configDir), false
	}
	if err := st.SetSecret(service, "api_key", key); err != nil {
		return "", fmt.Sprintf("storing API key: %v", err), false
	}
	return key, "stored API key", true
}

// downloadClientSpec is what the library managers demand of their
// qBittorrent download client entry.
type downloadClientSpec struct {
	category string
	username string
	password string
}

func (s downloadClientSpec) desiredFields() map[string]any {
	return map[string]any{
		"host":     config.ContainerNames["qbittorrent"],
		"port":     config.InternalPorts["qbittorrent"],
		"useSsl":   false,
		"urlBase":  "",
		"username": s.username,
		"password": s.password,
		"category": s.category,
	}
}

// ensureDownloadClient upserts the qBittorrent download client entry:
// matched by implementation, compared on host/port/category, updated in
// place on drift, created from the API's schema template when absent.
func ensureDownloadClient(ctx context.Context, api *arrAPI, spec downloadClientSpec) (bool, string, int, error) {
	desired := spec.desiredFields()

	var existing []map[string]any
	if err := api.GetJSON(ctx, "/downloadclient", &existing); err != nil {
		return false, "", 0, fmt.Errorf("reading download clients: %w", err)
	}
	for _, client := range existing {
		if !strings.EqualFold(stringField(client, "implementation"), "qbittorrent") {
			continue
		}
		id, _ := intFromAny(client["id"])
		current := fieldsToMap(anySliceToMaps(client["fields"]))
		currentPort, _ := intFromAny(current["port"])
		if stringField(current, "host") == config.ContainerNames["qbittorrent"] &&
			currentPort == config.InternalPorts["qbittorrent"] &&
			stringField(current, "category") == spec.category {
			return false, "download client ready", id, nil
		}

		updated := make(map[string]any, len(client))
		for k, v := range client {
			updated[k] = v
		}
		updated["enable"] = true
		updated["fields"] = setFieldValues(anySliceToMaps(client["fields"]), desired)
		if err := api.PutJSON(ctx, fmt.Sprintf("/downloadclient/%d", id), updated, nil); err != nil {
			return false, "", 0, fmt.Errorf("updating download client: %w", err)
		}
		return true, fmt.Sprintf("updated download client %d", id), id, nil
	}

	var schema []map[string]any
	if err := api.GetJSON(ctx, "/downloadclient/schema", &schema); err != nil {
		return false, "", 0, fmt.Errorf("reading download client schema: %w", err)
	}
	var template map[string]any
	for _, entry := range schema {
		if strings.EqualFold(stringField(entry, "implementation"), "qbittorrent") {
			template = entry
			break
		}
	}
	if template == nil {
		return false, "qBittorrent schema unavailable", 0, nil
	}

	payload := map[string]any{
		"name":                     "qBittorrent",
		"implementation":           defaultString(template, "implementation", "QBitTorrent"),
		"implementationName":       defaultString(template, "implementationName", "qBittorrent"),
		"protocol":                 defaultString(template, "protocol", "torrent"),
		"configContract":           defaultString(template, "configContract", "QBitTorrentSettings"),
		"enable":                   true,
		"priority":                 1,
		"removeCompletedDownloads": true,
		"fields":                   setFieldValues(anySliceToMaps(template["fields"]), desired),
		"tags":                     []int{},
	}
	var created map[string]any
	if err := api.PostJSON(ctx, "/downloadclient", payload, &created); err != nil {
		return false, "", 0, fmt.Errorf("creating download client: %w", err)
	}
	id, _ := intFromAny(created["id"])
	return true, "created download client", id, nil
}

// findQbittorrentClient returns the matching download client entry for
// verification, nil when absent or drifted.
func findQbittorrentClient(clients []map[string]any, category string) map[string]any {
	for _, client := range clients {
		if !strings.EqualFold(stringField(client, "implementation"), "qbittorrent") {
			continue
		}
		fields := fieldsToMap(anySliceToMaps(client["fields"]))
		port, _ := intFromAny(fields["port"])
		if stringField(fields, "host") == config.ContainerNames["qbittorrent"] &&
			port == config.InternalPorts["qbittorrent"] &&
			stringField(fields, "category") == category {
			return client
		}
	}
	return nil
}

// anySliceToMaps converts the decoded JSON []any of field objects into
// the []map[string]any the field helpers work with.
func anySliceToMaps(v any) []map[string]any {
	switch typed := v.(type) {
	case []map[string]any:
		return typed
	case []any:
		out := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func defaultString(m map[string]any, key, fallback string) string {
	if v := stringField(m, key); v != "" {
		return v
	}
	return fallback
}
