package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError is a non-2xx response from a service API. 4xx is never
// retried, so by the time callers see one the request truly failed.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("API error %d: %s", e.Status, strings.TrimSpace(body))
}

// arrAPI is a thin JSON client for the *arr family APIs (and the other
// stack services that follow the same key-in-header convention).
type arrAPI struct {
	base    string
	key     string
	service string
	http    *http.Client
}

func newArrAPI(service, baseURL, apiKey string, client *http.Client) *arrAPI {
	return &arrAPI{
		base:    strings.TrimRight(baseURL, "/"),
		key:     apiKey,
		service: service,
		http:    client,
	}
}

func (a *arrAPI) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", path, err)
		}
	}

	factory := func() (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, a.base+path, reader)
		if err != nil {
			return nil, err
		}
		if a.key != "" {
			req.Header.Set("X-Api-Key", a.key)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	resp, err := doWithRetry(ctx, a.http, a.service, factory)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// GetJSON decodes a GET response into out.
func (a *arrAPI) GetJSON(ctx context.Context, path string, out any) error {
	data, err := a.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// PostJSON sends body and decodes the response into out when non-nil.
func (a *arrAPI) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := a.request(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// PutJSON sends body and decodes the response into out when non-nil.
func (a *arrAPI) PutJSON(ctx context.Context, path string, body, out any) error {
	data, err := a.request(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// The *arr APIs express settings as lists of {name, value} field objects.

func fieldsToMap(fields []map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if name, ok := f["name"].(string); ok {
			out[name] = f["value"]
		}
	}
	return out
}

// setFieldValues returns a copy of fields with values overridden by name.
func setFieldValues(fields []map[string]any, overrides map[string]any) []map[string]any {
	updated := make([]map[string]any, 0, len(fields))
	for _, field := range fields {
		item := make(map[string]any, len(field))
		for k, v := range field {
			item[k] = v
		}
		if name, ok := item["name"].(string); ok {
			if value, hit := overrides[name]; hit {
				item["value"] = value
			}
		}
		updated = append(updated, item)
	}
	return updated
}

// normalizeBaseURL strips trailing slashes so URL comparisons ignore
// formatting drift. Empty and "/" normalize to "".
func normalizeBaseURL(value string) string {
	sanitized := strings.TrimSpace(value)
	sanitized = strings.TrimRight(sanitized, "/")
	return sanitized
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}
