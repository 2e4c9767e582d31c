package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// qbitTorrent is one entry from the torrents/info listing. Paths are the
// ones qBittorrent sees inside its own container.
type qbitTorrent struct {
	Hash        string `json:"hash"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	SavePath    string `json:"save_path"`
	ContentPath string `json:"content_path"`
}

// qbitFile is one payload file, relative to the torrent save path.
type qbitFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// qbitClient is a minimal qBittorrent Web API consumer for the worker.
// Authentication is cookie based, so each client carries its own jar.
type qbitClient struct {
	baseURL string
	http    *http.Client
}

func newQbitClient(baseURL string) *qbitClient {
	jar, _ := cookiejar.New(nil)
	return &qbitClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second, Jar: jar},
	}
}

func (c *qbitClient) login(ctx context.Context, username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	body, err := c.postForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("qBittorrent rejected credentials for %s", username)
	}
	return nil
}

// completed lists torrents whose download has finished. Entries without a
// hash or save path are dropped.
func (c *qbitClient) completed(ctx context.Context) ([]qbitTorrent, error) {
	body, err := c.get(ctx, "/api/v2/torrents/info", url.Values{"filter": {"completed"}})
	if err != nil {
		return nil, err
	}
	var items []qbitTorrent
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode torrent list: %w", err)
	}
	out := items[:0]
	for _, item := range items {
		if item.Hash != "" && item.SavePath != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *qbitClient) files(ctx context.Context, hash string) ([]qbitFile, error) {
	body, err := c.get(ctx, "/api/v2/torrents/files", url.Values{"hash": {hash}})
	if err != nil {
		return nil, err
	}
	var files []qbitFile
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	return files, nil
}

// remove deletes torrents from the client while leaving their payload
// files on disk.
func (c *qbitClient) remove(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	form := url.Values{
		"hashes":      {strings.Join(hashes, "|")},
		"deleteFiles": {"false"},
	}
	_, err := c.postForm(ctx, "/api/v2/torrents/delete", form)
	return err
}

func (c *qbitClient) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.baseURL)
	return c.do(req)
}

func (c *qbitClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", c.baseURL)
	return c.do(req)
}

func (c *qbitClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
