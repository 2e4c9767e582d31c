package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ereinha3/eznas/pkg/types"
)

// PermissionError carries the exact shell commands that fix an unwritable
// stack directory.
type PermissionError struct {
	Path   string
	Detail string
	FixCmd string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("cannot write to %s (%s). Fix with:\n  %s", e.Path, e.Detail, e.FixCmd)
}

// EnsureDirectories creates every directory the stack needs and verifies
// each is writable, fixing ownership where the process has the authority
// to. Returns the directories that were created. Failures surface as
// *PermissionError with remediation commands.
func (s *Store) EnsureDirectories(cfg *types.StackConfig) ([]string, error) {
	var created []string
	uid := cfg.Runtime.UserID
	gid := cfg.Runtime.GroupID

	ensure := func(path string) error {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return &PermissionError{
					Path:   path,
					Detail: "exists but is not a directory",
					FixCmd: fmt.Sprintf("sudo rm %s", path),
				}
			}
			if writable(path) {
				return nil
			}
			// Try to repair in place before giving up.
			_ = os.Chmod(path, 0o775)
			if os.Geteuid() == 0 {
				_ = os.Chown(path, uid, gid)
			}
			if writable(path) {
				return nil
			}
			return permissionError(path, uid, gid)
		}
		if err := os.MkdirAll(path, 0o775); err != nil {
			return permissionError(path, uid, gid)
		}
		_ = os.Chmod(path, 0o775)
		if os.Geteuid() == 0 {
			_ = os.Chown(path, uid, gid)
		}
		created = append(created, path)
		return nil
	}

	pool := cfg.Paths.Pool
	appdata := cfg.Paths.Appdata

	scratchRoot := cfg.Paths.Scratch
	downloadRoot := ""
	if scratchRoot != "" {
		downloadRoot = filepath.Join(scratchRoot, "downloads")
	} else {
		scratchRoot = filepath.Join(pool, "downloads")
		downloadRoot = scratchRoot
	}

	// Base roots first; nothing else makes sense if these fail.
	baseDirs := []string{pool, appdata}
	if cfg.Paths.Scratch != "" {
		baseDirs = append(baseDirs, cfg.Paths.Scratch)
	}
	for _, dir := range baseDirs {
		if err := ensure(dir); err != nil {
			return created, err
		}
	}

	// Per-service appdata for enabled services.
	for _, name := range []string{"qbittorrent", "radarr", "sonarr", "prowlarr", "jellyseerr", "jellyfin", "pipeline"} {
		svc, ok := cfg.Services.ByName(name)
		if !ok || !svc.Enabled {
			continue
		}
		if err := ensure(filepath.Join(appdata, name)); err != nil {
			return created, err
		}
	}

	if cfg.Proxy.Enabled {
		traefikDir := filepath.Join(appdata, "traefik")
		for _, dir := range []string{traefikDir, filepath.Join(traefikDir, "certs")} {
			if err := ensure(dir); err != nil {
				return created, err
			}
		}
	}

	// Download and processing working directories.
	for _, dir := range []string{
		scratchRoot,
		downloadRoot,
		filepath.Join(downloadRoot, "complete"),
		filepath.Join(downloadRoot, "incomplete"),
		filepath.Join(scratchRoot, "postproc"),
		filepath.Join(scratchRoot, "transcode"),
	} {
		if err := ensure(dir); err != nil {
			return created, err
		}
	}

	// Per-category completed download dirs.
	complete := filepath.Join(downloadRoot, "complete")
	for _, category := range []string{cfg.DownloadPolicy.Categories.Radarr, cfg.DownloadPolicy.Categories.Sonarr} {
		if err := ensure(filepath.Join(complete, category)); err != nil {
			return created, err
		}
	}

	// Media library.
	mediaRoot := filepath.Join(pool, "media")
	for _, section := range []string{"movies", "tv"} {
		if err := ensure(filepath.Join(mediaRoot, section)); err != nil {
			return created, err
		}
	}

	return created, nil
}

func writable(path string) bool {
	return unix.Access(path, unix.W_OK|unix.X_OK) == nil
}

func permissionError(path string, uid, gid int) error {
	target := path
	detail := "unknown owner"
	st, err := os.Stat(path)
	if err != nil {
		target = filepath.Dir(path)
		st, err = os.Stat(target)
	}
	if err == nil {
		if sys, ok := st.Sys().(*syscall.Stat_t); ok {
			detail = fmt.Sprintf("owned by %d:%d (%o)", sys.Uid, sys.Gid, st.Mode().Perm())
		}
	}
	return &PermissionError{
		Path:   path,
		Detail: detail,
		FixCmd: fmt.Sprintf("sudo chown -R %d:%d %s && sudo chmod -R 775 %s", uid, gid, target, target),
	}
}
