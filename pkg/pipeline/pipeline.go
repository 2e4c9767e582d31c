package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/metrics"
	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
)

// DefaultInterval is the pause between polling passes when the caller
// does not override it.
const DefaultInterval = 60 * time.Second

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true, ".ts": true,
}

// Worker polls qBittorrent for completed downloads, remuxes the primary
// video file per the media policy and files the result into the library.
// A persisted ledger keyed by torrent hash keeps passes idempotent.
type Worker struct {
	store  *store.Store
	runner execx.Runner
	logger zerolog.Logger

	// baseURL overrides the qBittorrent endpoint; tests point it at a
	// local server.
	baseURL string
}

// New builds a worker over the given state store. A nil runner means
// real subprocesses.
func New(st *store.Store, runner execx.Runner) *Worker {
	if runner == nil {
		runner = execx.Local
	}
	return &Worker{
		store:  st,
		runner: runner,
		logger: log.WithComponent("pipeline"),
	}
}

// Run polls until the context is cancelled. A failed pass is logged and
// the loop proceeds to the next tick.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w.logger.Info().Dur("interval", interval).Msg("pipeline worker started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.Tick(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("pipeline pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one polling pass.
func (w *Worker) Tick(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PipelinePassDuration)

	cfg, err := w.store.LoadStack()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Services.Pipeline.Enabled {
		return nil
	}

	qb := newQbitClient(w.qbBaseURL())
	user, pass := w.credentials(cfg)
	if err := qb.login(ctx, user, pass); err != nil {
		return fmt.Errorf("qBittorrent login: %w", err)
	}
	torrents, err := qb.completed(ctx)
	if err != nil {
		return fmt.Errorf("list completed torrents: %w", err)
	}
	if len(torrents) == 0 {
		return nil
	}

	ledger, err := w.store.LoadPipelineState()
	if err != nil {
		return fmt.Errorf("load pipeline ledger: %w", err)
	}
	paths := config.NewTranslator(cfg.Paths)
	categories := cfg.DownloadPolicy.Categories

	for _, torrent := range torrents {
		if torrent.Category != categories.Radarr && torrent.Category != categories.Sonarr {
			continue
		}
		if ledger.IsProcessed(torrent.Hash) {
			continue
		}
		status, err := w.process(ctx, qb, cfg, paths, torrent)
		if err != nil {
			// Transient failure; the torrent is retried next pass.
			w.logger.Warn().Err(err).Str("torrent", torrent.Name).Msg("processing deferred")
			continue
		}
		ledger.Mark(torrent.Hash, status, time.Now().Unix())
		if err := w.store.SavePipelineState(ledger); err != nil {
			return fmt.Errorf("save pipeline ledger: %w", err)
		}
		metrics.PipelineItemsTotal.WithLabelValues(status).Inc()
		w.logger.Info().
			Str("torrent", torrent.Name).
			Str("status", status).
			Msg("torrent processed")
	}
	return nil
}

// process handles one completed torrent end to end and returns its
// ledger status. An error means nothing was recorded and the torrent is
// picked up again on the next pass.
func (w *Worker) process(ctx context.Context, qb *qbitClient, cfg *types.StackConfig,
	paths *config.Translator, torrent qbitTorrent) (string, error) {
	files, err := qb.files(ctx, torrent.Hash)
	if err != nil {
		return "", fmt.Errorf("list torrent files: %w", err)
	}
	primary, ok := largestVideo(files)
	if !ok {
		return types.PipelineStatusSkippedNoFiles, nil
	}
	source := w.resolveDownloadPath(cfg, paths, filepath.Join(torrent.SavePath, primary.Name))
	stem := strings.TrimSuffix(filepath.Base(primary.Name), filepath.Ext(primary.Name))

	stagingDir := filepath.Join(w.scratchRoot(cfg, paths), "postproc", torrent.Hash)
	if err := os.MkdirAll(stagingDir, 0o775); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	staged := filepath.Join(stagingDir, stem+".mkv")

	selection := w.selectTracks(ctx, cfg, source)
	res, err := w.runner.Run(ctx, execx.Cmd{
		Name: "ffmpeg",
		Args: remuxArgs(source, staged, selection),
	})
	if err != nil || !res.OK() {
		if err == nil {
			err = fmt.Errorf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		w.logger.Error().Err(err).Str("source", source).Msg("remux failed")
		os.RemoveAll(stagingDir)
		return types.PipelineStatusFFmpegFailed, nil
	}

	final := filepath.Join(w.libraryRoot(cfg, paths, torrent.Category),
		w.outputRelPath(cfg, torrent.Category, torrent.Name, stem))
	if err := os.MkdirAll(filepath.Dir(final), 0o775); err != nil {
		return "", fmt.Errorf("create library dir: %w", err)
	}
	if err := moveFile(staged, final); err != nil {
		return "", fmt.Errorf("move into library: %w", err)
	}
	os.RemoveAll(stagingDir)

	w.cleanupDownload(cfg, paths, torrent.ContentPath)
	if err := qb.remove(ctx, []string{torrent.Hash}); err != nil {
		w.logger.Warn().Err(err).Str("torrent", torrent.Name).Msg("torrent removal failed")
	}
	return types.PipelineStatusOK, nil
}

// selectTracks probes the source and applies the media policy. A failed
// probe degrades to copying every audio and subtitle stream.
func (w *Worker) selectTracks(ctx context.Context, cfg *types.StackConfig, source string) trackSelection {
	streams, err := probeStreams(ctx, w.runner, source)
	if err != nil {
		w.logger.Warn().Err(err).Str("source", source).Msg("probe failed, copying all streams")
		return trackSelection{copyAll: true}
	}
	return selectStreams(streams, cfg.MediaPolicy.Movies)
}

func (w *Worker) outputRelPath(cfg *types.StackConfig, category, torrentName, stem string) string {
	if category == cfg.DownloadPolicy.Categories.Sonarr {
		return episodeRelPath(torrentName, stem)
	}
	return movieRelPath(torrentName, stem)
}

func (w *Worker) libraryRoot(cfg *types.StackConfig, paths *config.Translator, category string) string {
	sub := "movies"
	if category == cfg.DownloadPolicy.Categories.Sonarr {
		sub = "tv"
	}
	return paths.ToContainer(filepath.Join(cfg.Paths.Pool, "media", sub))
}

func (w *Worker) scratchRoot(cfg *types.StackConfig, paths *config.Translator) string {
	return paths.ToContainer(cfg.Paths.EffectiveScratch())
}

// resolveDownloadPath translates a path reported by the qBittorrent API
// into one this process can reach. qBittorrent sees its downloads under
// /downloads, which the compose bundle binds to <scratch>/downloads on
// the host.
func (w *Worker) resolveDownloadPath(cfg *types.StackConfig, paths *config.Translator, p string) string {
	if rest, ok := strings.CutPrefix(p, config.ContainerDownloads); ok {
		if rest == "" || strings.HasPrefix(rest, "/") {
			host := filepath.Join(cfg.Paths.EffectiveScratch(), "downloads", strings.TrimPrefix(rest, "/"))
			return paths.ToContainer(host)
		}
	}
	return paths.ToContainer(p)
}

// cleanupDownload removes the torrent payload after the remuxed copy is
// in the library. Failure is logged, not fatal; the space is reclaimable
// by hand.
func (w *Worker) cleanupDownload(cfg *types.StackConfig, paths *config.Translator, contentPath string) {
	if contentPath == "" {
		return
	}
	resolved := w.resolveDownloadPath(cfg, paths, contentPath)
	if err := os.RemoveAll(resolved); err != nil {
		w.logger.Warn().Err(err).Str("path", resolved).Msg("download cleanup failed")
	}
}

func (w *Worker) credentials(cfg *types.StackConfig) (string, string) {
	user := cfg.Services.Qbittorrent.Username
	pass := cfg.Services.Qbittorrent.Password
	if secrets, err := w.store.LoadSecrets(); err == nil {
		if u := secrets.Get("qbittorrent", "username"); u != "" {
			user = u
		}
		if p := secrets.Get("qbittorrent", "password"); p != "" {
			pass = p
		}
	}
	if user == "" {
		user = "admin"
	}
	return user, pass
}

func (w *Worker) qbBaseURL() string {
	if w.baseURL != "" {
		return w.baseURL
	}
	return fmt.Sprintf("http://qbittorrent:%d", config.InternalPorts["qbittorrent"])
}

// largestVideo picks the biggest payload file with a video extension.
func largestVideo(files []qbitFile) (qbitFile, bool) {
	var best qbitFile
	found := false
	for _, f := range files {
		if !videoExtensions[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		if !found || f.Size > best.Size {
			best = f
			found = true
		}
	}
	return best, found
}

// moveFile renames src to dst, copying across filesystems when rename is
// not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o664)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
