package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/store"
	"github.com/ereinha3/eznas/pkg/types"
)

const probeJSON = `{"streams":[
	{"index":0,"codec_type":"video"},
	{"index":1,"codec_type":"audio","tags":{"language":"eng"}},
	{"index":2,"codec_type":"audio","tags":{"language":"fre"}},
	{"index":3,"codec_type":"subtitle","tags":{"language":"eng"}}
]}`

type qbFixture struct {
	torrents string
	files    string
	deletes  atomic.Int32
}

func (f *qbFixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(f.torrents))
	})
	mux.HandleFunc("/api/v2/torrents/files", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(f.files))
	})
	mux.HandleFunc("/api/v2/torrents/delete", func(w http.ResponseWriter, r *http.Request) {
		f.deletes.Add(1)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// remuxRunner answers ffprobe with canned stream data and has ffmpeg
// write its output file.
func remuxRunner(t *testing.T, ffmpegExit int) execx.Runner {
	t.Helper()
	return execx.RunnerFunc(func(ctx context.Context, cmd execx.Cmd) (execx.Result, error) {
		switch cmd.Name {
		case "ffprobe":
			return execx.Result{Stdout: probeJSON}, nil
		case "ffmpeg":
			if ffmpegExit != 0 {
				return execx.Result{ExitCode: ffmpegExit, Stderr: "muxer error"}, nil
			}
			dst := cmd.Args[len(cmd.Args)-1]
			require.NoError(t, os.WriteFile(dst, []byte("remuxed"), 0o644))
			return execx.Result{}, nil
		}
		return execx.Result{ExitCode: 127}, fmt.Errorf("unexpected command %s", cmd.Name)
	})
}

func newTestWorker(t *testing.T, fx *qbFixture, runner execx.Runner) (*Worker, *types.StackConfig) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths = types.PathConfig{
		Pool:    t.TempDir(),
		Scratch: t.TempDir(),
		Appdata: t.TempDir(),
	}
	st := store.New(t.TempDir(), false)
	require.NoError(t, st.SaveStack(cfg))

	w := New(st, runner)
	w.baseURL = fx.server(t).URL
	return w, cfg
}

// seedDownload places a payload file where the worker expects the
// qBittorrent /downloads mount to land on disk.
func seedDownload(t *testing.T, cfg *types.StackConfig, rel string) string {
	t.Helper()
	full := filepath.Join(cfg.Paths.Scratch, "downloads", rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("payload"), 0o644))
	return full
}

func TestTick_RemuxesMovieIntoLibrary(t *testing.T) {
	release := "Some.Movie.2021.1080p.WEB.x264"
	fx := &qbFixture{
		torrents: fmt.Sprintf(`[{"hash":"abc123","name":"%s","category":"movies",
			"save_path":"/downloads/complete/movies",
			"content_path":"/downloads/complete/movies/%s"}]`, release, release),
		files: fmt.Sprintf(`[
			{"name":"%s/%s.mkv","size":5000},
			{"name":"%s/info.nfo","size":10}
		]`, release, release, release),
	}
	w, cfg := newTestWorker(t, fx, remuxRunner(t, 0))
	payload := seedDownload(t, cfg, filepath.Join("complete", "movies", release, release+".mkv"))

	require.NoError(t, w.Tick(context.Background()))

	final := filepath.Join(cfg.Paths.Pool, "media", "movies", "Some Movie (2021).mkv")
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "remuxed", string(data))

	// Payload and staging are cleaned up, torrent deleted, ledger marked.
	assert.NoFileExists(t, payload)
	assert.NoDirExists(t, filepath.Join(cfg.Paths.Scratch, "postproc", "abc123"))
	assert.Equal(t, int32(1), fx.deletes.Load())

	ledger, err := w.store.LoadPipelineState()
	require.NoError(t, err)
	assert.Equal(t, types.PipelineStatusOK, ledger.Processed["abc123"].Status)
}

func TestTick_TVEpisodeLayout(t *testing.T) {
	release := "Great.Show.S03E07.720p.HDTV"
	fx := &qbFixture{
		torrents: fmt.Sprintf(`[{"hash":"tv1","name":"%s","category":"tv",
			"save_path":"/downloads/complete/tv",
			"content_path":"/downloads/complete/tv/%s"}]`, release, release),
		files: fmt.Sprintf(`[{"name":"%s/%s.mkv","size":900}]`, release, release),
	}
	w, cfg := newTestWorker(t, fx, remuxRunner(t, 0))
	seedDownload(t, cfg, filepath.Join("complete", "tv", release, release+".mkv"))

	require.NoError(t, w.Tick(context.Background()))

	final := filepath.Join(cfg.Paths.Pool, "media", "tv",
		"Great Show", "Season 3", "Great Show - S03E07.mkv")
	assert.FileExists(t, final)
}

func TestTick_FfmpegFailureIsRecorded(t *testing.T) {
	fx := &qbFixture{
		torrents: `[{"hash":"bad1","name":"Broken.Movie.2020","category":"movies",
			"save_path":"/downloads/complete/movies",
			"content_path":"/downloads/complete/movies/Broken.Movie.2020"}]`,
		files: `[{"name":"Broken.Movie.2020/file.mkv","size":100}]`,
	}
	w, cfg := newTestWorker(t, fx, remuxRunner(t, 1))
	payload := seedDownload(t, cfg, filepath.Join("complete", "movies", "Broken.Movie.2020", "file.mkv"))

	require.NoError(t, w.Tick(context.Background()))

	ledger, err := w.store.LoadPipelineState()
	require.NoError(t, err)
	assert.Equal(t, types.PipelineStatusFFmpegFailed, ledger.Processed["bad1"].Status)

	// The download stays put and the torrent is not deleted.
	assert.FileExists(t, payload)
	assert.Equal(t, int32(0), fx.deletes.Load())
	assert.NoFileExists(t, filepath.Join(cfg.Paths.Pool, "media", "movies", "Broken Movie (2020).mkv"))
}

func TestTick_NoVideoFilesIsSkipped(t *testing.T) {
	fx := &qbFixture{
		torrents: `[{"hash":"txt1","name":"Just.Text","category":"movies",
			"save_path":"/downloads/complete/movies","content_path":""}]`,
		files: `[{"name":"Just.Text/readme.txt","size":100}]`,
	}
	w, _ := newTestWorker(t, fx, remuxRunner(t, 0))

	require.NoError(t, w.Tick(context.Background()))

	ledger, err := w.store.LoadPipelineState()
	require.NoError(t, err)
	assert.Equal(t, types.PipelineStatusSkippedNoFiles, ledger.Processed["txt1"].Status)
	assert.Equal(t, int32(0), fx.deletes.Load())
}

func TestTick_IgnoresForeignCategories(t *testing.T) {
	fx := &qbFixture{
		torrents: `[{"hash":"x1","name":"Whatever","category":"software",
			"save_path":"/downloads/complete/software","content_path":""}]`,
	}
	w, _ := newTestWorker(t, fx, remuxRunner(t, 0))

	require.NoError(t, w.Tick(context.Background()))

	ledger, err := w.store.LoadPipelineState()
	require.NoError(t, err)
	assert.False(t, ledger.IsProcessed("x1"))
}

func TestTick_LedgerPreventsReprocessing(t *testing.T) {
	release := "Some.Movie.2021.1080p"
	fx := &qbFixture{
		torrents: fmt.Sprintf(`[{"hash":"abc123","name":"%s","category":"movies",
			"save_path":"/downloads/complete/movies",
			"content_path":"/downloads/complete/movies/%s"}]`, release, release),
		files: fmt.Sprintf(`[{"name":"%s/%s.mkv","size":5000}]`, release, release),
	}
	w, cfg := newTestWorker(t, fx, remuxRunner(t, 0))
	seedDownload(t, cfg, filepath.Join("complete", "movies", release, release+".mkv"))

	require.NoError(t, w.Tick(context.Background()))
	require.NoError(t, w.Tick(context.Background()))

	assert.Equal(t, int32(1), fx.deletes.Load())
}

func TestTick_DisabledPipelineDoesNothing(t *testing.T) {
	fx := &qbFixture{}
	w, cfg := newTestWorker(t, fx, remuxRunner(t, 0))
	cfg.Services.Pipeline.Enabled = false
	require.NoError(t, w.store.SaveStack(cfg))

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, int32(0), fx.deletes.Load())
}

func TestLargestVideo(t *testing.T) {
	files := []qbitFile{
		{Name: "a/sample.mkv", Size: 100},
		{Name: "a/feature.mkv", Size: 9000},
		{Name: "a/feature.nfo", Size: 99999},
	}
	best, ok := largestVideo(files)
	require.True(t, ok)
	assert.Equal(t, "a/feature.mkv", best.Name)

	_, ok = largestVideo([]qbitFile{{Name: "readme.txt", Size: 1}})
	assert.False(t, ok)
}

func TestMoveFile_Rename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mkv")
	dst := filepath.Join(dir, "dst.mkv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)
}
