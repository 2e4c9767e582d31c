package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ereinha3/eznas/pkg/execx"
	"github.com/ereinha3/eznas/pkg/types"
)

const probeTimeout = 30 * time.Second

// probeStream is one stream entry from ffprobe's JSON output.
type probeStream struct {
	Index       int               `json:"index"`
	CodecType   string            `json:"codec_type"`
	Tags        map[string]string `json:"tags"`
	Disposition map[string]int    `json:"disposition"`
}

// language returns the stream's lowercased language tag, "und" when the
// container carries none.
func (s probeStream) language() string {
	lang := strings.ToLower(strings.TrimSpace(s.Tags["language"]))
	if lang == "" {
		return "und"
	}
	return lang
}

func (s probeStream) forced() bool {
	return s.Disposition["forced"] != 0
}

// probeStreams runs ffprobe against the source file and returns its
// stream table.
func probeStreams(ctx context.Context, runner execx.Runner, src string) ([]probeStream, error) {
	res, err := runner.Run(ctx, execx.Cmd{
		Name:    "ffprobe",
		Args:    []string{"-v", "error", "-print_format", "json", "-show_streams", src},
		Timeout: probeTimeout,
	})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	var out struct {
		Streams []probeStream `json:"streams"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	return out.Streams, nil
}

// trackSelection lists the stream indices the remux keeps. copyAll marks
// the probe-failure fallback that maps every audio and subtitle stream.
type trackSelection struct {
	audio   []int
	subs    []int
	copyAll bool
}

// selectStreams applies the media policy to a probed stream table. The
// first audio stream's language is treated as the original language and
// always kept; subtitles tagged forced survive when the policy lists
// "forced".
func selectStreams(streams []probeStream, policy types.MediaPolicyEntry) trackSelection {
	keepAudio := languageSet(policy.KeepAudio)
	keepSubs := languageSet(policy.KeepSubs)
	keepForced := keepSubs["forced"]

	var sel trackSelection
	original := ""
	for _, s := range streams {
		lang := s.language()
		switch s.CodecType {
		case "audio":
			if original == "" {
				original = lang
			}
			if keepAudio[lang] || lang == original {
				sel.audio = append(sel.audio, s.Index)
			}
		case "subtitle":
			if keepSubs[lang] || (keepForced && s.forced()) {
				sel.subs = append(sel.subs, s.Index)
			}
		}
	}
	return sel
}

func languageSet(langs []string) map[string]bool {
	set := make(map[string]bool, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			set[l] = true
		}
	}
	return set
}

// remuxArgs builds the ffmpeg argument list for a codec-copy remux into
// dst. Video stream 0 is always mapped; the selection picks the rest by
// source index.
func remuxArgs(src, dst string, sel trackSelection) []string {
	args := []string{"-hide_banner", "-y", "-i", src, "-map", "0:v:0?"}
	if sel.copyAll {
		args = append(args, "-map", "0:a?", "-map", "0:s?")
	} else {
		for _, idx := range sel.audio {
			args = append(args, "-map", fmt.Sprintf("0:%d", idx))
		}
		for _, idx := range sel.subs {
			args = append(args, "-map", fmt.Sprintf("0:%d", idx))
		}
	}
	return append(args, "-c", "copy", dst)
}
