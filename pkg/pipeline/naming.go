package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	yearPattern         = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	sxxExxPattern       = regexp.MustCompile(`(?i)[ ._-]S(\d{1,2})[ ._]?E(\d{2,3})\b`)
	crossEpisodePattern = regexp.MustCompile(`(?i)[ ._-](\d{1,2})x(\d{2,3})\b`)
	spaceRun            = regexp.MustCompile(`\s+`)
)

// Release-name tokens that mark the start of the quality/codec tail. Used
// only when no year is present to cut the title.
var qualityTokens = map[string]bool{
	"480p": true, "720p": true, "1080p": true, "2160p": true, "4k": true,
	"bluray": true, "bdrip": true, "brrip": true, "webrip": true,
	"web-dl": true, "webdl": true, "web": true, "hdtv": true, "dvdrip": true,
	"x264": true, "x265": true, "h264": true, "h265": true, "hevc": true,
	"avc": true, "remux": true, "proper": true, "repack": true,
}

// cleanName normalizes a release name: dots and underscores become
// spaces, bracketed release-group prefixes go away, whitespace collapses.
func cleanName(name string) string {
	name = strings.NewReplacer(".", " ", "_", " ").Replace(name)
	name = spaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// stripExtension drops a trailing video extension, if any.
func stripExtension(name string) string {
	if videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// movieTitle parses "Title (Year)" out of a release name. The year is the
// last 4-digit token in [1900,2099] that does not start the name; scene
// separators around it are tolerated. The bool reports whether a year was
// found.
func movieTitle(release string) (string, bool) {
	clean := cleanName(stripExtension(release))
	matches := yearPattern.FindAllStringIndex(clean, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		if start == 0 {
			continue
		}
		title := strings.Trim(clean[:start], " (-[")
		if title == "" {
			continue
		}
		return fmt.Sprintf("%s (%s)", title, clean[start:end]), true
	}
	if title := trimQualityTail(clean); title != "" {
		return title, false
	}
	return clean, false
}

// episodeRef parses "Show SnnEmm" or "Show nnxmm" out of a release name.
func episodeRef(release string) (show string, season, episode int, ok bool) {
	clean := cleanName(stripExtension(release))
	m := sxxExxPattern.FindStringSubmatchIndex(clean)
	if m == nil {
		m = crossEpisodePattern.FindStringSubmatchIndex(clean)
	}
	if m == nil || m[0] == 0 {
		return "", 0, 0, false
	}
	show = strings.Trim(clean[:m[0]], " -")
	if show == "" {
		return "", 0, 0, false
	}
	season, _ = strconv.Atoi(clean[m[2]:m[3]])
	episode, _ = strconv.Atoi(clean[m[4]:m[5]])
	return show, season, episode, true
}

// trimQualityTail cuts a title at the first quality/codec token.
func trimQualityTail(clean string) string {
	words := strings.Fields(clean)
	for i, w := range words {
		if qualityTokens[strings.ToLower(w)] {
			return strings.Join(words[:i], " ")
		}
	}
	return clean
}

// movieRelPath yields the library-relative output path for a movie
// torrent, falling back to the cleaned source stem when no year parses.
func movieRelPath(torrentName, sourceStem string) string {
	title, ok := movieTitle(torrentName)
	if !ok && title == "" {
		title = cleanName(sourceStem)
	}
	return title + ".mkv"
}

// episodeRelPath yields the "Show/Season n/Show - SnnEmm.mkv" layout for
// a TV torrent, falling back to a flat cleaned name when no episode
// reference parses.
func episodeRelPath(torrentName, sourceStem string) string {
	show, season, episode, ok := episodeRef(torrentName)
	if !ok {
		if show, season, episode, ok = episodeRef(sourceStem); !ok {
			return cleanName(stripExtension(sourceStem)) + ".mkv"
		}
	}
	return filepath.Join(
		show,
		fmt.Sprintf("Season %d", season),
		fmt.Sprintf("%s - S%02dE%02d.mkv", show, season, episode),
	)
}
