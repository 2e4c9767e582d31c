package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovieTitle(t *testing.T) {
	tests := []struct {
		release string
		want    string
		hasYear bool
	}{
		{"Some.Movie.2021.1080p.WEB.x264-GRP", "Some Movie (2021)", true},
		{"Another Movie (2019) [1080p]", "Another Movie (2019)", true},
		{"Blade_Runner_1982_Remastered_2160p", "Blade Runner (1982)", true},
		{"No.Year.Here.1080p.x265", "No Year Here", false},
		{"Plain Title", "Plain Title", false},
	}
	for _, tc := range tests {
		got, hasYear := movieTitle(tc.release)
		assert.Equal(t, tc.want, got, tc.release)
		assert.Equal(t, tc.hasYear, hasYear, tc.release)
	}
}

func TestMovieTitle_YearAtStartIsNotASplit(t *testing.T) {
	got, hasYear := movieTitle("2012.2009.1080p.BluRay")
	assert.True(t, hasYear)
	assert.Equal(t, "2012 (2009)", got)
}

func TestEpisodeRef(t *testing.T) {
	show, season, ep, ok := episodeRef("Great.Show.S03E07.720p.HDTV.x264")
	assert.True(t, ok)
	assert.Equal(t, "Great Show", show)
	assert.Equal(t, 3, season)
	assert.Equal(t, 7, ep)

	show, season, ep, ok = episodeRef("Other Show 2x05 WEB-DL")
	assert.True(t, ok)
	assert.Equal(t, "Other Show", show)
	assert.Equal(t, 2, season)
	assert.Equal(t, 5, ep)

	_, _, _, ok = episodeRef("Not An Episode 2019")
	assert.False(t, ok)
}

func TestEpisodeRelPath(t *testing.T) {
	got := episodeRelPath("Great.Show.S03E07.720p.HDTV.x264", "great.show.s03e07")
	want := filepath.Join("Great Show", "Season 3", "Great Show - S03E07.mkv")
	assert.Equal(t, want, got)
}

func TestEpisodeRelPath_FallsBackToStem(t *testing.T) {
	got := episodeRelPath("weird-name", "payload_file")
	assert.Equal(t, "payload file.mkv", got)
}

func TestMovieRelPath_StripsQualityTailWithoutYear(t *testing.T) {
	assert.Equal(t, "No Year Here.mkv", movieRelPath("No.Year.Here.1080p.x265", "stem"))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "a b c d", cleanName("a.b_c  d"))
}

func TestStripExtension(t *testing.T) {
	assert.Equal(t, "movie", stripExtension("movie.mkv"))
	assert.Equal(t, "archive.rar", stripExtension("archive.rar"))
}
