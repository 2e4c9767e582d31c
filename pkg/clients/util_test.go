package clients

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigXML(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.xml"), []byte(body), 0o644))
}

func TestReadArrConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfigXML(t, dir, `<Config>
  <ApiKey>abc123def456</ApiKey>
  <Port>7878</Port>
  <UrlBase>/radarr/</UrlBase>
</Config>`)

	assert.Equal(t, "abc123def456", readArrAPIKey(dir))
	assert.Equal(t, 7878, readArrPort(dir))
	assert.Equal(t, "radarr", readArrURLBase(dir))
}

func TestReadArrConfig_MissingFile(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, readArrAPIKey(dir))
	assert.Zero(t, readArrPort(dir))
	assert.Empty(t, readArrURLBase(dir))
}

func TestReadArrConfig_EmptyURLBase(t *testing.T) {
	dir := t.TempDir()
	writeConfigXML(t, dir, `<Config><ApiKey>k</ApiKey><Port>8989</Port><UrlBase></UrlBase></Config>`)
	assert.Empty(t, readArrURLBase(dir))
}

func TestArrPasswordHashRoundTrip(t *testing.T) {
	hash, salt, iterations, err := arrHashPassword("hunter2", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, arrHashIterations, iterations)
	assert.NotEmpty(t, salt)

	assert.True(t, arrVerifyPassword("hunter2", hash, salt, iterations))
	assert.False(t, arrVerifyPassword("hunter3", hash, salt, iterations))
	assert.False(t, arrVerifyPassword("hunter2", hash, salt, iterations+1))
}

func TestArrHashPassword_FixedSaltIsDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	h1, _, _, err := arrHashPassword("pw", 10_000, salt)
	require.NoError(t, err)
	h2, _, _, err := arrHashPassword("pw", 10_000, salt)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestArrPasswordRecord_MissingDatabase(t *testing.T) {
	rec, err := arrPasswordRecord(filepath.Join(t.TempDir(), "radarr.db"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestArrPasswordMatches_MissingDatabase(t *testing.T) {
	assert.False(t, arrPasswordMatches(filepath.Join(t.TempDir(), "radarr.db"), "admin", "pw"))
}
