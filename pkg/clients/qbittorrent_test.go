package clients

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempPasswordPattern(t *testing.T) {
	logs := []struct {
		line string
		want string
	}{
		{"A temporary password is provided for this session: zX9kQ2mPw1", "zX9kQ2mPw1"},
		{"The WebUI administrator password was not set. A temporary password for this session: abcDEF123", "abcDEF123"},
		{"WebUI will be started shortly", ""},
	}
	for _, tc := range logs {
		m := tempPasswordPattern.FindStringSubmatch(tc.line)
		if tc.want == "" {
			assert.Nil(t, m)
			continue
		}
		require.Len(t, m, 2)
		assert.Equal(t, tc.want, m[1])
	}
}

func TestLoginCandidates_OrderAndDedupe(t *testing.T) {
	got := loginCandidates("alice", "pw1", "alice", "pw1")
	require.Len(t, got, 3)
	assert.Equal(t, credentialPair{"alice", "pw1"}, got[0])
	assert.Equal(t, credentialPair{"alice", "adminadmin"}, got[1])
	assert.Equal(t, credentialPair{"admin", "adminadmin"}, got[2])
}

func TestLoginCandidates_StoredFirst(t *testing.T) {
	got := loginCandidates("alice", "new", "admin", "old")
	require.NotEmpty(t, got)
	assert.Equal(t, credentialPair{"admin", "old"}, got[0])
}

func TestLoginCandidates_SkipsEmptyPasswords(t *testing.T) {
	got := loginCandidates("alice", "", "", "")
	require.Len(t, got, 2)
	assert.Equal(t, credentialPair{"alice", "adminadmin"}, got[0])
	assert.Equal(t, credentialPair{"admin", "adminadmin"}, got[1])
}

func TestSessionLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("username") == "admin" && r.FormValue("password") == "adminadmin" {
			w.Write([]byte("Ok."))
			return
		}
		w.Write([]byte("Fails."))
	}))
	defer server.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	session := &qbSession{http: &http.Client{Jar: jar}, baseURL: server.URL}

	assert.False(t, session.login(context.Background(), "admin", "wrong"))
	assert.True(t, session.login(context.Background(), "admin", "adminadmin"))
	assert.Equal(t, "admin", session.username)
}

func TestSetConfValue_UpdatesExistingKey(t *testing.T) {
	lines := []string{"[Preferences]", `WebUI\Port=9090`}
	changed := setConfValue(&lines, `WebUI\Port`, "8080")
	assert.True(t, changed)
	assert.Equal(t, []string{"[Preferences]", `WebUI\Port=8080`}, lines)

	changed = setConfValue(&lines, `WebUI\Port`, "8080")
	assert.False(t, changed)
}

func TestSetConfValue_InsertsAfterPreferencesSection(t *testing.T) {
	lines := []string{"[BitTorrent]", "Session\\Port=6881", "[Preferences]", `WebUI\Port=8080`}
	changed := setConfValue(&lines, `WebUI\Username`, "admin")
	assert.True(t, changed)
	assert.Equal(t, `WebUI\Username=admin`, lines[3])
	assert.Equal(t, `WebUI\Port=8080`, lines[4])
}

func TestSetConfValue_AppendsWithoutPreferencesSection(t *testing.T) {
	lines := []string{"[BitTorrent]"}
	setConfValue(&lines, `WebUI\Port`, "8080")
	assert.Equal(t, []string{"[BitTorrent]", `WebUI\Port=8080`}, lines)
}

func TestGetConfValue_StripsQuotes(t *testing.T) {
	lines := []string{`WebUI\Username="admin"`, `WebUI\Port=8080`}
	assert.Equal(t, "admin", getConfValue(lines, `WebUI\Username`))
	assert.Equal(t, "8080", getConfValue(lines, `WebUI\Port`))
	assert.Empty(t, getConfValue(lines, `WebUI\HostHeaderValidation`))
}

func TestQbPasswordHashRoundTrip(t *testing.T) {
	encoded, err := qbPasswordHash("s3cret")
	require.NoError(t, err)
	assert.True(t, qbPasswordMatches(encoded, "s3cret"))
	assert.False(t, qbPasswordMatches(encoded, "other"))
}

func TestQbPasswordMatches_RejectsMalformed(t *testing.T) {
	assert.False(t, qbPasswordMatches("plaintext", "pw"))
	assert.False(t, qbPasswordMatches("@ByteArray(nocolon)", "pw"))
	assert.False(t, qbPasswordMatches("@ByteArray(!!:!!)", "pw"))
}

func TestGenerateWebUIPassword_NonEmptyAndUnique(t *testing.T) {
	a := GenerateWebUIPassword()
	b := GenerateWebUIPassword()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
