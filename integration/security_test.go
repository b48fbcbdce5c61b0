package integration

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/release-watch/internal/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurity_ForgedCallbackIssuesNoSession(t *testing.T) {
	output := startReleaseWatch(t)
	b := newBrowser(t)

	query := url.Values{}
	query.Set("code", fakeGitHubCode)
	query.Set("state", "forged-state")

	resp, err := b.client.Get(appURL + "/oauth/callback?" + query.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, clientHost, resp.Header.Get("Location"))
	assert.Empty(t, b.cookie(cookie.SessionCookie))

	status, _ := b.session(t)
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Eventually(t, func() bool {
		return strings.Contains(output.String(), "state_mismatch")
	}, 2*time.Second, 50*time.Millisecond)
}

func TestSecurity_SessionRejectsGarbageToken(t *testing.T) {
	startReleaseWatch(t)
	b := newBrowser(t)

	u, _ := url.Parse(appURL)
	b.jar.SetCookies(u, []*http.Cookie{{Name: cookie.SessionCookie, Value: "not-a-jwt", Path: "/"}})

	status, _ := b.session(t)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSecurity_ClientSecretNeverLogged(t *testing.T) {
	output := startReleaseWatch(t, "LOG_LEVEL=trace")
	b := newBrowser(t)

	resp := b.login(t, url.Values{"repos": {`["octo/hello"]`}, "returnTo": {"/settings"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.NotEmpty(t, b.cookie(cookie.SessionCookie))

	logs := output.String()
	assert.NotEmpty(t, logs)
	assert.NotContains(t, logs, testClientSecret)
	assert.NotContains(t, logs, testSessionSecret)
	assert.NotContains(t, logs, fakeGitHubToken)
}

