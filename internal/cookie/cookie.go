package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/release-watch/internal/envutil"
	"github.com/dgellow/release-watch/internal/log"
)

// Cookie names shared with the web client
const (
	StateCookie         = "githubOAuthState"
	ReposCookie         = "repos"
	ReturnToCookie      = "returnTo"
	EmailMismatchCookie = "githubEmail"
	SessionCookie       = "token"
)

// EmailMismatchTTL is how long the client has to read the mismatch cookie
const EmailMismatchTTL = time.Minute

// TransientCookies are the pre-login cookies consumed by the callback
var TransientCookies = []string{StateCookie, ReposCookie, ReturnToCookie}

// epoch is rendered as "Thu, 01 Jan 1970 00:00:00 GMT"
var epoch = time.Unix(0, 0).UTC()

// Transient builds a cookie for the pre-login phase. It lives for the
// browser session only.
func Transient(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	}
}

// Expired builds a cookie that deletes name with an explicit past expiry
func Expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		Expires: epoch,
		MaxAge:  -1,
	}
}

// Session builds the session credential cookie
func Session(value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	}
}

// EmailMismatch builds the short-lived cookie client code reads to
// prompt for a changed email. It is deliberately readable by scripts.
func EmailMismatch(email string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     EmailMismatchCookie,
		Value:    email,
		Path:     "/",
		Expires:  now.Add(EmailMismatchTTL).UTC(),
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	}
}

// Set writes c to the response
func Set(w http.ResponseWriter, c *http.Cookie) {
	http.SetCookie(w, c)
	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":     c.Name,
		"httpOnly": c.HttpOnly,
		"secure":   c.Secure,
		"expired":  c.MaxAge < 0,
	})
}

// ClearTransient expires every pre-login cookie
func ClearTransient(w http.ResponseWriter) {
	for _, name := range TransientCookies {
		http.SetCookie(w, Expired(name))
	}
	log.LogTraceWithFields("cookie", "Transient cookies cleared", nil)
}

// Get retrieves a cookie value from the request, "" when absent
func Get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
