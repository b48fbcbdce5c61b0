package integration

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"
)

const (
	appPort        = "18080"
	fakeGitHubPort = "19090"

	appURL        = "http://localhost:" + appPort
	fakeGitHubURL = "http://localhost:" + fakeGitHubPort
	clientHost    = "http://localhost:18081"

	testClientID      = "test-client-id"
	testClientSecret  = "test-client-secret-do-not-log"
	testSessionSecret = "integration-session-secret-32-bytes!"
)

// syncBuffer collects process output from several goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// trace logs a message if TRACE environment variable is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// testEnv returns the WAB_* environment of a test instance
func testEnv() []string {
	return []string{
		"RELEASE_WATCH_ENV=development",
		"WAB_ADDR=:" + appPort,
		"WAB_OAUTH_CLIENT_ID=" + testClientID,
		"WAB_OAUTH_CLIENT_SECRET=" + testClientSecret,
		"WAB_CLIENT_HOST=" + clientHost,
		"WAB_OAUTH_TIMEOUT=5s",
		"WAB_GITHUB_URL=" + fakeGitHubURL,
		"WAB_GITHUB_API_URL=" + fakeGitHubURL,
		"WAB_SESSION_SECRET=" + testSessionSecret,
		"WAB_STORAGE=memory",
		"WAB_TAGS_FEED_URL=" + fakeGitHubURL,
		"WAB_REDIS_URL=",
		"WAB_OTEL_ENDPOINT=",
	}
}

// startReleaseWatch starts the binary configured from the environment and
// waits until it is healthy. The returned buffer collects its output.
func startReleaseWatch(t *testing.T, extraEnv ...string) *syncBuffer {
	t.Helper()

	cmd := exec.Command(binaryPath)
	cmd.Env = append(os.Environ(), testEnv()...)
	cmd.Env = append(cmd.Env, extraEnv...)

	output := &syncBuffer{}
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start release-watch: %v", err)
	}
	t.Cleanup(func() {
		stopReleaseWatch(cmd)
		if t.Failed() {
			t.Logf("release-watch output:\n%s", output.String())
		}
	})

	waitForReleaseWatch(t)
	return output
}

// stopReleaseWatch stops the server gracefully
func stopReleaseWatch(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	// Try graceful shutdown first (SIGINT)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForReleaseWatch waits for the server to be ready
func waitForReleaseWatch(t *testing.T) {
	t.Helper()
	for range 50 {
		resp, err := http.Get(appURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("release-watch failed to become ready after 10 seconds")
}

// browser follows redirects like a user agent until it is sent back to
// the web client, and returns that last redirect unfollowed.
type browser struct {
	client *http.Client
	jar    *cookiejar.Jar
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating cookie jar: %v", err)
	}
	clientURL, _ := url.Parse(clientHost)
	return &browser{
		jar: jar,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				trace(t, "redirect to %s", req.URL.Redacted())
				if req.URL.Host == clientURL.Host {
					return http.ErrUseLastResponse
				}
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// cookie returns the value the jar would send to the app for name
func (b *browser) cookie(name string) string {
	u, _ := url.Parse(appURL)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// login runs the whole flow from /oauth/start with the given query
func (b *browser) login(t *testing.T, query url.Values) *http.Response {
	t.Helper()
	target := appURL + "/oauth/start"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	resp, err := b.client.Get(target)
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	resp.Body.Close()
	return resp
}
