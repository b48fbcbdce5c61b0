// Package feed reads the tags GitHub publishes for a repository and
// attaches them to newly watched repositories.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgellow/release-watch/internal/ioutil"
	"github.com/dgellow/release-watch/internal/urlutil"
)

// DefaultBaseURL serves owner/name/tags.atom for public repositories
const DefaultBaseURL = "https://github.com"

const (
	maxFeedBytes   = 2 << 20
	errorBodyLimit = 256
)

// TagFetcher returns the tag names of a repository, newest first
type TagFetcher interface {
	Tags(ctx context.Context, repo string) ([]string, error)
}

// atomFeed is the subset of an Atom document we read
type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title string `xml:"title"`
}

// Client fetches tags.atom feeds
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a feed client. An empty baseURL uses DefaultBaseURL,
// a nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Tags fetches the tag feed of repo ("owner/name")
func (c *Client) Tags(ctx context.Context, repo string) ([]string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository %q", repo)
	}

	feedURL, err := urlutil.JoinPath(c.baseURL, owner, name, "tags.atom")
	if err != nil {
		return nil, fmt.Errorf("building feed URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d: %s", repo, resp.StatusCode, ioutil.Snippet(resp.Body, errorBodyLimit))
	}

	var feed atomFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding %s feed: %w", repo, err)
	}

	tags := make([]string, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if title := strings.TrimSpace(entry.Title); title != "" {
			tags = append(tags, title)
		}
	}
	return tags, nil
}
