package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path segments to base. Segments are escaped, so an
// owner or repository name can never introduce a new path element.
func JoinPath(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, u.EscapedPath())
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	joined := path.Join(escaped...)
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}

	unescaped, err := url.PathUnescape(joined)
	if err != nil {
		return "", err
	}
	u.Path = unescaped
	u.RawPath = joined
	return u.String(), nil
}

// ValidateAbsolute checks that raw is an absolute http(s) URL without
// query or fragment, suitable as a redirect base.
func ValidateAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("URL must not have a query or fragment")
	}
	return nil
}
