package ioutil

import (
	"fmt"
	"io"
	"strings"
)

// Snippet reads up to limit bytes of r for inclusion in error messages and logs.
// Longer bodies are cut and marked with "...". A failed read is described
// rather than silenced.
func Snippet(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
	}
	s := strings.TrimSpace(string(body))
	if truncated {
		s += "..."
	}
	return s
}
