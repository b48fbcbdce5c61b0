// Package codec turns attacker-influenced strings into cookie-safe tokens
// and validates what comes back out of them.
package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// MaxRepos bounds how many repositories a pending signup may carry.
const MaxRepos = 100

var (
	returnPathPattern = regexp.MustCompile(`^/[a-z0-9\-]+$`)
	repoOwnerPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,38}$`)
	repoNamePattern   = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// DecodeError reports a cookie payload that could not be decoded.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode " + e.Stage
	}
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode returns the lowercase hex form of text. The result only holds
// [0-9a-f] and is safe in a Set-Cookie value without quoting.
func Encode(text string) string {
	return hex.EncodeToString([]byte(text))
}

// Decode reverses Encode.
func Decode(token string) (string, error) {
	b, err := hex.DecodeString(token)
	if err != nil {
		return "", &DecodeError{Stage: "hex", Err: err}
	}
	return string(b), nil
}

// IsValidReturnPath accepts a single lowercase path segment such as
// "/settings" or "/foo-bar2". Anything else is rejected.
func IsValidReturnPath(text string) bool {
	return returnPathPattern.MatchString(text)
}

// IsValidRepoList reports whether every entry has the owner/name shape
// GitHub allows, without duplicates. An empty list is valid.
func IsValidRepoList(repos []string) bool {
	if len(repos) > MaxRepos {
		return false
	}
	seen := make(map[string]struct{}, len(repos))
	for _, repo := range repos {
		if !isValidRepo(repo) {
			return false
		}
		key := strings.ToLower(repo)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

func isValidRepo(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return false
	}
	if !repoOwnerPattern.MatchString(owner) || !repoNamePattern.MatchString(name) {
		return false
	}
	return name != "." && name != ".."
}

// DecodeRepoList decodes a pending repository list cookie. The payload
// is hex, then URI-escaped JSON: an array of "owner/name" strings.
func DecodeRepoList(token string) ([]string, error) {
	text, err := Decode(token)
	if err != nil {
		return nil, err
	}
	// PathUnescape keeps '+' literal, matching decodeURIComponent.
	text, err = url.PathUnescape(text)
	if err != nil {
		return nil, &DecodeError{Stage: "uri", Err: err}
	}

	var repos []string
	if err := json.Unmarshal([]byte(text), &repos); err != nil {
		return nil, &DecodeError{Stage: "json", Err: err}
	}
	if !IsValidRepoList(repos) {
		return nil, &DecodeError{Stage: "repos", Err: fmt.Errorf("invalid repository list")}
	}
	if repos == nil {
		repos = []string{}
	}
	return repos, nil
}

// DecodeReturnPath decodes a pending return path cookie. It returns ""
// for anything that does not decode to a valid return path.
func DecodeReturnPath(token string) string {
	if token == "" {
		return ""
	}
	path, err := Decode(token)
	if err != nil || !IsValidReturnPath(path) {
		return ""
	}
	return path
}
