package emailutil

import "strings"

// Normalize normalizes an email address for lookups and uniqueness checks
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

