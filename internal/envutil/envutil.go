package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment.
const EnvVar = "RELEASE_WATCH_ENV"

// IsDev reports whether we run in development mode, where cookies
// are issued without the Secure attribute so plain-http hosts work.
func IsDev() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvVar))) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}
