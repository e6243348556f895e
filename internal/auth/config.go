package auth

import (
	"path"
	"strings"
)

// DefaultPublicPaths are served without a token in jwt mode
var DefaultPublicPaths = []string{
	"/health",
	"/readiness",
	"/version",
	"/metrics",
	"/user/sign-in",
}

// IsPublicPath reports whether requestPath falls under one of publicPaths.
// Matching is per path segment after cleaning, so /health covers /health/live
// but not /healthz, and /health/../repo/all is not public. Paths carrying an
// encoded slash or dot are never public.
func IsPublicPath(requestPath string, publicPaths []string) bool {
	lower := strings.ToLower(requestPath)
	if strings.Contains(lower, "%2f") || strings.Contains(lower, "%2e") {
		return false
	}

	clean := rooted(requestPath)
	for _, p := range publicPaths {
		public := rooted(p)
		switch {
		case public == "/":
			return true
		case clean == public, strings.HasPrefix(clean, public+"/"):
			return true
		}
	}
	return false
}

func rooted(p string) string {
	return path.Clean("/" + p)
}
