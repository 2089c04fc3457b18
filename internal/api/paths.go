package api

import (
	"path"
	"strings"
)

// publicPaths can be called without credentials. A 401 from one of them is
// an ordinary failure, never a reason to refresh.
var publicPaths = []string{
	"/api/v1/auth/sign-in",
	"/api/v1/auth/sign-up",
	"/api/v1/auth/refresh-token",
	"/api/v1/auth/forgot-password",
	"/api/v1/auth/reset-password",
	"/api/v1/auth/verify-email",
	"/api/v1/auth/oauth/*/authorize",
	"/api/v1/auth/oauth/*/callback",
}

// IsPublicPath reports whether p is on the unauthenticated allow-list.
// Query strings and trailing slashes are ignored.
func IsPublicPath(p string) bool {
	p, _, _ = strings.Cut(p, "?")
	p, _, _ = strings.Cut(p, "#")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	for _, pattern := range publicPaths {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
