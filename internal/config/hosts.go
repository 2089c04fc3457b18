package config

import "strings"

// NormalizeBaseURL turns a host or URL into a scheme-qualified origin with
// no trailing slash. Bare loopback hosts get http://, others https://.
func NormalizeBaseURL(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		if IsLocalhost(host) {
			host = "http://" + host
		} else {
			host = "https://" + host
		}
	}
	return strings.TrimRight(host, "/")
}

// IsLocalhost reports whether host (with optional port) is a loopback name:
// localhost, *.localhost, 127.0.0.1 or [::1].
func IsLocalhost(host string) bool {
	name := host
	if strings.HasPrefix(name, "[") {
		if end := strings.Index(name, "]"); end != -1 {
			name = name[:end+1]
		}
	} else if idx := strings.LastIndex(name, ":"); idx != -1 {
		name = name[:idx]
	}

	switch {
	case name == "localhost", strings.HasSuffix(name, ".localhost"):
		return true
	case name == "127.0.0.1", name == "[::1]":
		return true
	}
	return false
}
