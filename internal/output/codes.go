// Package output provides JSON/styled output formatting and the error taxonomy
// shared by the request layer and the CLI.
package output

// Exit codes.
const (
	ExitOK             = 0 // Success
	ExitUsage          = 1 // Invalid arguments or flags
	ExitConfig         = 2 // Missing or invalid configuration
	ExitSessionExpired = 3 // Not authenticated or session gone
	ExitForbidden      = 4 // Authenticated but not allowed (401 after refresh, 403)
	ExitNetwork        = 6 // Connection/DNS/offline
	ExitAPI            = 7 // Server returned an error
)

// Error codes for the JSON envelope.
const (
	CodeUsage          = "usage"
	CodeConfig         = "config"
	CodeSessionExpired = "session_expired"
	CodeNetwork        = "network"
	CodeHTTP           = "http_error"
)

// ExitCodeFor returns the exit code for a given error code and HTTP status.
func ExitCodeFor(code string, status int) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeConfig:
		return ExitConfig
	case CodeSessionExpired:
		return ExitSessionExpired
	case CodeNetwork:
		return ExitNetwork
	case CodeHTTP:
		if status == 401 || status == 403 {
			return ExitForbidden
		}
		return ExitAPI
	default:
		return ExitAPI
	}
}
