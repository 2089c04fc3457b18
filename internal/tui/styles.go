// Package tui provides the interactive prompts and progress indicators used
// by the account commands.
package tui

import (
	"os"

	"charm.land/lipgloss/v2"
)

// Palette colors, shared with the output renderer.
const (
	colorPrimary = "#7aa2f7"
	colorSuccess = "#9ece6a"
	colorError   = "#f7768e"
	colorMuted   = "#737aa2"
)

// Styles holds the styles for progress output.
type Styles struct {
	Spinner lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles returns the default styles, or unstyled ones when NO_COLOR is set.
func NewStyles() *Styles {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		plain := lipgloss.NewStyle()
		return &Styles{Spinner: plain, Success: plain, Error: plain, Muted: plain}
	}
	return &Styles{
		Spinner: lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
	}
}
