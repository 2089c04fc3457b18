package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/term"
)

// Palette colors for styled output.
const (
	colorPrimary = "#7aa2f7"
	colorMuted   = "#737aa2"
	colorText    = "#c0caf5"
	colorError   = "#f7768e"
	colorWarning = "#e0af68"
	colorSuccess = "#9ece6a"
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true, unless NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	r := &Renderer{width: width, styled: styled}
	if !styled {
		plain := lipgloss.NewStyle()
		r.Summary, r.Muted, r.Data, r.Error = plain, plain, plain, plain
		r.Hint, r.Warning, r.Success = plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	r.Data = lipgloss.NewStyle().Foreground(lipgloss.Color(colorText))
	r.Error = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)).Italic(true)
	r.Warning = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning))
	r.Success = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess))
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80

	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols >= 40 {
			width = cols
		}
		isTTY = term.IsTerminal(f.Fd())
	}

	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}

	r.renderData(&b, normalizeData(resp.Data))

	if stats, ok := resp.Meta["stats"].(map[string]any); ok && len(stats) > 0 {
		b.WriteString("\n")
		r.renderStats(&b, stats)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")

	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case map[string]any:
		r.renderObject(b, d)

	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}

	case string:
		b.WriteString(r.Data.Render(d))
		b.WriteString("\n")

	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")

	default:
		b.WriteString(r.Data.Render(fmt.Sprintf("%v", data)))
		b.WriteString("\n")
	}
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	if len(data) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}

	keys := make([]string, 0, len(data))
	maxLen := 0
	for k := range data {
		keys = append(keys, k)
		if l := len(formatHeader(k)); l > maxLen {
			maxLen = l
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(k)))
		b.WriteString(label + r.Data.Render(formatCell(data[k])) + "\n")
	}
}

// renderStats renders session statistics in a compact one-liner.
func (r *Renderer) renderStats(b *strings.Builder, stats map[string]any) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %v", strings.ReplaceAll(k, "_", " "), stats[k]))
	}
	b.WriteString(r.Muted.Render("Stats: "+strings.Join(parts, " | ")) + "\n")
}

func formatHeader(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
