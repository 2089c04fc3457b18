package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK             bool   `json:"ok"`
	Error          string `json:"error"`
	Code           string `json:"code"`
	Status         int    `json:"status,omitempty"`
	SessionExpired bool   `json:"session_expired,omitempty"`
	Hint           string `json:"hint,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatAuto   Format = iota // Auto-detect: TTY → Styled, non-TTY → JSON
	FormatJSON                 // Full envelope
	FormatStyled               // ANSI styled output (forced, even when piped)
	FormatQuiet                // Data only, no envelope
	FormatRaw                  // Data written verbatim (strings unquoted)
)

// ParseFormat maps a config/flag value to a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "styled":
		return FormatStyled
	case "quiet":
		return FormatQuiet
	case "raw":
		return FormatRaw
	default:
		return FormatAuto
	}
}

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer

	// JQ, when set, is applied to the data of success responses before
	// rendering.
	JQ string
}

// Writer handles all output formatting.
type Writer struct {
	opts Options
}

// New creates a new output writer.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	if w.opts.JQ != "" {
		filtered, err := ApplyJQ(w.opts.JQ, resp.Data)
		if err != nil {
			return err
		}
		// A filtered result is always emitted as bare data.
		return w.writeData(filtered)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	resp := &ErrorResponse{
		OK:             false,
		Error:          e.Message,
		Code:           e.Code,
		Status:         e.HTTPStatus,
		SessionExpired: e.SessionExpired,
		Hint:           e.Hint,
	}
	return w.write(resp)
}

func (w *Writer) resolve() Format {
	if w.opts.Format != FormatAuto {
		return w.opts.Format
	}
	if isTTY(w.opts.Writer) {
		return FormatStyled
	}
	return FormatJSON
}

func (w *Writer) write(v any) error {
	switch w.resolve() {
	case FormatQuiet, FormatRaw:
		if resp, ok := v.(*Response); ok {
			return w.writeData(resp.Data)
		}
		return w.writeJSON(v)
	case FormatStyled:
		return w.writeStyled(v)
	default:
		return w.writeJSON(v)
	}
}

func (w *Writer) writeData(data any) error {
	if w.resolve() == FormatRaw {
		if s, ok := data.(string); ok {
			_, err := fmt.Fprintln(w.opts.Writer, s)
			return err
		}
	}
	return w.writeJSON(data)
}

// isTTY checks if the writer is a terminal.
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(f.Fd())
	}
	return false
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeStyled outputs ANSI styled terminal output.
func (w *Writer) writeStyled(v any) error {
	r := NewRenderer(w.opts.Writer, true)
	switch resp := v.(type) {
	case *Response:
		return r.RenderResponse(w.opts.Writer, resp)
	case *ErrorResponse:
		return r.RenderError(w.opts.Writer, resp)
	default:
		return w.writeJSON(v)
	}
}

// normalizeData converts json.RawMessage and typed values to plain Go values
// (map[string]any, []any, string, float64, bool, nil).
func normalizeData(data any) any {
	switch d := data.(type) {
	case nil, map[string]any, []any, string, float64, bool:
		return data
	case json.RawMessage:
		if len(d) == 0 {
			return nil
		}
		var v any
		if err := json.Unmarshal(d, &v); err != nil {
			return string(d)
		}
		return v
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return data
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return data
		}
		return v
	}
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithContext adds context to the response.
func WithContext(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Context == nil {
			r.Context = make(map[string]any)
		}
		r.Context[key] = value
	}
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
