// Package commands implements the CLI commands.
package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapbooth/booth-cli/internal/appctx"
	"github.com/snapbooth/booth-cli/internal/output"
	"github.com/snapbooth/booth-cli/internal/tui"
)

// requireApp returns the app stored on the command context.
func requireApp(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}

// readPassword returns the password from stdin when fromStdin is set,
// otherwise prompts for it.
func readPassword(cmd *cobra.Command, app *appctx.App, fromStdin bool, title string) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading password: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", output.ErrUsage("No password on stdin")
		}
		return line, nil
	}
	if !app.IsInteractive() {
		return "", output.ErrUsageHint("Password required", "Pipe it in with --password-stdin")
	}
	pw, err := tui.Password(title)
	return pw, promptErr(err)
}

// promptValue returns value when set, otherwise prompts for it.
func promptValue(app *appctx.App, value, flag, title, placeholder string) (string, error) {
	if value != "" {
		return value, nil
	}
	if !app.IsInteractive() {
		return "", output.ErrUsage("--" + flag + " is required")
	}
	v, err := tui.InputRequired(title, placeholder)
	return v, promptErr(err)
}

func promptErr(err error) error {
	if err == nil {
		return nil
	}
	if tui.IsAborted(err) {
		return output.ErrUsage("Canceled")
	}
	return err
}

// readBody parses --data. "@file" reads a file and "-" reads stdin.
func readBody(cmd *cobra.Command, data string) (any, error) {
	if data == "" {
		return nil, nil
	}

	var raw []byte
	switch {
	case data == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, output.ErrUsageHint("Cannot read request body", err.Error())
		}
		raw = b
	default:
		raw = []byte(data)
	}

	if !json.Valid(raw) {
		return nil, output.ErrUsageHint("Invalid JSON data", "--data must be a JSON document")
	}
	return json.RawMessage(raw), nil
}

// parseHeaders turns "Name: value" pairs into a header.
func parseHeaders(values []string) (http.Header, error) {
	if len(values) == 0 {
		return nil, nil
	}
	h := make(http.Header, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, output.ErrUsageHint("Invalid header", fmt.Sprintf("%q is not in Name: value form", v))
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

// parseFields turns key=value pairs into a map.
func parseFields(values []string, flag string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	fields := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || k == "" {
			return nil, output.ErrUsageHint("Invalid --"+flag+" value", fmt.Sprintf("%q is not in key=value form", v))
		}
		fields[k] = val
	}
	return fields, nil
}
