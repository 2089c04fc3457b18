package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapbooth/booth-cli/internal/api"
	"github.com/snapbooth/booth-cli/internal/appctx"
	"github.com/snapbooth/booth-cli/internal/completion"
	"github.com/snapbooth/booth-cli/internal/output"
)

// NewAPICmd creates the api command for raw API access.
func NewAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <verb> <path>",
		Short: "Raw API access",
		Long: `Make authenticated requests to any booth API endpoint.

Paths are relative to the configured API URL. An expired access token is
refreshed once and the request retried.

Examples:
  booth api get /api/v1/booths
  booth api get /api/v1/events -q status=upcoming
  booth api post /api/v1/booths -d '{"name":"Lobby"}'
  booth api patch /api/v1/booths/42 -d @booth.json
  booth api upload /api/v1/events/7/photos --file photo.jpg`,
	}

	cmd.AddCommand(
		newAPIRequestCmd(http.MethodGet),
		newAPIRequestCmd(http.MethodPost),
		newAPIRequestCmd(http.MethodPut),
		newAPIRequestCmd(http.MethodPatch),
		newAPIRequestCmd(http.MethodDelete),
		newAPIUploadCmd(),
	)

	return cmd
}

func newAPIRequestCmd(method string) *cobra.Command {
	var data string
	var headers, query []string

	verb := strings.ToLower(method)
	hasBody := method != http.MethodGet && method != http.MethodDelete

	cmd := &cobra.Command{
		Use:               verb + " <path>",
		Short:             method + " request to API",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).PathCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			opts := api.Options{Method: method}
			if opts.Header, err = parseHeaders(headers); err != nil {
				return err
			}
			q, err := parseFields(query, "query")
			if err != nil {
				return err
			}
			if len(q) > 0 {
				opts.Query = url.Values{}
				for k, v := range q {
					opts.Query.Set(k, v)
				}
			}
			if hasBody {
				if opts.Body, err = readBody(cmd, data); err != nil {
					return err
				}
			}

			path := args[0]
			resp, err := app.Client.Execute(cmd.Context(), path, opts)
			if err != nil {
				return err
			}

			if method == http.MethodGet {
				rememberPath(app, path)
			}
			return writeAPIResponse(app, method, path, resp)
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, `Extra request header ("Name: value")`)
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter (key=value)")
	if hasBody {
		cmd.Flags().StringVarP(&data, "data", "d", "", `JSON request body, @file, or "-" for stdin`)
	}

	return cmd
}

func newAPIUploadCmd() *cobra.Command {
	var file, field, contentType string
	var fields, headers []string

	cmd := &cobra.Command{
		Use:               "upload <path>",
		Short:             "Upload a file as multipart/form-data",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).PathCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if file == "" {
				return output.ErrUsage("--file is required")
			}
			f, err := os.Open(file)
			if err != nil {
				return output.ErrUsageHint("Cannot open file", err.Error())
			}
			defer f.Close()

			formFields, err := parseFields(fields, "field")
			if err != nil {
				return err
			}
			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(file))
			}

			path := args[0]
			resp, err := app.Client.Execute(cmd.Context(), path, api.Options{
				Method: http.MethodPost,
				Header: header,
				Body: &api.Upload{
					FieldName:   field,
					FileName:    filepath.Base(file),
					ContentType: contentType,
					Content:     f,
					Fields:      formFields,
				},
			})
			if err != nil {
				return err
			}
			return writeAPIResponse(app, http.MethodPost, path, resp)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File to upload (required)")
	cmd.Flags().StringVar(&field, "name", "file", "Form field name for the file")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type of the file (default: from extension)")
	cmd.Flags().StringArrayVarP(&fields, "field", "F", nil, "Extra form field (key=value)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, `Extra request header ("Name: value")`)

	return cmd
}

func rememberPath(app *appctx.App, path string) {
	if app.Completion == nil {
		return
	}
	if err := app.Completion.Record(path); err != nil {
		slog.Debug("could not record path for completion", slog.String("path", path), slog.Any("error", err))
	}
}

func writeAPIResponse(app *appctx.App, method, path string, resp *api.Response) error {
	label := fmt.Sprintf("%s %s", method, path)

	switch {
	case len(resp.Data) > 0:
		return app.OK(resp.Data, output.WithSummary(label+": "+apiSummary(resp.Data)),
			output.WithContext("status", resp.StatusCode))
	case resp.Text != "":
		return app.OK(resp.Text, output.WithSummary(label),
			output.WithContext("status", resp.StatusCode),
			output.WithContext("content_type", resp.Header.Get("Content-Type")))
	default:
		return app.OK(map[string]any{}, output.WithSummary(label),
			output.WithContext("status", resp.StatusCode))
	}
}

// apiSummary generates a summary from the API response.
func apiSummary(data []byte) string {
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 1 {
			return "1 item"
		}
		return fmt.Sprintf("%d items", len(arr))
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "API response"
	}

	title := ""
	for _, key := range []string{"name", "title", "email", "message"} {
		if v, ok := obj[key].(string); ok && v != "" {
			title = v
			break
		}
	}
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	if title == "" {
		return "API response"
	}
	return title
}
