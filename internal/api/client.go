// Package api is the authenticated request layer: every call to the booth
// API goes through Client.Execute.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snapbooth/booth-cli/internal/auth"
	"github.com/snapbooth/booth-cli/internal/output"
)

// Refresher obtains a fresh access token after staleToken was rejected.
type Refresher interface {
	EnsureRefreshed(ctx context.Context, staleToken string) bool
}

// Expirer ends the session when no credentials are available.
type Expirer interface {
	Expire(ctx context.Context)
}

// Client executes API requests with the stored credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *auth.Store
	tokens     Refresher
	session    Expirer
	hooks      Hooks
	userAgent  string
	logger     *slog.Logger
}

// Options configures a single request.
type Options struct {
	Method string
	Query  url.Values
	Header http.Header

	// Body is JSON-encoded unless it is an *Upload, []byte or io.Reader.
	Body any
}

// Response is a successful API response. Data holds JSON bodies; Text holds
// any other body. Both are empty for 204 responses.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       json.RawMessage
	Text       string
}

// UnmarshalData decodes the JSON body into v.
func (r *Response) UnmarshalData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no JSON body")
	}
	return json.Unmarshal(r.Data, v)
}

// Empty reports whether the response carried no body.
func (r *Response) Empty() bool {
	return len(r.Data) == 0 && r.Text == ""
}

// NewClient creates a client for the API at baseURL. A missing baseURL is
// reported by the first Execute.
func NewClient(baseURL string, store *auth.Store, tokens Refresher, session Expirer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		store:   store,
		tokens:  tokens,
		session: session,
		hooks:   NoopHooks{},
		logger:  slog.Default().With(slog.String("component", "api")),
	}
}

// SetHTTPClient replaces the transport client.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// HTTPClient returns the transport client.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// SetHooks registers lifecycle hooks.
func (c *Client) SetHooks(h Hooks) {
	if h == nil {
		h = NoopHooks{}
	}
	c.hooks = h
}

// SetUserAgent sets the User-Agent header.
func (c *Client) SetUserAgent(ua string) { c.userAgent = ua }

// SetLogger replaces the logger.
func (c *Client) SetLogger(l *slog.Logger) {
	c.logger = l.With(slog.String("component", "api"))
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, path, Options{Method: http.MethodGet})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Execute(ctx, path, Options{Method: http.MethodPost, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Execute(ctx, path, Options{Method: http.MethodPut, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Execute(ctx, path, Options{Method: http.MethodPatch, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, path, Options{Method: http.MethodDelete})
}

// Upload posts a multipart form.
func (c *Client) Upload(ctx context.Context, path string, u *Upload) (*Response, error) {
	return c.Execute(ctx, path, Options{Method: http.MethodPost, Body: u})
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	status     int
	statusText string
	header     http.Header
	body       []byte
}

// preparedRequest is everything needed to send (and resend) a request.
type preparedRequest struct {
	id          string
	method      string
	url         string
	body        []byte
	contentType string
	header      http.Header
}

// Execute sends a request to path, which is relative to the base URL.
//
// A 401 on a protected path triggers one shared refresh and one retry with
// the new token. The retry never refreshes again.
func (c *Client) Execute(ctx context.Context, path string, opts Options) (*Response, error) {
	if c.baseURL == "" {
		return nil, output.ErrConfig("No API URL configured", "Set BOOTH_API_URL or base_url in config")
	}
	if strings.Contains(path, "://") {
		return nil, output.ErrUsageHint("Path must be relative to the API URL", path)
	}

	public := IsPublicPath(path)
	token := c.store.Get(auth.KeyAccessToken)
	if token == "" && !public {
		c.session.Expire(ctx)
		return nil, output.ErrSessionExpired("")
	}

	req, err := c.prepare(path, opts)
	if err != nil {
		return nil, err
	}

	raw, err := c.send(ctx, req, token, 1)
	if err != nil {
		return nil, err
	}

	if raw.status == http.StatusUnauthorized && !public {
		if !c.tokens.EnsureRefreshed(ctx, token) {
			return nil, output.ErrSessionExpired("")
		}

		token = c.store.Get(auth.KeyAccessToken)
		raw, err = c.send(ctx, req, token, 2)
		if err != nil {
			return nil, err
		}
		if raw.status == http.StatusUnauthorized {
			msg := ""
			if len(bytes.TrimSpace(raw.body)) > 0 {
				msg = ClassifyError(raw.body, raw.status, raw.statusText)
			}
			return nil, output.ErrHTTPUnauthorized(msg)
		}
	}

	return c.handle(req, raw)
}

func (c *Client) prepare(path string, opts Options) (*preparedRequest, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + opts.Query.Encode()
	}

	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid request body", err.Error())
	}

	id := opts.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}

	return &preparedRequest{
		id:          id,
		method:      method,
		url:         u,
		body:        body,
		contentType: contentType,
		header:      opts.Header,
	}, nil
}

// send performs one attempt and reads the whole body.
func (c *Client) send(ctx context.Context, p *preparedRequest, token string, attempt int) (*rawResponse, error) {
	info := RequestInfo{ID: p.id, Method: p.method, URL: p.url, Attempt: attempt}
	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	raw, err := c.roundTrip(ctx, p, token)

	result := RequestResult{Duration: time.Since(start), Err: err}
	if raw != nil {
		result.StatusCode = raw.status
	}
	c.hooks.OnRequestEnd(ctx, info, result)
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, p *preparedRequest, token string) (*rawResponse, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid request", err.Error())
	}

	for k, vs := range p.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		ct := p.contentType
		if ct == "" {
			ct = contentTypeJSON
		}
		req.Header.Set("Content-Type", ct)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON)
	}
	req.Header.Set("X-Request-ID", p.id)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, output.ErrNetwork(fmt.Errorf("reading response: %w", err))
	}

	return &rawResponse{
		status:     resp.StatusCode,
		statusText: reasonPhrase(resp),
		header:     resp.Header,
		body:       data,
	}, nil
}

func (c *Client) handle(p *preparedRequest, raw *rawResponse) (*Response, error) {
	if raw.status == http.StatusNoContent {
		return &Response{StatusCode: raw.status, Header: raw.header}, nil
	}

	if raw.status < 200 || raw.status > 299 {
		msg := ClassifyError(raw.body, raw.status, raw.statusText)
		if raw.status >= 500 {
			c.logger.Error("server error",
				slog.String("method", p.method),
				slog.String("url", p.url),
				slog.Int("status", raw.status),
				slog.String("request_id", p.id),
				slog.String("message", msg))
		}
		return nil, output.ErrHTTP(raw.status, msg)
	}

	resp := &Response{StatusCode: raw.status, Header: raw.header}
	ct := raw.header.Get("Content-Type")
	if len(raw.body) == 0 || ct == "" {
		return resp, nil
	}

	if isJSONContentType(ct) {
		if !json.Valid(raw.body) {
			return nil, output.ErrHTTP(raw.status, "The server returned an invalid JSON response")
		}
		resp.Data = json.RawMessage(raw.body)
		return resp, nil
	}

	resp.Text = string(raw.body)
	return resp, nil
}

func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(ct, "json")
	}
	return mt == contentTypeJSON || strings.HasSuffix(mt, "+json")
}

// reasonPhrase extracts "Not Found" from "404 Not Found".
func reasonPhrase(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}
