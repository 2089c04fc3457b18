package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbooth/booth-cli/internal/appctx"
	"github.com/snapbooth/booth-cli/internal/auth"
	"github.com/snapbooth/booth-cli/internal/config"
	"github.com/snapbooth/booth-cli/internal/output"
)

type testEnv struct {
	app    *appctx.App
	stdout *bytes.Buffer

	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

func newTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()
	t.Setenv("BOOTH_DEBUG", "")

	env := &testEnv{stdout: &bytes.Buffer{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		env.mu.Lock()
		env.requests = append(env.requests, r)
		env.bodies = append(env.bodies, string(body))
		env.mu.Unlock()
		if handler != nil {
			handler(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	env.app = appctx.NewApp(&config.Config{
		BaseURL:      srv.URL,
		CacheDir:     t.TempDir(),
		ConfigDir:    t.TempDir(),
		NoKeyring:    true,
		CallbackPort: config.DefaultCallbackPort,
		Sources:      map[string]string{},
	})
	env.app.Stdout = env.stdout
	env.app.Stderr = &bytes.Buffer{}
	env.app.Session.SetNavigator(appctx.NewNavigator(io.Discard))
	env.app.Flags.JSON = true
	env.app.ApplyFlags()
	return env
}

// run executes args against cmd with stdin as standard input.
func (e *testEnv) run(cmd *cobra.Command, stdin string, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(e.stdout)
	cmd.SetErr(io.Discard)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd.ExecuteContext(appctx.WithApp(context.Background(), e.app))
}

func (e *testEnv) envelope(t *testing.T) (data map[string]any, summary string) {
	t.Helper()
	var resp struct {
		Data    map[string]any `json:"data"`
		Summary string         `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &resp), e.stdout.String())
	return resp.Data, resp.Summary
}

func (e *testEnv) lastRequest() (*http.Request, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		return nil, ""
	}
	return e.requests[len(e.requests)-1], e.bodies[len(e.bodies)-1]
}

func (e *testEnv) requestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, e.app.Store.SaveTokens(auth.Tokens{AccessToken: "access", RefreshToken: "refresh"}))
}

// Auth

func TestAuthLoginWithPasswordStdin(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "a1",
			"refresh_token": "r1",
			"user":          map[string]string{"id": "u1", "email": "ada@example.com", "name": "Ada"},
		})
	})

	err := env.run(NewAuthCmd(), "s3cret\n", "login", "--email", "ada@example.com", "--password-stdin")
	require.NoError(t, err)

	data, summary := env.envelope(t)
	assert.Equal(t, "Signed in as Ada <ada@example.com>", summary)
	assert.Equal(t, "u1", data["id"])
	assert.Equal(t, "a1", env.app.Store.Get(auth.KeyAccessToken))

	req, body := env.lastRequest()
	assert.Equal(t, "/api/v1/auth/sign-in", req.URL.Path)
	assert.JSONEq(t, `{"email":"ada@example.com","password":"s3cret"}`, body)
}

func TestAuthLoginRequiresEmailWhenNotInteractive(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.run(NewAuthCmd(), "", "login", "--password-stdin")

	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
	assert.Zero(t, env.requestCount())
}

func TestAuthLoginRequiresPasswordWhenNotInteractive(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.run(NewAuthCmd(), "", "login", "--email", "ada@example.com")

	require.Error(t, err)
	assert.Contains(t, output.AsError(err).Hint, "--password-stdin")
}

func TestAuthSignupStatusResend(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{})
	})

	require.NoError(t, env.run(NewAuthCmd(), "pw\n", "signup", "--email", "new@example.com", "--business-name", "Booth Co", "--password-stdin"))
	_, summary := env.envelope(t)
	assert.Equal(t, "Check new@example.com for a verification link", summary)

	env.stdout.Reset()
	require.NoError(t, env.run(NewAuthCmd(), "", "status"))
	data, summary := env.envelope(t)
	assert.Equal(t, "Not authenticated", summary)
	assert.Equal(t, "new@example.com", data["pending_verification"])

	env.stdout.Reset()
	require.NoError(t, env.run(NewAuthCmd(), "", "resend"))
	_, summary = env.envelope(t)
	assert.Equal(t, "Verification email sent to new@example.com", summary)
	assert.Equal(t, 2, env.requestCount())
}

func TestAuthVerifyWithoutSignIn(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, env.run(NewAuthCmd(), "", "verify", "tok"))
	data, _ := env.envelope(t)
	assert.Equal(t, true, data["verified"])

	req, body := env.lastRequest()
	assert.Equal(t, "/api/v1/auth/verify-email", req.URL.Path)
	assert.JSONEq(t, `{"token":"tok"}`, body)
}

func TestAuthResetPassword(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, env.run(NewAuthCmd(), "n3w\n", "reset-password", "reset-tok", "--password-stdin"))

	_, body := env.lastRequest()
	assert.JSONEq(t, `{"token":"reset-tok","new_password":"n3w"}`, body)
}

func TestAuthResetPasswordShowsServerMessage(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Reset link has expired"})
	})

	err := env.run(NewAuthCmd(), "n3w\n", "reset-password", "reset-tok", "--password-stdin")

	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, "Reset link has expired", e.Message)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus)
}

func TestAuthLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)
	require.NoError(t, env.app.Store.SavePendingSecret(`{"email":"x@example.com"}`))

	require.NoError(t, env.run(NewAuthCmd(), "", "logout"))
	assert.Equal(t, auth.Tokens{}, env.app.Store.Tokens())
	assert.NotEmpty(t, env.app.Store.PendingSecret())

	require.NoError(t, env.run(NewAuthCmd(), "", "logout", "--all"))
	assert.Empty(t, env.app.Store.PendingSecret())
}

func TestAuthStatusSignedIn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)
	require.NoError(t, env.app.Store.SaveProfile(&auth.Profile{ID: "u1", Email: "ada@example.com"}))

	require.NoError(t, env.run(NewAuthCmd(), "", "status"))

	data, summary := env.envelope(t)
	assert.Equal(t, "Authenticated as ada@example.com", summary)
	assert.Equal(t, true, data["authenticated"])
	assert.Equal(t, true, data["refreshable"])
}

func TestAuthRefresh(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
	})
	env.signIn(t)

	require.NoError(t, env.run(NewAuthCmd(), "", "refresh"))

	assert.Equal(t, auth.Tokens{AccessToken: "fresh", RefreshToken: "refresh"}, env.app.Store.Tokens())
	req, _ := env.lastRequest()
	assert.Equal(t, auth.RefreshPath, req.URL.Path)
}

func TestAuthRefreshRejected(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	env.signIn(t)

	err := env.run(NewAuthCmd(), "", "refresh")

	require.Error(t, err)
	assert.True(t, output.IsSessionExpired(err))
	assert.Equal(t, auth.Tokens{}, env.app.Store.Tokens())
}

func TestAuthToken(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.run(NewAuthCmd(), "", "token")
	require.Error(t, err)
	assert.True(t, output.IsSessionExpired(err))

	env.signIn(t)
	env.app.Flags.JSON = false
	require.NoError(t, env.run(NewAuthCmd(), "", "token"))
	assert.Equal(t, "access\n", env.stdout.String())
}

func TestAuthWhoamiRefreshesOnce(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == auth.RefreshPath:
			writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
		case r.Header.Get("Authorization") != "Bearer fresh":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "email": "ada@example.com"})
		}
	})
	env.signIn(t)

	require.NoError(t, env.run(NewAuthCmd(), "", "whoami"))

	data, _ := env.envelope(t)
	assert.Equal(t, "u1", data["id"])
	assert.Equal(t, 3, env.requestCount())
	assert.Equal(t, "u1", env.app.Store.Profile().ID)
}

// API

func TestAPIGetRecordsPath(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1}, {"id": 2}})
	})
	env.signIn(t)

	require.NoError(t, env.run(NewAPICmd(), "", "get", "/api/v1/booths", "-q", "status=active", "-H", "X-Trace: abc"))

	var resp struct {
		Data    []map[string]any `json:"data"`
		Summary string           `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, "GET /api/v1/booths: 2 items", resp.Summary)

	req, _ := env.lastRequest()
	assert.Equal(t, "active", req.URL.Query().Get("status"))
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	assert.Equal(t, "Bearer access", req.Header.Get("Authorization"))

	paths := env.app.Completion.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, "/api/v1/booths", paths[0].Path)
}

func TestAPIPostData(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 9, "name": "Lobby"})
	})
	env.signIn(t)

	require.NoError(t, env.run(NewAPICmd(), "", "post", "/api/v1/booths", "-d", `{"name":"Lobby"}`))

	data, summary := env.envelope(t)
	assert.Equal(t, "POST /api/v1/booths: Lobby", summary)
	assert.Equal(t, "Lobby", data["name"])

	req, body := env.lastRequest()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"name":"Lobby"}`, body)
	assert.Empty(t, env.app.Completion.Paths(), "only GET paths are remembered")
}

func TestAPIPatchDataFromFileAndStdin(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	env.signIn(t)

	file := filepath.Join(t.TempDir(), "booth.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"Hall"}`), 0o600))

	require.NoError(t, env.run(NewAPICmd(), "", "patch", "/api/v1/booths/1", "-d", "@"+file))
	_, body := env.lastRequest()
	assert.JSONEq(t, `{"name":"Hall"}`, body)

	require.NoError(t, env.run(NewAPICmd(), `{"name":"Foyer"}`, "put", "/api/v1/booths/1", "-d", "-"))
	_, body = env.lastRequest()
	assert.JSONEq(t, `{"name":"Foyer"}`, body)
}

func TestAPIInvalidData(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	err := env.run(NewAPICmd(), "", "post", "/api/v1/booths", "-d", "{nope")

	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
	assert.Zero(t, env.requestCount())
}

func TestAPIDeleteNoContent(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	env.signIn(t)

	require.NoError(t, env.run(NewAPICmd(), "", "delete", "/api/v1/booths/1"))

	data, summary := env.envelope(t)
	assert.Empty(t, data)
	assert.Equal(t, "DELETE /api/v1/booths/1", summary)
}

func TestAPITextResponse(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,name\n1,Lobby\n"))
	})
	env.signIn(t)

	require.NoError(t, env.run(NewAPICmd(), "", "get", "/api/v1/booths.csv"))

	var resp struct {
		Data    string         `json:"data"`
		Context map[string]any `json:"context"`
	}
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &resp))
	assert.Equal(t, "id,name\n1,Lobby\n", resp.Data)
	assert.Equal(t, "text/csv", resp.Context["content_type"])
}

func TestAPIUpload(t *testing.T) {
	var mu sync.Mutex
	var gotName, gotContent, gotCaption string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			gotCaption = r.FormValue("caption")
			f, hdr, err := r.FormFile("photo")
			if assert.NoError(t, err) {
				b, _ := io.ReadAll(f)
				gotName, gotContent = hdr.Filename, string(b)
			}
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": 5})
	})
	env.signIn(t)

	file := filepath.Join(t.TempDir(), "shot.jpg")
	require.NoError(t, os.WriteFile(file, []byte("jpegbytes"), 0o600))

	require.NoError(t, env.run(NewAPICmd(), "", "upload", "/api/v1/events/7/photos",
		"--file", file, "--name", "photo", "-F", "caption=Smile"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "shot.jpg", gotName)
	assert.Equal(t, "jpegbytes", gotContent)
	assert.Equal(t, "Smile", gotCaption)
}

func TestAPIUploadRequiresFile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signIn(t)

	err := env.run(NewAPICmd(), "", "upload", "/api/v1/events/7/photos")
	require.Error(t, err)
	assert.Equal(t, "--file is required", output.AsError(err).Message)
}

func TestAPIForbiddenAfterRefresh(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == auth.RefreshPath {
			writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Owner role required"})
	})
	env.signIn(t)

	err := env.run(NewAPICmd(), "", "delete", "/api/v1/booths/1")

	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, "Owner role required", e.Message)
	assert.False(t, e.SessionExpired)
	assert.Equal(t, output.ExitForbidden, e.ExitCode())
	assert.Equal(t, "fresh", env.app.Store.Get(auth.KeyAccessToken))
}

// Config

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.run(NewConfigCmd(), "", "show"))

	data, _ := env.envelope(t)
	baseURL, ok := data["base_url"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, env.app.Config.BaseURL, baseURL["value"])
	assert.Equal(t, "default", baseURL["source"])
}

func TestConfigSet(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	env := newTestEnv(t, nil)

	require.NoError(t, env.run(NewConfigCmd(), "", "set", "base_url", "api.example.com"))

	data, err := os.ReadFile(config.GlobalConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url: https://api.example.com")

	err = env.run(NewConfigCmd(), "", "set", "colour", "blue")
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}

// Completion

func TestCompletionStatusAndClear(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.app.Completion.Record("/api/v1/booths"))

	require.NoError(t, env.run(NewCompletionCmd(), "", "status"))
	data, summary := env.envelope(t)
	assert.Equal(t, "1 remembered paths", summary)
	assert.Len(t, data["paths"], 1)

	env.stdout.Reset()
	require.NoError(t, env.run(NewCompletionCmd(), "", "clear"))
	assert.Empty(t, env.app.Completion.Paths())
}

func TestCompletionScript(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.run(NewCompletionCmd(), "", "bash"))
	assert.Contains(t, env.stdout.String(), "bash completion")
}

// Helpers

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"X-One: 1", "x-two:2"})
	require.NoError(t, err)
	assert.Equal(t, "1", h.Get("X-One"))
	assert.Equal(t, "2", h.Get("X-Two"))

	_, err = parseHeaders([]string{"no-colon"})
	assert.Error(t, err)
}

func TestParseFields(t *testing.T) {
	f, err := parseFields([]string{"a=1", "b=x=y"}, "field")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, f)

	_, err = parseFields([]string{"=1"}, "field")
	assert.Error(t, err)
}

func TestAPISummary(t *testing.T) {
	assert.Equal(t, "1 item", apiSummary([]byte(`[{}]`)))
	assert.Equal(t, "0 items", apiSummary([]byte(`[]`)))
	assert.Equal(t, "Lobby", apiSummary([]byte(`{"name":"Lobby"}`)))
	assert.Equal(t, "API response", apiSummary([]byte(`{"id":1}`)))
	assert.Equal(t, strings.Repeat("x", 47)+"...", apiSummary([]byte(`{"title":"`+strings.Repeat("x", 60)+`"}`)))
}
