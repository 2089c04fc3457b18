package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"

	"github.com/snapbooth/booth-cli/internal/auth"
	"github.com/snapbooth/booth-cli/internal/output"
)

// DefaultOAuthTimeout bounds how long OAuthLogin waits for the browser.
const DefaultOAuthTimeout = 5 * time.Minute

// OAuthOptions configures OAuthLogin.
type OAuthOptions struct {
	// Port for the local callback listener. 0 picks a free port.
	Port      int
	NoBrowser bool
	Timeout   time.Duration
}

type authorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// OAuthLogin signs in through a third-party provider (google, apple, ...).
//
// The server builds the provider URL from a PKCE challenge; the browser is
// sent there and comes back to a listener on 127.0.0.1, whose code is then
// exchanged through the server's callback endpoint.
func (s *Service) OAuthLogin(ctx context.Context, provider string, opts OAuthOptions) (*auth.Profile, error) {
	if provider == "" {
		return nil, output.ErrUsage("OAuth provider is required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultOAuthTimeout
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", opts.Port))
	if err != nil {
		return nil, output.ErrUsageHint("Could not start the OAuth callback listener", err.Error())
	}
	defer func() { _ = listener.Close() }()

	redirectURI := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	verifier := oauth2.GenerateVerifier()
	state, err := generateState()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "S256")

	resp, err := s.client.Get(ctx, oauthPath(provider, "authorize")+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var ar authorizeResponse
	if err := resp.UnmarshalData(&ar); err != nil || ar.AuthorizationURL == "" {
		return nil, output.ErrHTTP(resp.StatusCode, "The server did not return an authorization URL")
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	code, err := s.waitForCallback(waitCtx, listener, state, ar.AuthorizationURL, opts.NoBrowser)
	if err != nil {
		return nil, err
	}

	resp, err = s.client.Post(ctx, oauthPath(provider, "callback"), map[string]string{
		"code":          code,
		"state":         state,
		"code_verifier": verifier,
		"redirect_uri":  redirectURI,
	})
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, resp)
}

func oauthPath(provider, step string) string {
	return fmt.Sprintf("/api/v1/auth/oauth/%s/%s", url.PathEscape(provider), step)
}

func (s *Service) waitForCallback(ctx context.Context, listener net.Listener, expectedState, authURL string, noBrowser bool) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			sendErr(errCh, fmt.Errorf("provider returned error: %s", e))
			fmt.Fprint(w, "<html><body><h1>Sign-in failed</h1><p>You can close this window.</p></body></html>")
			return
		}
		if q.Get("state") != expectedState {
			sendErr(errCh, errors.New("state mismatch"))
			fmt.Fprint(w, "<html><body><h1>Sign-in failed</h1><p>State mismatch.</p></body></html>")
			return
		}
		code := q.Get("code")
		if code == "" {
			sendErr(errCh, errors.New("callback did not include a code"))
			fmt.Fprint(w, "<html><body><h1>Sign-in failed</h1><p>Missing code.</p></body></html>")
			return
		}
		select {
		case codeCh <- code:
		default:
		}
		fmt.Fprint(w, "<html><body><h1>Signed in to booth</h1><p>You can close this window.</p></body></html>")
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	if noBrowser || s.Browser == nil {
		fmt.Fprintf(s.Out, "\nOpen this URL in your browser:\n%s\n\nWaiting for sign-in...\n", authURL)
	} else if err := s.Browser(authURL); err != nil {
		fmt.Fprintf(s.Out, "\nCouldn't open browser automatically.\nOpen this URL in your browser:\n%s\n\nWaiting for sign-in...\n", authURL)
	} else {
		fmt.Fprintf(s.Out, "\nOpening browser to sign in...\nIf it doesn't open, visit: %s\n\nWaiting for sign-in...\n", authURL)
	}

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", output.ErrUsageHint("OAuth sign-in failed", err.Error())
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", output.ErrUsage("Timed out waiting for OAuth sign-in")
		}
		return "", ctx.Err()
	}
}

func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return exec.Command(cmd, args...).Start() //nolint:gosec,noctx // G204: cmd is fixed per platform
}
