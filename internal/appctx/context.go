// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapbooth/booth-cli/internal/account"
	"github.com/snapbooth/booth-cli/internal/api"
	"github.com/snapbooth/booth-cli/internal/auth"
	"github.com/snapbooth/booth-cli/internal/completion"
	"github.com/snapbooth/booth-cli/internal/config"
	"github.com/snapbooth/booth-cli/internal/observability"
	"github.com/snapbooth/booth-cli/internal/output"
	"github.com/snapbooth/booth-cli/internal/version"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config

	// Request layer
	Store   *auth.Store
	Session *auth.Session
	Tokens  *auth.TokenManager
	Client  *api.Client
	Account *account.Service

	Completion *completion.Store
	Output     *output.Writer

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	Stdout io.Writer
	Stderr io.Writer
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	Styled bool
	JQ     string

	// Context flags
	BaseURL  string
	CacheDir string

	// Behavior flags
	Verbose int // 0=off, 1=requests, 2=requests+debug logs (stacks with -v -v or -vv)
	Stats   bool
}

// NewApp wires the request layer for cfg.
func NewApp(cfg *config.Config) *App {
	logger := slog.Default()

	backend := auth.NewBackend(cfg.ConfigDir, cfg.NoKeyring, logger)
	store := auth.NewStore(cfg.BaseURL, backend, logger)
	session := auth.NewSession(logger)

	refreshClient := &http.Client{Timeout: 30 * time.Second}
	tokens := auth.NewTokenManager(cfg.BaseURL, store, session, refreshClient)
	tokens.SetUserAgent(version.UserAgent())

	client := api.NewClient(cfg.BaseURL, store, tokens, session)
	client.SetUserAgent(version.UserAgent())

	// Collector always runs to gather stats; hooks control trace verbosity.
	// Level 0 initially; ApplyFlags sets the actual level from -v flags.
	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(0, collector, observability.NewTraceWriter())
	client.SetHooks(hooks)
	tokens.SetObserver(hooks)

	cache := completion.NewStore(cfg.CacheDir)
	session.RegisterCache(cache)
	session.SetNavigator(NewNavigator(os.Stderr))

	acct := account.NewService(client, store, session)

	return &App{
		Config:     cfg,
		Store:      store,
		Session:    session,
		Tokens:     tokens,
		Client:     client,
		Account:    acct,
		Completion: cache,
		Collector:  collector,
		Hooks:      hooks,
		Output: output.New(output.Options{
			Format: output.ParseFormat(cfg.Format),
			Writer: os.Stdout,
		}),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	format := output.ParseFormat(a.Config.Format)
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	case a.Flags.Styled:
		format = output.FormatStyled
	}
	a.Output = output.New(output.Options{
		Format: format,
		Writer: a.Stdout,
		JQ:     a.Flags.JQ,
	})

	if !a.Flags.Stats && a.Config.Stats != nil {
		a.Flags.Stats = *a.Config.Stats
	}

	// Determine verbosity level from flags and BOOTH_DEBUG env var
	verboseLevel := a.Flags.Verbose
	if debugEnv := os.Getenv("BOOTH_DEBUG"); debugEnv != "" {
		if level, err := strconv.Atoi(debugEnv); err == nil {
			if level > verboseLevel {
				verboseLevel = level
			}
		} else if debugEnv == "true" {
			verboseLevel = 2
		}
	}

	if a.Hooks != nil {
		a.Hooks.SetLevel(verboseLevel)
	}

	if verboseLevel > 1 {
		debugLogger := slog.New(slog.NewTextHandler(a.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		slog.SetDefault(debugLogger)
		a.Client.SetLogger(debugLogger)
		a.Tokens.SetLogger(debugLogger)
		a.Account.SetLogger(debugLogger)
	}
}

// OK outputs a success response, including session stats if --stats is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary().Stats()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}

	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		a.printStats(a.Collector.Summary())
	}
	return nil
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet || a.Flags.JQ != "" {
		return true
	}
	return a.Config != nil && a.Config.Format == "quiet"
}

// printStats outputs a compact stats line to stderr.
func (a *App) printStats(stats observability.SessionMetrics) {
	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	switch stats.TotalRequests {
	case 0:
	case 1:
		parts = append(parts, "1 request")
	default:
		parts = append(parts, fmt.Sprintf("%d requests", stats.TotalRequests))
	}

	switch stats.TotalRetries {
	case 0:
	case 1:
		parts = append(parts, "1 retry")
	default:
		parts = append(parts, fmt.Sprintf("%d retries", stats.TotalRetries))
	}

	if stats.Refreshes > 0 {
		parts = append(parts, fmt.Sprintf("%d refreshed", stats.Refreshes))
	}
	if stats.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedRequests))
	}

	fmt.Fprintf(a.Stderr, "\nStats: %s\n", strings.Join(parts, " | "))
}

// IsInteractive returns true if the terminal supports interactive prompts.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet || a.Flags.JQ != "" {
		return false
	}

	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// RequireBaseURL fails with a config error when no API URL is set.
func (a *App) RequireBaseURL() error {
	if a.Config.BaseURL == "" {
		return output.ErrConfig("No API URL configured", "Set BOOTH_API_URL, pass --base-url, or run: booth config set base_url <url>")
	}
	return nil
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
