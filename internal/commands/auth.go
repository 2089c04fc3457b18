package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapbooth/booth-cli/internal/account"
	"github.com/snapbooth/booth-cli/internal/appctx"
	"github.com/snapbooth/booth-cli/internal/auth"
	"github.com/snapbooth/booth-cli/internal/output"
	"github.com/snapbooth/booth-cli/internal/tui"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Sign in, create an account, and manage stored credentials.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthSignupCmd(),
		newAuthVerifyCmd(),
		newAuthResendCmd(),
		newAuthForgotPasswordCmd(),
		newAuthResetPasswordCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
		newAuthWhoamiCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email, provider string
	var passwordStdin, noBrowser bool
	var port int

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long: `Sign in with email and password, or through an OAuth provider.

Examples:
  booth auth login
  booth auth login --email me@example.com
  echo "$PASSWORD" | booth auth login --email me@example.com --password-stdin
  booth auth login --provider google`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireBaseURL(); err != nil {
				return err
			}

			if provider == "" && email == "" && !passwordStdin && app.IsInteractive() {
				choice, err := tui.Select("Sign in with", []tui.SelectOption{
					{Value: "", Label: "Email and password"},
					{Value: "google", Label: "Google"},
					{Value: "apple", Label: "Apple"},
				})
				if err != nil {
					return promptErr(err)
				}
				provider = choice
			}

			var profile *auth.Profile
			if provider != "" {
				if port == 0 {
					port = app.Config.CallbackPort
				}
				profile, err = app.Account.OAuthLogin(cmd.Context(), strings.ToLower(provider), account.OAuthOptions{
					Port:      port,
					NoBrowser: noBrowser,
				})
			} else {
				profile, err = passwordLogin(cmd, app, email, passwordStdin)
			}
			if err != nil {
				return err
			}

			return app.OK(profile, output.WithSummary(signedInSummary(profile)))
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().StringVar(&provider, "provider", "", "Sign in with an OAuth provider (google, apple)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")
	cmd.Flags().IntVar(&port, "port", 0, "Local port for the OAuth callback")

	return cmd
}

func passwordLogin(cmd *cobra.Command, app *appctx.App, email string, passwordStdin bool) (*auth.Profile, error) {
	email, err := promptValue(app, email, "email", "Email", "you@example.com")
	if err != nil {
		return nil, err
	}
	password, err := readPassword(cmd, app, passwordStdin, "Password")
	if err != nil {
		return nil, err
	}

	if !app.IsInteractive() {
		return app.Account.SignIn(cmd.Context(), email, password)
	}

	var profile *auth.Profile
	err = tui.NewSpinner("Signing in...").RunSimple(func() error {
		var signInErr error
		profile, signInErr = app.Account.SignIn(cmd.Context(), email, password)
		return signInErr
	})
	return profile, err
}

func signedInSummary(p *auth.Profile) string {
	switch {
	case p == nil:
		return "Signed in"
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("Signed in as %s <%s>", p.Name, p.Email)
	case p.Email != "":
		return "Signed in as " + p.Email
	default:
		return "Signed in"
	}
}

func newAuthSignupCmd() *cobra.Command {
	var req account.SignUpRequest
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Long:  "Create an account. A verification link is sent to the email address.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if req.Email == "" && app.IsInteractive() {
				values, err := tui.Form("Create your account", []tui.FormField{
					{Key: "email", Title: "Email", Placeholder: "you@example.com", Required: true},
					{Key: "name", Title: "Your name", Default: req.Name},
					{Key: "business_name", Title: "Business name", Default: req.BusinessName},
				})
				if err != nil {
					return promptErr(err)
				}
				req.Email, req.Name, req.BusinessName = values["email"], values["name"], values["business_name"]
			}
			if req.Email, err = promptValue(app, req.Email, "email", "Email", "you@example.com"); err != nil {
				return err
			}
			if req.Password, err = readPassword(cmd, app, passwordStdin, "Choose a password"); err != nil {
				return err
			}

			result, err := app.Account.SignUp(cmd.Context(), req)
			if err != nil {
				return err
			}

			summary := result.Message
			if summary == "" {
				summary = fmt.Sprintf("Check %s for a verification link", result.Email)
			}
			return app.OK(result, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&req.Name, "name", "", "Your name")
	cmd.Flags().StringVar(&req.BusinessName, "business-name", "", "Business name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func newAuthVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify your email address",
		Long:  "Confirm an email address with the token from the verification link.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			profile, err := app.Account.VerifyEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if profile == nil {
				return app.OK(map[string]bool{"verified": true},
					output.WithSummary("Email verified. Sign in with: booth auth login"))
			}
			return app.OK(profile, output.WithSummary("Email verified. "+signedInSummary(profile)))
		},
	}
}

func newAuthResendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend",
		Short: "Resend the verification email",
		Long:  "Resend the verification email for the sign-up awaiting confirmation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.Account.ResendVerification(cmd.Context())
			if err != nil {
				return err
			}
			return app.OK(result, output.WithSummary("Verification email sent to "+result.Email))
		},
	}
}

func newAuthForgotPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if email, err = promptValue(app, email, "email", "Email", "you@example.com"); err != nil {
				return err
			}
			if err := app.Account.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			return app.OK(map[string]string{"email": email},
				output.WithSummary("If an account exists for "+email+", a reset link is on its way"))
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")

	return cmd
}

func newAuthResetPasswordCmd() *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "reset-password <token>",
		Short: "Set a new password",
		Long:  "Set a new password with the token from the reset email.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd, app, passwordStdin, "New password")
			if err != nil {
				return err
			}
			if err := app.Account.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			return app.OK(map[string]bool{"reset": true},
				output.WithSummary("Password updated. Sign in with: booth auth login"))
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the new password from stdin")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var all, force bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long:  "Remove stored credentials for the current API URL. --all also forgets a pending sign-up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if all && !force && app.IsInteractive() {
				ok, err := tui.ConfirmDangerous("Remove all stored booth data for " + app.Config.BaseURL + "?")
				if err != nil {
					return promptErr(err)
				}
				if !ok {
					return output.ErrUsage("Canceled")
				}
			}

			if all {
				app.Account.ClearAllData()
			} else {
				app.Account.SignOut()
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove all stored data, including a pending sign-up")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation for --all")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			status := map[string]any{
				"authenticated": app.Account.SignedIn(),
				"origin":        app.Config.BaseURL,
			}
			if pending := app.Account.PendingEmail(); pending != "" {
				status["pending_verification"] = pending
			}

			if !app.Account.SignedIn() {
				return app.OK(status, output.WithSummary("Not authenticated"))
			}

			tokens := app.Store.Tokens()
			status["refreshable"] = tokens.RefreshToken != ""

			summary := "Authenticated"
			if p := app.Account.CachedProfile(); p != nil {
				status["user"] = p
				if p.Email != "" {
					summary += " as " + p.Email
				}
			}
			return app.OK(status, output.WithSummary(summary))
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long:  "Exchange the stored refresh token for a new access token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.Tokens.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "refreshed",
			}, output.WithSummary("Token refreshed successfully"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the access token",
		Long: `Print the stored access token for use with other tools.

Examples:
  curl -H "Authorization: Bearer $(booth auth token)" ...
  booth auth token --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			token := app.Store.Get(auth.KeyAccessToken)
			if token == "" {
				return output.ErrSessionExpired("You are not signed in")
			}

			// Raw by default so the token can be used in shell substitution.
			if app.Flags.JSON {
				return app.OK(map[string]string{"token": token})
			}
			_, err = fmt.Fprintln(app.Stdout, token)
			return err
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			profile, err := app.Account.Me(cmd.Context())
			if err != nil {
				return err
			}
			return app.OK(profile, output.WithSummary(signedInSummary(profile)))
		},
	}
}
