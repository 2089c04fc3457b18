// Package cli wires the root command.
package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapbooth/booth-cli/internal/appctx"
	"github.com/snapbooth/booth-cli/internal/commands"
	"github.com/snapbooth/booth-cli/internal/config"
	"github.com/snapbooth/booth-cli/internal/output"
	"github.com/snapbooth/booth-cli/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "booth",
		Short:         "Command-line interface for the booth API",
		Long:          "booth signs you in to the booth API and makes authenticated requests on your behalf.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup(cmd) {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL:  flags.BaseURL,
				CacheDir: flags.CacheDir,
			})
			if err != nil {
				return output.ErrConfig("Could not load configuration", err.Error())
			}

			app := appctx.NewApp(cfg)
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}
	cmd.SetVersionTemplate(version.Full() + "\n")

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVar(&flags.Quiet, "quiet", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter output data with a jq expression")

	// Context flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "API base URL (e.g., https://api.snapbooth.io)")
	cmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Cache directory")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for requests, -vv for debug logs)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	_ = cmd.RegisterFlagCompletionFunc("base-url", cobra.NoFileCompletions)

	return cmd
}

// skipSetup reports whether cmd runs without loading config or credentials.
func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return false
}

// newCommandTree builds the root command with every subcommand attached.
func newCommandTree() *cobra.Command {
	cmd := NewRootCmd()

	cmd.AddCommand(commands.NewAuthCmd())
	cmd.AddCommand(commands.NewAPICmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewCompletionCmd())
	cmd.AddCommand(commands.NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	os.Exit(run(newCommandTree(), os.Args[1:]))
}

// run executes cmd with args and returns the process exit code.
func run(cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	if executedCmd != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return apiErr.ExitCode()
		}
	}

	// App not available (setup failed or flag parsing error).
	pf := cmd.PersistentFlags()
	format := output.FormatAuto
	if quiet, _ := pf.GetBool("quiet"); quiet {
		format = output.FormatQuiet
	} else if jsonFlag, _ := pf.GetBool("json"); jsonFlag {
		format = output.FormatJSON
	} else if styled, _ := pf.GetBool("styled"); styled {
		format = output.FormatStyled
	}

	writer := output.New(output.Options{
		Format: format,
		Writer: cmd.OutOrStdout(),
	})
	_ = writer.Err(err)

	return apiErr.ExitCode()
}

var shorthandPattern = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's parse errors into usage errors.
func transformCobraError(err error) error {
	msg := err.Error()

	switch {
	case strings.HasPrefix(msg, "flag needs an argument: "):
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")

	case strings.HasPrefix(msg, "unknown flag: "):
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))

	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		if m := shorthandPattern.FindStringSubmatch(msg); len(m) > 1 {
			return output.ErrUsage("Unknown option: " + m[1])
		}
		return output.ErrUsage(msg)

	case strings.HasPrefix(msg, "unknown command "):
		return output.ErrUsageHint(msg, "Run: booth --help")

	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "arg(s), received"),
		strings.HasPrefix(msg, "required flag(s) "):
		return output.ErrUsage(msg)
	}

	return err
}
