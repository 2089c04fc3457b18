package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapbooth/booth-cli/internal/output"
)

// NewCompletionCmd creates the completion command group.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for booth.

Bash:
  $ source <(booth completion bash)

Zsh:
  $ booth completion zsh > "${fpath[1]}/_booth"

Fish:
  $ booth completion fish | source

PowerShell:
  PS> booth completion powershell | Out-String | Invoke-Expression

Paths requested with "booth api get" are remembered and offered when
completing "booth api <verb> <path>".`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newCompletionStatusCmd(),
		newCompletionClearCmd(),
	)

	return cmd
}

func runCompletion(cmd *cobra.Command, shell string) error {
	root := cmd.Root()
	out := cmd.OutOrStdout()
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(out, true)
	case "zsh":
		return root.GenZshCompletion(out)
	case "fish":
		return root.GenFishCompletion(out, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(out)
	default:
		return fmt.Errorf("unknown shell: %s", shell)
	}
}

func newCompletionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the remembered API paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			paths := app.Completion.Paths()
			return app.OK(map[string]any{
				"cache_path": app.Completion.Path(),
				"paths":      paths,
			}, output.WithSummary(fmt.Sprintf("%d remembered paths", len(paths))))
		},
	}
}

func newCompletionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget remembered API paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.Completion.Clear(); err != nil {
				return err
			}
			return app.OK(map[string]bool{"cleared": true}, output.WithSummary("Completion cache cleared"))
		},
	}
}
