package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapbooth/booth-cli/internal/config"
	"github.com/snapbooth/booth-cli/internal/output"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage booth configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > global > defaults

Config location:
  ~/.config/booth/config.yaml (or $XDG_CONFIG_HOME/booth/config.yaml)

Environment:
  BOOTH_API_URL, BOOTH_CACHE_DIR, BOOTH_NO_KEYRING, BOOTH_FORMAT, BOOTH_STATS`,
		RunE: runConfigShow,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	app, err := requireApp(cmd)
	if err != nil {
		return err
	}

	configData := make(map[string]any)
	for _, e := range app.Config.Entries() {
		if e.Value == "" {
			continue
		}
		configData[e.Key] = map[string]string{
			"value":  e.Value,
			"source": e.Source,
		}
	}

	return app.OK(configData, output.WithSummary("Effective configuration"))
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Write a value to the global config file. Keys: " + strings.Join(config.SettableKeys, ", "),
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.SettableKeys, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			if !slices.Contains(config.SettableKeys, key) {
				return output.ErrUsageHint(fmt.Sprintf("Unknown config key %q", key),
					"Valid keys: "+strings.Join(config.SettableKeys, ", "))
			}

			path := config.GlobalConfigPath()
			if err := config.SetValue(path, key, value); err != nil {
				return output.ErrUsageHint("Could not set "+key, err.Error())
			}

			return app.OK(map[string]string{
				"key":   key,
				"value": value,
				"path":  path,
			}, output.WithSummary(fmt.Sprintf("Set %s in %s", key, path)))
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			return app.OK(config.GlobalConfigPath())
		},
	}
}
