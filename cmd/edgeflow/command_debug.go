package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brunopistone/sm-iot-end-to-end/internal/loader"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Print the normalized environment and runtime settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return debugEnvironment(cmd)
	},
}

func registerDebugCommand(root *cobra.Command) {
	root.AddCommand(debugCmd)

	debugCmd.Flags().StringVarP(&environment, "env", "e", "dev", "Environment file name under the config dir")
}

func debugEnvironment(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "□ Loading and normalizing...")
	env, err := loader.LoadEnvironment(settings.ConfigDir, environment)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nSettings: engine=%s region=%q poll-interval=%s max-wait=%s log=%s/%s\n",
		settings.Engine, settings.Region, settings.PollInterval, settings.MaxWait,
		settings.Logging.Level, settings.Logging.Format)
	fmt.Fprintf(out, "Environment: %s\n\n", env.Path)

	data, err := yaml.Marshal(env.Config)
	if err != nil {
		return fmt.Errorf("failed to encode environment: %w", err)
	}
	fmt.Fprint(out, string(data))
	return nil
}
