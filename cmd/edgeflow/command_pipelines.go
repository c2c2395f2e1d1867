package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunopistone/sm-iot-end-to-end/internal/loader"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipelines"
)

var longFormat bool

var pipelinesCmd = &cobra.Command{
	Use:     "pipelines [section]",
	Aliases: []string{"pipeline"},
	Short:   "List the pipeline sections of an environment",
	Long:    "List the pipeline sections of an environment file. Use 'edgeflow pipelines <section>' for its parameters and steps.",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPipelines(cmd, args)
	},
}

func registerPipelinesCommand(root *cobra.Command) {
	root.AddCommand(pipelinesCmd)

	pipelinesCmd.Flags().StringVarP(&environment, "env", "e", "dev", "Environment file name under the config dir")
	pipelinesCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show detailed information")
}

func listPipelines(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	env, err := loader.LoadEnvironment(settings.ConfigDir, environment)
	if err != nil {
		return err
	}

	names := env.PipelineNames()
	if len(args) > 0 {
		if _, err := env.Pipeline(args[0]); err != nil {
			return err
		}
		names = args
		longFormat = true
	}

	fmt.Fprintf(out, "Pipelines in %s:\n", env.Path)
	for _, name := range names {
		cfg, _ := env.Pipeline(name)
		info, err := extractPipelineInfo(name, cfg)
		if err != nil {
			return err
		}
		if longFormat {
			printLongFormat(out, info)
		} else {
			fmt.Fprintf(out, "  %s (template: %s, name: %s, steps: %d)\n", info.Section, info.Template, info.Name, len(info.Steps))
		}
	}

	if !longFormat {
		fmt.Fprintf(out, "\nKnown templates: %v\n", pipelines.Templates())
		fmt.Fprintln(out, "Run 'edgeflow pipelines <section>' for detailed information")
	}
	return nil
}
