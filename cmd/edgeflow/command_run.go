package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunopistone/sm-iot-end-to-end/internal/loader"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/render"
	"github.com/brunopistone/sm-iot-end-to-end/internal/runner"
)

var (
	runInputs []string
	runDryRun bool
	runStrict bool
)

var runCmd = &cobra.Command{
	Use:   "run [key=value...]",
	Short: "Submit a pipeline and wait for its execution",
	Long: "Build the pipeline of an environment section, upsert it on the engine, start an execution and print its step report. " +
		"Parameter overrides come from --input and from trailing key=value arguments.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args)
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	addSectionFlags(runCmd)
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Pipeline parameter override key=value (repeatable, values may contain commas)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate and print the definition without submitting")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Exit non-zero when the execution does not succeed")
}

// runOverrides merges --input values with trailing key=value arguments; later entries win
func runOverrides(inputs, args []string) (map[string]string, []string) {
	pairs := make([]string, 0, len(inputs)+len(args))
	pairs = append(pairs, inputs...)
	pairs = append(pairs, args...)
	return loader.ParseInputs(pairs)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "□ Loading %s pipeline from %s...\n", pipelineName, loader.EnvironmentPath(settings.ConfigDir, environment))
	cfg, graph, err := section(environment, pipelineName)
	if err != nil {
		return err
	}

	overrides, skipped := runOverrides(runInputs, args)
	for _, s := range skipped {
		logger.Warn().Str("input", s).Msg("ignoring input without key=value")
	}

	def, err := pipeline.BuildDefinition(graph)
	if err != nil {
		return err
	}
	data, err := render.NewRenderer().RenderJSON(def)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))

	if runDryRun {
		_, err := runner.NewRunner(nil, out, logger).DryRun(graph, overrides)
		return err
	}

	eng, err := workflowEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	report, err := runner.NewRunner(eng, out, logger).SubmitAndWait(cmd.Context(), graph, overrides)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, render.Report(report))

	if runStrict {
		return runner.ReportError(report)
	}
	return nil
}
