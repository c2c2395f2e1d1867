package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunopistone/sm-iot-end-to-end/internal/cloud"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/render"
)

var (
	definitionOutput    string
	definitionFormat    string
	definitionView      string
	definitionSageMaker bool
)

var definitionCmd = &cobra.Command{
	Use:   "definition",
	Short: "Render the definition of a pipeline",
	Long:  "Render the serialized definition of a pipeline section to stdout or a file, optionally with a DAG view.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderDefinition(cmd)
	},
}

func registerDefinitionCommand(root *cobra.Command) {
	root.AddCommand(definitionCmd)

	addSectionFlags(definitionCmd)
	definitionCmd.Flags().StringVarP(&definitionOutput, "output", "o", "", "Output file path (.json/.yaml); stdout when empty")
	definitionCmd.Flags().StringVarP(&definitionFormat, "format", "f", render.FormatJSON, "Stdout format (json/yaml)")
	definitionCmd.Flags().StringVarP(&definitionView, "view", "v", "", "View graph (dag/dependencies)")
	definitionCmd.Flags().BoolVar(&definitionSageMaker, "sagemaker", false, "Print the SageMaker pipeline document instead")
}

func renderDefinition(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	_, graph, err := section(environment, pipelineName)
	if err != nil {
		return err
	}

	if definitionSageMaker {
		doc, err := cloud.Translate(graph)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(doc))
		return nil
	}

	def, err := pipeline.BuildDefinition(graph)
	if err != nil {
		return err
	}
	renderer := render.NewRenderer()
	if definitionOutput != "" {
		if err := renderer.WriteDefinition(def, definitionOutput); err != nil {
			return fmt.Errorf("failed to write definition: %w", err)
		}
		fmt.Fprintf(out, "✓ Definition of %s with %d steps\n", graph.Name, graph.Len())
		fmt.Fprintf(out, "✓ Saved to: %s\n", definitionOutput)
	} else {
		data, err := renderer.Render(def, definitionFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}

	if definitionView == "" {
		return nil
	}
	viewer := render.NewGraphViewer(graph)
	switch definitionView {
	case "dag":
		fmt.Fprintln(out, "\n"+viewer.ViewDAG())
	case "dependencies":
		view, err := viewer.ViewDependencies()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\n"+view)
	default:
		return fmt.Errorf("unknown view %q (dag/dependencies)", definitionView)
	}
	return nil
}
