package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunopistone/sm-iot-end-to-end/internal/loader"
)

var invokeEvent string

var invokeCmd = &cobra.Command{
	Use:   "invoke <handler>",
	Short: "Run one step handler on a JSON event",
	Long:  "Run a step handler (create-compilation-job, check-packaging-job, ...) with the settings of a pipeline section.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return invokeHandler(cmd, args[0])
	},
}

func registerInvokeCommand(root *cobra.Command) {
	root.AddCommand(invokeCmd)

	addSectionFlags(invokeCmd)
	invokeCmd.Flags().StringVar(&invokeEvent, "event", "", "Event file, - for stdin; empty event when unset")
}

func invokeHandler(cmd *cobra.Command, handler string) error {
	event, err := readEvent(cmd.InOrStdin(), invokeEvent)
	if err != nil {
		return err
	}

	env, err := loader.LoadEnvironment(settings.ConfigDir, environment)
	if err != nil {
		return err
	}
	cfg, err := env.Pipeline(pipelineName)
	if err != nil {
		return err
	}
	registry, _, err := functions(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	outputs, err := registry.Dispatch(cmd.Context(), handler, event)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func readEvent(stdin io.Reader, path string) ([]byte, error) {
	switch path {
	case "":
		return []byte("{}"), nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file %s: %w", path, err)
	}
	return data, nil
}
