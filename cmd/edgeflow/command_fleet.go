package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunopistone/sm-iot-end-to-end/internal/loader"
)

var fleetWorkDir string

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Manage the edge device fleet",
}

var fleetSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Register edge devices and build their agent bundle",
	Long:  "Create the thing group, register the agents on the device fleet, issue their certificates and upload the agent bundle. Nothing is done when the bundle already exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setupFleet(cmd)
	},
}

func registerFleetCommand(root *cobra.Command) {
	root.AddCommand(fleetCmd)
	fleetCmd.AddCommand(fleetSetupCmd)

	fleetSetupCmd.Flags().StringVarP(&environment, "env", "e", "dev", "Environment file name under the config dir")
	fleetSetupCmd.Flags().StringVar(&fleetWorkDir, "work-dir", "", "Also write the agent bundle below this directory")
}

func setupFleet(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	env, err := loader.LoadEnvironment(settings.ConfigDir, environment)
	if err != nil {
		return err
	}
	cfg, err := env.Fleet()
	if err != nil {
		return err
	}
	if fleetWorkDir != "" {
		cfg.WorkDir = fleetWorkDir
	}

	p, err := provisioner(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "□ Provisioning %d agents on %s...\n", cfg.Agents, cfg.DeviceFleetName)
	result, err := p.Setup(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if result.Skipped {
		fmt.Fprintf(out, "✓ Agent bundle %s already exists, nothing to do\n", cfg.BundleKey)
		return nil
	}

	fmt.Fprintf(out, "✓ Thing group %s\n", result.ThingGroup.Name)
	fmt.Fprintf(out, "✓ Devices: %s\n", strings.Join(result.Devices, ", "))
	if len(result.Registered) > 0 {
		fmt.Fprintf(out, "✓ Newly registered: %s\n", strings.Join(result.Registered, ", "))
	}
	fmt.Fprintf(out, "✓ Agent bundle (%d files) saved to: %s\n", len(result.Bundle.Paths()), cfg.BundleKey)
	return nil
}
