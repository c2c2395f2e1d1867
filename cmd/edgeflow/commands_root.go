package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/brunopistone/sm-iot-end-to-end/internal/config"
	"github.com/brunopistone/sm-iot-end-to-end/internal/logging"
)

var (
	v        = config.New()
	settings config.Settings
	logger   = zerolog.Nop()

	environment  string
	pipelineName string
)

var rootCmd = &cobra.Command{
	Use:   "edgeflow",
	Short: "Edge ML pipelines: build, run and deploy",
	Long: "edgeflow builds the training and inference pipelines of the wind turbine anomaly detection workflow, " +
		"runs them on a local or SageMaker engine and provisions the edge fleet they deploy to",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		settings = loaded
		log, err := logging.New(settings.Logging)
		if err != nil {
			return err
		}
		logger = log
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP(config.KeyConfigDir, "c", "configs", "Directory holding <env>.yml environment files")
	flags.String(config.KeyEngine, config.EngineLocal, "Workflow engine (local/sagemaker)")
	flags.String(config.KeyRegion, "", "AWS region (default: section region, then the AWS config chain)")
	flags.String(config.KeyProfile, "", "AWS shared config profile")
	flags.String(config.KeyLogLevel, "info", "Log level (trace/debug/info/warn/error)")
	flags.String(config.KeyLogFormat, "console", "Log format (console/json)")
	flags.Duration(config.KeyPollInterval, 30*time.Second, "Wait between job status queries")
	flags.Duration(config.KeyMaxWait, 8*time.Minute, "Budget of one job status wait")
	flags.String(config.KeyStorageDir, "", "Use a local directory instead of S3 for fleet artifacts")

	registerRunCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerDefinitionCommand(rootCmd)
	registerInvokeCommand(rootCmd)
	registerFleetCommand(rootCmd)
	registerPipelinesCommand(rootCmd)
	registerDebugCommand(rootCmd)

	rootCmd.SetOut(os.Stdout)
}

// addSectionFlags adds the environment and pipeline section selectors
func addSectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&environment, "env", "e", "dev", "Environment file name under the config dir")
	cmd.Flags().StringVarP(&pipelineName, "pipeline-name", "p", "training", "Pipeline section of the environment file")
}
