package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const devEnvironment = `
training:
  pipeline_name: TrainingPipeline
  role: arn:aws:iam::123456789012:role/SageMakerRole
  bucket: windturbine-data
  parameters:
    training_instance_count: 2
  processing:
    image: 123456789012.dkr.ecr.eu-west-1.amazonaws.com/processing:latest
  training:
    image: 763104351884.dkr.ecr.eu-west-1.amazonaws.com/tensorflow-training:2.4.1-cpu
    hyperparameters:
      epochs: 50
inference:
  template: inference
  role: arn:aws:iam::123456789012:role/SageMakerRole
  bucket: windturbine-data
fleet:
  region: eu-west-1
  bucket: windturbine-data
  device_fleet_name: wind-turbine-farm
  thing_group_name: WindTurbineFarm
  policy_name: WindTurbineFarmPolicy
  agents: 2
`

func writeEnv(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0o644))
	return dir
}

func TestLoadEnvironment(t *testing.T) {
	dir := writeEnv(t, "dev", devEnvironment)

	env, err := LoadEnvironment(dir, "dev")
	require.NoError(t, err)
	require.Equal(t, []string{"inference", "training"}, env.PipelineNames())

	training, err := env.Pipeline("training")
	require.NoError(t, err)
	require.Equal(t, "TrainingPipeline", training.PipelineName)
	require.Equal(t, "2", training.Parameters["training_instance_count"])
	require.Equal(t, "50", training.Training.HyperParameters["epochs"])
	require.Equal(t, "KERAS", training.Compilation.Framework)

	fleet, err := env.Fleet()
	require.NoError(t, err)
	require.Equal(t, 2, fleet.Agents)
	require.Equal(t, "Certificates/eu-west-1/eu-west-1.pem", fleet.RootCAKey)
}

func TestLoadEnvironmentMissingSection(t *testing.T) {
	dir := writeEnv(t, "dev", devEnvironment)
	env, err := LoadEnvironment(dir, "dev")
	require.NoError(t, err)

	_, err = env.Pipeline("deployment")
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "deployment", cerr.Section)
	require.Contains(t, cerr.Error(), "available: inference, training")
}

func TestLoadEnvironmentErrors(t *testing.T) {
	cases := map[string]string{
		"invalid yaml": "training: [unterminated",
		"empty":        "",
		"schema":       "training:\n  bucket: windturbine-data\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeEnv(t, "dev", content)
			_, err := LoadEnvironment(dir, "dev")
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			require.Equal(t, filepath.Join(dir, "dev.yml"), cerr.Path)
		})
	}

	_, err := LoadEnvironment(t.TempDir(), "prod")
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestFleetSectionMissing(t *testing.T) {
	dir := writeEnv(t, "dev", "training:\n  role: arn:aws:iam::1:role/r\n  bucket: windturbine-data\n")
	env, err := LoadEnvironment(dir, "dev")
	require.NoError(t, err)
	_, err = env.Fleet()
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, FleetSection, cerr.Section)
}

func TestParseInputs(t *testing.T) {
	inputs, skipped := ParseInputs([]string{
		"input_file_name = wind_turbine.csv",
		"query=a=b",
		"verbose",
		"=orphan",
	})
	require.Equal(t, map[string]string{"input_file_name": "wind_turbine.csv", "query": "a=b"}, inputs)
	require.Equal(t, []string{"verbose", "=orphan"}, skipped)
}
