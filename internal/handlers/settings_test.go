package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/normalize"
)

func TestSettingsFor(t *testing.T) {
	cfg := model.PipelineConfig{
		Role:   "arn:aws:iam::123456789012:role/SageMakerRole",
		Bucket: "windturbine-data",
		Deployment: &model.DeploymentConfig{
			ThingGroupName:  "WindTurbineFarm",
			DeviceFleetName: "wind-turbine-farm",
		},
	}
	normalize.Pipeline(&cfg)

	s, err := SettingsFor(cfg)
	require.NoError(t, err)
	require.Equal(t, "windturbine-data", s.Bucket)
	require.Equal(t, normalize.DefaultCompiledPath, s.CompiledPath)
	require.Equal(t, 15*time.Minute, s.CompileMaxRuntime)
	require.Equal(t, normalize.DefaultDeploymentType, s.DeploymentType)
	require.Equal(t, normalize.DefaultModelComponent, s.ModelComponent)
	require.Equal(t, "Deployment for WindTurbineFarm", s.DeploymentName)
	require.Empty(t, s.Components)
}

func TestSettingsForRejectsRuntime(t *testing.T) {
	_, err := SettingsFor(model.PipelineConfig{Compilation: &model.CompilationConfig{MaxRuntime: "soon"}})
	require.ErrorContains(t, err, "max_runtime")
}
