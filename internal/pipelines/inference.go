package pipelines

import (
	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
	"github.com/brunopistone/sm-iot-end-to-end/internal/handlers"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

// Inference step names
const (
	StepLastApproved     = "LambdaGetLastApprovedModel"
	StepApprovedGuard    = "CheckLastApprovedModel"
	StepPackage          = "LambdaPackageEdgeManager"
	StepCheckPackage     = "LambdaCheckPackageEdgeManager"
	StepPackageGuard     = "CheckPackageEdgeManagerError"
	StepDeploy           = "LambdaCreateDeployment"
	DefaultInferenceName = "InferencePipeline"
)

// Inference packages the latest approved model for the edge. Nothing runs after the lookup
// when no package is approved. With a deployment section the packaged component is also
// checked and rolled out to the fleet.
func Inference(cfg model.PipelineConfig) (*pipeline.Graph, error) {
	name := cfg.PipelineName
	if name == "" {
		name = DefaultInferenceName
	}
	g := pipeline.New(name, parameters(cfg,
		pipeline.StringParam("edge_model_name"),
		pipeline.StringParam("model_package_group_name"),
	)...)

	lookup := lambda(cfg, StepLastApproved, handlers.GetLastApprovedModel, map[string]pipeline.Value{
		"model_package_group_name": pipeline.Param("model_package_group_name"),
	}, "neo_job_name", "edge_model_version")

	configs, err := deploymentConfigs(cfg)
	if err != nil {
		return nil, err
	}
	packaging := lambda(cfg, StepPackage, handlers.CreatePackagingJob, withRole(cfg, map[string]pipeline.Value{
		"deployment_configs": pipeline.Lit(configs),
		"edge_model_name":    pipeline.Param("edge_model_name"),
		"edge_model_version": pipeline.Output(StepLastApproved, "edge_model_version"),
		"neo_job_name":       pipeline.Output(StepLastApproved, "neo_job_name"),
	}), "edge_manager_job_name", "edge_manager_job_status", "edge_manager_model_path")

	orElse := []*pipeline.Step{packaging}
	if d := cfg.Deployment; d != nil {
		check := lambda(cfg, StepCheckPackage, handlers.CheckPackagingJob, map[string]pipeline.Value{
			"edge_manager_job_name": pipeline.Output(StepPackage, "edge_manager_job_name"),
		}, "edge_manager_job_status", "timed_out")

		deployInputs := map[string]pipeline.Value{
			"edge_model_version": pipeline.Output(StepLastApproved, "edge_model_version"),
		}
		optional := map[string]string{
			"thing_group_name":  d.ThingGroupName,
			"device_fleet_name": d.DeviceFleetName,
			"deployment_name":   d.DeploymentName,
			"bucket":            cfg.Bucket,
		}
		if cfg.Packaging != nil {
			optional["component_name"] = cfg.Packaging.ComponentName
		}
		for k, v := range optional {
			if v != "" {
				deployInputs[k] = pipeline.Lit(v)
			}
		}
		deploy := lambda(cfg, StepDeploy, handlers.CreateDeployment, deployInputs, "deployment_id")

		orElse = append(orElse, check, failureGuard(StepPackageGuard, pipeline.Output(StepCheckPackage, "edge_manager_job_status"), deploy))
	}

	guard := &pipeline.Step{
		Name: StepApprovedGuard,
		Type: pipeline.TypeCondition,
		Condition: &pipeline.Condition{
			Subject:   pipeline.Output(StepLastApproved, "neo_job_name"),
			Predicate: gate.Equals(""),
			ElseSteps: orElse,
		},
	}
	if err := addAll(g, lookup, guard); err != nil {
		return nil, err
	}
	return g, nil
}
