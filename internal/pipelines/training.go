package pipelines

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/engine"
	"github.com/brunopistone/sm-iot-end-to-end/internal/handlers"
	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/registry"
	"github.com/brunopistone/sm-iot-end-to-end/internal/storage"
)

// Training step names
const (
	StepProcessing      = "ProcessingJob"
	StepTraining        = "TrainLinearRegressorDNNModel"
	StepCompile         = "LambdaCompileNeo"
	StepCheckCompile    = "LambdaCheckCompileNeo"
	StepCompileGuard    = "CheckCompileNeoError"
	StepRegisterModel   = "RegisterModel"
	DefaultTrainingName = "TrainingPipeline"
)

// Training builds processing, training, compilation and registration.
// Registration is skipped when compilation ends Failed, Stopping or Stopped.
func Training(cfg model.PipelineConfig) (*pipeline.Graph, error) {
	if cfg.Processing == nil || cfg.Training == nil {
		return nil, fmt.Errorf("training pipeline needs processing and training sections")
	}
	name := cfg.PipelineName
	if name == "" {
		name = DefaultTrainingName
	}

	g := pipeline.New(name, parameters(cfg,
		pipeline.StringParamDefault("compilation_input_shape", "[1, 1, 1, 1]"),
		pipeline.StringParam("input_file_name"),
		pipeline.StringParam("model_package_group_name"),
		pipeline.StringParamDefault("model_approval_status", registry.StatusPendingManualApproval),
		pipeline.StringParam("processing_input_file_name"),
		pipeline.IntegerParamDefault("processing_instance_count", 1),
		pipeline.StringParamDefault("processing_instance_type", "ml.m5.xlarge"),
		pipeline.IntegerParamDefault("training_instance_count", 1),
		pipeline.StringParamDefault("training_instance_type", "ml.m5.xlarge"),
	)...)

	processing, err := processingStep(cfg)
	if err != nil {
		return nil, err
	}
	training, err := trainingStep(cfg)
	if err != nil {
		return nil, err
	}

	compilation := cfg.Compilation
	if compilation == nil {
		compilation = &model.CompilationConfig{}
	}
	compile := lambda(cfg, StepCompile, handlers.CreateCompilationJob, withRole(cfg, map[string]pipeline.Value{
		"compilation_input_shape": pipeline.Param("compilation_input_shape"),
		"platform_os":             pipeline.Lit(compilation.PlatformOS),
		"platform_arch":           pipeline.Lit(compilation.PlatformArch),
		"trained_model_path":      pipeline.Output(StepTraining, jobs.OutputModelArtifacts),
	}), "compilation_job_name", "neo_job_status", "neo_model_path")

	check := lambda(cfg, StepCheckCompile, handlers.CheckCompilationJob, map[string]pipeline.Value{
		"neo_job_name": pipeline.Output(StepCompile, "compilation_job_name"),
	}, "neo_job_status", "timed_out")

	reg := cfg.Registry
	if reg == nil {
		reg = &model.RegistryConfig{}
	}
	register := &pipeline.Step{
		Name: StepRegisterModel,
		Type: pipeline.TypeRegisterModel,
		Inputs: map[string]pipeline.Value{
			engine.ArgModelPackageGroup: pipeline.Param("model_package_group_name"),
			engine.ArgModelData:         pipeline.Output(StepCompile, "neo_model_path"),
			engine.ArgApprovalStatus:    pipeline.Param("model_approval_status"),
			engine.ArgInferenceImage:    pipeline.Lit(reg.InferenceImage),
			engine.ArgContentTypes:      pipeline.Lit(strings.Join(reg.ContentTypes, ",")),
			engine.ArgResponseTypes:     pipeline.Lit(strings.Join(reg.ResponseTypes, ",")),
		},
		Outputs: []string{engine.OutputModelPackageArn, engine.OutputModelPackageVersion},
	}

	guard := failureGuard(StepCompileGuard, pipeline.Output(StepCheckCompile, "neo_job_status"), register)
	if err := addAll(g, processing, training, compile, check, guard); err != nil {
		return nil, err
	}
	return g, nil
}

func processingStep(cfg model.PipelineConfig) (*pipeline.Step, error) {
	p := cfg.Processing
	args, err := json.Marshal(append([]string{}, p.Arguments...))
	if err != nil {
		return nil, err
	}

	inputs := map[string]pipeline.Value{
		jobs.ArgImage:              pipeline.Lit(p.Image),
		jobs.ArgRole:               pipeline.Lit(cfg.Role),
		jobs.ArgInstanceType:       pipeline.Param("processing_instance_type"),
		jobs.ArgInstanceCount:      pipeline.Param("processing_instance_count"),
		jobs.ArgArguments:          pipeline.Lit(string(args)),
		jobs.FlagArg("input_file"): pipeline.Param("processing_input_file_name"),
		jobs.InputArg("input"):     pipeline.Lit(storage.URI(cfg.Bucket, p.InputPath)),
		jobs.OutputArg("output"):   pipeline.Lit(storage.URI(cfg.Bucket, p.OutputPath)),
	}
	if p.VolumeGB > 0 {
		inputs[jobs.ArgVolumeGB] = pipeline.Lit(fmt.Sprint(p.VolumeGB))
	}
	if cfg.KMSKey != "" {
		inputs[jobs.ArgKMSKey] = pipeline.Lit(cfg.KMSKey)
	}
	return &pipeline.Step{
		Name:    StepProcessing,
		Type:    pipeline.TypeProcessing,
		Inputs:  inputs,
		Outputs: []string{"output"},
	}, nil
}

func trainingStep(cfg model.PipelineConfig) (*pipeline.Step, error) {
	t := cfg.Training
	inputs := map[string]pipeline.Value{
		jobs.ArgImage:                        pipeline.Lit(t.Image),
		jobs.ArgRole:                         pipeline.Lit(cfg.Role),
		jobs.ArgInstanceType:                 pipeline.Param("training_instance_type"),
		jobs.ArgInstanceCount:                pipeline.Param("training_instance_count"),
		jobs.InputArg("train"):               pipeline.Output(StepProcessing, "output"),
		jobs.OutputArg(jobs.OutputModel):     pipeline.Lit(storage.URI(cfg.Bucket, t.OutputPath)),
		jobs.HyperParameterArg("input_file"): pipeline.Param("input_file_name"),
	}
	for k, v := range t.HyperParameters {
		inputs[jobs.HyperParameterArg(k)] = pipeline.Lit(v)
	}
	if t.VolumeGB > 0 {
		inputs[jobs.ArgVolumeGB] = pipeline.Lit(fmt.Sprint(t.VolumeGB))
	}
	if cfg.KMSKey != "" {
		inputs[jobs.ArgKMSKey] = pipeline.Lit(cfg.KMSKey)
	}
	runtime, ok, err := seconds(t.MaxRuntime)
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	if ok {
		inputs[jobs.ArgMaxRuntime] = pipeline.Lit(runtime)
	}
	return &pipeline.Step{
		Name:    StepTraining,
		Type:    pipeline.TypeTraining,
		Inputs:  inputs,
		Outputs: []string{jobs.OutputModelArtifacts},
	}, nil
}
