package cloud

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
	"github.com/brunopistone/sm-iot-end-to-end/internal/handlers"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipelines"
)

func trainingConfig() model.PipelineConfig {
	functions := map[string]string{}
	for _, h := range []string{handlers.CreateCompilationJob, handlers.CheckCompilationJob} {
		functions[h] = "arn:aws:lambda:eu-west-1:123456789012:function:" + h
	}
	return model.PipelineConfig{
		PipelineName: "TrainingPipeline",
		Role:         "arn:aws:iam::123456789012:role/SageMakerRole",
		Bucket:       "windturbine-data",
		Functions:    functions,
		Processing: &model.ProcessingConfig{
			Image:      "processing:latest",
			InputPath:  "data/input",
			OutputPath: "data/output",
			Arguments:  []string{"--features_window", "10"},
		},
		Training: &model.TrainingConfig{
			Image:           "training:latest",
			OutputPath:      "output/model",
			HyperParameters: map[string]string{"epochs": "50"},
		},
		Compilation: &model.CompilationConfig{PlatformOS: "LINUX", PlatformArch: "X86_64"},
		Registry:    &model.RegistryConfig{ContentTypes: []string{"text/csv"}, ResponseTypes: []string{"text/csv"}},
	}
}

type document struct {
	Version    string                   `json:"Version"`
	Parameters []map[string]interface{} `json:"Parameters"`
	Steps      []map[string]interface{} `json:"Steps"`
}

func translated(t *testing.T, cfg model.PipelineConfig) document {
	t.Helper()
	g, err := pipelines.Training(cfg)
	require.NoError(t, err)
	data, err := Translate(g)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func stepNamed(t *testing.T, doc document, name string) map[string]interface{} {
	t.Helper()
	for _, s := range doc.Steps {
		if s["Name"] == name {
			return s
		}
	}
	require.FailNow(t, "step not found", name)
	return nil
}

func get(path string) map[string]interface{} {
	return map[string]interface{}{"Get": path}
}

func TestTranslateTrainingPipeline(t *testing.T) {
	doc := translated(t, trainingConfig())

	var top []string
	for _, s := range doc.Steps {
		top = append(top, s["Name"].(string))
	}
	require.Equal(t, []string{
		pipelines.StepProcessing, pipelines.StepTraining, pipelines.StepCompile,
		pipelines.StepCheckCompile, pipelines.StepCompileGuard,
	}, top)

	for _, p := range doc.Parameters {
		if p["Name"] == "processing_instance_count" {
			require.Equal(t, "Integer", p["Type"])
			require.Equal(t, float64(1), p["DefaultValue"])
		}
	}

	processing := stepNamed(t, doc, pipelines.StepProcessing)["Arguments"].(map[string]interface{})
	app := processing["AppSpecification"].(map[string]interface{})
	require.Equal(t, []interface{}{
		"--features_window", "10",
		"--input_file", get("Parameters.processing_input_file_name"),
	}, app["ContainerArguments"])
	cluster := processing["ProcessingResources"].(map[string]interface{})["ClusterConfig"].(map[string]interface{})
	require.Equal(t, get("Parameters.processing_instance_type"), cluster["InstanceType"])
	require.Equal(t, float64(defaultVolumeGB), cluster["VolumeSizeInGB"])

	training := stepNamed(t, doc, pipelines.StepTraining)["Arguments"].(map[string]interface{})
	channel := training["InputDataConfig"].([]interface{})[0].(map[string]interface{})
	source := channel["DataSource"].(map[string]interface{})["S3DataSource"].(map[string]interface{})
	require.Equal(t, get("Steps.ProcessingJob.ProcessingOutputConfig.Outputs['output'].S3Output.S3Uri"), source["S3Uri"])
	require.Equal(t, "50", training["HyperParameters"].(map[string]interface{})["epochs"])

	compile := stepNamed(t, doc, pipelines.StepCompile)
	require.Equal(t, "arn:aws:lambda:eu-west-1:123456789012:function:"+handlers.CreateCompilationJob, compile["FunctionArn"])
	args := compile["Arguments"].(map[string]interface{})
	require.Equal(t, get("Steps.TrainLinearRegressorDNNModel.ModelArtifacts.S3ModelArtifacts"), args["trained_model_path"])
	require.NotContains(t, args, "FunctionName")
	require.Len(t, compile["OutputParameters"], 3)

	guard := stepNamed(t, doc, pipelines.StepCompileGuard)["Arguments"].(map[string]interface{})
	cond := guard["Conditions"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, gate.KindMemberOf, cond["Type"])
	require.Equal(t, get("Steps.LambdaCheckCompileNeo.OutputParameters['neo_job_status']"), cond["QueryValue"])
	require.Equal(t, []interface{}{"Failed", "FAILED", "Stopping", "STOPPING", "Stopped", "STOPPED"}, cond["Values"])
	require.Empty(t, guard["IfSteps"])

	register := guard["ElseSteps"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, pipelines.StepRegisterModel, register["Name"])
	spec := register["Arguments"].(map[string]interface{})["InferenceSpecification"].(map[string]interface{})
	container := spec["Containers"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, get("Steps.LambdaCompileNeo.OutputParameters['neo_model_path']"), container["ModelDataUrl"])
	require.Equal(t, []interface{}{"text/csv"}, spec["SupportedContentTypes"])
}

func TestTranslateGuardMatchesProviderStatuses(t *testing.T) {
	doc := translated(t, trainingConfig())
	guard := stepNamed(t, doc, pipelines.StepCompileGuard)["Arguments"].(map[string]interface{})
	cond := guard["Conditions"].([]interface{})[0].(map[string]interface{})

	var values []string
	for _, v := range cond["Values"].([]interface{}) {
		values = append(values, v.(string))
	}
	p, err := gate.New(cond["Type"].(string), values)
	require.NoError(t, err)

	for _, status := range []string{"FAILED", "STOPPING", "STOPPED", "Failed"} {
		require.Equal(t, gate.IfBranch, gate.Evaluate(p, status), status)
	}
	for _, status := range []string{"COMPLETED", "Completed", "INPROGRESS"} {
		require.Equal(t, gate.ElseBranch, gate.Evaluate(p, status), status)
	}
}

func TestConditionValuesKeepsOtherValues(t *testing.T) {
	require.Equal(t, []string{"Approved", "Failed", "FAILED"}, conditionValues([]string{"Approved", "Failed", "FAILED"}))
}

func TestTranslateRequiresFunctionArn(t *testing.T) {
	cfg := trainingConfig()
	delete(cfg.Functions, handlers.CheckCompilationJob)
	g, err := pipelines.Training(cfg)
	require.NoError(t, err)

	_, err = Translate(g)
	require.ErrorContains(t, err, pipelines.StepCheckCompile)
	require.ErrorContains(t, err, "FunctionArn")
}

func TestTranslateIsDeterministic(t *testing.T) {
	g, err := pipelines.Training(trainingConfig())
	require.NoError(t, err)
	first, err := Translate(g)
	require.NoError(t, err)
	second, err := Translate(g)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}
