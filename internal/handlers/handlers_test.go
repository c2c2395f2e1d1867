package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/registry"
	"github.com/brunopistone/sm-iot-end-to-end/internal/request"
)

type fakeJobs struct {
	mu      sync.Mutex
	status  model.JobStatus
	created map[string]jobs.Spec
}

func (f *fakeJobs) Create(_ context.Context, _ model.JobKind, name string, spec jobs.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[name] = spec
	return nil
}

func (f *fakeJobs) Describe(_ context.Context, kind model.JobKind, name string) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.Job{ID: name, Kind: kind, Status: f.status}, nil
}

type fakeFleet struct {
	outputs     map[string]string
	deployments []string
	components  []fleet.Component
}

func (f *fakeFleet) DescribeThingGroup(_ context.Context, name string) (fleet.ThingGroup, error) {
	return fleet.ThingGroup{Name: name, Arn: "arn:aws:iot:eu-west-1:123456789012:thinggroup/" + name}, nil
}

func (f *fakeFleet) CreateThingGroup(ctx context.Context, name string) (fleet.ThingGroup, error) {
	return f.DescribeThingGroup(ctx, name)
}

func (f *fakeFleet) ThingGroupsForThing(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeFleet) AddThingToThingGroup(context.Context, fleet.ThingGroup, string, string) error {
	return nil
}

func (f *fakeFleet) DescribeDevice(context.Context, string, string) error { return nil }

func (f *fakeFleet) RegisterDevices(context.Context, string, []fleet.Device) error { return nil }

func (f *fakeFleet) FindDeviceFleet(_ context.Context, nameContains string) (string, error) {
	return nameContains + "-a1b2", nil
}

func (f *fakeFleet) UpdateFleetOutput(_ context.Context, name, uri string) error {
	f.outputs[name] = uri
	return nil
}

func (f *fakeFleet) CreateDeployment(_ context.Context, name, _ string, components []fleet.Component) (string, error) {
	f.deployments = append(f.deployments, name)
	f.components = components
	return "deployment-1", nil
}

type harness struct {
	registry *Registry
	jobs     *fakeJobs
	models   *registry.Memory
	fleet    *fakeFleet
}

func settings() Settings {
	return Settings{
		Bucket:            "windturbine-data",
		Role:              "arn:aws:iam::123456789012:role/SageMakerRole",
		CompiledPath:      "output/compiled",
		PackagedPath:      "output/packaged",
		Framework:         "KERAS",
		PlatformOS:        "LINUX",
		PlatformArch:      "X86_64",
		CompileMaxRuntime: 900 * time.Second,
		DeploymentType:    "GreengrassV2Component",
		ThingGroupName:    "WindTurbineFarm",
		DeviceFleetName:   "wind-turbine-farm",
		DeploymentName:    "Deployment for WindTurbineFarm",
		ModelComponent:    "aws.samples.windturbine.model",
	}
}

func newHarness(t *testing.T, maxWait time.Duration) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	svc := &fakeJobs{status: model.StatusCompleted, created: make(map[string]jobs.Spec)}
	models := registry.NewMemory(mock.Now)
	edge := &fakeFleet{outputs: make(map[string]string)}

	h := &harness{registry: NewRegistry(zerolog.Nop()), jobs: svc, models: models, fleet: edge}
	err := RegisterAll(h.registry, Deps{
		Jobs:     jobs.NewClient(svc, mock, zerolog.Nop()),
		Poller:   jobs.NewPoller(svc, jobs.WithClock(mock), jobs.WithMaxWait(maxWait)),
		Registry: models,
		Deployer: fleet.NewDeployer(edge, edge, edge, zerolog.Nop()),
		Settings: settings(),
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return h
}

func TestRegisterAllNames(t *testing.T) {
	h := newHarness(t, time.Minute)
	require.Equal(t, []string{
		CheckCompilationJob, CheckPackagingJob, CreateCompilationJob, CreateDeployment,
		CreateModelPackageGroup, CreatePackagingJob, GetLastApprovedModel,
	}, h.registry.Names())
	require.Error(t, h.registry.Register(CreateDeployment, func(context.Context, request.Request) (map[string]string, error) { return nil, nil }))
}

func TestDispatchResolvesArnAndBody(t *testing.T) {
	h := newHarness(t, time.Minute)
	out, err := h.registry.Dispatch(context.Background(),
		"arn:aws:lambda:eu-west-1:123456789012:function:create-model-package-group:$LATEST",
		`{"body": "{\"model_package_group_name\": \"wind-turbine\"}"}`)
	require.NoError(t, err)
	require.Equal(t, "wind-turbine", out["model_package_group_name"])
	require.Equal(t, "true", out["created"])

	out, err = h.registry.Invoke(context.Background(), CreateModelPackageGroup, map[string]interface{}{"model_package_group_name": "wind-turbine"})
	require.NoError(t, err)
	require.Equal(t, "false", out["created"])
}

func TestDispatchUnknownHandler(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, err := h.registry.Dispatch(context.Background(), "delete-everything", map[string]interface{}{})
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, "delete-everything", herr.Handler)
}

func TestCreateCompilationJob(t *testing.T) {
	h := newHarness(t, time.Minute)
	out, err := h.registry.Invoke(context.Background(), CreateCompilationJob, map[string]interface{}{
		"trained_model_path":      "s3://windturbine-data/output/model/train-1/output/model.tar.gz",
		"compilation_input_shape": "[1, 6, 10, 10]",
	})
	require.NoError(t, err)

	id := out["compilation_job_name"]
	require.Equal(t, "sagemaker-neo-job-keras-1791968400000", id)
	require.Equal(t, "Starting", out["neo_job_status"])
	require.Equal(t, "s3://windturbine-data/output/compiled/"+id+"/model-LINUX_X86_64.tar.gz", out["neo_model_path"])

	spec := h.jobs.created[id]
	require.Equal(t, settings().Role, spec.Role)
	require.Equal(t, 900*time.Second, spec.MaxRuntime)
	require.Equal(t, "s3://windturbine-data/output/compiled", spec.Outputs[jobs.OutputModel])
	require.Equal(t, `{"input_token": [1, 6, 10, 10]}`, spec.Compilation.DataInputConfig)
	require.Equal(t, "KERAS", spec.Compilation.Framework)
}

func TestCreateCompilationJobNeedsModelPath(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, err := h.registry.Invoke(context.Background(), CreateCompilationJob, map[string]interface{}{})
	var derr *request.DecodeError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, "trained_model_path", derr.Field)
	require.Empty(t, h.jobs.created)
}

func TestCheckCompilationJobReportsFailure(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.jobs.status = model.StatusFailed

	out, err := h.registry.Invoke(context.Background(), CheckCompilationJob, map[string]interface{}{"neo_job_name": "sagemaker-neo-job-keras-1"})
	require.NoError(t, err)
	require.Equal(t, "Failed", out["neo_job_status"])
	require.Equal(t, "false", out["timed_out"])
}

func TestCheckPackagingJobTimesOut(t *testing.T) {
	h := newHarness(t, 0)
	h.jobs.status = model.StatusInProgress

	out, err := h.registry.Invoke(context.Background(), CheckPackagingJob, map[string]interface{}{"edge_manager_job_name": "edge-manager-job-keras-1"})
	require.NoError(t, err)
	require.Equal(t, "InProgress", out["edge_manager_job_status"])
	require.Equal(t, "true", out["timed_out"])
}

func TestCreatePackagingJob(t *testing.T) {
	h := newHarness(t, time.Minute)
	out, err := h.registry.Invoke(context.Background(), CreatePackagingJob, map[string]interface{}{
		"edge_model_name":    "wind-turbine-anomaly",
		"edge_model_version": 3,
		"neo_job_name":       "sagemaker-neo-job-keras-1",
		"deployment_configs": `{"ComponentName": "aws.samples.windturbine.model"}`,
	})
	require.NoError(t, err)

	id := out["edge_manager_job_name"]
	require.Equal(t, "s3://windturbine-data/output/packaged/"+id+"/wind-turbine-anomaly-3.tar.gz", out["edge_manager_model_path"])

	spec := h.jobs.created[id]
	require.Equal(t, "sagemaker-neo-job-keras-1", spec.Packaging.CompilationJob)
	require.Equal(t, "3", spec.Packaging.ModelVersion)
	require.Equal(t, "GreengrassV2Component", spec.Packaging.DeploymentType)

	var cfg map[string]string
	require.NoError(t, json.Unmarshal([]byte(spec.Packaging.DeploymentConfig), &cfg))
	require.Equal(t, "3.0.0", cfg["ComponentVersion"])
	require.Equal(t, "aws.samples.windturbine.model", cfg["ComponentName"])
}

func TestCreatePackagingJobIgnoresBadDeploymentConfig(t *testing.T) {
	h := newHarness(t, time.Minute)
	out, err := h.registry.Invoke(context.Background(), CreatePackagingJob, map[string]interface{}{
		"edge_model_name":    "wind-turbine-anomaly",
		"edge_model_version": "1",
		"neo_job_name":       "sagemaker-neo-job-keras-1",
		"deployment_configs": "not json",
	})
	require.NoError(t, err)
	spec := h.jobs.created[out["edge_manager_job_name"]]
	require.Empty(t, spec.Packaging.DeploymentConfig)
	require.Empty(t, spec.Packaging.DeploymentType)
}

func TestGetLastApprovedModel(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx := context.Background()
	_, err := h.models.EnsureGroup(ctx, "wind-turbine", "")
	require.NoError(t, err)

	out, err := h.registry.Invoke(ctx, GetLastApprovedModel, map[string]interface{}{"model_package_group_name": "wind-turbine"})
	require.NoError(t, err)
	require.Equal(t, "", out["neo_job_name"])

	for _, job := range []string{"sagemaker-neo-job-keras-1", "sagemaker-neo-job-keras-2"} {
		_, err := h.models.Register(ctx, registry.ModelPackage{
			Group:        "wind-turbine",
			ModelDataURL: "s3://windturbine-data/output/compiled/" + job + "/model-LINUX_X86_64.tar.gz",
		})
		require.NoError(t, err)
	}
	require.NoError(t, h.models.Approve("wind-turbine", 1, registry.StatusApproved))

	out, err = h.registry.Invoke(ctx, GetLastApprovedModel, map[string]interface{}{"model_package_group_name": "wind-turbine"})
	require.NoError(t, err)
	require.Equal(t, "sagemaker-neo-job-keras-1", out["neo_job_name"])
	require.Equal(t, "1", out["edge_model_version"])
}

func TestGetLastApprovedModelUnknownGroup(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, err := h.registry.Invoke(context.Background(), GetLastApprovedModel, map[string]interface{}{"model_package_group_name": "missing"})
	require.Error(t, err)
	require.False(t, errors.Is(err, registry.ErrNoApprovedPackage))
}

func TestCreateDeployment(t *testing.T) {
	h := newHarness(t, time.Minute)
	out, err := h.registry.Invoke(context.Background(), CreateDeployment, map[string]interface{}{"edge_model_version": "2"})
	require.NoError(t, err)
	require.Equal(t, "deployment-1", out["deployment_id"])
	require.Equal(t, []string{"Deployment for WindTurbineFarm"}, h.fleet.deployments)
	require.Equal(t, "s3://windturbine-data", h.fleet.outputs["wind-turbine-farm-a1b2"])

	versions := map[string]string{}
	for _, c := range h.fleet.components {
		versions[c.Name] = c.Version
	}
	require.Equal(t, "2.0.0", versions["aws.samples.windturbine.model"])
}

func TestFunctionName(t *testing.T) {
	require.Equal(t, "check-compilation-job", FunctionName("arn:aws:lambda:eu-west-1:123456789012:function:check-compilation-job"))
	require.Equal(t, "check-compilation-job", FunctionName("arn:aws:lambda:eu-west-1:123456789012:function:check-compilation-job:3"))
	require.Equal(t, "check-compilation-job", FunctionName("check-compilation-job"))
}
