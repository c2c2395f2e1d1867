package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/registry"
	"github.com/brunopistone/sm-iot-end-to-end/internal/request"
	"github.com/brunopistone/sm-iot-end-to-end/internal/storage"
)

// Handler names
const (
	CreateModelPackageGroup = "create-model-package-group"
	GetLastApprovedModel    = "get-last-approved-model"
	CreateCompilationJob    = "create-compilation-job"
	CheckCompilationJob     = "check-compilation-job"
	CreatePackagingJob      = "create-packaging-job"
	CheckPackagingJob       = "check-packaging-job"
	CreateDeployment        = "create-deployment"
)

const (
	compilationPrefix = "sagemaker-neo-job-keras"
	packagingPrefix   = "edge-manager-job-keras"
	defaultShape      = "[1, 1, 1, 1]"
)

// Settings are the environment of the handlers
type Settings struct {
	Bucket            string
	Role              string
	KMSKey            string
	CompiledPath      string
	PackagedPath      string
	Framework         string
	PlatformOS        string
	PlatformArch      string
	CompileMaxRuntime time.Duration
	DeploymentType    string
	GroupDescription  string
	ThingGroupName    string
	DeviceFleetName   string
	DeploymentName    string
	ModelComponent    string
	Components        map[string]string
}

// Deps are the collaborators of the handlers. Deployer may be nil when no fleet is configured.
type Deps struct {
	Jobs     *jobs.Client
	Poller   *jobs.Poller
	Registry registry.Registry
	Deployer *fleet.Deployer
	Settings Settings
	Log      zerolog.Logger
}

// RegisterAll adds every handler to r
func RegisterAll(r *Registry, deps Deps) error {
	all := map[string]Handler{
		CreateModelPackageGroup: createModelPackageGroup(deps),
		GetLastApprovedModel:    getLastApprovedModel(deps),
		CreateCompilationJob:    createCompilationJob(deps),
		CheckCompilationJob:     checkJob(deps, model.KindCompilation, "neo_job_name", "neo_job_status"),
		CreatePackagingJob:      createPackagingJob(deps),
		CheckPackagingJob:       checkJob(deps, model.KindPackaging, "edge_manager_job_name", "edge_manager_job_status"),
		CreateDeployment:        createDeployment(deps),
	}
	for name, h := range all {
		if err := r.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func createModelPackageGroup(deps Deps) Handler {
	return func(ctx context.Context, req request.Request) (map[string]string, error) {
		group, err := req.String("model_package_group_name")
		if err != nil {
			return nil, err
		}
		description := req.StringOr("model_package_group_description", deps.Settings.GroupDescription)

		created, err := deps.Registry.EnsureGroup(ctx, group, description)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure model package group %s: %w", group, err)
		}
		deps.Log.Info().Str("group", group).Bool("created", created).Msg("model package group ready")
		return map[string]string{
			"model_package_group_name": group,
			"created":                  strconv.FormatBool(created),
		}, nil
	}
}

// getLastApprovedModel reports an empty neo_job_name when nothing is approved yet
func getLastApprovedModel(deps Deps) Handler {
	return func(ctx context.Context, req request.Request) (map[string]string, error) {
		group, err := req.String("model_package_group_name")
		if err != nil {
			return nil, err
		}

		pkg, err := deps.Registry.LatestApproved(ctx, group)
		if errors.Is(err, registry.ErrNoApprovedPackage) {
			deps.Log.Warn().Str("group", group).Msg("no approved model package")
			return map[string]string{"neo_job_name": "", "edge_model_version": "", "model_package_arn": ""}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find approved model package in %s: %w", group, err)
		}

		deps.Log.Info().Str("package", pkg.Arn).Int("version", pkg.Version).Msg("latest approved model package")
		return map[string]string{
			"neo_job_name":       pkg.CompilationJob(),
			"edge_model_version": strconv.Itoa(pkg.Version),
			"model_package_arn":  pkg.Arn,
		}, nil
	}
}

func createCompilationJob(deps Deps) Handler {
	s := deps.Settings
	return func(ctx context.Context, req request.Request) (map[string]string, error) {
		modelPath, err := req.String("trained_model_path")
		if err != nil {
			return nil, err
		}
		role := req.StringOr("execution_role", s.Role)
		if role == "" {
			return nil, &request.DecodeError{Field: "execution_role", Reason: "missing"}
		}
		shape := req.StringOr("compilation_input_shape", defaultShape)
		platformOS := req.StringOr("platform_os", s.PlatformOS)
		platformArch := req.StringOr("platform_arch", s.PlatformArch)

		id, err := deps.Jobs.Submit(ctx, model.KindCompilation, jobs.Spec{
			NamePrefix: compilationPrefix,
			Role:       role,
			KMSKey:     s.KMSKey,
			MaxRuntime: s.CompileMaxRuntime,
			Outputs:    map[string]string{jobs.OutputModel: storage.URI(s.Bucket, s.CompiledPath)},
			Compilation: &jobs.CompilationSpec{
				ModelURI:        modelPath,
				Framework:       s.Framework,
				DataInputConfig: fmt.Sprintf(`{"input_token": %s}`, shape),
				TargetOS:        platformOS,
				TargetArch:      platformArch,
			},
		})
		if err != nil {
			return nil, err
		}

		return map[string]string{
			"compilation_job_name": id,
			"neo_job_status":       string(model.StatusStarting),
			"neo_model_path":       storage.URI(s.Bucket, s.CompiledPath, id, fmt.Sprintf("model-%s_%s.tar.gz", platformOS, platformArch)),
		}, nil
	}
}

// checkJob polls a job and reports its last status. Failures are reported, not raised,
// so a condition step can branch on them.
func checkJob(deps Deps, kind model.JobKind, nameField, statusField string) Handler {
	return func(ctx context.Context, req request.Request) (map[string]string, error) {
		id, err := req.String(nameField)
		if err != nil {
			return nil, err
		}

		res, err := deps.Poller.AwaitTerminal(ctx, kind, id)
		if err != nil {
			return nil, err
		}

		event := deps.Log.Info()
		if res.TimedOut || res.Status() != model.StatusCompleted {
			event = deps.Log.Warn()
		}
		event.Str("job", id).Str("status", string(res.Status())).Bool("timed_out", res.TimedOut).Int("polls", res.Polls).Msg("job checked")

		return map[string]string{
			statusField: string(res.Status()),
			"timed_out": strconv.FormatBool(res.TimedOut),
		}, nil
	}
}

func createPackagingJob(deps Deps) Handler {
	s := deps.Settings
	return func(ctx context.Context, req request.Request) (map[string]string, error) {
		role := req.StringOr("execution_role", s.Role)
		if role == "" {
			return nil, &request.DecodeError{Field: "execution_role", Reason: "missing"}
		}
		modelName, err := req.String("edge_model_name")
		if err != nil {
			return nil, err
		}
		version, err := req.String("edge_model_version")
		if err != nil {
			return nil, err
		}
		neoJob, err := req.String("neo_job_name")
		if err != nil {
			return nil, err
		}

		packaging := &jobs.PackagingSpec{CompilationJob: neoJob, ModelName: modelName, ModelVersion: version}
		if req.Has("deployment_configs") {
			cfg, err := req.Map("deployment_configs")
			if err != nil {
				deps.Log.Info().Err(err).Msg("deployment config is not a valid JSON object, ignoring it")
			} else {
				cfg["ComponentVersion"] = fleet.ComponentVersion(version)
				data, err := json.Marshal(cfg)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal deployment config: %w", err)
				}
				packaging.DeploymentType = s.DeploymentType
				packaging.DeploymentConfig = string(data)
			}
		}

		id, err := deps.Jobs.Submit(ctx, model.KindPackaging, jobs.Spec{
			NamePrefix: packagingPrefix,
			Role:       role,
			KMSKey:     s.KMSKey,
			Outputs:    map[string]string{jobs.OutputModel: storage.URI(s.Bucket, s.PackagedPath)},
			Packaging:  packaging,
		})
		if err != nil {
			return nil, err
		}

		return map[string]string{
			"edge_manager_job_name":   id,
			"edge_manager_job_status": string(model.StatusStarting),
			"edge_manager_model_path": storage.URI(s.Bucket, s.PackagedPath, id, fmt.Sprintf("%s-%s.tar.gz", modelName, version)),
		}, nil
	}
}

func createDeployment(deps Deps) Handler {
	s := deps.Settings
	return func(ctx context.Context, req request.Request) (map[string]string, error) {
		if deps.Deployer == nil {
			return nil, fmt.Errorf("no fleet is configured for deployments")
		}
		version, err := req.String("edge_model_version")
		if err != nil {
			return nil, err
		}

		id, err := deps.Deployer.Deploy(ctx, fleet.DeploymentSpec{
			Name:            req.StringOr("deployment_name", s.DeploymentName),
			ThingGroupName:  req.StringOr("thing_group_name", s.ThingGroupName),
			DeviceFleetName: req.StringOr("device_fleet_name", s.DeviceFleetName),
			Bucket:          req.StringOr("bucket", s.Bucket),
			ModelVersion:    version,
			ModelComponent:  req.StringOr("component_name", s.ModelComponent),
			Extra:           s.Components,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"deployment_id": id}, nil
	}
}
