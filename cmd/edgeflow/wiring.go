package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/benbjohnson/clock"

	"github.com/brunopistone/sm-iot-end-to-end/internal/cloud"
	"github.com/brunopistone/sm-iot-end-to-end/internal/config"
	"github.com/brunopistone/sm-iot-end-to-end/internal/engine"
	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
	"github.com/brunopistone/sm-iot-end-to-end/internal/handlers"
	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/loader"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipelines"
	"github.com/brunopistone/sm-iot-end-to-end/internal/runner"
	"github.com/brunopistone/sm-iot-end-to-end/internal/storage"
)

// releaseStoreRegion hosts the edge agent release bucket
const releaseStoreRegion = "us-west-2"

// section loads an environment file and builds the graph of one of its pipeline sections
func section(env, name string) (model.PipelineConfig, *pipeline.Graph, error) {
	loaded, err := loader.LoadEnvironment(settings.ConfigDir, env)
	if err != nil {
		return model.PipelineConfig{}, nil, err
	}
	cfg, err := loaded.Pipeline(name)
	if err != nil {
		return model.PipelineConfig{}, nil, err
	}
	graph, err := pipelines.Build(name, cfg)
	if err != nil {
		return model.PipelineConfig{}, nil, err
	}
	return cfg, graph, nil
}

func awsConfig(ctx context.Context, region string) (aws.Config, error) {
	if settings.Region != "" {
		region = settings.Region
	}
	return cloud.LoadConfig(ctx, cloud.Config{Region: region, Profile: settings.Profile})
}

// functions wires the step handlers of a pipeline section to the cloud services
func functions(ctx context.Context, cfg model.PipelineConfig) (*handlers.Registry, handlers.Deps, error) {
	awsCfg, err := awsConfig(ctx, cfg.Region)
	if err != nil {
		return nil, handlers.Deps{}, err
	}
	handlerSettings, err := handlers.SettingsFor(cfg)
	if err != nil {
		return nil, handlers.Deps{}, err
	}

	sm := sagemaker.NewFromConfig(awsCfg)
	svc := cloud.NewSageMakerJobs(sm)
	clk := clock.New()
	deps := handlers.Deps{
		Jobs: jobs.NewClient(svc, clk, logger),
		Poller: jobs.NewPoller(svc,
			jobs.WithInterval(settings.PollInterval),
			jobs.WithMaxWait(settings.MaxWait),
			jobs.WithClock(clk),
			jobs.WithLogger(logger),
		),
		Registry: cloud.NewModelRegistry(sm),
		Settings: handlerSettings,
		Log:      logger,
	}
	if cfg.Deployment != nil {
		things := cloud.NewIoT(iot.NewFromConfig(awsCfg))
		deps.Deployer = fleet.NewDeployer(things, cloud.NewEdgeFleet(sm), cloud.NewGreengrass(greengrassv2.NewFromConfig(awsCfg)), logger)
	}

	registry := handlers.NewRegistry(logger)
	if err := handlers.RegisterAll(registry, deps); err != nil {
		return nil, handlers.Deps{}, err
	}
	return registry, deps, nil
}

// workflowEngine builds the engine selected by --engine
func workflowEngine(ctx context.Context, cfg model.PipelineConfig) (runner.Engine, error) {
	if settings.Engine == config.EngineSageMaker {
		awsCfg, err := awsConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		return cloud.NewSageMakerPipelines(sagemaker.NewFromConfig(awsCfg), cfg.Role,
			cloud.WithPollInterval(settings.PollInterval),
			cloud.WithLogger(logger),
		), nil
	}

	registry, deps, err := functions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithExecutor(pipeline.TypeLambda, engine.NewLambdaExecutor(registry)),
		engine.WithExecutor(pipeline.TypeRegisterModel, engine.NewRegisterExecutor(deps.Registry)),
	}
	for stepType, kind := range engine.StepJobKind {
		opts = append(opts, engine.WithExecutor(stepType, engine.NewJobExecutor(kind, deps.Jobs, deps.Poller)))
	}
	return engine.NewLocal(opts...), nil
}

// provisioner wires fleet setup to IoT, Edge Manager and object storage
func provisioner(ctx context.Context, cfg model.FleetConfig) (*fleet.Provisioner, error) {
	awsCfg, err := awsConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	things := cloud.NewIoT(iot.NewFromConfig(awsCfg))
	deps := fleet.Collaborators{
		ThingGroups:  things,
		Certificates: things,
		Devices:      cloud.NewEdgeFleet(sagemaker.NewFromConfig(awsCfg)),
		Fetcher:      fleet.HTTPFetcher{},
	}

	if settings.StorageDir != "" {
		dir, err := storage.NewDir(settings.StorageDir)
		if err != nil {
			return nil, err
		}
		deps.Artifacts = dir
	} else {
		deps.Artifacts = storage.NewS3WithClient(s3.NewFromConfig(awsCfg), cfg.Bucket)
		if cfg.ReleaseBucket != "" && cfg.RootCAKey != "" {
			release, err := storage.NewS3(ctx, storage.S3Config{Bucket: cfg.ReleaseBucket, Region: releaseStoreRegion})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to release store: %w", err)
			}
			deps.Release = release
		}
	}
	return fleet.NewProvisioner(deps, nil, logger), nil
}
