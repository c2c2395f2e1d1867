package normalize

import (
	"fmt"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// Defaults filled in by Environment
const (
	DefaultCompiledPath     = "output/compiled"
	DefaultPackagedPath     = "output/packaged"
	DefaultFramework        = "KERAS"
	DefaultPlatformOS       = "LINUX"
	DefaultPlatformArch     = "X86_64"
	DefaultCompileRuntime   = "15m"
	DefaultDeploymentType   = "GreengrassV2Component"
	DefaultModelComponent   = "aws.samples.windturbine.model"
	DefaultGroupDescription = "Wind turbine anomaly detection models"
	DefaultContentType      = "text/csv"

	DefaultBundleKey     = "wind_turbine_agent/config.tgz"
	DefaultReleaseBucket = "sagemaker-edge-release-store-us-west-2-linux-x64"
	DefaultRootCAURL     = "https://www.amazontrust.com/repository/AmazonRootCA1.pem"
	DefaultDataPrefix    = "wind_turbine_data"
)

// Environment fills defaults into every pipeline section and the fleet section.
// Sections are normalized in place.
func Environment(env *model.EnvironmentConfig) error {
	if env == nil {
		return fmt.Errorf("environment cannot be nil")
	}
	if env.Pipelines == nil {
		env.Pipelines = make(map[string]model.PipelineConfig)
	}

	for name, p := range env.Pipelines {
		if p.Role == "" {
			return fmt.Errorf("pipeline %s must have a role", name)
		}
		Pipeline(&p)
		env.Pipelines[name] = p
	}

	if env.Fleet != nil {
		Fleet(env.Fleet)
	}
	return nil
}

// Pipeline fills the defaults of one pipeline section
func Pipeline(p *model.PipelineConfig) {
	// Initialize empty maps
	if p.Parameters == nil {
		p.Parameters = make(map[string]string)
	}
	if p.Functions == nil {
		p.Functions = make(map[string]string)
	}

	if p.Processing != nil {
		setDefault(&p.Processing.InputPath, "data/input")
		setDefault(&p.Processing.OutputPath, "data/output")
	}
	if p.Training != nil {
		setDefault(&p.Training.OutputPath, "output/model")
		if p.Training.HyperParameters == nil {
			p.Training.HyperParameters = make(map[string]string)
		}
	}

	if p.Compilation == nil {
		p.Compilation = &model.CompilationConfig{}
	}
	c := p.Compilation
	setDefault(&c.CompiledPath, DefaultCompiledPath)
	setDefault(&c.Framework, DefaultFramework)
	setDefault(&c.PlatformOS, DefaultPlatformOS)
	setDefault(&c.PlatformArch, DefaultPlatformArch)
	setDefault(&c.MaxRuntime, DefaultCompileRuntime)

	if p.Packaging == nil {
		p.Packaging = &model.PackagingConfig{}
	}
	setDefault(&p.Packaging.PackagedPath, DefaultPackagedPath)
	setDefault(&p.Packaging.ComponentName, DefaultModelComponent)
	setDefault(&p.Packaging.DeploymentType, DefaultDeploymentType)

	if p.Registry == nil {
		p.Registry = &model.RegistryConfig{}
	}
	r := p.Registry
	setDefault(&r.GroupDescription, DefaultGroupDescription)
	if len(r.ContentTypes) == 0 {
		r.ContentTypes = []string{DefaultContentType}
	}
	if len(r.ResponseTypes) == 0 {
		r.ResponseTypes = []string{DefaultContentType}
	}

	if d := p.Deployment; d != nil {
		if d.ThingGroupName != "" {
			setDefault(&d.DeploymentName, "Deployment for "+d.ThingGroupName)
		}
		if d.Components == nil {
			d.Components = make(map[string]string)
		}
	}
}

// Fleet fills the defaults of the fleet section
func Fleet(f *model.FleetConfig) {
	setDefault(&f.BundleKey, DefaultBundleKey)
	setDefault(&f.ReleaseBucket, DefaultReleaseBucket)
	setDefault(&f.RootCAURL, DefaultRootCAURL)
	setDefault(&f.DataPrefix, DefaultDataPrefix)
	if f.Region != "" {
		setDefault(&f.RootCAKey, fmt.Sprintf("Certificates/%s/%s.pem", f.Region, f.Region))
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
