package model

// EnvironmentConfig is the parsed form of configs/<env>.yml.
// Every top-level key other than fleet is a pipeline section.
type EnvironmentConfig struct {
	Fleet     *FleetConfig              `yaml:"fleet,omitempty" json:"fleet,omitempty"`
	Pipelines map[string]PipelineConfig `yaml:",inline" json:"pipelines"`
}

// PipelineConfig holds the arguments of one pipeline section
type PipelineConfig struct {
	PipelineName string             `yaml:"pipeline_name" json:"pipeline_name"`
	Template     string             `yaml:"template" json:"template"` // training, inference
	Description  string             `yaml:"description" json:"description"`
	Region       string             `yaml:"region" json:"region"`
	Role         string             `yaml:"role" json:"role"`
	Bucket       string             `yaml:"bucket" json:"bucket"`
	KMSKey       string             `yaml:"kms_key" json:"kms_key"`
	Parameters   map[string]string  `yaml:"parameters" json:"parameters"`
	Functions    map[string]string  `yaml:"functions" json:"functions"` // handler name -> function ARN
	Processing   *ProcessingConfig  `yaml:"processing,omitempty" json:"processing,omitempty"`
	Training     *TrainingConfig    `yaml:"training,omitempty" json:"training,omitempty"`
	Compilation  *CompilationConfig `yaml:"compilation,omitempty" json:"compilation,omitempty"`
	Packaging    *PackagingConfig   `yaml:"packaging,omitempty" json:"packaging,omitempty"`
	Registry     *RegistryConfig    `yaml:"registry,omitempty" json:"registry,omitempty"`
	Deployment   *DeploymentConfig  `yaml:"deployment,omitempty" json:"deployment,omitempty"`
}

// ProcessingConfig configures the feature-engineering job
type ProcessingConfig struct {
	Image      string   `yaml:"image" json:"image"`
	InputPath  string   `yaml:"input_path" json:"input_path"`
	OutputPath string   `yaml:"output_path" json:"output_path"`
	Arguments  []string `yaml:"arguments" json:"arguments"`
	VolumeGB   int      `yaml:"volume_gb" json:"volume_gb"`
}

// TrainingConfig configures the model training job
type TrainingConfig struct {
	Image           string            `yaml:"image" json:"image"`
	OutputPath      string            `yaml:"output_path" json:"output_path"`
	HyperParameters map[string]string `yaml:"hyperparameters" json:"hyperparameters"`
	MaxRuntime      string            `yaml:"max_runtime" json:"max_runtime"`
	VolumeGB        int               `yaml:"volume_gb" json:"volume_gb"`
}

// CompilationConfig configures the edge model compilation job
type CompilationConfig struct {
	CompiledPath string `yaml:"compiled_path" json:"compiled_path"`
	Framework    string `yaml:"framework" json:"framework"`
	PlatformOS   string `yaml:"platform_os" json:"platform_os"`
	PlatformArch string `yaml:"platform_arch" json:"platform_arch"`
	MaxRuntime   string `yaml:"max_runtime" json:"max_runtime"`
}

// PackagingConfig configures the edge packaging job
type PackagingConfig struct {
	PackagedPath   string `yaml:"packaged_path" json:"packaged_path"`
	ComponentName  string `yaml:"component_name" json:"component_name"`
	DeploymentType string `yaml:"deployment_type" json:"deployment_type"`
}

// RegistryConfig configures model package registration
type RegistryConfig struct {
	InferenceImage   string   `yaml:"inference_image" json:"inference_image"`
	ContentTypes     []string `yaml:"content_types" json:"content_types"`
	ResponseTypes    []string `yaml:"response_types" json:"response_types"`
	GroupDescription string   `yaml:"group_description" json:"group_description"`
}

// DeploymentConfig configures the fleet deployment step
type DeploymentConfig struct {
	ThingGroupName  string            `yaml:"thing_group_name" json:"thing_group_name"`
	DeviceFleetName string            `yaml:"device_fleet_name" json:"device_fleet_name"`
	DeploymentName  string            `yaml:"deployment_name" json:"deployment_name"`
	Components      map[string]string `yaml:"components" json:"components"` // extra component -> version
}

// FleetConfig configures edge device provisioning
type FleetConfig struct {
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	Role            string `yaml:"role" json:"role"`
	DeviceFleetName string `yaml:"device_fleet_name" json:"device_fleet_name"`
	FleetSuffix     string `yaml:"fleet_suffix" json:"fleet_suffix"`
	ThingGroupName  string `yaml:"thing_group_name" json:"thing_group_name"`
	PolicyName      string `yaml:"policy_name" json:"policy_name"`
	Agents          int    `yaml:"agents" json:"agents"`
	BundleKey       string `yaml:"bundle_key" json:"bundle_key"`
	ReleaseBucket   string `yaml:"release_bucket" json:"release_bucket"`
	RootCAKey       string `yaml:"root_ca_key" json:"root_ca_key"` // region certificate in the release bucket
	RootCAURL       string `yaml:"root_ca_url" json:"root_ca_url"`
	DataPrefix      string `yaml:"data_prefix" json:"data_prefix"`
	WorkDir         string `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
}
