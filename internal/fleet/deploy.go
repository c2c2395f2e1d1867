package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/storage"
)

// Greengrass components every edge deployment carries
const (
	CLIComponent         = "aws.greengrass.Cli"
	CLIVersion           = "2.5.4"
	EdgeManagerComponent = "aws.greengrass.SageMakerEdgeManager"
	EdgeManagerVersion   = "1.1.0"
	DetectorComponent    = "aws.samples.windturbine.detector"
	ModelComponent       = "aws.samples.windturbine.model"
)

// Component is one Greengrass component of a deployment.
// Merge is the configuration update merged into the component's defaults.
type Component struct {
	Name    string
	Version string
	Merge   string
}

// Deployments creates Greengrass deployments
type Deployments interface {
	CreateDeployment(ctx context.Context, name, targetArn string, components []Component) (string, error)
}

// DeploymentSpec describes a model rollout to a thing group
type DeploymentSpec struct {
	Name            string
	ThingGroupName  string
	DeviceFleetName string
	Bucket          string
	ModelVersion    string
	ModelComponent  string
	Extra           map[string]string
}

// Deployer rolls out packaged models to a device fleet
type Deployer struct {
	groups      ThingGroups
	devices     DeviceRegistry
	deployments Deployments
	log         zerolog.Logger
}

// NewDeployer creates a deployer
func NewDeployer(groups ThingGroups, devices DeviceRegistry, deployments Deployments, log zerolog.Logger) *Deployer {
	return &Deployer{
		groups:      groups,
		devices:     devices,
		deployments: deployments,
		log:         log.With().Str("component", "deployer").Logger(),
	}
}

// Deploy points the fleet output at the bucket and creates the deployment. It returns the deployment ID.
func (d *Deployer) Deploy(ctx context.Context, spec DeploymentSpec) (string, error) {
	if spec.ModelVersion == "" {
		return "", fmt.Errorf("deployment %s needs a model version", spec.Name)
	}

	fleet, err := d.devices.FindDeviceFleet(ctx, spec.DeviceFleetName)
	if err != nil {
		return "", fmt.Errorf("failed to find device fleet %s: %w", spec.DeviceFleetName, err)
	}
	if err := d.devices.UpdateFleetOutput(ctx, fleet, storage.URI(spec.Bucket)); err != nil {
		return "", fmt.Errorf("failed to update device fleet %s: %w", fleet, err)
	}

	group, err := d.groups.DescribeThingGroup(ctx, spec.ThingGroupName)
	if err != nil {
		return "", fmt.Errorf("failed to describe thing group %s: %w", spec.ThingGroupName, err)
	}

	components, err := EdgeComponents(fleet, spec)
	if err != nil {
		return "", err
	}
	id, err := d.deployments.CreateDeployment(ctx, spec.Name, group.Arn, components)
	if err != nil {
		return "", fmt.Errorf("failed to create deployment %s: %w", spec.Name, err)
	}
	d.log.Info().Str("deployment", id).Str("group", group.Name).Str("version", ComponentVersion(spec.ModelVersion)).Msg("deployment created")
	return id, nil
}

// EdgeComponents lists the components of a model rollout sorted by name
func EdgeComponents(fleet string, spec DeploymentSpec) ([]Component, error) {
	merge, err := json.Marshal(map[string]string{"DeviceFleetName": fleet, "BucketName": spec.Bucket})
	if err != nil {
		return nil, err
	}
	version := ComponentVersion(spec.ModelVersion)
	model := spec.ModelComponent
	if model == "" {
		model = ModelComponent
	}

	byName := map[string]Component{
		CLIComponent:         {Name: CLIComponent, Version: CLIVersion},
		EdgeManagerComponent: {Name: EdgeManagerComponent, Version: EdgeManagerVersion, Merge: string(merge)},
		DetectorComponent:    {Name: DetectorComponent, Version: version},
		model:                {Name: model, Version: version},
	}
	for name, v := range spec.Extra {
		byName[name] = Component{Name: name, Version: v}
	}

	components := make([]Component, 0, len(byName))
	for _, c := range byName {
		components = append(components, c)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	return components, nil
}

// ComponentVersion turns a model package version into a semantic component version
func ComponentVersion(modelVersion string) string {
	if strings.Contains(modelVersion, ".") {
		return modelVersion
	}
	return modelVersion + ".0.0"
}
