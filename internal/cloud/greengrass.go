package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2/types"

	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
)

// GreengrassAPI is the subset of the Greengrass v2 client used by Greengrass
type GreengrassAPI interface {
	CreateDeployment(ctx context.Context, in *greengrassv2.CreateDeploymentInput, opts ...func(*greengrassv2.Options)) (*greengrassv2.CreateDeploymentOutput, error)
}

// Greengrass is a fleet.Deployments backed by Greengrass v2
type Greengrass struct {
	client GreengrassAPI
}

// NewGreengrass wraps a Greengrass v2 client
func NewGreengrass(client GreengrassAPI) *Greengrass {
	return &Greengrass{client: client}
}

func (g *Greengrass) CreateDeployment(ctx context.Context, name, targetArn string, components []fleet.Component) (string, error) {
	specs := make(map[string]types.ComponentDeploymentSpecification, len(components))
	for _, c := range components {
		spec := types.ComponentDeploymentSpecification{ComponentVersion: aws.String(c.Version)}
		if c.Merge != "" {
			spec.ConfigurationUpdate = &types.ComponentConfigurationUpdate{Merge: aws.String(c.Merge)}
		}
		specs[c.Name] = spec
	}

	out, err := g.client.CreateDeployment(ctx, &greengrassv2.CreateDeploymentInput{
		TargetArn:      aws.String(targetArn),
		DeploymentName: aws.String(name),
		Components:     specs,
	})
	if err != nil {
		return "", classify("create deployment "+name, err)
	}
	return aws.ToString(out.DeploymentId), nil
}

var _ fleet.Deployments = (*Greengrass)(nil)
