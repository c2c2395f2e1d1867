package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"

	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
)

// CredentialProviderEndpoint is the IoT endpoint type devices exchange certificates at
const CredentialProviderEndpoint = "iot:CredentialProvider"

// IoTAPI is the subset of the IoT client used by IoT
type IoTAPI interface {
	DescribeThingGroup(ctx context.Context, in *iot.DescribeThingGroupInput, opts ...func(*iot.Options)) (*iot.DescribeThingGroupOutput, error)
	CreateThingGroup(ctx context.Context, in *iot.CreateThingGroupInput, opts ...func(*iot.Options)) (*iot.CreateThingGroupOutput, error)
	ListThingGroupsForThing(ctx context.Context, in *iot.ListThingGroupsForThingInput, opts ...func(*iot.Options)) (*iot.ListThingGroupsForThingOutput, error)
	AddThingToThingGroup(ctx context.Context, in *iot.AddThingToThingGroupInput, opts ...func(*iot.Options)) (*iot.AddThingToThingGroupOutput, error)
	CreateKeysAndCertificate(ctx context.Context, in *iot.CreateKeysAndCertificateInput, opts ...func(*iot.Options)) (*iot.CreateKeysAndCertificateOutput, error)
	AttachPolicy(ctx context.Context, in *iot.AttachPolicyInput, opts ...func(*iot.Options)) (*iot.AttachPolicyOutput, error)
	AttachThingPrincipal(ctx context.Context, in *iot.AttachThingPrincipalInput, opts ...func(*iot.Options)) (*iot.AttachThingPrincipalOutput, error)
	DescribeEndpoint(ctx context.Context, in *iot.DescribeEndpointInput, opts ...func(*iot.Options)) (*iot.DescribeEndpointOutput, error)
}

// IoT implements fleet.ThingGroups and fleet.CertificateAuthority
type IoT struct {
	client IoTAPI
}

// NewIoT wraps an IoT client
func NewIoT(client IoTAPI) *IoT {
	return &IoT{client: client}
}

func (i *IoT) DescribeThingGroup(ctx context.Context, name string) (fleet.ThingGroup, error) {
	out, err := i.client.DescribeThingGroup(ctx, &iot.DescribeThingGroupInput{ThingGroupName: aws.String(name)})
	if err != nil {
		return fleet.ThingGroup{}, classify("describe thing group "+name, err)
	}
	return fleet.ThingGroup{Name: aws.ToString(out.ThingGroupName), Arn: aws.ToString(out.ThingGroupArn)}, nil
}

func (i *IoT) CreateThingGroup(ctx context.Context, name string) (fleet.ThingGroup, error) {
	out, err := i.client.CreateThingGroup(ctx, &iot.CreateThingGroupInput{ThingGroupName: aws.String(name)})
	if err != nil {
		return fleet.ThingGroup{}, classify("create thing group "+name, err)
	}
	return fleet.ThingGroup{Name: aws.ToString(out.ThingGroupName), Arn: aws.ToString(out.ThingGroupArn)}, nil
}

func (i *IoT) ThingGroupsForThing(ctx context.Context, thing string) ([]string, error) {
	var groups []string
	var token *string
	for {
		out, err := i.client.ListThingGroupsForThing(ctx, &iot.ListThingGroupsForThingInput{
			ThingName: aws.String(thing),
			NextToken: token,
		})
		if err != nil {
			return nil, classify("list thing groups of "+thing, err)
		}
		for _, g := range out.ThingGroups {
			groups = append(groups, aws.ToString(g.GroupName))
		}
		if aws.ToString(out.NextToken) == "" {
			return groups, nil
		}
		token = out.NextToken
	}
}

func (i *IoT) AddThingToThingGroup(ctx context.Context, group fleet.ThingGroup, thing, thingArn string) error {
	_, err := i.client.AddThingToThingGroup(ctx, &iot.AddThingToThingGroupInput{
		ThingGroupName: aws.String(group.Name),
		ThingGroupArn:  optional(group.Arn),
		ThingName:      aws.String(thing),
		ThingArn:       optional(thingArn),
	})
	return classify("add "+thing+" to thing group "+group.Name, err)
}

func (i *IoT) CreateKeysAndCertificate(ctx context.Context) (fleet.Certificate, error) {
	out, err := i.client.CreateKeysAndCertificate(ctx, &iot.CreateKeysAndCertificateInput{SetAsActive: true})
	if err != nil {
		return fleet.Certificate{}, classify("create keys and certificate", err)
	}
	cert := fleet.Certificate{
		ID:  aws.ToString(out.CertificateId),
		Arn: aws.ToString(out.CertificateArn),
		PEM: aws.ToString(out.CertificatePem),
	}
	if out.KeyPair != nil {
		cert.PublicKey = aws.ToString(out.KeyPair.PublicKey)
		cert.PrivateKey = aws.ToString(out.KeyPair.PrivateKey)
	}
	return cert, nil
}

func (i *IoT) AttachPolicy(ctx context.Context, policy, target string) error {
	_, err := i.client.AttachPolicy(ctx, &iot.AttachPolicyInput{PolicyName: aws.String(policy), Target: aws.String(target)})
	return classify("attach policy "+policy, err)
}

func (i *IoT) AttachThingPrincipal(ctx context.Context, thing, principal string) error {
	_, err := i.client.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{ThingName: aws.String(thing), Principal: aws.String(principal)})
	return classify("attach principal to "+thing, err)
}

func (i *IoT) CredentialEndpoint(ctx context.Context) (string, error) {
	out, err := i.client.DescribeEndpoint(ctx, &iot.DescribeEndpointInput{EndpointType: aws.String(CredentialProviderEndpoint)})
	if err != nil {
		return "", classify("describe credential endpoint", err)
	}
	return aws.ToString(out.EndpointAddress), nil
}

var (
	_ fleet.ThingGroups          = (*IoT)(nil)
	_ fleet.CertificateAuthority = (*IoT)(nil)
)
