package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/containerd/errdefs"

	"github.com/brunopistone/sm-iot-end-to-end/internal/registry"
)

// RegistryAPI is the subset of the SageMaker client used by ModelRegistry
type RegistryAPI interface {
	DescribeModelPackageGroup(ctx context.Context, in *sagemaker.DescribeModelPackageGroupInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeModelPackageGroupOutput, error)
	CreateModelPackageGroup(ctx context.Context, in *sagemaker.CreateModelPackageGroupInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateModelPackageGroupOutput, error)
	CreateModelPackage(ctx context.Context, in *sagemaker.CreateModelPackageInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateModelPackageOutput, error)
	DescribeModelPackage(ctx context.Context, in *sagemaker.DescribeModelPackageInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeModelPackageOutput, error)
	ListModelPackages(ctx context.Context, in *sagemaker.ListModelPackagesInput, opts ...func(*sagemaker.Options)) (*sagemaker.ListModelPackagesOutput, error)
}

// ModelRegistry is a registry.Registry backed by SageMaker model package groups
type ModelRegistry struct {
	client RegistryAPI
}

// NewModelRegistry wraps a SageMaker client
func NewModelRegistry(client RegistryAPI) *ModelRegistry {
	return &ModelRegistry{client: client}
}

func (r *ModelRegistry) EnsureGroup(ctx context.Context, group, description string) (bool, error) {
	if group == "" {
		return false, fmt.Errorf("model package group name: %w", errdefs.ErrInvalidArgument)
	}
	err := r.describeGroup(ctx, group)
	if err == nil {
		return false, nil
	}
	if !errdefs.IsNotFound(err) {
		return false, err
	}

	_, err = r.client.CreateModelPackageGroup(ctx, &sagemaker.CreateModelPackageGroupInput{
		ModelPackageGroupName:        aws.String(group),
		ModelPackageGroupDescription: optional(description),
	})
	if err != nil {
		return false, classify("create model package group "+group, err)
	}
	return true, nil
}

// describeGroup fails with errdefs.ErrNotFound for unknown groups.
// SageMaker reports those as a validation error.
func (r *ModelRegistry) describeGroup(ctx context.Context, group string) error {
	_, err := r.client.DescribeModelPackageGroup(ctx, &sagemaker.DescribeModelPackageGroupInput{
		ModelPackageGroupName: aws.String(group),
	})
	if err == nil {
		return nil
	}
	if errorCode(err) == "ValidationException" && strings.Contains(err.Error(), "does not exist") {
		return fmt.Errorf("model package group %s: %w: %w", group, errdefs.ErrNotFound, err)
	}
	return classify("describe model package group "+group, err)
}

func (r *ModelRegistry) Register(ctx context.Context, pkg registry.ModelPackage) (registry.ModelPackage, error) {
	if pkg.ModelDataURL == "" {
		return registry.ModelPackage{}, fmt.Errorf("model data url: %w", errdefs.ErrInvalidArgument)
	}
	if pkg.ApprovalStatus == "" {
		pkg.ApprovalStatus = registry.StatusPendingManualApproval
	}

	out, err := r.client.CreateModelPackage(ctx, &sagemaker.CreateModelPackageInput{
		ModelPackageGroupName: aws.String(pkg.Group),
		ModelApprovalStatus:   types.ModelApprovalStatus(pkg.ApprovalStatus),
		InferenceSpecification: &types.InferenceSpecification{
			Containers: []types.ModelPackageContainerDefinition{{
				Image:        optional(pkg.Image),
				ModelDataUrl: aws.String(pkg.ModelDataURL),
			}},
			SupportedContentTypes:      pkg.ContentTypes,
			SupportedResponseMIMETypes: pkg.ResponseTypes,
		},
	})
	if err != nil {
		return registry.ModelPackage{}, classify("create model package in "+pkg.Group, err)
	}

	described, err := r.describePackage(ctx, aws.ToString(out.ModelPackageArn))
	if err != nil {
		return registry.ModelPackage{}, err
	}
	return described, nil
}

// LatestApproved pages through approved packages newest first
func (r *ModelRegistry) LatestApproved(ctx context.Context, group string) (registry.ModelPackage, error) {
	var token *string
	for {
		out, err := r.client.ListModelPackages(ctx, &sagemaker.ListModelPackagesInput{
			ModelPackageGroupName: aws.String(group),
			ModelApprovalStatus:   types.ModelApprovalStatusApproved,
			SortBy:                types.ModelPackageSortByCreationTime,
			SortOrder:             types.SortOrderDescending,
			MaxResults:            aws.Int32(100),
			NextToken:             token,
		})
		if err != nil {
			return registry.ModelPackage{}, classify("list model packages of "+group, err)
		}
		if len(out.ModelPackageSummaryList) > 0 {
			return r.describePackage(ctx, aws.ToString(out.ModelPackageSummaryList[0].ModelPackageArn))
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}

	if err := r.describeGroup(ctx, group); err != nil {
		return registry.ModelPackage{}, err
	}
	return registry.ModelPackage{}, registry.ErrNoApprovedPackage
}

func (r *ModelRegistry) describePackage(ctx context.Context, arn string) (registry.ModelPackage, error) {
	out, err := r.client.DescribeModelPackage(ctx, &sagemaker.DescribeModelPackageInput{ModelPackageName: aws.String(arn)})
	if err != nil {
		return registry.ModelPackage{}, classify("describe model package "+arn, err)
	}
	pkg := registry.ModelPackage{
		Group:          aws.ToString(out.ModelPackageGroupName),
		Version:        int(aws.ToInt32(out.ModelPackageVersion)),
		Arn:            aws.ToString(out.ModelPackageArn),
		ApprovalStatus: string(out.ModelApprovalStatus),
		CreatedAt:      aws.ToTime(out.CreationTime),
	}
	if spec := out.InferenceSpecification; spec != nil {
		pkg.ContentTypes = spec.SupportedContentTypes
		pkg.ResponseTypes = spec.SupportedResponseMIMETypes
		if len(spec.Containers) > 0 {
			pkg.Image = aws.ToString(spec.Containers[0].Image)
			pkg.ModelDataURL = aws.ToString(spec.Containers[0].ModelDataUrl)
		}
	}
	return pkg, nil
}

var _ registry.Registry = (*ModelRegistry)(nil)
