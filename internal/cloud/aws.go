// Package cloud adapts the AWS SDK clients to the collaborator interfaces of the workflow:
// SageMaker jobs, pipelines, model registry and edge fleets, IoT and Greengrass.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"
	"github.com/containerd/errdefs"
)

// Config holds the connection settings shared by every client
type Config struct {
	Region    string
	Profile   string
	AccessKey string
	SecretKey string
}

// LoadConfig resolves the AWS configuration from the default chain plus overrides
func LoadConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("cloud: load aws config: %w", err)
	}
	return awsCfg, nil
}

var errorClasses = map[string]error{
	"ResourceNotFound":               errdefs.ErrNotFound,
	"ResourceNotFoundException":      errdefs.ErrNotFound,
	"NotFoundException":              errdefs.ErrNotFound,
	"ValidationException":            errdefs.ErrInvalidArgument,
	"InvalidRequestException":        errdefs.ErrInvalidArgument,
	"ResourceAlreadyExistsException": errdefs.ErrAlreadyExists,
	"ResourceInUse":                  errdefs.ErrAlreadyExists,
	"ConflictException":              errdefs.ErrConflict,
	"ThrottlingException":            errdefs.ErrUnavailable,
	"Throttling":                     errdefs.ErrUnavailable,
	"ServiceUnavailableException":    errdefs.ErrUnavailable,
	"ResourceLimitExceeded":          errdefs.ErrUnavailable,
}

// classify wraps a provider error with its errdefs class
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if class, ok := errorClasses[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("cloud: %s: %w: %w", op, class, err)
		}
	}
	return fmt.Errorf("cloud: %s: %w", op, err)
}

// errorCode returns the provider error code, if any
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
