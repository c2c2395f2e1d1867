package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/containerd/errdefs"

	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
)

// EdgeAPI is the subset of the SageMaker client used by EdgeFleet
type EdgeAPI interface {
	DescribeDevice(ctx context.Context, in *sagemaker.DescribeDeviceInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeDeviceOutput, error)
	RegisterDevices(ctx context.Context, in *sagemaker.RegisterDevicesInput, opts ...func(*sagemaker.Options)) (*sagemaker.RegisterDevicesOutput, error)
	ListDeviceFleets(ctx context.Context, in *sagemaker.ListDeviceFleetsInput, opts ...func(*sagemaker.Options)) (*sagemaker.ListDeviceFleetsOutput, error)
	UpdateDeviceFleet(ctx context.Context, in *sagemaker.UpdateDeviceFleetInput, opts ...func(*sagemaker.Options)) (*sagemaker.UpdateDeviceFleetOutput, error)
}

// EdgeFleet is a fleet.DeviceRegistry backed by SageMaker Edge Manager
type EdgeFleet struct {
	client EdgeAPI
}

// NewEdgeFleet wraps a SageMaker client
func NewEdgeFleet(client EdgeAPI) *EdgeFleet {
	return &EdgeFleet{client: client}
}

// DescribeDevice fails with errdefs.ErrNotFound when the device is not registered.
// Edge Manager reports unknown devices as a validation error.
func (f *EdgeFleet) DescribeDevice(ctx context.Context, fleetName, device string) error {
	_, err := f.client.DescribeDevice(ctx, &sagemaker.DescribeDeviceInput{
		DeviceFleetName: aws.String(fleetName),
		DeviceName:      aws.String(device),
	})
	if err == nil {
		return nil
	}
	if errorCode(err) == "ValidationException" {
		return fmt.Errorf("device %s on fleet %s: %w: %w", device, fleetName, errdefs.ErrNotFound, err)
	}
	return classify("describe device "+device, err)
}

func (f *EdgeFleet) RegisterDevices(ctx context.Context, fleetName string, devices []fleet.Device) error {
	in := &sagemaker.RegisterDevicesInput{DeviceFleetName: aws.String(fleetName)}
	for _, d := range devices {
		in.Devices = append(in.Devices, types.Device{
			DeviceName:   aws.String(d.Name),
			IotThingName: optional(d.ThingName),
		})
	}
	_, err := f.client.RegisterDevices(ctx, in)
	return classify("register devices on "+fleetName, err)
}

func (f *EdgeFleet) FindDeviceFleet(ctx context.Context, nameContains string) (string, error) {
	out, err := f.client.ListDeviceFleets(ctx, &sagemaker.ListDeviceFleetsInput{NameContains: aws.String(nameContains)})
	if err != nil {
		return "", classify("list device fleets", err)
	}
	if len(out.DeviceFleetSummaries) == 0 {
		return "", fmt.Errorf("device fleet matching %q: %w", nameContains, errdefs.ErrNotFound)
	}
	return aws.ToString(out.DeviceFleetSummaries[0].DeviceFleetName), nil
}

func (f *EdgeFleet) UpdateFleetOutput(ctx context.Context, fleetName, s3URI string) error {
	_, err := f.client.UpdateDeviceFleet(ctx, &sagemaker.UpdateDeviceFleetInput{
		DeviceFleetName: aws.String(fleetName),
		OutputConfig:    &types.EdgeOutputConfig{S3OutputLocation: aws.String(s3URI)},
	})
	return classify("update device fleet "+fleetName, err)
}

var _ fleet.DeviceRegistry = (*EdgeFleet)(nil)
