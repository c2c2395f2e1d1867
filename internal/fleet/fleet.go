// Package fleet provisions edge devices and deploys packaged models to them.
package fleet

import (
	"context"
	"fmt"
	"strings"
)

// ThingGroup is an IoT thing group
type ThingGroup struct {
	Name string
	Arn  string
}

// ThingArn derives the ARN of a thing living in the same account and region as the group
func (g ThingGroup) ThingArn(thing string) string {
	return strings.Replace(g.Arn, ":thinggroup/"+g.Name, ":thing/"+thing, 1)
}

// Certificate is an issued device certificate with its key pair
type Certificate struct {
	ID         string
	Arn        string
	PEM        string
	PublicKey  string
	PrivateKey string
}

// Device is an edge device registered on a device fleet
type Device struct {
	Name      string
	ThingName string
}

// ThingGroups manages IoT thing groups and their members.
// Lookups of missing groups fail with errdefs.ErrNotFound.
type ThingGroups interface {
	DescribeThingGroup(ctx context.Context, name string) (ThingGroup, error)
	CreateThingGroup(ctx context.Context, name string) (ThingGroup, error)
	ThingGroupsForThing(ctx context.Context, thing string) ([]string, error)
	AddThingToThingGroup(ctx context.Context, group ThingGroup, thing, thingArn string) error
}

// CertificateAuthority issues device certificates and binds them to things and policies
type CertificateAuthority interface {
	CreateKeysAndCertificate(ctx context.Context) (Certificate, error)
	AttachPolicy(ctx context.Context, policy, target string) error
	AttachThingPrincipal(ctx context.Context, thing, principal string) error
	// CredentialEndpoint returns the host of the credential provider endpoint
	CredentialEndpoint(ctx context.Context) (string, error)
}

// DeviceRegistry manages edge device fleets.
// Describing an unregistered device fails with errdefs.ErrNotFound.
type DeviceRegistry interface {
	DescribeDevice(ctx context.Context, fleet, device string) error
	RegisterDevices(ctx context.Context, fleet string, devices []Device) error
	// FindDeviceFleet returns the first fleet whose name contains the given text
	FindDeviceFleet(ctx context.Context, nameContains string) (string, error)
	UpdateFleetOutput(ctx context.Context, fleet, s3URI string) error
}

// DeviceName is the name of the i-th agent
func DeviceName(i int) string {
	return fmt.Sprintf("edge-device-%d", i)
}

// RoleAlias is the credential provider role alias of a fleet
func RoleAlias(fleet string) string {
	return "SageMakerEdge-" + fleet
}

// Suffixed appends the fleet suffix to a fleet or policy base name
func Suffixed(base, suffix string) string {
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}
