package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/storage"
)

const (
	rootCertsDir   = "agent/certificates/root"
	iotCertsDir    = "agent/certificates/iot"
	confDir        = "agent/conf"
	amazonRootCA   = "agent/certificates/iot/AmazonRootCA1.pem"
	certFileFormat = "agent/certificates/iot/edge_device_%d_%s.pem"
	confFileFormat = "agent/conf/config_edge_device_%d.json"
)

// AgentConfig is the edge agent configuration file of one device
type AgentConfig struct {
	DeviceName             string `json:"sagemaker_edge_core_device_name"`
	DeviceFleetName        string `json:"sagemaker_edge_core_device_fleet_name"`
	CaptureBufferSize      int    `json:"sagemaker_edge_core_capture_data_buffer_size"`
	CaptureBatchSize       int    `json:"sagemaker_edge_core_capture_data_batch_size"`
	CapturePushPeriod      int    `json:"sagemaker_edge_core_capture_data_push_period_seconds"`
	FolderPrefix           string `json:"sagemaker_edge_core_folder_prefix"`
	Region                 string `json:"sagemaker_edge_core_region"`
	RootCertsPath          string `json:"sagemaker_edge_core_root_certs_path"`
	CACertFile             string `json:"sagemaker_edge_provider_aws_ca_cert_file"`
	CertFile               string `json:"sagemaker_edge_provider_aws_cert_file"`
	CertPrivateKeyFile     string `json:"sagemaker_edge_provider_aws_cert_pk_file"`
	CredentialEndpoint     string `json:"sagemaker_edge_provider_aws_iot_cred_endpoint"`
	Provider               string `json:"sagemaker_edge_provider_provider"`
	Bucket                 string `json:"sagemaker_edge_provider_s3_bucket_name"`
	CaptureDataDestination string `json:"sagemaker_edge_core_capture_data_destination"`
}

// Fetcher downloads a document by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches documents over HTTP
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Collaborators are the services a Provisioner talks to.
// Release and Fetcher are optional.
type Collaborators struct {
	ThingGroups  ThingGroups
	Certificates CertificateAuthority
	Devices      DeviceRegistry
	Artifacts    storage.Store
	Release      storage.Store
	Fetcher      Fetcher
}

// SetupResult summarizes a Setup run
type SetupResult struct {
	Skipped    bool
	ThingGroup ThingGroup
	Registered []string
	Devices    []string
	Bundle     *Bundle
}

// Provisioner registers edge devices and builds their agent bundle
type Provisioner struct {
	deps  Collaborators
	clock clock.Clock
	log   zerolog.Logger
}

// NewProvisioner creates a provisioner. A nil clock means the wall clock.
func NewProvisioner(deps Collaborators, clk clock.Clock, log zerolog.Logger) *Provisioner {
	if clk == nil {
		clk = clock.New()
	}
	return &Provisioner{deps: deps, clock: clk, log: log.With().Str("component", "fleet").Logger()}
}

// Setup provisions cfg.Agents devices and uploads their bundle to cfg.BundleKey.
// Nothing is done when the bundle already exists.
func (p *Provisioner) Setup(ctx context.Context, cfg model.FleetConfig) (*SetupResult, error) {
	if cfg.Agents <= 0 {
		return nil, fmt.Errorf("fleet needs at least one agent: %w", errdefs.ErrInvalidArgument)
	}

	exists, err := p.deps.Artifacts.Exists(ctx, cfg.BundleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check agent bundle: %w", err)
	}
	if exists {
		p.log.Info().Str("key", cfg.BundleKey).Msg("agent bundle already built, skipping")
		return &SetupResult{Skipped: true}, nil
	}

	group, err := p.thingGroup(ctx, cfg.ThingGroupName)
	if err != nil {
		return nil, err
	}
	result := &SetupResult{ThingGroup: group, Bundle: NewBundle()}

	bundle := result.Bundle
	for _, dir := range []string{rootCertsDir, iotCertsDir, "agent/logs", "agent/model", confDir} {
		bundle.Dir(dir, 0o777)
	}
	if err := p.addRootCertificates(ctx, cfg, bundle); err != nil {
		return nil, err
	}

	host, err := p.deps.Certificates.CredentialEndpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential endpoint: %w", err)
	}
	fleetName := Suffixed(cfg.DeviceFleetName, cfg.FleetSuffix)
	endpoint := fmt.Sprintf("https://%s/role-aliases/%s/credentials", host, RoleAlias(fleetName))

	p.log.Info().Int("agents", cfg.Agents).Str("fleet", fleetName).Msg("processing agents")
	for i := 0; i < cfg.Agents; i++ {
		registered, err := p.setupAgent(ctx, cfg, i, group, fleetName, endpoint, bundle)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", DeviceName(i), err)
		}
		if registered {
			result.Registered = append(result.Registered, DeviceName(i))
		}
		result.Devices = append(result.Devices, DeviceName(i))
	}

	archive, err := bundle.TarGz(p.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := storage.WriteAll(ctx, p.deps.Artifacts, cfg.BundleKey, archive); err != nil {
		return nil, fmt.Errorf("failed to upload agent bundle: %w", err)
	}
	p.log.Info().Str("key", cfg.BundleKey).Int("bytes", len(archive)).Msg("agent bundle uploaded")

	if cfg.WorkDir != "" {
		if err := bundle.WriteDir(cfg.WorkDir); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *Provisioner) thingGroup(ctx context.Context, name string) (ThingGroup, error) {
	group, err := p.deps.ThingGroups.DescribeThingGroup(ctx, name)
	if err == nil {
		p.log.Info().Str("group", name).Msg("thing group found")
		return group, nil
	}
	if !errdefs.IsNotFound(err) {
		return ThingGroup{}, fmt.Errorf("failed to describe thing group %s: %w", name, err)
	}

	p.log.Info().Str("group", name).Msg("creating thing group")
	group, err = p.deps.ThingGroups.CreateThingGroup(ctx, name)
	if err != nil {
		return ThingGroup{}, fmt.Errorf("failed to create thing group %s: %w", name, err)
	}
	return group, nil
}

func (p *Provisioner) addRootCertificates(ctx context.Context, cfg model.FleetConfig, bundle *Bundle) error {
	if p.deps.Fetcher != nil && cfg.RootCAURL != "" {
		ca, err := p.deps.Fetcher.Fetch(ctx, cfg.RootCAURL)
		if err != nil {
			return fmt.Errorf("failed to download root CA: %w", err)
		}
		bundle.Add(amazonRootCA, ca, 0o440)
	}

	if p.deps.Release != nil && cfg.RootCAKey != "" {
		cert, err := storage.ReadAll(ctx, p.deps.Release, cfg.RootCAKey)
		if err != nil {
			return fmt.Errorf("failed to download region certificate: %w", err)
		}
		bundle.Add(fmt.Sprintf("%s/%s.pem", rootCertsDir, cfg.Region), cert, 0o440)
	}
	return nil
}

// setupAgent registers one device and adds its certificates and config to the bundle.
// It reports whether the device was newly registered on the fleet.
func (p *Provisioner) setupAgent(ctx context.Context, cfg model.FleetConfig, i int, group ThingGroup, fleetName, endpoint string, bundle *Bundle) (bool, error) {
	name := DeviceName(i)
	log := p.log.With().Str("device", name).Logger()

	registered := false
	err := p.deps.Devices.DescribeDevice(ctx, fleetName, name)
	switch {
	case err == nil:
		log.Info().Msg("device already registered")
	case errdefs.IsNotFound(err):
		log.Info().Str("fleet", fleetName).Msg("registering device")
		if err := p.deps.Devices.RegisterDevices(ctx, fleetName, []Device{{Name: name, ThingName: name}}); err != nil {
			return false, fmt.Errorf("failed to register device: %w", err)
		}
		registered = true
	default:
		return false, fmt.Errorf("failed to describe device: %w", err)
	}

	groups, err := p.deps.ThingGroups.ThingGroupsForThing(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to list thing groups: %w", err)
	}
	if !contains(groups, group.Name) {
		log.Info().Str("group", group.Name).Msg("adding device to thing group")
		if err := p.deps.ThingGroups.AddThingToThingGroup(ctx, group, name, group.ThingArn(name)); err != nil {
			return false, fmt.Errorf("failed to add thing to group: %w", err)
		}
	}

	cert, err := p.deps.Certificates.CreateKeysAndCertificate(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to create certificate: %w", err)
	}
	certFile := fmt.Sprintf(certFileFormat, i, "cert")
	keyFile := fmt.Sprintf(certFileFormat, i, "key")
	bundle.Add(certFile, []byte(cert.PEM), 0o640)
	bundle.Add(keyFile, []byte(cert.PrivateKey), 0o600)
	bundle.Add(fmt.Sprintf(certFileFormat, i, "pub"), []byte(cert.PublicKey), 0o640)

	policy := Suffixed(cfg.PolicyName, cfg.FleetSuffix)
	if err := p.deps.Certificates.AttachPolicy(ctx, policy, cert.Arn); err != nil {
		return false, fmt.Errorf("failed to attach policy %s: %w", policy, err)
	}
	if err := p.deps.Certificates.AttachThingPrincipal(ctx, name, cert.Arn); err != nil {
		return false, fmt.Errorf("failed to attach certificate: %w", err)
	}

	conf := AgentConfig{
		DeviceName:             name,
		DeviceFleetName:        fleetName,
		CaptureBufferSize:      30,
		CaptureBatchSize:       10,
		CapturePushPeriod:      4,
		FolderPrefix:           cfg.DataPrefix,
		Region:                 cfg.Region,
		RootCertsPath:          "./" + rootCertsDir,
		CACertFile:             "./" + amazonRootCA,
		CertFile:               "./" + certFile,
		CertPrivateKeyFile:     "./" + keyFile,
		CredentialEndpoint:     endpoint,
		Provider:               "Aws",
		Bucket:                 cfg.Bucket,
		CaptureDataDestination: "Cloud",
	}
	data, err := json.MarshalIndent(conf, "", "    ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal agent config: %w", err)
	}
	bundle.Add(fmt.Sprintf(confFileFormat, i), data, 0o644)
	return registered, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
