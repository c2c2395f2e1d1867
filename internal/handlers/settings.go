package handlers

import (
	"fmt"
	"time"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// SettingsFor derives the handler settings from a normalized pipeline section
func SettingsFor(cfg model.PipelineConfig) (Settings, error) {
	s := Settings{
		Bucket: cfg.Bucket,
		Role:   cfg.Role,
		KMSKey: cfg.KMSKey,
	}
	if c := cfg.Compilation; c != nil {
		s.CompiledPath = c.CompiledPath
		s.Framework = c.Framework
		s.PlatformOS = c.PlatformOS
		s.PlatformArch = c.PlatformArch
		if c.MaxRuntime != "" {
			d, err := time.ParseDuration(c.MaxRuntime)
			if err != nil {
				return Settings{}, fmt.Errorf("compilation max_runtime %q: %w", c.MaxRuntime, err)
			}
			s.CompileMaxRuntime = d
		}
	}
	if p := cfg.Packaging; p != nil {
		s.PackagedPath = p.PackagedPath
		s.ModelComponent = p.ComponentName
		s.DeploymentType = p.DeploymentType
	}
	if r := cfg.Registry; r != nil {
		s.GroupDescription = r.GroupDescription
	}
	if d := cfg.Deployment; d != nil {
		s.ThingGroupName = d.ThingGroupName
		s.DeviceFleetName = d.DeviceFleetName
		s.DeploymentName = d.DeploymentName
		s.Components = d.Components
	}
	return s, nil
}
