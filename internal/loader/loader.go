package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/normalize"
	"github.com/brunopistone/sm-iot-end-to-end/internal/schema"
)

// FleetSection is the reserved top-level key of the fleet configuration
const FleetSection = "fleet"

// ConfigError reports an environment file that cannot be used
type ConfigError struct {
	Path    string
	Section string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config %s section %s: %v", e.Path, e.Section, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Environment is a loaded, validated and normalized environment file
type Environment struct {
	Path   string
	Config *model.EnvironmentConfig
}

// EnvironmentPath returns <dir>/<env>.yml
func EnvironmentPath(dir, env string) string {
	return filepath.Join(dir, env+".yml")
}

// LoadEnvironment loads, validates and normalizes <dir>/<env>.yml
func LoadEnvironment(dir, env string) (*Environment, error) {
	path := EnvironmentPath(dir, env)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read environment file: %w", err)}
	}
	cfg, err := ParseEnvironment(path, data)
	if err != nil {
		return nil, err
	}
	return &Environment{Path: path, Config: cfg}, nil
}

// ParseEnvironment parses an environment document read from path
func ParseEnvironment(path string, data []byte) (*model.EnvironmentConfig, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to parse environment YAML: %w", err)}
	}
	if raw == nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("environment file is empty")}
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := validator.ValidateEnvironment(raw); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("environment failed schema validation: %w", err)}
	}

	var cfg model.EnvironmentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to decode environment: %w", err)}
	}
	if err := normalize.Environment(&cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Pipeline returns a pipeline section
func (e *Environment) Pipeline(name string) (model.PipelineConfig, error) {
	p, ok := e.Config.Pipelines[name]
	if !ok {
		return model.PipelineConfig{}, &ConfigError{
			Path:    e.Path,
			Section: name,
			Err:     fmt.Errorf("no such pipeline (available: %s)", strings.Join(e.PipelineNames(), ", ")),
		}
	}
	return p, nil
}

// Fleet returns the fleet section
func (e *Environment) Fleet() (model.FleetConfig, error) {
	if e.Config.Fleet == nil {
		return model.FleetConfig{}, &ConfigError{Path: e.Path, Section: FleetSection, Err: fmt.Errorf("section is missing")}
	}
	return *e.Config.Fleet, nil
}

// PipelineNames lists the pipeline sections in order
func (e *Environment) PipelineNames() []string {
	names := make([]string, 0, len(e.Config.Pipelines))
	for name := range e.Config.Pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseInputs turns key=value pairs into parameter overrides. Keys and values are trimmed
// and the value keeps any further '='. Entries without '=' are returned as skipped.
func ParseInputs(pairs []string) (map[string]string, []string) {
	inputs := make(map[string]string, len(pairs))
	var skipped []string
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			skipped = append(skipped, pair)
			continue
		}
		inputs[key] = strings.TrimSpace(value)
	}
	return inputs, skipped
}
