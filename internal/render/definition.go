package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

// Formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Renderer serializes pipeline definitions
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON renders a definition as indented JSON
func (r *Renderer) RenderJSON(def *pipeline.Definition) ([]byte, error) {
	return json.MarshalIndent(def, "", "  ")
}

// RenderYAML renders a definition as YAML
func (r *Renderer) RenderYAML(def *pipeline.Definition) ([]byte, error) {
	return yaml.Marshal(def)
}

// Render renders a definition in the named format
func (r *Renderer) Render(def *pipeline.Definition, format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return r.RenderJSON(def)
	case FormatYAML, "yml":
		return r.RenderYAML(def)
	default:
		return nil, fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}
}

// FormatFor picks the format from a file extension, defaulting to JSON
func FormatFor(path string) string {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// WriteDefinition writes a definition to path (JSON or YAML based on extension)
func (r *Renderer) WriteDefinition(def *pipeline.Definition, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := r.Render(def, FormatFor(path))
	if err != nil {
		return fmt.Errorf("failed to render definition: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write definition to %s: %w", path, err)
	}
	return nil
}
