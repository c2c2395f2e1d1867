package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const environmentURL = "edgeflow://schemas/environment.schema.json"

//go:embed environment.schema.yaml
var environmentSchema []byte

// Validator handles JSON schema validation
type Validator struct {
	environment *jsonschema.Schema
}

// NewValidator compiles the embedded schemas
func NewValidator() (*Validator, error) {
	environment, err := compile(environmentURL, environmentSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment schema: %w", err)
	}
	return &Validator{environment: environment}, nil
}

// ValidateEnvironment validates a decoded environment document
func (v *Validator) ValidateEnvironment(data interface{}) error {
	if v.environment == nil {
		return fmt.Errorf("environment schema not loaded")
	}
	doc, err := jsonValue(data)
	if err != nil {
		return err
	}
	return v.environment.Validate(doc)
}

// compile compiles a schema document (JSON or YAML)
func compile(url string, data []byte) (*jsonschema.Schema, error) {
	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(jsonData)); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// jsonValue converts a YAML-decoded value to the form json.Unmarshal produces
func jsonValue(data interface{}) (interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("document is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
