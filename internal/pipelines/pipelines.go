// Package pipelines builds the step graphs of the edge ML workflow from a pipeline config section.
package pipelines

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brunopistone/sm-iot-end-to-end/internal/fleet"
	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

// Pipeline templates
const (
	TemplateTraining  = "training"
	TemplateInference = "inference"
)

// Builder turns a pipeline config section into a graph
type Builder func(cfg model.PipelineConfig) (*pipeline.Graph, error)

var builders = map[string]Builder{
	TemplateTraining:  Training,
	TemplateInference: Inference,
}

// Templates lists the known templates
func Templates() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build builds the graph of a config section. The section name is the template
// unless the section sets one.
func Build(section string, cfg model.PipelineConfig) (*pipeline.Graph, error) {
	template := cfg.Template
	if template == "" {
		template = section
	}
	build, ok := builders[template]
	if !ok {
		return nil, fmt.Errorf("pipeline %s: unknown template %q (known: %s)", section, template, strings.Join(Templates(), ", "))
	}
	return build(cfg)
}

// lambda builds a Lambda step calling a handler. FunctionArn is set when the config maps the handler.
func lambda(cfg model.PipelineConfig, name, handler string, inputs map[string]pipeline.Value, outputs ...string) *pipeline.Step {
	in := map[string]pipeline.Value{pipeline.FunctionNameArg: pipeline.Lit(handler)}
	if arn := cfg.Functions[handler]; arn != "" {
		in[pipeline.FunctionArnArg] = pipeline.Lit(arn)
	}
	for k, v := range inputs {
		in[k] = v
	}
	return &pipeline.Step{Name: name, Type: pipeline.TypeLambda, Inputs: in, Outputs: outputs}
}

// parameters applies the section's parameter overrides to the declared defaults
func parameters(cfg model.PipelineConfig, params ...pipeline.Parameter) []pipeline.Parameter {
	for i, p := range params {
		if v, ok := cfg.Parameters[p.Name]; ok {
			params[i].Default = v
			params[i].HasDefault = true
		}
	}
	return params
}

// withRole passes the section role to a handler that submits jobs
func withRole(cfg model.PipelineConfig, inputs map[string]pipeline.Value) map[string]pipeline.Value {
	if cfg.Role != "" {
		inputs["execution_role"] = pipeline.Lit(cfg.Role)
	}
	return inputs
}

func seconds(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid max runtime %q: %w", raw, err)
	}
	return strconv.Itoa(int(d.Seconds())), true, nil
}

func deploymentConfigs(cfg model.PipelineConfig) (string, error) {
	component := fleet.ModelComponent
	if cfg.Packaging != nil && cfg.Packaging.ComponentName != "" {
		component = cfg.Packaging.ComponentName
	}
	data, err := json.Marshal(map[string]string{"ComponentName": component})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func addAll(g *pipeline.Graph, steps ...*pipeline.Step) error {
	for _, s := range steps {
		if err := g.AddStep(s); err != nil {
			return err
		}
	}
	return nil
}

func failureGuard(name string, subject pipeline.Value, orElse ...*pipeline.Step) *pipeline.Step {
	return &pipeline.Step{
		Name: name,
		Type: pipeline.TypeCondition,
		Condition: &pipeline.Condition{
			Subject:   subject,
			Predicate: gate.FailureGuard(),
			ElseSteps: orElse,
		},
	}
}
