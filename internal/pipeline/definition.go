package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
)

// DefinitionVersion is the schema version of serialized pipeline definitions
const DefinitionVersion = "2020-12-01"

// Definition is the serialized form of a Graph handed to a workflow engine
type Definition struct {
	Version    string                `json:"Version" yaml:"Version"`
	Parameters []ParameterDefinition `json:"Parameters" yaml:"Parameters"`
	Steps      []StepDefinition      `json:"Steps" yaml:"Steps"`
}

// ParameterDefinition is a serialized Parameter
type ParameterDefinition struct {
	Name         string      `json:"Name" yaml:"Name"`
	Type         string      `json:"Type" yaml:"Type"`
	DefaultValue interface{} `json:"DefaultValue,omitempty" yaml:"DefaultValue,omitempty"`
}

// StepDefinition is a serialized Step
type StepDefinition struct {
	Name      string                 `json:"Name" yaml:"Name"`
	Type      string                 `json:"Type" yaml:"Type"`
	DependsOn []string               `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	Arguments map[string]interface{} `json:"Arguments" yaml:"Arguments"`
	Outputs   []string               `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

const (
	getKey        = "Get"
	paramPrefix   = "Parameters."
	stepPrefix    = "Steps."
	outputInfix   = ".Outputs."
	conditionsKey = "Conditions"
	ifStepsKey    = "IfSteps"
	elseStepsKey  = "ElseSteps"
)

// Lambda step arguments that select the function rather than feed it
const (
	FunctionNameArg = "FunctionName"
	FunctionArnArg  = "FunctionArn"
)

// BuildDefinition converts a validated graph into its serialized form.
// Top-level steps follow the topological order; nested steps keep their branch order.
func BuildDefinition(g *Graph) (*Definition, error) {
	ordered, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Version:    DefinitionVersion,
		Parameters: make([]ParameterDefinition, 0, len(g.Parameters)),
		Steps:      make([]StepDefinition, 0, len(g.steps)),
	}

	for _, p := range g.Parameters {
		pd := ParameterDefinition{Name: p.Name, Type: string(p.Type)}
		if pd.Type == "" {
			pd.Type = string(ParameterString)
		}
		if p.HasDefault {
			pd.DefaultValue = p.Default
			if p.Type == ParameterInteger {
				n, err := strconv.Atoi(p.Default)
				if err != nil {
					return nil, invalid(g.Name, "parameter %s default %q is not an integer", p.Name, p.Default)
				}
				pd.DefaultValue = n
			}
		}
		def.Parameters = append(def.Parameters, pd)
	}

	for _, step := range ordered {
		if g.nodes[step.Name].parent != nil {
			continue
		}
		def.Steps = append(def.Steps, encodeStep(step))
	}
	return def, nil
}

// EncodeDefinition serializes a graph to deterministic JSON
func EncodeDefinition(g *Graph) ([]byte, error) {
	def, err := BuildDefinition(g)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal definition: %w", err)
	}
	return data, nil
}

func encodeStep(step *Step) StepDefinition {
	sd := StepDefinition{
		Name:      step.Name,
		Type:      string(step.Type),
		DependsOn: append([]string(nil), step.DependsOn...),
		Arguments: make(map[string]interface{}, len(step.Inputs)),
		Outputs:   append([]string(nil), step.Outputs...),
	}
	for k, v := range step.Inputs {
		sd.Arguments[k] = encodeValue(v)
	}

	if c := step.Condition; c != nil {
		sd.Arguments[conditionsKey] = []interface{}{encodeCondition(c)}
		sd.Arguments[ifStepsKey] = encodeSteps(c.IfSteps)
		sd.Arguments[elseStepsKey] = encodeSteps(c.ElseSteps)
	}
	return sd
}

func encodeSteps(steps []*Step) []StepDefinition {
	out := make([]StepDefinition, 0, len(steps))
	for _, s := range steps {
		out = append(out, encodeStep(s))
	}
	return out
}

func encodeCondition(c *Condition) map[string]interface{} {
	if c.Predicate.Kind() == gate.KindEquals {
		return map[string]interface{}{
			"Type":       gate.KindEquals,
			"LeftValue":  encodeValue(c.Subject),
			"RightValue": c.Predicate.Values()[0],
		}
	}
	return map[string]interface{}{
		"Type":       c.Predicate.Kind(),
		"QueryValue": encodeValue(c.Subject),
		"Values":     c.Predicate.Values(),
	}
}

func encodeValue(v Value) interface{} {
	if param, ok := v.Parameter(); ok {
		return map[string]interface{}{getKey: paramPrefix + param}
	}
	if ref, ok := v.Ref(); ok {
		return map[string]interface{}{getKey: stepPrefix + ref.Step + outputInfix + ref.Output}
	}
	lit, _ := v.Literal()
	return lit
}

// DecodeDefinition rebuilds a graph from serialized JSON
func DecodeDefinition(name string, data []byte) (*Graph, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	return FromDefinition(name, &def)
}

// FromDefinition rebuilds a graph from a parsed definition
func FromDefinition(name string, def *Definition) (*Graph, error) {
	if def.Version != DefinitionVersion {
		return nil, invalid(name, "unsupported definition version %q", def.Version)
	}

	g := New(name)
	for _, pd := range def.Parameters {
		p := Parameter{Name: pd.Name, Type: ParameterType(pd.Type)}
		if pd.DefaultValue != nil {
			p.Default = scalarString(pd.DefaultValue)
			p.HasDefault = true
		}
		g.Parameters = append(g.Parameters, p)
	}

	for _, sd := range def.Steps {
		step, err := decodeStep(sd)
		if err != nil {
			return nil, invalid(name, "step %s: %v", sd.Name, err)
		}
		if err := g.AddStep(step); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func decodeStep(sd StepDefinition) (*Step, error) {
	step := &Step{
		Name:      sd.Name,
		Type:      StepType(sd.Type),
		DependsOn: sd.DependsOn,
		Outputs:   sd.Outputs,
	}

	args := make(map[string]interface{}, len(sd.Arguments))
	for k, v := range sd.Arguments {
		args[k] = v
	}

	if step.Type == TypeCondition {
		cond, err := decodeCondition(args)
		if err != nil {
			return nil, err
		}
		step.Condition = cond
		delete(args, conditionsKey)
		delete(args, ifStepsKey)
		delete(args, elseStepsKey)
	}

	if len(args) > 0 {
		step.Inputs = make(map[string]Value, len(args))
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, err := decodeValue(args[k])
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", k, err)
			}
			step.Inputs[k] = v
		}
	}
	return step, nil
}

func decodeCondition(args map[string]interface{}) (*Condition, error) {
	list, ok := args[conditionsKey].([]interface{})
	if !ok || len(list) != 1 {
		return nil, fmt.Errorf("condition step needs exactly one condition")
	}
	raw, ok := list[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed condition")
	}

	kind, _ := raw["Type"].(string)
	var subject interface{}
	var values []string
	switch kind {
	case gate.KindEquals:
		subject = raw["LeftValue"]
		values = []string{scalarString(raw["RightValue"])}
	default:
		subject = raw["QueryValue"]
		items, _ := raw["Values"].([]interface{})
		for _, item := range items {
			values = append(values, scalarString(item))
		}
	}

	pred, err := gate.New(kind, values)
	if err != nil {
		return nil, err
	}
	subj, err := decodeValue(subject)
	if err != nil {
		return nil, fmt.Errorf("condition subject: %w", err)
	}

	ifSteps, err := decodeBranch(args[ifStepsKey])
	if err != nil {
		return nil, err
	}
	elseSteps, err := decodeBranch(args[elseStepsKey])
	if err != nil {
		return nil, err
	}
	return &Condition{Subject: subj, Predicate: pred, IfSteps: ifSteps, ElseSteps: elseSteps}, nil
}

// decodeBranch re-marshals a generic branch list into step definitions
func decodeBranch(raw interface{}) ([]*Step, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var defs []StepDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("malformed branch: %w", err)
	}
	steps := make([]*Step, 0, len(defs))
	for _, sd := range defs {
		s, err := decodeStep(sd)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", sd.Name, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func decodeValue(raw interface{}) (Value, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Lit(scalarString(raw)), nil
	}
	expr, ok := m[getKey].(string)
	if !ok {
		return Value{}, fmt.Errorf("object values must be a %s expression", getKey)
	}
	if param, ok := strings.CutPrefix(expr, paramPrefix); ok {
		return Param(param), nil
	}
	if rest, ok := strings.CutPrefix(expr, stepPrefix); ok {
		if step, output, found := strings.Cut(rest, outputInfix); found {
			return Output(step, output), nil
		}
	}
	return Value{}, fmt.Errorf("unsupported expression %q", expr)
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
