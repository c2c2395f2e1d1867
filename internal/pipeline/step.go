// Package pipeline models pipeline step graphs, validates them and orders them for execution.
package pipeline

import (
	"fmt"

	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
)

// StepType selects how the engine runs a step
type StepType string

const (
	TypeProcessing    StepType = "Processing"
	TypeTraining      StepType = "Training"
	TypeTransform     StepType = "Transform"
	TypeLambda        StepType = "Lambda"
	TypeCondition     StepType = "Condition"
	TypeRegisterModel StepType = "RegisterModel"
)

// Step is a named node of a Graph
type Step struct {
	Name      string
	Type      StepType
	Inputs    map[string]Value
	Outputs   []string
	DependsOn []string
	Condition *Condition
}

// Condition makes a step choose between two nested step lists.
// Exactly one list runs; the other is skipped.
type Condition struct {
	Subject   Value
	Predicate gate.Predicate
	IfSteps   []*Step
	ElseSteps []*Step
}

// HasOutput reports whether the step declares an output name
func (s *Step) HasOutput(name string) bool {
	for _, o := range s.Outputs {
		if o == name {
			return true
		}
	}
	return false
}

// Parameter is a pipeline-level input
type Parameter struct {
	Name       string
	Type       ParameterType
	Default    string
	HasDefault bool
}

// ParameterType is the declared type of a Parameter
type ParameterType string

const (
	ParameterString  ParameterType = "String"
	ParameterInteger ParameterType = "Integer"
)

// StringParam declares a string parameter without a default
func StringParam(name string) Parameter {
	return Parameter{Name: name, Type: ParameterString}
}

// StringParamDefault declares a string parameter with a default
func StringParamDefault(name, def string) Parameter {
	return Parameter{Name: name, Type: ParameterString, Default: def, HasDefault: true}
}

// IntegerParamDefault declares an integer parameter with a default
func IntegerParamDefault(name string, def int) Parameter {
	return Parameter{Name: name, Type: ParameterInteger, Default: fmt.Sprint(def), HasDefault: true}
}

type valueKind int

const (
	literalValue valueKind = iota
	paramValue
	outputValue
)

// Ref points at an output of another step
type Ref struct {
	Step   string
	Output string
}

func (r Ref) String() string {
	return fmt.Sprintf("step %s output %s", r.Step, r.Output)
}

// Value is exactly one of a literal, a parameter reference or a step output reference
type Value struct {
	kind    valueKind
	literal string
	param   string
	ref     Ref
}

// Lit is a literal value
func Lit(s string) Value {
	return Value{kind: literalValue, literal: s}
}

// Param references a pipeline parameter
func Param(name string) Value {
	return Value{kind: paramValue, param: name}
}

// Output references an output of another step
func Output(step, output string) Value {
	return Value{kind: outputValue, ref: Ref{Step: step, Output: output}}
}

// Literal returns the literal and true when the value is a literal
func (v Value) Literal() (string, bool) {
	return v.literal, v.kind == literalValue
}

// Parameter returns the parameter name and true when the value references a parameter
func (v Value) Parameter() (string, bool) {
	return v.param, v.kind == paramValue
}

// Ref returns the reference and true when the value references a step output
func (v Value) Ref() (Ref, bool) {
	return v.ref, v.kind == outputValue
}

func (v Value) String() string {
	switch v.kind {
	case paramValue:
		return "parameter " + v.param
	case outputValue:
		return v.ref.String()
	default:
		return fmt.Sprintf("%q", v.literal)
	}
}
