package pipeline

import (
	"fmt"
	"strings"
)

// ValidationError wraps every structural problem found in a graph
type ValidationError struct {
	Graph string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Graph == "" {
		return fmt.Sprintf("invalid pipeline: %v", e.Err)
	}
	return fmt.Sprintf("invalid pipeline %s: %v", e.Graph, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CycleError lists the steps of a dependency cycle in order; the first step is repeated last
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// UnresolvedReferenceError is a reference to a missing step, output or parameter,
// or to a step outside the referencing step's branch
type UnresolvedReferenceError struct {
	Step      string
	Target    string
	Output    string
	Parameter string
	Reason    string
}

func (e *UnresolvedReferenceError) Error() string {
	switch {
	case e.Parameter != "":
		return fmt.Sprintf("step %s references undeclared parameter %s", e.Step, e.Parameter)
	case e.Output != "":
		return fmt.Sprintf("step %s references %s output %s: %s", e.Step, e.Target, e.Output, e.Reason)
	default:
		return fmt.Sprintf("step %s depends on %s: %s", e.Step, e.Target, e.Reason)
	}
}

func invalid(graph string, format string, args ...interface{}) error {
	return &ValidationError{Graph: graph, Err: fmt.Errorf(format, args...)}
}
