package model

import "time"

// ExecutionStatus is the overall state of a pipeline execution
type ExecutionStatus string

const (
	ExecutionExecuting ExecutionStatus = "Executing"
	ExecutionSucceeded ExecutionStatus = "Succeeded"
	ExecutionFailed    ExecutionStatus = "Failed"
	ExecutionStopping  ExecutionStatus = "Stopping"
	ExecutionStopped   ExecutionStatus = "Stopped"
)

// IsTerminal reports whether the execution has finished
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed || s == ExecutionStopped
}

// StepStatus is the state of one step inside an execution
type StepStatus string

const (
	StepStarting  StepStatus = "Starting"
	StepExecuting StepStatus = "Executing"
	StepStopping  StepStatus = "Stopping"
	StepStopped   StepStatus = "Stopped"
	StepFailed    StepStatus = "Failed"
	StepSucceeded StepStatus = "Succeeded"
)

// ExecutionReport is the terminal summary of a pipeline execution.
// Steps skipped by a conditional branch are not listed.
type ExecutionReport struct {
	PipelineName  string          `yaml:"pipelineName" json:"pipelineName"`
	ExecutionID   string          `yaml:"executionId" json:"executionId"`
	Status        ExecutionStatus `yaml:"status" json:"status"`
	FailureReason string          `yaml:"failureReason,omitempty" json:"failureReason,omitempty"`
	StartedAt     time.Time       `yaml:"startedAt" json:"startedAt"`
	FinishedAt    time.Time       `yaml:"finishedAt" json:"finishedAt"`
	Steps         []StepReport    `yaml:"steps" json:"steps"`
}

// StepReport is one row of an execution report
type StepReport struct {
	Name          string            `yaml:"name" json:"name"`
	Status        StepStatus        `yaml:"status" json:"status"`
	FailureReason string            `yaml:"failureReason,omitempty" json:"failureReason,omitempty"`
	Outputs       map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// Step returns the report row for a step name
func (r *ExecutionReport) Step(name string) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepReport{}, false
}

// Succeeded reports whether the execution finished successfully
func (r *ExecutionReport) Succeeded() bool {
	return r.Status == ExecutionSucceeded
}
