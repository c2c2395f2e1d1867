package runner

import (
	"fmt"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// SubmitError is returned when the engine rejects an upsert or a start
type SubmitError struct {
	Pipeline string
	Op       string
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s pipeline %s: %v", e.Op, e.Pipeline, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// RemoteExecutionFailure describes an execution that finished without succeeding
type RemoteExecutionFailure struct {
	Report *model.ExecutionReport
}

func (e *RemoteExecutionFailure) Error() string {
	failed := ""
	for _, s := range e.Report.Steps {
		if s.Status == model.StepFailed {
			failed = s.Name
			break
		}
	}
	msg := fmt.Sprintf("execution %s of %s finished %s", e.Report.ExecutionID, e.Report.PipelineName, e.Report.Status)
	if failed != "" {
		msg += fmt.Sprintf(" at step %s", failed)
	}
	if e.Report.FailureReason != "" {
		msg += ": " + e.Report.FailureReason
	}
	return msg
}

// ReportError returns a RemoteExecutionFailure for a non-succeeded report and nil otherwise
func ReportError(report *model.ExecutionReport) error {
	if report == nil || report.Succeeded() {
		return nil
	}
	return &RemoteExecutionFailure{Report: report}
}
