package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/registry"
)

// JobOutputName is the output every job step reports with the submitted job ID
const JobOutputName = "job_name"

// Arguments read by RegisterModel steps
const (
	ArgModelPackageGroup = "model_package_group_name"
	ArgModelData         = "model_data"
	ArgApprovalStatus    = "approval_status"
	ArgInferenceImage    = "image"
	ArgContentTypes      = "content_types"
	ArgResponseTypes     = "response_types"
)

// Outputs produced by RegisterModel steps
const (
	OutputModelPackageArn     = "model_package_arn"
	OutputModelPackageVersion = "model_package_version"
)

// StepJobKind maps job step types to the job kind they submit
var StepJobKind = map[pipeline.StepType]model.JobKind{
	pipeline.TypeProcessing: model.KindProcessing,
	pipeline.TypeTraining:   model.KindTraining,
	pipeline.TypeTransform:  model.KindTransform,
}

// JobExecutor submits a job for the step and polls it to a terminal state
type JobExecutor struct {
	kind   model.JobKind
	client *jobs.Client
	poller *jobs.Poller
}

// NewJobExecutor creates an executor for one job kind
func NewJobExecutor(kind model.JobKind, client *jobs.Client, poller *jobs.Poller) *JobExecutor {
	return &JobExecutor{kind: kind, client: client, poller: poller}
}

func (e *JobExecutor) Execute(ctx context.Context, step *pipeline.Step, args map[string]string) (Result, error) {
	spec, err := jobs.SpecFromArguments(args)
	if err != nil {
		return Result{}, err
	}
	if spec.NamePrefix == "" {
		spec.NamePrefix = step.Name
	}

	id, err := e.client.Submit(ctx, e.kind, spec)
	if err != nil {
		return Result{}, err
	}
	status, err := e.poller.AwaitTerminal(ctx, e.kind, id)
	if err != nil {
		return Result{}, err
	}

	outputs := map[string]string{JobOutputName: id}
	switch {
	case status.TimedOut:
		return Result{
			Status:        model.StepFailed,
			FailureReason: fmt.Sprintf("job %s still %s after %s", id, status.Status(), status.Elapsed),
			Outputs:       outputs,
		}, nil
	case status.Status() != model.StatusCompleted:
		reason := status.Job.FailureReason
		if reason == "" {
			reason = fmt.Sprintf("job %s finished %s", id, status.Status())
		}
		return Result{Status: model.StepFailed, FailureReason: reason, Outputs: outputs}, nil
	}

	for _, name := range step.Outputs {
		if uri, ok := status.Job.Output(name); ok {
			outputs[name] = uri
		}
	}
	return Result{Status: model.StepSucceeded, Outputs: outputs}, nil
}

// Invoker calls a named function with a decoded event
type Invoker interface {
	Invoke(ctx context.Context, function string, event map[string]interface{}) (map[string]string, error)
}

// LambdaExecutor dispatches Lambda steps to an Invoker by function name
type LambdaExecutor struct {
	invoker Invoker
}

// NewLambdaExecutor creates a Lambda executor
func NewLambdaExecutor(invoker Invoker) *LambdaExecutor {
	return &LambdaExecutor{invoker: invoker}
}

func (e *LambdaExecutor) Execute(ctx context.Context, step *pipeline.Step, args map[string]string) (Result, error) {
	function := args[pipeline.FunctionNameArg]
	if function == "" {
		return Result{}, fmt.Errorf("lambda step %s has no %s argument", step.Name, pipeline.FunctionNameArg)
	}

	event := make(map[string]interface{}, len(args))
	for k, v := range args {
		if k == pipeline.FunctionNameArg || k == pipeline.FunctionArnArg {
			continue
		}
		event[k] = v
	}

	outputs, err := e.invoker.Invoke(ctx, function, event)
	if err != nil {
		return Result{Status: model.StepFailed, FailureReason: err.Error()}, nil
	}
	return Result{Status: model.StepSucceeded, Outputs: outputs}, nil
}

// RegisterExecutor adds a model package version to the registry
type RegisterExecutor struct {
	registry registry.Registry
}

// NewRegisterExecutor creates a RegisterModel executor
func NewRegisterExecutor(reg registry.Registry) *RegisterExecutor {
	return &RegisterExecutor{registry: reg}
}

func (e *RegisterExecutor) Execute(ctx context.Context, _ *pipeline.Step, args map[string]string) (Result, error) {
	group := args[ArgModelPackageGroup]
	if group == "" {
		return Result{}, fmt.Errorf("argument %s is required", ArgModelPackageGroup)
	}
	if _, err := e.registry.EnsureGroup(ctx, group, ""); err != nil {
		return Result{}, err
	}

	pkg, err := e.registry.Register(ctx, registry.ModelPackage{
		Group:          group,
		ModelDataURL:   args[ArgModelData],
		Image:          args[ArgInferenceImage],
		ApprovalStatus: args[ArgApprovalStatus],
		ContentTypes:   splitList(args[ArgContentTypes]),
		ResponseTypes:  splitList(args[ArgResponseTypes]),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Status: model.StepSucceeded,
		Outputs: map[string]string{
			OutputModelPackageArn:     pkg.Arn,
			OutputModelPackageVersion: strconv.Itoa(pkg.Version),
		},
	}, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
