// Package engine runs pipeline definitions in process, one step at a time.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/runner"
)

// Result is what an executor reports for one step
type Result struct {
	Status        model.StepStatus
	FailureReason string
	Outputs       map[string]string
}

// Executor runs steps of one type with their resolved arguments
type Executor interface {
	Execute(ctx context.Context, step *pipeline.Step, args map[string]string) (Result, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, step *pipeline.Step, args map[string]string) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, step *pipeline.Step, args map[string]string) (Result, error) {
	return f(ctx, step, args)
}

type stored struct {
	definition []byte
	version    int
}

// Local is an in-process workflow engine
type Local struct {
	mu        sync.Mutex
	pipelines map[string]*stored
	executors map[pipeline.StepType]Executor
	clock     clock.Clock
	log       zerolog.Logger
}

// Option customizes a Local engine
type Option func(*Local)

// WithClock sets the clock used for report timestamps
func WithClock(clk clock.Clock) Option {
	return func(l *Local) {
		if clk != nil {
			l.clock = clk
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(log zerolog.Logger) Option {
	return func(l *Local) {
		l.log = log
	}
}

// WithExecutor registers the executor for a step type
func WithExecutor(t pipeline.StepType, e Executor) Option {
	return func(l *Local) {
		l.executors[t] = e
	}
}

// NewLocal creates an engine with no stored pipelines
func NewLocal(opts ...Option) *Local {
	l := &Local{
		pipelines: make(map[string]*stored),
		executors: make(map[pipeline.StepType]Executor),
		clock:     clock.New(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With().Str("component", "engine").Logger()
	return l
}

// Upsert stores the definition. An identical definition leaves the stored one untouched.
func (l *Local) Upsert(_ context.Context, name string, definition []byte) (runner.UpsertResult, error) {
	if name == "" {
		return "", fmt.Errorf("pipeline name cannot be empty")
	}
	if _, err := pipeline.DecodeDefinition(name, definition); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.pipelines[name]
	switch {
	case !ok:
		l.pipelines[name] = &stored{definition: append([]byte(nil), definition...), version: 1}
		return runner.UpsertCreated, nil
	case bytes.Equal(current.definition, definition):
		return runner.UpsertUnchanged, nil
	default:
		current.definition = append([]byte(nil), definition...)
		current.version++
		return runner.UpsertUpdated, nil
	}
}

// Version returns the stored version of a pipeline, zero when unknown
func (l *Local) Version(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.pipelines[name]; ok {
		return s.version
	}
	return 0
}

// Definition returns a copy of the stored definition
func (l *Local) Definition(name string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pipelines[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), s.definition...), true
}

// Start decodes a snapshot of the stored definition and runs it in the background.
// The run is detached from ctx cancellation.
func (l *Local) Start(ctx context.Context, name string, params map[string]string) (runner.Execution, error) {
	definition, ok := l.Definition(name)
	if !ok {
		return nil, fmt.Errorf("pipeline %s does not exist", name)
	}
	graph, err := pipeline.DecodeDefinition(name, definition)
	if err != nil {
		return nil, err
	}
	ordered, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	exec := &execution{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	exec.report = &model.ExecutionReport{
		PipelineName: name,
		ExecutionID:  exec.id,
		Status:       model.ExecutionExecuting,
		StartedAt:    l.clock.Now(),
	}

	values := make(map[string]string, len(params))
	for k, v := range params {
		values[k] = v
	}

	go func() {
		defer close(exec.done)
		l.run(context.WithoutCancel(ctx), graph, ordered, values, exec.report)
		exec.report.FinishedAt = l.clock.Now()
	}()
	return exec, nil
}

func (l *Local) run(ctx context.Context, graph *pipeline.Graph, ordered []*pipeline.Step, params map[string]string, report *model.ExecutionReport) {
	log := l.log.With().Str("pipeline", report.PipelineName).Str("execution", report.ExecutionID).Logger()
	scope := &scope{params: params, outputs: make(map[string]map[string]string)}
	taken := make(map[string]gate.Branch)
	skipped := make(map[string]bool)

	for _, step := range ordered {
		if parent, branch, nested := graph.Enclosing(step.Name); nested {
			if skipped[parent] || taken[parent] != branch {
				skipped[step.Name] = true
				log.Debug().Str("step", step.Name).Msg("step skipped")
				continue
			}
		}

		row := l.runStep(ctx, step, scope, taken)
		report.Steps = append(report.Steps, row)
		log.Info().Str("step", step.Name).Str("status", string(row.Status)).Msg("step finished")

		if row.Status != model.StepSucceeded {
			report.Status = model.ExecutionFailed
			report.FailureReason = fmt.Sprintf("step %s failed: %s", step.Name, row.FailureReason)
			return
		}
	}
	report.Status = model.ExecutionSucceeded
}

func (l *Local) runStep(ctx context.Context, step *pipeline.Step, scope *scope, taken map[string]gate.Branch) model.StepReport {
	row := model.StepReport{Name: step.Name}
	fail := func(format string, args ...interface{}) model.StepReport {
		row.Status = model.StepFailed
		row.FailureReason = fmt.Sprintf(format, args...)
		return row
	}

	args, err := scope.resolveAll(step.Inputs)
	if err != nil {
		return fail("%v", err)
	}

	if step.Type == pipeline.TypeCondition {
		subject, err := scope.resolve(step.Condition.Subject)
		if err != nil {
			return fail("%v", err)
		}
		branch := gate.Evaluate(step.Condition.Predicate, subject)
		taken[step.Name] = branch
		row.Status = model.StepSucceeded
		row.Outputs = map[string]string{"outcome": fmt.Sprint(branch == gate.IfBranch)}
		scope.outputs[step.Name] = row.Outputs
		return row
	}

	executor, ok := l.executors[step.Type]
	if !ok {
		return fail("no executor registered for step type %s", step.Type)
	}

	res, err := executor.Execute(ctx, step, args)
	if err != nil {
		return fail("%v", err)
	}
	row.Status = res.Status
	row.FailureReason = res.FailureReason
	row.Outputs = res.Outputs
	if row.Status == "" {
		row.Status = model.StepSucceeded
	}
	if row.Status != model.StepSucceeded {
		return row
	}

	for _, name := range step.Outputs {
		if _, ok := res.Outputs[name]; !ok {
			return fail("step did not produce output %s", name)
		}
	}
	scope.outputs[step.Name] = res.Outputs
	return row
}

// scope resolves values against parameters and finished step outputs
type scope struct {
	params  map[string]string
	outputs map[string]map[string]string
}

func (s *scope) resolve(v pipeline.Value) (string, error) {
	if name, ok := v.Parameter(); ok {
		value, found := s.params[name]
		if !found {
			return "", fmt.Errorf("parameter %s has no value", name)
		}
		return value, nil
	}
	if ref, ok := v.Ref(); ok {
		value, found := s.outputs[ref.Step][ref.Output]
		if !found {
			return "", fmt.Errorf("%s is not available", ref)
		}
		return value, nil
	}
	lit, _ := v.Literal()
	return lit, nil
}

func (s *scope) resolveAll(inputs map[string]pipeline.Value) (map[string]string, error) {
	args := make(map[string]string, len(inputs))
	for k, v := range inputs {
		value, err := s.resolve(v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", k, err)
		}
		args[k] = value
	}
	return args, nil
}

type execution struct {
	id     string
	done   chan struct{}
	report *model.ExecutionReport
}

func (e *execution) ID() string { return e.id }

// Wait returns the report once the run finished
func (e *execution) Wait(ctx context.Context) (*model.ExecutionReport, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return e.report, nil
	}
}
