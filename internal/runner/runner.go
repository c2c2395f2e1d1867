// Package runner submits pipeline graphs to a workflow engine and waits for the outcome.
package runner

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

// UpsertResult tells what Upsert did with the definition
type UpsertResult string

const (
	UpsertCreated   UpsertResult = "Created"
	UpsertUpdated   UpsertResult = "Updated"
	UpsertUnchanged UpsertResult = "Unchanged"
)

// Engine is a remote workflow engine
type Engine interface {
	// Upsert stores a definition under name. Storing an identical definition is a no-op.
	Upsert(ctx context.Context, name string, definition []byte) (UpsertResult, error)
	// Start launches an execution of the stored definition with resolved parameters
	Start(ctx context.Context, name string, params map[string]string) (Execution, error)
}

// Execution is a running pipeline execution
type Execution interface {
	ID() string
	// Wait blocks until the execution is terminal or ctx is done
	Wait(ctx context.Context) (*model.ExecutionReport, error)
}

// Runner executes pipeline graphs on an engine
type Runner struct {
	engine Engine
	out    io.Writer
	log    zerolog.Logger
}

// NewRunner creates a runner. Progress lines go to out when it is not nil.
func NewRunner(engine Engine, out io.Writer, log zerolog.Logger) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		engine: engine,
		out:    out,
		log:    log.With().Str("component", "runner").Logger(),
	}
}

// Prepared is a validated graph with its serialized definition and resolved parameters
type Prepared struct {
	Name       string
	Definition []byte
	Parameters map[string]string
	Order      []string
}

// Prepare validates the graph, merges parameters and serializes the definition without contacting the engine
func Prepare(graph *pipeline.Graph, overrides map[string]string) (*Prepared, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	ordered, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	params, err := MergeParameters(graph, overrides)
	if err != nil {
		return nil, err
	}

	definition, err := pipeline.EncodeDefinition(graph)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(ordered))
	for _, s := range ordered {
		order = append(order, s.Name)
	}

	return &Prepared{Name: graph.Name, Definition: definition, Parameters: params, Order: order}, nil
}

// MergeParameters overlays overrides on declared defaults; overrides win.
// Unknown overrides, missing values and non-integer values for integer parameters are rejected.
func MergeParameters(graph *pipeline.Graph, overrides map[string]string) (map[string]string, error) {
	unknown := make([]string, 0)
	for name := range overrides {
		if _, ok := graph.Parameter(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &pipeline.ValidationError{Graph: graph.Name, Err: fmt.Errorf("unknown parameters %v", unknown)}
	}

	merged := make(map[string]string, len(graph.Parameters))
	for _, p := range graph.Parameters {
		value, overridden := overrides[p.Name]
		switch {
		case overridden:
		case p.HasDefault:
			value = p.Default
		default:
			return nil, &pipeline.ValidationError{Graph: graph.Name, Err: fmt.Errorf("parameter %s has no default and no value was given", p.Name)}
		}

		if p.Type == pipeline.ParameterInteger {
			if _, err := strconv.Atoi(value); err != nil {
				return nil, &pipeline.ValidationError{Graph: graph.Name, Err: fmt.Errorf("parameter %s must be an integer, got %q", p.Name, value)}
			}
		}
		merged[p.Name] = value
	}
	return merged, nil
}

// DryRun prepares the graph and prints what would be submitted
func (r *Runner) DryRun(graph *pipeline.Graph, overrides map[string]string) (*Prepared, error) {
	prepared, err := Prepare(graph, overrides)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(r.out, "✓ Pipeline %s is valid (%d steps), nothing submitted\n", prepared.Name, len(prepared.Order))
	return prepared, nil
}

// SubmitAndWait validates, upserts, starts and waits for one execution of the graph.
// Cancelling ctx stops waiting; it does not stop the remote execution.
func (r *Runner) SubmitAndWait(ctx context.Context, graph *pipeline.Graph, overrides map[string]string) (*model.ExecutionReport, error) {
	prepared, err := Prepare(graph, overrides)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(r.out, "□ Upserting pipeline %s...\n", prepared.Name)
	result, err := r.engine.Upsert(ctx, prepared.Name, prepared.Definition)
	if err != nil {
		return nil, &SubmitError{Pipeline: prepared.Name, Op: "upsert", Err: err}
	}
	r.log.Info().Str("pipeline", prepared.Name).Str("result", string(result)).Msg("pipeline upserted")
	fmt.Fprintf(r.out, "✓ Pipeline %s %s\n", prepared.Name, strings.ToLower(string(result)))

	execution, err := r.engine.Start(ctx, prepared.Name, prepared.Parameters)
	if err != nil {
		return nil, &SubmitError{Pipeline: prepared.Name, Op: "start", Err: err}
	}
	r.log.Info().Str("pipeline", prepared.Name).Str("execution", execution.ID()).Msg("execution started")
	fmt.Fprintf(r.out, "□ Waiting for execution %s...\n", execution.ID())

	report, err := execution.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for execution %s: %w", execution.ID(), err)
	}
	if report.PipelineName == "" {
		report.PipelineName = prepared.Name
	}
	if report.ExecutionID == "" {
		report.ExecutionID = execution.ID()
	}

	r.log.Info().Str("execution", report.ExecutionID).Str("status", string(report.Status)).Int("steps", len(report.Steps)).Msg("execution finished")
	return report, nil
}
