package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

type fakeExecution struct {
	id     string
	report *model.ExecutionReport
}

func (e *fakeExecution) ID() string { return e.id }

func (e *fakeExecution) Wait(ctx context.Context) (*model.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.report, nil
}

type fakeEngine struct {
	upsertErr error
	startErr  error
	report    *model.ExecutionReport

	calls      []string
	definition []byte
	params     map[string]string
}

func (f *fakeEngine) Upsert(_ context.Context, name string, definition []byte) (UpsertResult, error) {
	f.calls = append(f.calls, "upsert "+name)
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.definition = definition
	return UpsertCreated, nil
}

func (f *fakeEngine) Start(_ context.Context, name string, params map[string]string) (Execution, error) {
	f.calls = append(f.calls, "start "+name)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.params = params
	return &fakeExecution{id: "exec-1", report: f.report}, nil
}

func testGraph(t *testing.T) *pipeline.Graph {
	t.Helper()

	g := pipeline.New("TrainingPipeline",
		pipeline.StringParam("input_file_name"),
		pipeline.StringParamDefault("training_instance_type", "ml.m5.xlarge"),
		pipeline.IntegerParamDefault("training_instance_count", 1),
	)
	require.NoError(t, g.AddStep(&pipeline.Step{
		Name:    "ProcessingJob",
		Type:    pipeline.TypeProcessing,
		Inputs:  map[string]pipeline.Value{"input.input": pipeline.Param("input_file_name")},
		Outputs: []string{"train_data"},
	}))
	require.NoError(t, g.AddStep(&pipeline.Step{
		Name: "TrainModel",
		Type: pipeline.TypeTraining,
		Inputs: map[string]pipeline.Value{
			"input.train":    pipeline.Output("ProcessingJob", "train_data"),
			"instance_type":  pipeline.Param("training_instance_type"),
			"instance_count": pipeline.Param("training_instance_count"),
		},
		Outputs: []string{"model_artifacts"},
	}))
	return g
}

func succeeded() *model.ExecutionReport {
	return &model.ExecutionReport{
		Status: model.ExecutionSucceeded,
		Steps: []model.StepReport{
			{Name: "ProcessingJob", Status: model.StepSucceeded},
			{Name: "TrainModel", Status: model.StepSucceeded},
		},
	}
}

func TestMergeParametersOverridesWin(t *testing.T) {
	g := testGraph(t)

	params, err := MergeParameters(g, map[string]string{
		"input_file_name":        "turbine.csv",
		"training_instance_type": "ml.c5.xlarge",
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"input_file_name":         "turbine.csv",
		"training_instance_type":  "ml.c5.xlarge",
		"training_instance_count": "1",
	}, params)
}

func TestMergeParametersRejections(t *testing.T) {
	g := testGraph(t)

	cases := map[string]map[string]string{
		"unknown":     {"input_file_name": "a.csv", "epochs": "5"},
		"missing":     {},
		"non integer": {"input_file_name": "a.csv", "training_instance_count": "two"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MergeParameters(g, overrides)
			var validation *pipeline.ValidationError
			require.ErrorAs(t, err, &validation)
			require.Equal(t, "TrainingPipeline", validation.Graph)
		})
	}
}

func TestSubmitAndWaitUpsertsThenStartsThenWaits(t *testing.T) {
	engine := &fakeEngine{report: succeeded()}
	var out bytes.Buffer
	r := NewRunner(engine, &out, zerolog.Nop())

	report, err := r.SubmitAndWait(context.Background(), testGraph(t), map[string]string{"input_file_name": "turbine.csv"})
	require.NoError(t, err)
	require.Equal(t, []string{"upsert TrainingPipeline", "start TrainingPipeline"}, engine.calls)
	require.Equal(t, "turbine.csv", engine.params["input_file_name"])
	require.NotEmpty(t, engine.definition)

	require.True(t, report.Succeeded())
	require.Equal(t, "TrainingPipeline", report.PipelineName)
	require.Equal(t, "exec-1", report.ExecutionID)
	require.NoError(t, ReportError(report))

	require.Contains(t, out.String(), "✓ Pipeline TrainingPipeline created")
	require.Contains(t, out.String(), "□ Waiting for execution exec-1...")
}

func TestSubmitAndWaitStopsOnInvalidGraph(t *testing.T) {
	engine := &fakeEngine{report: succeeded()}
	r := NewRunner(engine, nil, zerolog.Nop())

	g := pipeline.New("Broken")
	require.NoError(t, g.AddStep(&pipeline.Step{
		Name:   "TrainModel",
		Type:   pipeline.TypeTraining,
		Inputs: map[string]pipeline.Value{"input.train": pipeline.Output("ProcessingJob", "train_data")},
	}))

	_, err := r.SubmitAndWait(context.Background(), g, nil)
	var validation *pipeline.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Empty(t, engine.calls)
}

func TestSubmitAndWaitWrapsEngineErrors(t *testing.T) {
	rejected := errors.New("ValidationException: bad definition")

	for op, engine := range map[string]*fakeEngine{
		"upsert": {upsertErr: rejected},
		"start":  {startErr: rejected},
	} {
		t.Run(op, func(t *testing.T) {
			r := NewRunner(engine, nil, zerolog.Nop())

			_, err := r.SubmitAndWait(context.Background(), testGraph(t), map[string]string{"input_file_name": "a.csv"})
			var submit *SubmitError
			require.ErrorAs(t, err, &submit)
			require.Equal(t, op, submit.Op)
			require.ErrorIs(t, err, rejected)
		})
	}
}

func TestSubmitAndWaitReturnsFailedReportWithoutError(t *testing.T) {
	engine := &fakeEngine{report: &model.ExecutionReport{
		Status:        model.ExecutionFailed,
		FailureReason: "ClientError: AlgorithmError",
		Steps: []model.StepReport{
			{Name: "ProcessingJob", Status: model.StepSucceeded},
			{Name: "TrainModel", Status: model.StepFailed},
		},
	}}
	r := NewRunner(engine, nil, zerolog.Nop())

	report, err := r.SubmitAndWait(context.Background(), testGraph(t), map[string]string{"input_file_name": "a.csv"})
	require.NoError(t, err)
	require.False(t, report.Succeeded())

	err = ReportError(report)
	var failure *RemoteExecutionFailure
	require.ErrorAs(t, err, &failure)
	require.Contains(t, err.Error(), "at step TrainModel")
	require.Contains(t, err.Error(), "AlgorithmError")
}

func TestSubmitAndWaitHonoursCancelledContext(t *testing.T) {
	engine := &fakeEngine{report: succeeded()}
	r := NewRunner(engine, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.SubmitAndWait(ctx, testGraph(t), map[string]string{"input_file_name": "a.csv"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDryRunDoesNotContactEngine(t *testing.T) {
	engine := &fakeEngine{}
	var out bytes.Buffer
	r := NewRunner(engine, &out, zerolog.Nop())

	prepared, err := r.DryRun(testGraph(t), map[string]string{"input_file_name": "a.csv"})
	require.NoError(t, err)
	require.Equal(t, []string{"ProcessingJob", "TrainModel"}, prepared.Order)
	require.Empty(t, engine.calls)
	require.Contains(t, out.String(), "nothing submitted")
}
