package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/benbjohnson/clock"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/runner"
)

// PipelinesAPI is the subset of the SageMaker client used by SageMakerPipelines
type PipelinesAPI interface {
	DescribePipeline(ctx context.Context, in *sagemaker.DescribePipelineInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribePipelineOutput, error)
	CreatePipeline(ctx context.Context, in *sagemaker.CreatePipelineInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreatePipelineOutput, error)
	UpdatePipeline(ctx context.Context, in *sagemaker.UpdatePipelineInput, opts ...func(*sagemaker.Options)) (*sagemaker.UpdatePipelineOutput, error)
	StartPipelineExecution(ctx context.Context, in *sagemaker.StartPipelineExecutionInput, opts ...func(*sagemaker.Options)) (*sagemaker.StartPipelineExecutionOutput, error)
	DescribePipelineExecution(ctx context.Context, in *sagemaker.DescribePipelineExecutionInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribePipelineExecutionOutput, error)
	ListPipelineExecutionSteps(ctx context.Context, in *sagemaker.ListPipelineExecutionStepsInput, opts ...func(*sagemaker.Options)) (*sagemaker.ListPipelineExecutionStepsOutput, error)
}

// SageMakerPipelines is a runner.Engine backed by SageMaker Pipelines
type SageMakerPipelines struct {
	client   PipelinesAPI
	role     string
	interval time.Duration
	clock    clock.Clock
	log      zerolog.Logger
	token    func() string
}

// PipelinesOption customizes SageMakerPipelines
type PipelinesOption func(*SageMakerPipelines)

// WithPollInterval sets the wait between execution status queries
func WithPollInterval(d time.Duration) PipelinesOption {
	return func(s *SageMakerPipelines) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock injects the clock used between status queries
func WithClock(clk clock.Clock) PipelinesOption {
	return func(s *SageMakerPipelines) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(log zerolog.Logger) PipelinesOption {
	return func(s *SageMakerPipelines) {
		s.log = log.With().Str("component", "sagemaker-pipelines").Logger()
	}
}

// NewSageMakerPipelines creates an engine that upserts pipelines with the given execution role
func NewSageMakerPipelines(client PipelinesAPI, role string, opts ...PipelinesOption) *SageMakerPipelines {
	s := &SageMakerPipelines{
		client:   client,
		role:     role,
		interval: jobs.DefaultInterval,
		clock:    clock.New(),
		log:      zerolog.Nop(),
		token:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert translates the definition and creates or updates the pipeline.
// A stored definition identical to the translated one is left untouched.
func (s *SageMakerPipelines) Upsert(ctx context.Context, name string, definition []byte) (runner.UpsertResult, error) {
	g, err := pipeline.DecodeDefinition(name, definition)
	if err != nil {
		return "", err
	}
	document, err := Translate(g)
	if err != nil {
		return "", fmt.Errorf("cloud: translate pipeline %s: %w", name, err)
	}

	current, err := s.client.DescribePipeline(ctx, &sagemaker.DescribePipelineInput{PipelineName: aws.String(name)})
	if err != nil {
		err = classify("describe pipeline "+name, err)
		if !errdefs.IsNotFound(err) {
			return "", err
		}
		_, err = s.client.CreatePipeline(ctx, &sagemaker.CreatePipelineInput{
			PipelineName:       aws.String(name),
			PipelineDefinition: aws.String(string(document)),
			RoleArn:            aws.String(s.role),
			ClientRequestToken: aws.String(s.token()),
		})
		if err != nil {
			return "", classify("create pipeline "+name, err)
		}
		s.log.Info().Str("pipeline", name).Msg("pipeline created")
		return runner.UpsertCreated, nil
	}

	if aws.ToString(current.PipelineDefinition) == string(document) {
		return runner.UpsertUnchanged, nil
	}
	_, err = s.client.UpdatePipeline(ctx, &sagemaker.UpdatePipelineInput{
		PipelineName:       aws.String(name),
		PipelineDefinition: aws.String(string(document)),
		RoleArn:            aws.String(s.role),
	})
	if err != nil {
		return "", classify("update pipeline "+name, err)
	}
	s.log.Info().Str("pipeline", name).Msg("pipeline updated")
	return runner.UpsertUpdated, nil
}

// Start launches an execution with the resolved parameters
func (s *SageMakerPipelines) Start(ctx context.Context, name string, params map[string]string) (runner.Execution, error) {
	in := &sagemaker.StartPipelineExecutionInput{
		PipelineName:       aws.String(name),
		ClientRequestToken: aws.String(s.token()),
	}
	for _, key := range jobs.SortedKeys(params) {
		in.PipelineParameters = append(in.PipelineParameters, types.Parameter{
			Name:  aws.String(key),
			Value: aws.String(params[key]),
		})
	}
	out, err := s.client.StartPipelineExecution(ctx, in)
	if err != nil {
		return nil, classify("start pipeline "+name, err)
	}
	arn := aws.ToString(out.PipelineExecutionArn)
	s.log.Info().Str("pipeline", name).Str("execution", arn).Msg("execution started")
	return &pipelineExecution{engine: s, pipeline: name, arn: arn}, nil
}

type pipelineExecution struct {
	engine   *SageMakerPipelines
	pipeline string
	arn      string
}

func (e *pipelineExecution) ID() string {
	return e.arn
}

// Wait polls the execution until it is terminal, then lists its steps
func (e *pipelineExecution) Wait(ctx context.Context) (*model.ExecutionReport, error) {
	s := e.engine
	for {
		out, err := s.client.DescribePipelineExecution(ctx, &sagemaker.DescribePipelineExecutionInput{
			PipelineExecutionArn: aws.String(e.arn),
		})
		if err != nil {
			return nil, classify("describe execution "+e.arn, err)
		}
		status := model.ExecutionStatus(out.PipelineExecutionStatus)
		s.log.Debug().Str("execution", e.arn).Str("status", string(status)).Msg("execution status")

		if status.IsTerminal() {
			report := &model.ExecutionReport{
				PipelineName:  e.pipeline,
				ExecutionID:   e.arn,
				Status:        status,
				FailureReason: aws.ToString(out.FailureReason),
				StartedAt:     aws.ToTime(out.CreationTime),
				FinishedAt:    aws.ToTime(out.LastModifiedTime),
			}
			if report.Steps, err = e.steps(ctx); err != nil {
				return nil, err
			}
			return report, nil
		}

		timer := s.clock.Timer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (e *pipelineExecution) steps(ctx context.Context) ([]model.StepReport, error) {
	var steps []model.StepReport
	var token *string
	for {
		out, err := e.engine.client.ListPipelineExecutionSteps(ctx, &sagemaker.ListPipelineExecutionStepsInput{
			PipelineExecutionArn: aws.String(e.arn),
			SortOrder:            types.SortOrderAscending,
			NextToken:            token,
		})
		if err != nil {
			return nil, classify("list execution steps "+e.arn, err)
		}
		for _, step := range out.PipelineExecutionSteps {
			steps = append(steps, model.StepReport{
				Name:          aws.ToString(step.StepName),
				Status:        model.StepStatus(step.StepStatus),
				FailureReason: aws.ToString(step.FailureReason),
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return steps, nil
		}
		token = out.NextToken
	}
}

var _ runner.Engine = (*SageMakerPipelines)(nil)
