package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// Processing containers see their inputs and outputs under this directory
const processingRoot = "/opt/ml/processing/"

// JobsAPI is the subset of the SageMaker client used by SageMakerJobs
type JobsAPI interface {
	CreateProcessingJob(ctx context.Context, in *sagemaker.CreateProcessingJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateProcessingJobOutput, error)
	DescribeProcessingJob(ctx context.Context, in *sagemaker.DescribeProcessingJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeProcessingJobOutput, error)
	CreateTrainingJob(ctx context.Context, in *sagemaker.CreateTrainingJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateTrainingJobOutput, error)
	DescribeTrainingJob(ctx context.Context, in *sagemaker.DescribeTrainingJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeTrainingJobOutput, error)
	CreateCompilationJob(ctx context.Context, in *sagemaker.CreateCompilationJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateCompilationJobOutput, error)
	DescribeCompilationJob(ctx context.Context, in *sagemaker.DescribeCompilationJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeCompilationJobOutput, error)
	CreateEdgePackagingJob(ctx context.Context, in *sagemaker.CreateEdgePackagingJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateEdgePackagingJobOutput, error)
	DescribeEdgePackagingJob(ctx context.Context, in *sagemaker.DescribeEdgePackagingJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeEdgePackagingJobOutput, error)
	CreateTransformJob(ctx context.Context, in *sagemaker.CreateTransformJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.CreateTransformJobOutput, error)
	DescribeTransformJob(ctx context.Context, in *sagemaker.DescribeTransformJobInput, opts ...func(*sagemaker.Options)) (*sagemaker.DescribeTransformJobOutput, error)
}

// SageMakerJobs is a jobs.Service backed by SageMaker
type SageMakerJobs struct {
	client JobsAPI
}

// NewSageMakerJobs wraps a SageMaker client
func NewSageMakerJobs(client JobsAPI) *SageMakerJobs {
	return &SageMakerJobs{client: client}
}

func (s *SageMakerJobs) Create(ctx context.Context, kind model.JobKind, name string, spec jobs.Spec) error {
	var err error
	switch kind {
	case model.KindProcessing:
		_, err = s.client.CreateProcessingJob(ctx, processingJobInput(name, spec))
	case model.KindTraining:
		_, err = s.client.CreateTrainingJob(ctx, trainingJobInput(name, spec))
	case model.KindCompilation:
		if spec.Compilation == nil {
			return fmt.Errorf("cloud: compilation job %s has no compilation settings", name)
		}
		_, err = s.client.CreateCompilationJob(ctx, compilationJobInput(name, spec))
	case model.KindPackaging:
		if spec.Packaging == nil {
			return fmt.Errorf("cloud: packaging job %s has no packaging settings", name)
		}
		_, err = s.client.CreateEdgePackagingJob(ctx, packagingJobInput(name, spec))
	case model.KindTransform:
		if spec.Transform == nil {
			return fmt.Errorf("cloud: transform job %s has no model", name)
		}
		_, err = s.client.CreateTransformJob(ctx, transformJobInput(name, spec))
	default:
		return fmt.Errorf("cloud: unsupported job kind %q", kind)
	}
	return classify("create "+strings.ToLower(string(kind))+" job "+name, err)
}

func (s *SageMakerJobs) Describe(ctx context.Context, kind model.JobKind, name string) (model.Job, error) {
	job := model.Job{ID: name, Kind: kind}
	op := "describe " + strings.ToLower(string(kind)) + " job " + name

	switch kind {
	case model.KindProcessing:
		out, err := s.client.DescribeProcessingJob(ctx, &sagemaker.DescribeProcessingJobInput{ProcessingJobName: aws.String(name)})
		if err != nil {
			return model.Job{}, classify(op, err)
		}
		job.Status = model.ParseJobStatus(string(out.ProcessingJobStatus))
		job.FailureReason = aws.ToString(out.FailureReason)
		if out.ProcessingOutputConfig != nil {
			for _, o := range out.ProcessingOutputConfig.Outputs {
				if o.S3Output != nil {
					job.OutputLocations = put(job.OutputLocations, aws.ToString(o.OutputName), aws.ToString(o.S3Output.S3Uri))
				}
			}
		}
	case model.KindTraining:
		out, err := s.client.DescribeTrainingJob(ctx, &sagemaker.DescribeTrainingJobInput{TrainingJobName: aws.String(name)})
		if err != nil {
			return model.Job{}, classify(op, err)
		}
		job.Status = model.ParseJobStatus(string(out.TrainingJobStatus))
		job.FailureReason = aws.ToString(out.FailureReason)
		if out.ModelArtifacts != nil {
			job.OutputLocations = put(job.OutputLocations, jobs.OutputModelArtifacts, aws.ToString(out.ModelArtifacts.S3ModelArtifacts))
		}
	case model.KindCompilation:
		out, err := s.client.DescribeCompilationJob(ctx, &sagemaker.DescribeCompilationJobInput{CompilationJobName: aws.String(name)})
		if err != nil {
			return model.Job{}, classify(op, err)
		}
		job.Status = model.ParseJobStatus(string(out.CompilationJobStatus))
		job.FailureReason = aws.ToString(out.FailureReason)
		if out.ModelArtifacts != nil {
			job.OutputLocations = put(job.OutputLocations, jobs.OutputModel, aws.ToString(out.ModelArtifacts.S3ModelArtifacts))
		}
	case model.KindPackaging:
		out, err := s.client.DescribeEdgePackagingJob(ctx, &sagemaker.DescribeEdgePackagingJobInput{EdgePackagingJobName: aws.String(name)})
		if err != nil {
			return model.Job{}, classify(op, err)
		}
		job.Status = model.ParseJobStatus(string(out.EdgePackagingJobStatus))
		job.FailureReason = aws.ToString(out.EdgePackagingJobStatusMessage)
		if artifact := aws.ToString(out.ModelArtifact); artifact != "" {
			job.OutputLocations = put(job.OutputLocations, jobs.OutputModel, artifact)
		}
	case model.KindTransform:
		out, err := s.client.DescribeTransformJob(ctx, &sagemaker.DescribeTransformJobInput{TransformJobName: aws.String(name)})
		if err != nil {
			return model.Job{}, classify(op, err)
		}
		job.Status = model.ParseJobStatus(string(out.TransformJobStatus))
		job.FailureReason = aws.ToString(out.FailureReason)
		if out.TransformOutput != nil {
			job.OutputLocations = put(job.OutputLocations, "output", aws.ToString(out.TransformOutput.S3OutputPath))
		}
	default:
		return model.Job{}, fmt.Errorf("cloud: unsupported job kind %q", kind)
	}
	return job, nil
}

func processingJobInput(name string, spec jobs.Spec) *sagemaker.CreateProcessingJobInput {
	in := &sagemaker.CreateProcessingJobInput{
		ProcessingJobName: aws.String(name),
		RoleArn:           aws.String(spec.Role),
		AppSpecification: &types.AppSpecification{
			ImageUri:           aws.String(spec.Image),
			ContainerArguments: spec.Arguments,
		},
		ProcessingResources: &types.ProcessingResources{
			ClusterConfig: &types.ProcessingClusterConfig{
				InstanceCount:  aws.Int32(int32(spec.InstanceCount)),
				InstanceType:   types.ProcessingInstanceType(spec.InstanceType),
				VolumeSizeInGB: aws.Int32(int32(spec.VolumeGB)),
				VolumeKmsKeyId: optional(spec.KMSKey),
			},
		},
		Environment: spec.Environment,
	}
	if spec.MaxRuntime > 0 {
		in.StoppingCondition = &types.ProcessingStoppingCondition{MaxRuntimeInSeconds: aws.Int32(int32(spec.MaxRuntime.Seconds()))}
	}
	for _, inputName := range jobs.SortedKeys(spec.Inputs) {
		in.ProcessingInputs = append(in.ProcessingInputs, types.ProcessingInput{
			InputName: aws.String(inputName),
			S3Input: &types.ProcessingS3Input{
				S3Uri:       aws.String(spec.Inputs[inputName]),
				LocalPath:   aws.String(processingRoot + inputName),
				S3DataType:  types.ProcessingS3DataTypeS3Prefix,
				S3InputMode: types.ProcessingS3InputModeFile,
			},
		})
	}
	if len(spec.Outputs) > 0 {
		in.ProcessingOutputConfig = &types.ProcessingOutputConfig{KmsKeyId: optional(spec.KMSKey)}
		for _, outputName := range jobs.SortedKeys(spec.Outputs) {
			in.ProcessingOutputConfig.Outputs = append(in.ProcessingOutputConfig.Outputs, types.ProcessingOutput{
				OutputName: aws.String(outputName),
				S3Output: &types.ProcessingS3Output{
					S3Uri:        aws.String(spec.Outputs[outputName]),
					LocalPath:    aws.String(processingRoot + outputName),
					S3UploadMode: types.ProcessingS3UploadModeEndOfJob,
				},
			})
		}
	}
	return in
}

func trainingJobInput(name string, spec jobs.Spec) *sagemaker.CreateTrainingJobInput {
	in := &sagemaker.CreateTrainingJobInput{
		TrainingJobName: aws.String(name),
		RoleArn:         aws.String(spec.Role),
		AlgorithmSpecification: &types.AlgorithmSpecification{
			TrainingImage:     aws.String(spec.Image),
			TrainingInputMode: types.TrainingInputModeFile,
		},
		ResourceConfig: &types.ResourceConfig{
			InstanceCount:  aws.Int32(int32(spec.InstanceCount)),
			InstanceType:   types.TrainingInstanceType(spec.InstanceType),
			VolumeSizeInGB: aws.Int32(int32(spec.VolumeGB)),
			VolumeKmsKeyId: optional(spec.KMSKey),
		},
		OutputDataConfig: &types.OutputDataConfig{
			S3OutputPath: aws.String(spec.Outputs[jobs.OutputModel]),
			KmsKeyId:     optional(spec.KMSKey),
		},
		StoppingCondition: &types.StoppingCondition{MaxRuntimeInSeconds: aws.Int32(maxRuntimeSeconds(spec))},
		HyperParameters:   spec.HyperParameters,
		Environment:       spec.Environment,
	}
	for _, channel := range jobs.SortedKeys(spec.Inputs) {
		in.InputDataConfig = append(in.InputDataConfig, types.Channel{
			ChannelName: aws.String(channel),
			DataSource: &types.DataSource{
				S3DataSource: &types.S3DataSource{
					S3Uri:                  aws.String(spec.Inputs[channel]),
					S3DataType:             types.S3DataTypeS3Prefix,
					S3DataDistributionType: types.S3DataDistributionFullyReplicated,
				},
			},
		})
	}
	return in
}

func compilationJobInput(name string, spec jobs.Spec) *sagemaker.CreateCompilationJobInput {
	c := spec.Compilation
	return &sagemaker.CreateCompilationJobInput{
		CompilationJobName: aws.String(name),
		RoleArn:            aws.String(spec.Role),
		InputConfig: &types.InputConfig{
			S3Uri:           aws.String(c.ModelURI),
			DataInputConfig: aws.String(c.DataInputConfig),
			Framework:       types.Framework(c.Framework),
		},
		OutputConfig: &types.OutputConfig{
			S3OutputLocation: aws.String(spec.Outputs[jobs.OutputModel]),
			KmsKeyId:         optional(spec.KMSKey),
			TargetPlatform: &types.TargetPlatform{
				Os:   types.TargetPlatformOs(c.TargetOS),
				Arch: types.TargetPlatformArch(c.TargetArch),
			},
		},
		StoppingCondition: &types.StoppingCondition{MaxRuntimeInSeconds: aws.Int32(maxRuntimeSeconds(spec))},
	}
}

func packagingJobInput(name string, spec jobs.Spec) *sagemaker.CreateEdgePackagingJobInput {
	p := spec.Packaging
	out := &types.EdgeOutputConfig{
		S3OutputLocation: aws.String(spec.Outputs[jobs.OutputModel]),
		KmsKeyId:         optional(spec.KMSKey),
	}
	if p.DeploymentType != "" {
		out.PresetDeploymentType = types.EdgePresetDeploymentType(p.DeploymentType)
		out.PresetDeploymentConfig = optional(p.DeploymentConfig)
	}
	return &sagemaker.CreateEdgePackagingJobInput{
		EdgePackagingJobName: aws.String(name),
		CompilationJobName:   aws.String(p.CompilationJob),
		ModelName:            aws.String(p.ModelName),
		ModelVersion:         aws.String(p.ModelVersion),
		RoleArn:              aws.String(spec.Role),
		OutputConfig:         out,
	}
}

func transformJobInput(name string, spec jobs.Spec) *sagemaker.CreateTransformJobInput {
	in := &sagemaker.CreateTransformJobInput{
		TransformJobName: aws.String(name),
		ModelName:        aws.String(spec.Transform.ModelName),
		TransformOutput: &types.TransformOutput{
			S3OutputPath: aws.String(spec.Outputs["output"]),
			KmsKeyId:     optional(spec.KMSKey),
		},
		TransformResources: &types.TransformResources{
			InstanceCount: aws.Int32(int32(spec.InstanceCount)),
			InstanceType:  types.TransformInstanceType(spec.InstanceType),
		},
		Environment: spec.Environment,
	}
	in.TransformInput = &types.TransformInput{
		ContentType: optional(spec.Transform.ContentType),
		DataSource: &types.TransformDataSource{
			S3DataSource: &types.TransformS3DataSource{
				S3Uri:      aws.String(spec.Inputs["input"]),
				S3DataType: types.S3DataTypeS3Prefix,
			},
		},
	}
	return in
}

// maxRuntimeSeconds is the stopping condition, one day when unset
func maxRuntimeSeconds(spec jobs.Spec) int32 {
	if spec.MaxRuntime <= 0 {
		return 86400
	}
	return int32(spec.MaxRuntime.Seconds())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func put(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[k] = v
	return m
}

var _ jobs.Service = (*SageMakerJobs)(nil)
