// Package jobs submits asynchronous remote jobs and polls them to a terminal state.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// Service is the remote job API. Implementations must be safe to call from one goroutine at a time.
type Service interface {
	Create(ctx context.Context, kind model.JobKind, name string, spec Spec) error
	Describe(ctx context.Context, kind model.JobKind, name string) (model.Job, error)
}

// Describer reads the current state of a job
type Describer interface {
	Describe(ctx context.Context, kind model.JobKind, name string) (model.Job, error)
}

// OutputModel is the output holding model artifacts. For compilation and
// packaging jobs it is a prefix the service appends the job name to.
const OutputModel = "model"

// OutputModelArtifacts is the output training jobs report their model archive under
const OutputModelArtifacts = "model_artifacts"

// Spec holds the arguments of a job submission.
// Inputs and Outputs map logical names to storage URIs.
type Spec struct {
	NamePrefix      string
	Role            string
	Image           string
	InstanceType    string
	InstanceCount   int
	VolumeGB        int
	Inputs          map[string]string
	Outputs         map[string]string
	Arguments       []string
	Environment     map[string]string
	HyperParameters map[string]string
	MaxRuntime      time.Duration
	KMSKey          string
	Compilation     *CompilationSpec
	Packaging       *PackagingSpec
	Transform       *TransformSpec
}

// CompilationSpec holds the compilation-only arguments
type CompilationSpec struct {
	ModelURI        string
	Framework       string
	DataInputConfig string
	TargetOS        string
	TargetArch      string
}

// PackagingSpec holds the edge packaging-only arguments
type PackagingSpec struct {
	CompilationJob   string
	ModelName        string
	ModelVersion     string
	DeploymentType   string
	DeploymentConfig string
}

// TransformSpec holds the batch transform-only arguments
type TransformSpec struct {
	ModelName   string
	ContentType string
}

// SubmissionError is returned when a job could not be created.
// Submissions are never retried.
type SubmissionError struct {
	Kind  model.JobKind
	JobID string
	Err   error
}

func (e *SubmissionError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("submit %s job: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("submit %s job %s: %v", e.Kind, e.JobID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
