package model

import "strings"

// JobKind identifies the family of a remote job
type JobKind string

const (
	KindTraining    JobKind = "Training"
	KindCompilation JobKind = "Compilation"
	KindPackaging   JobKind = "Packaging"
	KindProcessing  JobKind = "Processing"
	KindTransform   JobKind = "Transform"
)

// JobKinds lists every supported kind in a stable order
var JobKinds = []JobKind{KindTraining, KindCompilation, KindPackaging, KindProcessing, KindTransform}

// ParseJobKind resolves a kind name case-insensitively
func ParseJobKind(raw string) (JobKind, bool) {
	for _, k := range JobKinds {
		if strings.EqualFold(string(k), raw) {
			return k, true
		}
	}
	return "", false
}

// JobStatus is the lifecycle state reported for a job
type JobStatus string

const (
	StatusStarting   JobStatus = "Starting"
	StatusInProgress JobStatus = "InProgress"
	StatusCompleted  JobStatus = "Completed"
	StatusFailed     JobStatus = "Failed"
	StatusStopping   JobStatus = "Stopping"
	StatusStopped    JobStatus = "Stopped"
)

var knownStatuses = []JobStatus{
	StatusStarting, StatusInProgress, StatusCompleted,
	StatusFailed, StatusStopping, StatusStopped,
}

// FailureStatuses are the terminal statuses that mean the job did not finish its work
var FailureStatuses = []JobStatus{StatusFailed, StatusStopping, StatusStopped}

// ParseJobStatus normalizes a provider status string.
// Values outside the known set are kept verbatim and reported as unknown.
func ParseJobStatus(raw string) JobStatus {
	folded := strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""), " ", "")
	for _, s := range knownStatuses {
		if strings.EqualFold(string(s), folded) {
			return s
		}
	}
	return JobStatus(raw)
}

// Known reports whether the status is one of the documented lifecycle states
func (s JobStatus) Known() bool {
	for _, k := range knownStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// IsTerminal reports whether polling can stop.
// Unknown statuses are non-terminal.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopping, StatusStopped:
		return true
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

// Job is one asynchronous unit of remote work
type Job struct {
	ID              string            `yaml:"id" json:"id"`
	Kind            JobKind           `yaml:"kind" json:"kind"`
	Status          JobStatus         `yaml:"status" json:"status"`
	FailureReason   string            `yaml:"failureReason,omitempty" json:"failureReason,omitempty"`
	OutputLocations map[string]string `yaml:"outputLocations,omitempty" json:"outputLocations,omitempty"`
}

// Output returns the storage URI recorded for a logical output name
func (j Job) Output(name string) (string, bool) {
	uri, ok := j.OutputLocations[name]
	return uri, ok
}
