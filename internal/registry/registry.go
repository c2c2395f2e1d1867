// Package registry describes the model package registry used to version trained models.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
)

// Approval statuses of a model package
const (
	StatusApproved              = "Approved"
	StatusRejected              = "Rejected"
	StatusPendingManualApproval = "PendingManualApproval"
)

// ErrNoApprovedPackage is returned when a group has no approved package yet
var ErrNoApprovedPackage = errors.New("no approved model package")

// ModelPackage is one registered model version
type ModelPackage struct {
	Group          string    `yaml:"group" json:"group"`
	Version        int       `yaml:"version" json:"version"`
	Arn            string    `yaml:"arn,omitempty" json:"arn,omitempty"`
	ModelDataURL   string    `yaml:"modelDataUrl" json:"modelDataUrl"`
	Image          string    `yaml:"image,omitempty" json:"image,omitempty"`
	ApprovalStatus string    `yaml:"approvalStatus" json:"approvalStatus"`
	ContentTypes   []string  `yaml:"contentTypes,omitempty" json:"contentTypes,omitempty"`
	ResponseTypes  []string  `yaml:"responseTypes,omitempty" json:"responseTypes,omitempty"`
	CreatedAt      time.Time `yaml:"createdAt" json:"createdAt"`
}

// CompilationJob is the name of the compilation job that produced the model data.
// Compiled artifacts live at <prefix>/<job>/model-<platform>.tar.gz.
func (p ModelPackage) CompilationJob() string {
	parts := strings.Split(strings.TrimSuffix(p.ModelDataURL, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// Registry stores model packages grouped by name
type Registry interface {
	// EnsureGroup creates the group when it does not exist and reports whether it did
	EnsureGroup(ctx context.Context, group, description string) (bool, error)
	// Register adds a new version to the group
	Register(ctx context.Context, pkg ModelPackage) (ModelPackage, error)
	// LatestApproved returns the newest approved version of the group
	LatestApproved(ctx context.Context, group string) (ModelPackage, error)
}

// Memory is an in-process Registry
type Memory struct {
	mu     sync.Mutex
	groups map[string][]ModelPackage
	now    func() time.Time
}

// NewMemory creates an empty registry. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{groups: make(map[string][]ModelPackage), now: now}
}

func (m *Memory) EnsureGroup(_ context.Context, group, _ string) (bool, error) {
	if group == "" {
		return false, fmt.Errorf("model package group name: %w", errdefs.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group]; ok {
		return false, nil
	}
	m.groups[group] = nil
	return true, nil
}

func (m *Memory) Register(_ context.Context, pkg ModelPackage) (ModelPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, ok := m.groups[pkg.Group]
	if !ok {
		return ModelPackage{}, fmt.Errorf("model package group %s: %w", pkg.Group, errdefs.ErrNotFound)
	}
	if pkg.ModelDataURL == "" {
		return ModelPackage{}, fmt.Errorf("model data url: %w", errdefs.ErrInvalidArgument)
	}
	if pkg.ApprovalStatus == "" {
		pkg.ApprovalStatus = StatusPendingManualApproval
	}
	pkg.Version = len(versions) + 1
	pkg.Arn = fmt.Sprintf("arn:local:model-package/%s/%d", strings.ToLower(pkg.Group), pkg.Version)
	pkg.CreatedAt = m.now()
	m.groups[pkg.Group] = append(versions, pkg)
	return pkg, nil
}

func (m *Memory) LatestApproved(_ context.Context, group string) (ModelPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, ok := m.groups[group]
	if !ok {
		return ModelPackage{}, fmt.Errorf("model package group %s: %w", group, errdefs.ErrNotFound)
	}
	approved := make([]ModelPackage, 0, len(versions))
	for _, p := range versions {
		if p.ApprovalStatus == StatusApproved {
			approved = append(approved, p)
		}
	}
	if len(approved) == 0 {
		return ModelPackage{}, ErrNoApprovedPackage
	}
	sort.SliceStable(approved, func(i, j int) bool { return approved[i].Version > approved[j].Version })
	return approved[0], nil
}

// Approve sets the approval status of one version
func (m *Memory) Approve(group string, version int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.groups[group]
	for i := range versions {
		if versions[i].Version == version {
			versions[i].ApprovalStatus = status
			return nil
		}
	}
	return fmt.Errorf("model package %s/%d: %w", group, version, errdefs.ErrNotFound)
}
