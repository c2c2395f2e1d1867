package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipelines"
)

// PipelineInfo holds extracted metadata about a pipeline section
type PipelineInfo struct {
	Section     string
	Name        string
	Template    string
	Description string
	Role        string
	Bucket      string
	Parameters  []ParameterInfo
	Functions   map[string]string
	Steps       []StepInfo
}

// ParameterInfo describes one pipeline parameter and the value the section gives it
type ParameterInfo struct {
	Name     string
	Type     string
	Default  string
	Override string
}

// StepInfo holds information about a pipeline step
type StepInfo struct {
	Name      string
	Type      string
	Depth     int
	Branch    string
	DependsOn []string
}

// extractPipelineInfo builds the section's graph and collects its metadata
func extractPipelineInfo(section string, cfg model.PipelineConfig) (*PipelineInfo, error) {
	graph, err := pipelines.Build(section, cfg)
	if err != nil {
		return nil, err
	}
	template := cfg.Template
	if template == "" {
		template = section
	}

	info := &PipelineInfo{
		Section:     section,
		Name:        graph.Name,
		Template:    template,
		Description: cfg.Description,
		Role:        cfg.Role,
		Bucket:      cfg.Bucket,
		Functions:   cfg.Functions,
	}
	for _, p := range graph.Parameters {
		pi := ParameterInfo{Name: p.Name, Type: string(p.Type), Override: cfg.Parameters[p.Name]}
		if p.HasDefault {
			pi.Default = p.Default
		}
		info.Parameters = append(info.Parameters, pi)
	}
	info.Steps = collectSteps(graph, graph.Steps(), 0, "")
	return info, nil
}

func collectSteps(graph *pipeline.Graph, steps []*pipeline.Step, depth int, branch string) []StepInfo {
	var out []StepInfo
	for _, step := range steps {
		out = append(out, StepInfo{
			Name:      step.Name,
			Type:      string(step.Type),
			Depth:     depth,
			Branch:    branch,
			DependsOn: graph.Dependencies(step.Name),
		})
		if step.Condition != nil {
			out = append(out, collectSteps(graph, step.Condition.IfSteps, depth+1, "if")...)
			out = append(out, collectSteps(graph, step.Condition.ElseSteps, depth+1, "else")...)
		}
	}
	return out
}

// printLongFormat prints pipeline info in long format
func printLongFormat(w io.Writer, info *PipelineInfo) {
	fmt.Fprintf(w, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(w, "Section: %s\n", info.Section)
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	if info.Description != "" {
		fmt.Fprintf(w, "Description:\n  %s\n\n", info.Description)
	}
	fmt.Fprintf(w, "Pipeline:  %s\n", info.Name)
	fmt.Fprintf(w, "Template:  %s\n", info.Template)
	fmt.Fprintf(w, "Role:      %s\n", info.Role)
	fmt.Fprintf(w, "Bucket:    %s\n\n", info.Bucket)

	if len(info.Parameters) > 0 {
		fmt.Fprintf(w, "Parameters:\n")
		for _, p := range info.Parameters {
			line := fmt.Sprintf("  • %-28s %-8s", p.Name, p.Type)
			if p.Default != "" {
				line += " default=" + p.Default
			}
			if p.Override != "" {
				line += " (section: " + p.Override + ")"
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	if len(info.Functions) > 0 {
		fmt.Fprintf(w, "Functions:\n")
		names := make([]string, 0, len(info.Functions))
		for name := range info.Functions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  • %-20s - %s\n", name, info.Functions[name])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Steps:\n")
	for i, step := range info.Steps {
		indent := strings.Repeat("    ", step.Depth)
		label := step.Name
		if step.Branch != "" {
			label = fmt.Sprintf("[%s] %s", step.Branch, step.Name)
		}
		fmt.Fprintf(w, "  %s%d. %s (%s)\n", indent, i+1, label, step.Type)
		if len(step.DependsOn) > 0 {
			fmt.Fprintf(w, "  %s   Depends on: %s\n", indent, strings.Join(step.DependsOn, ", "))
		}
	}
	fmt.Fprintf(w, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
}
