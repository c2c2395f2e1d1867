package render

import (
	"fmt"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

const rule = "═══════════════════════════════════════════════════════════\n"

// GraphViewer provides human-readable views of a pipeline graph
type GraphViewer struct {
	graph *pipeline.Graph
}

// NewGraphViewer creates a new graph viewer
func NewGraphViewer(g *pipeline.Graph) *GraphViewer {
	return &GraphViewer{graph: g}
}

// ViewDAG returns a tree of the top-level steps with condition branches nested under them
func (gv *GraphViewer) ViewDAG() string {
	steps := gv.graph.Steps()
	if len(steps) == 0 {
		return "No steps in pipeline"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d parameters)\n", gv.graph.Name, len(gv.graph.Parameters)))
	gv.writeSteps(&sb, steps, "")
	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("Summary: %d top-level steps, %d steps\n", len(steps), gv.graph.Len()))
	return sb.String()
}

func (gv *GraphViewer) writeSteps(sb *strings.Builder, steps []*pipeline.Step, indent string) {
	for i, step := range steps {
		last := i == len(steps)-1
		prefix, connector := "├─ ", "│  "
		if last {
			prefix, connector = "└─ ", "   "
		}
		sb.WriteString(fmt.Sprintf("%s%s%s [%s]\n", indent, prefix, step.Name, step.Type))

		child := indent + connector
		for _, dep := range step.DependsOn {
			sb.WriteString(fmt.Sprintf("%s  (depends on) %s\n", child, dep))
		}
		if c := step.Condition; c != nil {
			sb.WriteString(fmt.Sprintf("%s  when %s %s\n", child, c.Subject, c.Predicate))
			gv.writeBranch(sb, gate.IfBranch, c.IfSteps, child)
			gv.writeBranch(sb, gate.ElseBranch, c.ElseSteps, child)
		}
	}
}

func (gv *GraphViewer) writeBranch(sb *strings.Builder, label gate.Branch, steps []*pipeline.Step, indent string) {
	if len(steps) == 0 {
		sb.WriteString(fmt.Sprintf("%s  %s: (no steps)\n", indent, label))
		return
	}
	sb.WriteString(fmt.Sprintf("%s  %s:\n", indent, label))
	gv.writeSteps(sb, steps, indent+"  ")
}

// ViewDependencies lists every step in execution order with its effective dependencies
func (gv *GraphViewer) ViewDependencies() (string, error) {
	ordered, err := gv.graph.TopologicalOrder()
	if err != nil {
		return "", err
	}
	if len(ordered) == 0 {
		return "No steps in pipeline", nil
	}

	var sb strings.Builder
	sb.WriteString("Step Dependencies\n")
	sb.WriteString(rule + "\n")

	for i, step := range ordered {
		prefix := "├─ "
		if i == len(ordered)-1 {
			prefix = "└─ "
		}
		line := fmt.Sprintf("%s%s", prefix, step.Name)
		if parent, branch, ok := gv.graph.Enclosing(step.Name); ok {
			line += fmt.Sprintf(" (%s of %s)", branch, parent)
		}
		sb.WriteString(line + "\n")

		deps := gv.graph.Dependencies(step.Name)
		if len(deps) == 0 {
			sb.WriteString("   (no dependencies)\n")
		}
		for j, dep := range deps {
			depPrefix := "  ├─ "
			if j == len(deps)-1 {
				depPrefix = "  └─ "
			}
			sb.WriteString(fmt.Sprintf("%s(depends on) %s\n", depPrefix, dep))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
