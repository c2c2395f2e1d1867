package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
)

// ReportHeaders are the columns of the step table
var ReportHeaders = []string{"STEP", "STATUS", "OUTPUTS", "FAILURE"}

// ReportRows flattens a report into table rows, outputs sorted by key
func ReportRows(report *model.ExecutionReport) [][]string {
	rows := make([][]string, 0, len(report.Steps))
	for _, step := range report.Steps {
		keys := make([]string, 0, len(step.Outputs))
		for k := range step.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		outputs := make([]string, 0, len(keys))
		for _, k := range keys {
			outputs = append(outputs, k+"="+step.Outputs[k])
		}
		rows = append(rows, []string{step.Name, string(step.Status), strings.Join(outputs, "\n"), step.FailureReason})
	}
	return rows
}

// Report renders an execution report as a summary line and a step table
func Report(report *model.ExecutionReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s %s\n", statusMark(report.Status), report.PipelineName, mutedStyle.Render(report.ExecutionID)))
	if !report.FinishedAt.IsZero() && !report.StartedAt.IsZero() {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("finished in %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))) + "\n")
	}
	if report.FailureReason != "" {
		sb.WriteString(errorStyle.Render(report.FailureReason) + "\n")
	}
	if len(report.Steps) == 0 {
		return sb.String()
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return cellStyle.Foreground(dim)
			}
		}).
		Headers(ReportHeaders...).
		Rows(ReportRows(report)...)
	sb.WriteString(t.String() + "\n")
	return sb.String()
}

func statusMark(status model.ExecutionStatus) string {
	switch status {
	case model.ExecutionSucceeded:
		return successStyle.Render("✓ " + string(status))
	case model.ExecutionFailed:
		return errorStyle.Render("✗ " + string(status))
	default:
		return warnStyle.Render("● " + string(status))
	}
}
