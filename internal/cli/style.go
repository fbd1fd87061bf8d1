package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	headStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	badgeColors = map[model.JobStatus]lipgloss.Color{
		model.StatusPending:        "#6B7280",
		model.StatusGeneratingPlan: "#3B82F6",
		model.StatusPlanReady:      "#8B5CF6",
		model.StatusExecuting:      "#F59E0B",
		model.StatusRecording:      "#EF4444",
		model.StatusConverting:     "#06B6D4",
		model.StatusCompleted:      "#10B981",
		model.StatusFailed:         "#DC2626",
	}
)

// badge renders a status as a coloured label. Unknown statuses are grey.
func badge(s model.JobStatus) string {
	color, ok := badgeColors[s]
	if !ok {
		color = "#9CA3AF"
	}
	return badgeBase.Foreground(lipgloss.Color("#FFFFFF")).Background(color).Render(s.Label())
}

func formatResults(r *model.StepResults) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d steps succeeded, %d failed", r.SuccessfulSteps, r.TotalSteps, r.FailedSteps)
}

func formatStep(s model.Step) string {
	line := fmt.Sprintf("%2d. %-17s %s", s.ID, s.Action, s.Target)
	if s.Value != nil {
		line += fmt.Sprintf(" = %q", *s.Value)
	}
	return line + "\n    " + dimStyle.Render(s.Description)
}
