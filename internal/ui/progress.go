package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// Step is one command in a multi-command sequence, such as applying a preset.
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // e.g., "ack 12ms", "clamped to 99"
}

// Progress tracks a fixed list of steps and renders a bar plus step lines.
type Progress struct {
	Label     string
	Steps     []Step
	Current   int     // Step currently running (1-based)
	Total     int
	Percent   float64 // 0.0 - 1.0
	Width     int
	ShowBar   bool
	ShowSteps bool
	bar       progress.Model
}

// NewProgress creates a new progress display
func NewProgress(label string, names []string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}

	p := &Progress{
		Label:     label,
		Steps:     steps,
		Total:     len(names),
		ShowBar:   true,
		ShowSteps: true,
	}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := width - 20 // room for percentage and step count
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// UpdateStep updates a specific step's status and optional message
func (p *Progress) UpdateStep(stepNumber int, status StepStatus, message string) {
	if stepNumber < 1 || stepNumber > len(p.Steps) {
		return
	}
	step := &p.Steps[stepNumber-1]
	step.Status = status
	step.Message = message

	if status == StepRunning {
		p.Current = stepNumber
		return
	}

	done := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			done++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(done) / float64(p.Total)
	}
}

// Render returns the styled progress display as a string
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	if p.ShowBar {
		b.WriteString(p.renderProgressBar())
		b.WriteString("\n\n")
	}

	if p.ShowSteps {
		lines := make([]string, 0, len(p.Steps))
		for _, step := range p.Steps {
			lines = append(lines, p.renderStepLine(step))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	return b.String()
}

func (p *Progress) renderProgressBar() string {
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent), p.Percent*100, p.Current, p.Total))
}

func (p *Progress) renderStepLine(step Step) string {
	var marker string
	var style lipgloss.Style

	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, p.Total)
	b.WriteString(style.Render(step.Name))

	// Align markers on one column
	padding := 45 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}

	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}

// StepCallback reports progress of step stepNumber (1-based).
type StepCallback func(stepNumber int, status StepStatus, message string)
