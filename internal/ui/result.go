package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is the closing box of a command: what was done and what came back.
type Result struct {
	Type            ResultType
	Title           string            // e.g., "Intensity set"
	Details         map[string]string // Rendered in sorted key order
	Error           error             // Failure results only
	Troubleshooting []string          // Failure results only
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail adds a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	switch r.Type {
	case ResultFailure:
		return r.renderFailure(width)
	case ResultWarning:
		title := lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			Render(fmt.Sprintf("   ⚠  WARNING  ─  %s", r.Title))
		return r.renderDetails(width, title, WarningColor)
	default:
		title := SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		return r.renderDetails(width, title, SuccessColor)
	}
}

func (r *Result) renderDetails(width int, title string, border lipgloss.Color) string {
	lines := []string{"", title, ""}
	lines = append(lines, renderPairs(r.Details, ResultKeyStyle, ResultValueStyle, "   ")...)
	lines = append(lines, "")

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

func (r *Result) renderFailure(width int) string {
	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)),
		"",
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ErrorColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	innerWidth := width - 12
	if innerWidth < 40 {
		innerWidth = 40
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(innerWidth).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// BridgeTroubleshooting are the tips shown when a bridge operation fails.
var BridgeTroubleshooting = []string{
	"Check the bridge is running: emsctl scan",
	"Confirm the device is powered on and in range of the bridge",
	"Try a local simulator: emsctl simulate",
	"Set EMSLINK_LOG_LEVEL=debug to see every frame",
}
