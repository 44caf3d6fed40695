package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for emsctl output
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - valid frames, running channels
	ErrorColor   = lipgloss.Color("#FF5555") // Red - invalid frames, errors
	WarningColor = lipgloss.Color("#FFA500") // Orange - warnings
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
	DefaultPadding   = 2   // Default padding inside boxes
)

// Shared styles
var (
	// HeaderTitleStyle is for the main command title (e.g., "DECODE FRAME")
	HeaderTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true).
				PaddingLeft(2)

	// HeaderCommandStyle is for the command path (e.g., "emsctl decode")
	HeaderCommandStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	// HeaderParamKeyStyle is for parameter keys (e.g., "Bridge:")
	HeaderParamKeyStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	HeaderParamValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	ProgressLabelStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				PaddingLeft(2)

	StepCompleteStyle = lipgloss.NewStyle().
				Foreground(SuccessColor)

	StepRunningStyle = lipgloss.NewStyle().
				Foreground(WarningColor)

	StepPendingStyle = lipgloss.NewStyle().
				Foreground(MutedColor)

	// StepNoteStyle is for optional notes in parentheses
	StepNoteStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	// ResultKeyStyle is for result detail keys
	ResultKeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(15)

	ResultValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	TroubleshootingTitleStyle = lipgloss.NewStyle().
					Foreground(MutedColor).
					Bold(true)

	TroubleshootingItemStyle = lipgloss.NewStyle().
					Foreground(MutedColor)

	// FieldNameStyle labels a frame field in the byte table
	FieldNameStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(12)

	// FieldHexStyle renders the raw byte column
	FieldHexStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Width(22)

	FieldValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// MismatchStyle highlights a field that failed validation
	MismatchStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)
)

// Status markers
const (
	StepMarkerComplete = "✓"
	StepMarkerRunning  = "●"
	StepMarkerPending  = "·"
	StepMarkerSkipped  = "⊘"
	SuccessMarker      = "✓"
	FailureMarker      = "✗"
)

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// GetTerminalSize returns the current terminal width and height
func GetTerminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, 24
	}
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if width > MaxContentWidth {
		width = MaxContentWidth
	}
	return width, height
}

// IsTerminal reports whether stdout is attached to a terminal. Commands fall
// back to plain output when it is not.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// HeaderBorderStyle returns the border style for command headers
func HeaderBorderStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2)
}

// BoxStyle returns a rounded box in the given accent color
func BoxStyle(width int, accent lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Width(width-2).
		Padding(0, 1)
}

// TroubleshootingBoxStyle returns the border style for troubleshooting sections
func TroubleshootingBoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(width-8).
		Padding(0, 1)
}

// RenderHorizontalDivider creates a horizontal line of the specified width
func RenderHorizontalDivider(width int, char string) string {
	if width < 0 {
		width = 0
	}
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat(char, width))
}
