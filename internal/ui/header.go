package ui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the banner printed at the start of a command: title, the
// command line and its resolved parameters.
type Header struct {
	Title   string            // e.g., "DEVICE STATUS"
	Command string            // e.g., "emsctl status"
	Params  map[string]string // e.g., {"Bridge": "ws://...", "Channel": "CH1"}
	Width   int
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params map[string]string) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(h.Params) == 0 {
		return HeaderBorderStyle(width).Render(topSection)
	}

	dividerWidth := width - 6
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := RenderHorizontalDivider(dividerWidth, "─")

	paramsSection := strings.Join(renderPairs(h.Params, HeaderParamKeyStyle, HeaderParamValueStyle, ""), "\n")

	content := lipgloss.JoinVertical(lipgloss.Left, topSection, divider, paramsSection)
	return HeaderBorderStyle(width).Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

// renderPairs renders key/value lines in sorted key order.
func renderPairs(pairs map[string]string, keyStyle, valueStyle lipgloss.Style, indent string) []string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, keyStyle.Render(indent+k+":")+" "+valueStyle.Render(pairs[k]))
	}
	return lines
}
