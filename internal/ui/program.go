package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes UI components to an io.Writer. Commands take their output
// writer from cobra so tests can capture it.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the width used for rendering
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected terminal width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(NewSuccessResult(title, details).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details map[string]string) {
	p.Println(NewWarningResult(title, details).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}
