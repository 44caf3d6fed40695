package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a multi-step command run.
type RunnerConfig struct {
	Title           string            // e.g., "Apply preset"
	Command         string            // e.g., "emsctl send preset evening"
	Params          map[string]string // Shown in the header
	Steps           []string          // Step names in order
	Troubleshooting []string          // Shown on failure
	Output          io.Writer         // Default os.Stdout
	Width           int               // Default terminal width
}

// Runner prints a header, reports steps as the operation calls back, and
// closes with a result box.
type Runner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	output   io.Writer
	width    int
}

// Operation is the work a Runner drives. The returned details are added to
// the success box.
type Operation func(ctx context.Context, onStep StepCallback) (map[string]string, error)

// NewRunner creates a runner for a multi-step command
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := config.Width
	if width == 0 {
		width = GetTerminalWidth()
	}

	var prog *Progress
	if len(config.Steps) > 0 {
		prog = NewProgress("", config.Steps).SetWidth(width)
	}

	return &Runner{
		config:   config,
		header:   NewHeader(config.Title, config.Command, config.Params).SetWidth(width),
		progress: prog,
		output:   config.Output,
		width:    width,
	}
}

// Progress exposes the step tracker, nil when the run has no steps.
func (r *Runner) Progress() *Progress {
	return r.progress
}

// Run executes op and renders its outcome. The error from op is returned.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	start := time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := op(ctx, r.onStep)
	duration := time.Since(start).Round(time.Millisecond)

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		result := NewFailureResult(r.config.Title+" failed", err, r.config.Troubleshooting)
		_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
		return err
	}

	if details == nil {
		details = make(map[string]string)
	}
	details["Duration"] = duration.String()
	result := NewSuccessResult(r.config.Title+" complete", details)
	_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
	return nil
}

func (r *Runner) onStep(stepNumber int, status StepStatus, message string) {
	if r.progress == nil || stepNumber < 1 || stepNumber > len(r.progress.Steps) {
		return
	}
	r.progress.UpdateStep(stepNumber, status, message)

	line := r.progress.renderStepLine(r.progress.Steps[stepNumber-1])
	if status == StepRunning {
		// Overwritten when the step finishes
		_, _ = fmt.Fprint(r.output, line+"\r")
		return
	}
	_, _ = fmt.Fprintln(r.output, line)
}
