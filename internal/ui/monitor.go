package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/emslink/internal/device"
	"github.com/muurk/emslink/internal/protocol"
)

// commandTimeout bounds each command issued from the monitor.
const commandTimeout = 5 * time.Second

// Controller is the device surface the monitor drives. *device.Session
// implements it.
type Controller interface {
	Channel() protocol.Channel
	State() device.State
	SetIntensity(ctx context.Context, level byte) error
	SetMode(ctx context.Context, mode protocol.DeviceMode) error
	StartTherapy(ctx context.Context) error
	StopTherapy(ctx context.Context) error
	RequestDeviceInfo(ctx context.Context) error
}

// StateMsg carries a fresh state snapshot into the monitor. Reply handlers
// send it through tea.Program.Send.
type StateMsg struct {
	State device.State
	Reply protocol.Reply
}

// commandDoneMsg reports the outcome of a command run by the monitor.
type commandDoneMsg struct {
	name string
	err  error
}

type monitorKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Mode    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Mode, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Mode, k.Refresh},
		{k.Help, k.Quit},
	}
}

func defaultMonitorKeys() monitorKeyMap {
	return monitorKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k", "+"),
			key.WithHelp("↑/+", "intensity up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j", "-"),
			key.WithHelp("↓/-", "intensity down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("s", " "),
			key.WithHelp("s", "start/stop"),
		),
		Mode: key.NewBinding(
			key.WithKeys("m", "tab"),
			key.WithHelp("m", "next mode"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// MonitorModel is a live dashboard for one device channel. Replies arrive as
// StateMsg; key presses become device commands run off the UI goroutine.
type MonitorModel struct {
	Title      string
	Controller Controller

	State   device.State
	Width   int
	Height  int
	Pending string // Name of the command in flight, "" when idle
	LastErr error
	Log     []string // Most recent replies, newest last

	Keys    monitorKeyMap
	Help    help.Model
	Spinner spinner.Model
	Battery progress.Model
}

// maxLogLines caps the reply log shown under the dashboard.
const maxLogLines = 6

// NewMonitorModel creates a dashboard bound to c.
func NewMonitorModel(title string, c Controller) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	width, height := GetTerminalSize()
	return MonitorModel{
		Title:      title,
		Controller: c,
		State:      c.State(),
		Width:      width,
		Height:     height,
		Pending:    "refresh",
		Keys:       defaultMonitorKeys(),
		Help:       help.New(),
		Spinner:    s,
		Battery:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

// Init requests a full device report; Pending starts as "refresh" to match.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, m.run("refresh", func(ctx context.Context, c Controller) error {
		return c.RequestDeviceInfo(ctx)
	}))
}

// Update handles messages and updates the model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case StateMsg:
		m.State = msg.State
		if msg.Reply != nil {
			m.Log = append(m.Log, fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), msg.Reply))
			if len(m.Log) > maxLogLines {
				m.Log = m.Log[len(m.Log)-maxLogLines:]
			}
		}
		return m, nil

	case commandDoneMsg:
		m.Pending = ""
		m.LastErr = msg.err
		m.State = m.Controller.State()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m MonitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
		return m, nil
	}

	// One command at a time
	if m.Pending != "" {
		return m, nil
	}

	ch := m.Controller.Channel()
	var name string
	var fn func(ctx context.Context, c Controller) error
	switch {
	case key.Matches(msg, m.Keys.Up):
		level := m.State.Intensity[ch]
		if level < 0xFF {
			level++
		}
		name = fmt.Sprintf("intensity %d", level)
		fn = func(ctx context.Context, c Controller) error { return c.SetIntensity(ctx, level) }
	case key.Matches(msg, m.Keys.Down):
		level := m.State.Intensity[ch]
		if level > 0 {
			level--
		}
		name = fmt.Sprintf("intensity %d", level)
		fn = func(ctx context.Context, c Controller) error { return c.SetIntensity(ctx, level) }
	case key.Matches(msg, m.Keys.Toggle):
		if m.State.Running[ch] {
			name = "stop"
			fn = func(ctx context.Context, c Controller) error { return c.StopTherapy(ctx) }
		} else {
			name = "start"
			fn = func(ctx context.Context, c Controller) error { return c.StartTherapy(ctx) }
		}
	case key.Matches(msg, m.Keys.Mode):
		next := NextMode(m.State.Mode)
		name = "mode " + next.String()
		fn = func(ctx context.Context, c Controller) error { return c.SetMode(ctx, next) }
	case key.Matches(msg, m.Keys.Refresh):
		name = "refresh"
		fn = func(ctx context.Context, c Controller) error { return c.RequestDeviceInfo(ctx) }
	default:
		return m, nil
	}

	m.Pending = name
	return m, m.run(name, fn)
}

// run wraps a controller call as a tea.Cmd executed off the UI goroutine.
func (m MonitorModel) run(name string, fn func(ctx context.Context, c Controller) error) tea.Cmd {
	c := m.Controller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{name: name, err: fn(ctx, c)}
	}
}

// NextMode cycles through the firmware modes, wrapping after the last one.
// An unknown mode starts the cycle.
func NextMode(m protocol.DeviceMode) protocol.DeviceMode {
	if !m.Valid() || m == protocol.ModeRelax {
		return protocol.ModeKneading
	}
	return m + 1
}

// View renders the dashboard
func (m MonitorModel) View() string {
	width := clampWidth(m.Width)
	ch := m.Controller.Channel()

	titleStyle := lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	lines := []string{
		titleStyle.Render(strings.ToUpper(m.Title)) + "  " + StepNoteStyle.Render(ch.String()),
		"",
	}

	status := StepPendingStyle.Render("stopped")
	if m.State.Running[ch] {
		status = StepCompleteStyle.Render("running")
	}
	level := "-"
	if v, ok := m.State.Intensity[ch]; ok {
		level = fmt.Sprintf("%d", v)
	}
	mode := "unknown"
	if m.State.Mode.Valid() {
		mode = m.State.Mode.String()
	}
	workTime := "unknown"
	if m.State.WorkTime > 0 {
		workTime = fmt.Sprintf("%d min", m.State.WorkTime)
	}

	row := func(k, v string) string { return ResultKeyStyle.Render(k+":") + " " + v }
	lines = append(lines,
		row("Status", status),
		row("Intensity", ResultValueStyle.Render(level)),
		row("Mode", ResultValueStyle.Render(mode)),
		row("Work time", ResultValueStyle.Render(workTime)),
		row("Firmware", ResultValueStyle.Render(unknownIfEmpty(m.State.Firmware()))),
	)

	if m.State.BatteryKnown {
		lines = append(lines, row("Battery", m.Battery.ViewAs(float64(m.State.Battery)/100)))
	} else {
		lines = append(lines, row("Battery", ResultValueStyle.Render("unknown")))
	}

	if m.State.InvalidFrames > 0 {
		lines = append(lines, row("Invalid", MismatchStyle.Render(fmt.Sprintf("%d frames", m.State.InvalidFrames))))
	}

	lines = append(lines, "")
	switch {
	case m.Pending != "":
		lines = append(lines, m.Spinner.View()+" "+StepRunningStyle.Render(m.Pending))
	case m.LastErr != nil:
		lines = append(lines, ErrorMessageStyle.Render(FailureMarker+" "+m.LastErr.Error()))
	default:
		lines = append(lines, StepPendingStyle.Render("idle"))
	}

	if len(m.Log) > 0 {
		lines = append(lines, "")
		for _, l := range m.Log {
			lines = append(lines, StepNoteStyle.Render(l))
		}
	}

	box := BoxStyle(width, PrimaryColor).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, box, m.Help.View(m.Keys))
}
