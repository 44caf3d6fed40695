package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/emslink/internal/device"
	"github.com/muurk/emslink/internal/protocol"
)

func TestRenderFrame(t *testing.T) {
	frame, err := protocol.EncodeFrame(protocol.CmdSetIntensity, []byte{0x01, 0x03}, protocol.ChannelOne)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	out := RenderFrame(frame, protocol.EncodeToBase64(frame.Bytes()), 80)

	for _, want := range []string{"set_intensity", "5a", "SET_INTENSITY", "CH1", "5a01010302010365"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderFrame() missing %q\n%s", want, out)
		}
	}
}

func TestRenderDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []string
	}{
		{
			name: "valid",
			raw:  []byte{0x5a, 0x01, 0x01, 0x03, 0x02, 0x01, 0x03, 0x65},
			want: []string{"VALID", "set_intensity", "checksum", "ok"},
		},
		{
			name: "bad checksum",
			raw:  []byte{0x5a, 0x01, 0x01, 0x03, 0x02, 0x01, 0x03, 0x00},
			want: []string{"INVALID", "bad-checksum", "expected 0x65"},
		},
		{
			name: "length mismatch",
			raw:  []byte{0x5a, 0x01, 0x01, 0x03, 0x05, 0x01, 0x03, 0x65},
			want: []string{"length-mismatch", "5 (frame carries 2)"},
		},
		{
			name: "bad header",
			raw:  []byte{0x5b, 0x01, 0x01, 0x03, 0x00, 0x00},
			want: []string{"bad-header", "want 0x5a"},
		},
		{
			name: "too short",
			raw:  []byte{0x5a, 0x01},
			want: []string{"too-short", "direction"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := protocol.DecodeBytes(tt.raw)
			out := RenderDecode(tt.raw, res, nil, 80)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("RenderDecode() missing %q\n%s", want, out)
				}
			}
		})
	}
}

func TestRenderDecodeReply(t *testing.T) {
	text, err := protocol.ReplyBattery(80, protocol.ChannelOne)
	if err != nil {
		t.Fatal(err)
	}
	res := protocol.Decode(text)
	reply, err := protocol.ParseReply(res)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := protocol.DecodeBase64(text)

	out := RenderDecode(raw, res, reply, 80)
	if !strings.Contains(out, "Battery{80%}") {
		t.Errorf("RenderDecode() missing typed reply\n%s", out)
	}
}

func TestRenderCatalog(t *testing.T) {
	out := RenderCatalog(protocol.Catalog(), 90)
	for _, want := range []string{"get-version", "reply-work-time", "kneading", "relax"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderCatalog() missing %q", want)
		}
	}
}

func TestRenderState(t *testing.T) {
	s := device.State{
		Battery:       42,
		BatteryKnown:  true,
		Mode:          protocol.ModeShiatsu,
		Intensity:     map[protocol.Channel]byte{protocol.ChannelTwo: 7},
		Running:       map[protocol.Channel]bool{protocol.ChannelTwo: true},
		InvalidFrames: 2,
	}

	out := RenderState("pad", s, 80)
	for _, want := range []string{"42%", "shiatsu", "CH2", "running", "intensity 7", "Invalid frames", "unknown"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderState() missing %q\n%s", want, out)
		}
	}
}

func TestResultDetailsSorted(t *testing.T) {
	out := NewSuccessResult("done", map[string]string{"b": "2", "a": "1"}).SetWidth(80).Render()
	if strings.Index(out, "a:") > strings.Index(out, "b:") {
		t.Errorf("details not sorted\n%s", out)
	}

	fail := NewFailureResult("broke", errors.New("boom"), []string{"try again"}).SetWidth(80).Render()
	for _, want := range []string{"FAILED", "boom", "try again"} {
		if !strings.Contains(fail, want) {
			t.Errorf("failure box missing %q", want)
		}
	}
}

func TestRunner(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:   "Apply preset",
		Command: "emsctl send preset evening",
		Steps:   []string{"Set mode", "Set intensity"},
		Output:  &buf,
		Width:   80,
	})

	err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) (map[string]string, error) {
		onStep(1, StepRunning, "")
		onStep(1, StepComplete, "")
		onStep(2, StepSkipped, "unchanged")
		onStep(9, StepComplete, "") // out of range is ignored
		return map[string]string{"Mode": "relax"}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := r.Progress().Percent; got != 1 {
		t.Errorf("Percent = %v, want 1", got)
	}
	out := buf.String()
	for _, want := range []string{"APPLY PRESET", "Set mode", "unchanged", "Apply preset complete", "Duration"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestRunnerFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{Title: "Apply preset", Output: &buf, Width: 80})

	want := errors.New("no ack")
	err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) (map[string]string, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("Run() error = %v, want %v", err, want)
	}
	if !strings.Contains(buf.String(), "Apply preset failed") {
		t.Errorf("output missing failure box\n%s", buf.String())
	}
}

func TestNextMode(t *testing.T) {
	tests := []struct {
		in   protocol.DeviceMode
		want protocol.DeviceMode
	}{
		{protocol.ModeKneading, protocol.ModeTapping},
		{protocol.ModeFitness, protocol.ModeRelax},
		{protocol.ModeRelax, protocol.ModeKneading},
		{0, protocol.ModeKneading},
		{0x42, protocol.ModeKneading},
	}
	for _, tt := range tests {
		if got := NextMode(tt.in); got != tt.want {
			t.Errorf("NextMode(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// fakeController records calls made by the monitor.
type fakeController struct {
	state device.State
	calls []string
	err   error
}

func (f *fakeController) Channel() protocol.Channel { return protocol.ChannelOne }
func (f *fakeController) State() device.State       { return f.state }

func (f *fakeController) SetIntensity(ctx context.Context, level byte) error {
	f.calls = append(f.calls, "intensity")
	f.state.Intensity[protocol.ChannelOne] = level
	return f.err
}

func (f *fakeController) SetMode(ctx context.Context, mode protocol.DeviceMode) error {
	f.calls = append(f.calls, "mode "+mode.String())
	return f.err
}

func (f *fakeController) StartTherapy(ctx context.Context) error {
	f.calls = append(f.calls, "start")
	return f.err
}

func (f *fakeController) StopTherapy(ctx context.Context) error {
	f.calls = append(f.calls, "stop")
	return f.err
}

func (f *fakeController) RequestDeviceInfo(ctx context.Context) error {
	f.calls = append(f.calls, "info")
	return f.err
}

func newFakeController() *fakeController {
	return &fakeController{state: device.State{
		Intensity: map[protocol.Channel]byte{protocol.ChannelOne: 4},
		Running:   map[protocol.Channel]bool{},
	}}
}

// press feeds a key to the model and runs the resulting command.
func press(t *testing.T, m MonitorModel, k string) MonitorModel {
	t.Helper()
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	next, cmd := m.Update(msg)
	m = next.(MonitorModel)
	if cmd == nil {
		return m
	}
	next, _ = m.Update(cmd())
	return next.(MonitorModel)
}

func TestMonitorCommands(t *testing.T) {
	c := newFakeController()
	m := NewMonitorModel("pad", c)
	m.Pending = ""

	m = press(t, m, "+")
	if got := m.State.Intensity[protocol.ChannelOne]; got != 5 {
		t.Errorf("intensity after + = %d, want 5", got)
	}
	m = press(t, m, "-")
	m = press(t, m, "s")
	m = press(t, m, "m")
	m = press(t, m, "r")

	want := []string{"intensity", "intensity", "start", "mode kneading", "info"}
	if strings.Join(c.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", c.calls, want)
	}
	if m.Pending != "" {
		t.Errorf("Pending = %q after completion", m.Pending)
	}
}

func TestMonitorStopWhenRunning(t *testing.T) {
	c := newFakeController()
	c.state.Running[protocol.ChannelOne] = true
	m := NewMonitorModel("pad", c)
	m.Pending = ""

	press(t, m, "s")
	if len(c.calls) != 1 || c.calls[0] != "stop" {
		t.Errorf("calls = %v, want [stop]", c.calls)
	}
}

func TestMonitorBusyIgnoresKeys(t *testing.T) {
	c := newFakeController()
	m := NewMonitorModel("pad", c)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd != nil {
		t.Error("expected no command while another is in flight")
	}
	if next.(MonitorModel).Pending != "refresh" {
		t.Error("pending command was replaced")
	}
}

func TestMonitorError(t *testing.T) {
	c := newFakeController()
	c.err = errors.New("transport closed")
	m := NewMonitorModel("pad", c)
	m.Pending = ""

	m = press(t, m, "s")
	if m.LastErr == nil {
		t.Fatal("LastErr not recorded")
	}
	if !strings.Contains(m.View(), "transport closed") {
		t.Errorf("View() missing error\n%s", m.View())
	}
}

func TestMonitorStateMsg(t *testing.T) {
	m := NewMonitorModel("pad", newFakeController())

	s := device.State{
		Battery:      55,
		BatteryKnown: true,
		Mode:         protocol.ModeCupping,
		Intensity:    map[protocol.Channel]byte{protocol.ChannelOne: 9},
		Running:      map[protocol.Channel]bool{protocol.ChannelOne: true},
	}
	for i := 0; i < maxLogLines+3; i++ {
		next, _ := m.Update(StateMsg{State: s, Reply: &protocol.BatteryReply{Percent: 55}})
		m = next.(MonitorModel)
	}

	if len(m.Log) != maxLogLines {
		t.Errorf("Log length = %d, want %d", len(m.Log), maxLogLines)
	}
	view := m.View()
	for _, want := range []string{"PAD", "cupping", "running", "9"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q\n%s", want, view)
		}
	}
}

func TestMonitorQuit(t *testing.T) {
	m := NewMonitorModel("pad", newFakeController())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit key did not quit")
	}
}
