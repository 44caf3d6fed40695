package ui

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/emslink/internal/device"
	"github.com/muurk/emslink/internal/protocol"
)

// field is one row of the byte table.
type field struct {
	name  string
	bytes []byte
	value string
	bad   bool
}

// RenderFrame renders an encoded frame field by field with its base64 form.
func RenderFrame(f protocol.Frame, encoded string, width int) string {
	raw := f.Bytes()
	op := protocol.Classify(f.Direction, f.Command, f.Payload)
	rows := frameFields(raw, protocol.ReasonNone)

	lines := []string{
		SuccessTitleStyle.Render(fmt.Sprintf("%s  %s", SuccessMarker, op)),
		"",
	}
	lines = append(lines, renderFields(rows)...)
	lines = append(lines, "",
		ResultKeyStyle.Render("Base64:")+" "+ResultValueStyle.Render(encoded),
		ResultKeyStyle.Render("Hex:")+" "+ResultValueStyle.Render(hex.EncodeToString(raw)),
	)

	return BoxStyle(clampWidth(width), PrimaryColor).Render(strings.Join(lines, "\n"))
}

// RenderDecode renders what the decoder made of raw. reply may be nil.
func RenderDecode(raw []byte, res protocol.Result, reply protocol.Reply, width int) string {
	accent := SuccessColor
	var title string
	if res.Valid {
		title = SuccessTitleStyle.Render(fmt.Sprintf("%s  VALID  ─  %s", SuccessMarker, res.Operation()))
	} else {
		accent = ErrorColor
		title = ErrorTitleStyle.Render(fmt.Sprintf("%s  INVALID  ─  %s", FailureMarker, res.Reason))
	}

	lines := []string{title, ""}
	if len(raw) > 0 {
		lines = append(lines, renderFields(frameFields(raw, res.Reason))...)
		lines = append(lines, "")
	}

	details := map[string]string{
		"Direction": res.Direction.String(),
		"Channel":   res.Channel.String(),
		"Command":   res.Command.String(),
		"Data":      hexOrDash(res.Data),
	}
	if reply != nil {
		details["Reply"] = reply.String()
	}
	lines = append(lines, renderPairs(details, ResultKeyStyle, ResultValueStyle, "")...)

	return BoxStyle(clampWidth(width), accent).Render(strings.Join(lines, "\n"))
}

// frameFields splits raw into header fields as far as it is long enough,
// flagging the field the decoder rejected.
func frameFields(raw []byte, reason protocol.Reason) []field {
	var rows []field
	take := func(name string, start, end int, value string, bad bool) {
		if start >= len(raw) {
			return
		}
		if end > len(raw) {
			end = len(raw)
		}
		rows = append(rows, field{name: name, bytes: raw[start:end], value: value, bad: bad})
	}

	at := func(i int) byte {
		if i < len(raw) {
			return raw[i]
		}
		return 0
	}

	take("header", 0, 1, headerNote(at(0)), reason == protocol.ReasonBadHeader)
	take("direction", 1, 2, protocol.Direction(at(1)).String(), false)
	take("channel", 2, 3, protocol.Channel(at(2)).String(), false)
	take("command", 3, 4, protocol.CommandType(at(3)).String(), false)

	declared := int(at(4))
	lengthNote := fmt.Sprintf("%d", declared)
	if reason == protocol.ReasonLengthMismatch {
		lengthNote = fmt.Sprintf("%d (frame carries %d)", declared, len(raw)-protocol.FrameOverhead)
	}
	take("length", 4, 5, lengthNote, reason == protocol.ReasonLengthMismatch)

	if len(raw) < protocol.MinFrameSize || reason == protocol.ReasonLengthMismatch {
		if len(raw) > protocol.HeaderSize {
			take("rest", protocol.HeaderSize, len(raw), fmt.Sprintf("%d bytes", len(raw)-protocol.HeaderSize), false)
		}
		return rows
	}

	last := len(raw) - 1
	if last > protocol.HeaderSize {
		take("payload", protocol.HeaderSize, last, fmt.Sprintf("%d bytes", last-protocol.HeaderSize), false)
	}

	sumNote := "ok"
	if reason == protocol.ReasonBadChecksum {
		sumNote = fmt.Sprintf("expected 0x%02x", protocol.Checksum(raw[:last]))
	}
	take("checksum", last, last+1, sumNote, reason == protocol.ReasonBadChecksum)
	return rows
}

func headerNote(b byte) string {
	if b == protocol.FrameHeader {
		return "ok"
	}
	return fmt.Sprintf("want 0x%02x", protocol.FrameHeader)
}

func renderFields(rows []field) []string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		value := FieldValueStyle.Render(r.value)
		if r.bad {
			value = MismatchStyle.Render(r.value)
		}
		lines = append(lines, FieldNameStyle.Render(r.name)+FieldHexStyle.Render(spacedHex(r.bytes))+value)
	}
	return lines
}

// spacedHex renders bytes as "5a 01 02", eliding long payloads.
func spacedHex(b []byte) string {
	const max = 6
	parts := make([]string, 0, max+1)
	for i, v := range b {
		if i == max {
			parts = append(parts, "…")
			break
		}
		parts = append(parts, fmt.Sprintf("%02x", v))
	}
	return strings.Join(parts, " ")
}

func hexOrDash(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	return hex.EncodeToString(b)
}

func clampWidth(width int) int {
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// RenderCatalog renders the named operations as a table.
func RenderCatalog(entries []protocol.Entry, width int) string {
	nameStyle := lipgloss.NewStyle().Foreground(TextColor).Width(22)
	cmdStyle := lipgloss.NewStyle().Foreground(PrimaryColor).Width(8)
	dirStyle := lipgloss.NewStyle().Foreground(MutedColor).Width(14)

	lines := []string{
		HeaderTitleStyle.UnsetPaddingLeft().Render("OPERATIONS"),
		"",
	}
	for _, e := range entries {
		lines = append(lines,
			nameStyle.Render(e.Name)+
				cmdStyle.Render(fmt.Sprintf("0x%02x", byte(e.Command)))+
				dirStyle.Render(e.Direction.String())+
				StepNoteStyle.Render(e.Payload))
	}

	lines = append(lines, "", HeaderTitleStyle.UnsetPaddingLeft().Render("MODES"), "")
	modes := protocol.Modes()
	for i := 0; i < len(modes); i += 4 {
		end := i + 4
		if end > len(modes) {
			end = len(modes)
		}
		var row []string
		for _, m := range modes[i:end] {
			row = append(row, lipgloss.NewStyle().Width(18).Render(fmt.Sprintf("%2d %s", byte(m), m)))
		}
		lines = append(lines, strings.Join(row, ""))
	}

	return BoxStyle(clampWidth(width), PrimaryColor).Render(strings.Join(lines, "\n"))
}

// RenderState renders what a session knows about a device.
func RenderState(title string, s device.State, width int) string {
	details := map[string]string{
		"Firmware": unknownIfEmpty(s.Firmware()),
		"Battery":  "unknown",
		"Mode":     "unknown",
		"Work time": func() string {
			if s.WorkTime == 0 {
				return "unknown"
			}
			return fmt.Sprintf("%d min", s.WorkTime)
		}(),
		"Replies": fmt.Sprintf("%d", s.Replies),
	}
	if s.BatteryKnown {
		details["Battery"] = fmt.Sprintf("%d%%", s.Battery)
	}
	if s.Mode.Valid() {
		details["Mode"] = s.Mode.String()
	}
	if s.InvalidFrames > 0 {
		details["Invalid frames"] = fmt.Sprintf("%d", s.InvalidFrames)
	}

	lines := []string{SuccessTitleStyle.Render(title), ""}
	lines = append(lines, renderPairs(details, ResultKeyStyle, ResultValueStyle, "")...)

	if channels := stateChannels(s); len(channels) > 0 {
		lines = append(lines, "")
		for _, ch := range channels {
			lines = append(lines, renderChannelLine(ch, s))
		}
	}

	return BoxStyle(clampWidth(width), SuccessColor).Render(strings.Join(lines, "\n"))
}

func renderChannelLine(ch protocol.Channel, s device.State) string {
	status := StepPendingStyle.Render("stopped")
	if s.Running[ch] {
		status = StepCompleteStyle.Render("running")
	}
	level := "-"
	if v, ok := s.Intensity[ch]; ok {
		level = fmt.Sprintf("%d", v)
	}
	return ResultKeyStyle.Render(ch.String()+":") + " " +
		ResultValueStyle.Render(fmt.Sprintf("intensity %-4s", level)) + " " + status
}

// stateChannels lists every channel mentioned in s, in wire order.
func stateChannels(s device.State) []protocol.Channel {
	seen := make(map[protocol.Channel]bool)
	for ch := range s.Intensity {
		seen[ch] = true
	}
	for ch := range s.Running {
		seen[ch] = true
	}
	out := make([]protocol.Channel, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unknownIfEmpty(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
