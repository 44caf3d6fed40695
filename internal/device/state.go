package device

import (
	"fmt"
	"time"

	"github.com/muurk/emslink/internal/protocol"
)

// Work time limits accepted by the companion app, in minutes.
const (
	MinWorkTime = 1
	MaxWorkTime = 99
)

// ClampWorkTime limits minutes to [MinWorkTime, MaxWorkTime].
func ClampWorkTime(minutes int) uint16 {
	switch {
	case minutes < MinWorkTime:
		return MinWorkTime
	case minutes > MaxWorkTime:
		return MaxWorkTime
	default:
		return uint16(minutes)
	}
}

// State is what the session has learned from device replies. Zero values
// mean the device has not reported the field yet; the Known flags tell
// them apart from real zeros.
type State struct {
	FirmwareMajor byte
	FirmwareMinor byte
	FirmwareKnown bool

	Battery      byte
	BatteryKnown bool

	Mode      protocol.DeviceMode
	WorkTime  uint16
	Intensity map[protocol.Channel]byte
	Running   map[protocol.Channel]bool

	Replies       int
	InvalidFrames int
	LastReply     time.Time
}

// Firmware returns the version as "major.minor", or "" if unknown.
func (s State) Firmware() string {
	if !s.FirmwareKnown {
		return ""
	}
	return fmt.Sprintf("%d.%d", s.FirmwareMajor, s.FirmwareMinor)
}

func (s State) clone() State {
	c := s
	c.Intensity = make(map[protocol.Channel]byte, len(s.Intensity))
	for k, v := range s.Intensity {
		c.Intensity[k] = v
	}
	c.Running = make(map[protocol.Channel]bool, len(s.Running))
	for k, v := range s.Running {
		c.Running[k] = v
	}
	return c
}

// apply folds one typed reply into the state.
func (s *State) apply(reply protocol.Reply, now time.Time) {
	s.Replies++
	s.LastReply = now

	switch r := reply.(type) {
	case *protocol.VersionReply:
		s.FirmwareMajor, s.FirmwareMinor, s.FirmwareKnown = r.Major, r.Minor, true
	case *protocol.BatteryReply:
		s.Battery, s.BatteryKnown = r.Percent, true
	case *protocol.ModeReply:
		s.Mode = r.Mode
	case *protocol.WorkTimeReply:
		s.WorkTime = r.Minutes
	case *protocol.IntensityReply:
		s.Intensity[r.Channel] = r.Level
	case *protocol.DeviceStatusReply:
		s.Running[r.Channel] = r.Running()
	}
}
