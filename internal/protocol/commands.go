package protocol

import (
	"fmt"
	"strconv"
)

// CommandType is the command byte at offset 3 of a frame.
//
// The numbering is part of the device firmware contract. Some codes are
// shared: POWER_OFF and DEVICE_STATUS are both 0x02, and START/STOP therapy
// travel as DEVICE_STATUS with an action byte in the payload. Whether the
// overlap is deliberate or a firmware bug is unconfirmed; the values are
// preserved exactly. Use Classify to tell the meanings apart.
type CommandType byte

const (
	CmdGetVersion      CommandType = 0x01
	CmdDeviceStatus    CommandType = 0x02
	CmdPowerOff        CommandType = 0x02 // same byte as CmdDeviceStatus
	CmdSetIntensity    CommandType = 0x03
	CmdGetIntensity    CommandType = 0x04
	CmdSetMode         CommandType = 0x05
	CmdGetMode         CommandType = 0x06
	CmdGetBattery      CommandType = 0x07
	CmdSetWorkTime     CommandType = 0x08
	CmdSetClimbingTime CommandType = 0x09
	CmdSetPeakTime     CommandType = 0x0A
	CmdSetStopTime     CommandType = 0x0B
	CmdGetDeviceInfo   CommandType = 0x0C

	// CmdUnknown is reported by the decoder for frames it could not
	// structurally parse. It is never accepted by the encoder.
	CmdUnknown CommandType = 0xFF
)

var commandNames = map[CommandType]string{
	CmdGetVersion:      "GET_VERSION",
	CmdDeviceStatus:    "DEVICE_STATUS",
	CmdSetIntensity:    "SET_INTENSITY",
	CmdGetIntensity:    "GET_INTENSITY",
	CmdSetMode:         "SET_MODE",
	CmdGetMode:         "GET_MODE",
	CmdGetBattery:      "GET_BATTERY",
	CmdSetWorkTime:     "SET_WORK_TIME",
	CmdSetClimbingTime: "SET_CLIMBING_TIME",
	CmdSetPeakTime:     "SET_PEAK_TIME",
	CmdSetStopTime:     "SET_STOP_TIME",
	CmdGetDeviceInfo:   "GET_DEVICE_INFO",
	CmdUnknown:         "UNKNOWN",
}

// String returns the canonical name. 0x02 prints as DEVICE_STATUS; use
// Classify for the direction and payload aware meaning.
func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02x)", byte(c))
}

// Known reports whether c is an encodable command.
func (c CommandType) Known() bool {
	if c == CmdUnknown {
		return false
	}
	_, ok := commandNames[c]
	return ok
}

// ParseCommand looks a command up by its canonical name (POWER_OFF included).
func ParseCommand(name string) (CommandType, bool) {
	if name == "POWER_OFF" {
		return CmdPowerOff, true
	}
	for c, n := range commandNames {
		if n == name && c != CmdUnknown {
			return c, true
		}
	}
	return CmdUnknown, false
}

// TherapyAction is the second payload byte of a start/stop therapy frame.
type TherapyAction byte

const (
	TherapyStart TherapyAction = 0x01
	TherapyStop  TherapyAction = 0x02
)

func (a TherapyAction) String() string {
	switch a {
	case TherapyStart:
		return "start"
	case TherapyStop:
		return "stop"
	default:
		return fmt.Sprintf("TherapyAction(0x%02x)", byte(a))
	}
}

// DeviceMode is a stimulation program. Codes are fixed by firmware.
type DeviceMode byte

const (
	ModeKneading    DeviceMode = 0x01
	ModeTapping     DeviceMode = 0x02
	ModeScraping    DeviceMode = 0x03
	ModeAcupuncture DeviceMode = 0x04
	ModeMassage     DeviceMode = 0x05
	ModeCupping     DeviceMode = 0x06
	ModeShiatsu     DeviceMode = 0x07
	ModePressing    DeviceMode = 0x08
	ModeRubbing     DeviceMode = 0x09
	ModeVibration   DeviceMode = 0x0A
	ModePulse       DeviceMode = 0x0B
	ModeFitness     DeviceMode = 0x0C
	ModeRelax       DeviceMode = 0x0D
)

var modeNames = [...]string{
	ModeKneading:    "kneading",
	ModeTapping:     "tapping",
	ModeScraping:    "scraping",
	ModeAcupuncture: "acupuncture",
	ModeMassage:     "massage",
	ModeCupping:     "cupping",
	ModeShiatsu:     "shiatsu",
	ModePressing:    "pressing",
	ModeRubbing:     "rubbing",
	ModeVibration:   "vibration",
	ModePulse:       "pulse",
	ModeFitness:     "fitness",
	ModeRelax:       "relax",
}

func (m DeviceMode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(0x%02x)", byte(m))
}

// Valid reports whether m is one of the 13 firmware modes.
func (m DeviceMode) Valid() bool {
	return m >= ModeKneading && m <= ModeRelax
}

// Modes returns every mode in code order.
func Modes() []DeviceMode {
	modes := make([]DeviceMode, 0, int(ModeRelax))
	for m := ModeKneading; m <= ModeRelax; m++ {
		modes = append(modes, m)
	}
	return modes
}

// ParseMode accepts a mode name or its numeric code in Go integer syntax
// ("5", "0x05"). Signs, trailing text and values above 0xFF are rejected.
func ParseMode(s string) (DeviceMode, error) {
	for _, m := range Modes() {
		if m.String() == s {
			return m, nil
		}
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil && DeviceMode(n).Valid() {
		return DeviceMode(n), nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// SubCommand is the leading payload byte of a GET_DEVICE_INFO reply. Several
// logical replies share the outer command code and are told apart by it.
type SubCommand byte

const (
	SubDeviceStatus SubCommand = SubCommand(CmdDeviceStatus)
	SubIntensity    SubCommand = SubCommand(CmdSetIntensity)
	SubMode         SubCommand = SubCommand(CmdSetMode)
	SubBattery      SubCommand = SubCommand(CmdGetBattery)
	SubWorkTime     SubCommand = SubCommand(CmdSetWorkTime)
)

func (s SubCommand) String() string {
	switch s {
	case SubDeviceStatus:
		return "device_status"
	case SubIntensity:
		return "intensity"
	case SubMode:
		return "mode"
	case SubBattery:
		return "battery"
	case SubWorkTime:
		return "work_time"
	default:
		return fmt.Sprintf("SubCommand(0x%02x)", byte(s))
	}
}

// Operation is the meaning of a frame once direction and payload shape are
// taken into account.
type Operation int

const (
	OpUnknown Operation = iota
	OpGetVersion
	OpPowerOff
	OpStartTherapy
	OpStopTherapy
	OpDeviceStatus
	OpSetIntensity
	OpGetIntensity
	OpSetMode
	OpGetMode
	OpGetBattery
	OpSetWorkTime
	OpSetClimbingTime
	OpSetPeakTime
	OpSetStopTime
	OpGetDeviceInfo
	OpVersionReport
	OpStatusReport
	OpIntensityReport
	OpModeReport
	OpBatteryReport
	OpWorkTimeReport
)

var operationNames = [...]string{
	OpUnknown:         "unknown",
	OpGetVersion:      "get_version",
	OpPowerOff:        "power_off",
	OpStartTherapy:    "start_therapy",
	OpStopTherapy:     "stop_therapy",
	OpDeviceStatus:    "device_status",
	OpSetIntensity:    "set_intensity",
	OpGetIntensity:    "get_intensity",
	OpSetMode:         "set_mode",
	OpGetMode:         "get_mode",
	OpGetBattery:      "get_battery",
	OpSetWorkTime:     "set_work_time",
	OpSetClimbingTime: "set_climbing_time",
	OpSetPeakTime:     "set_peak_time",
	OpSetStopTime:     "set_stop_time",
	OpGetDeviceInfo:   "get_device_info",
	OpVersionReport:   "version_report",
	OpStatusReport:    "status_report",
	OpIntensityReport: "intensity_report",
	OpModeReport:      "mode_report",
	OpBatteryReport:   "battery_report",
	OpWorkTimeReport:  "work_time_report",
}

func (o Operation) String() string {
	if o >= 0 && int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// Classify resolves what a (direction, command, payload) triple means.
//
// App to device, 0x02 is POWER_OFF when the payload is empty, start or stop
// therapy when the payload is [channel, action], and a status query
// otherwise. Device to app, GET_DEVICE_INFO replies are told apart by their
// leading sub-command byte.
func Classify(dir Direction, cmd CommandType, data []byte) Operation {
	if dir == DeviceToApp {
		return classifyReply(cmd, data)
	}

	switch cmd {
	case CmdGetVersion:
		return OpGetVersion
	case CmdDeviceStatus:
		switch {
		case len(data) == 0:
			return OpPowerOff
		case len(data) == 2 && TherapyAction(data[1]) == TherapyStart:
			return OpStartTherapy
		case len(data) == 2 && TherapyAction(data[1]) == TherapyStop:
			return OpStopTherapy
		default:
			return OpDeviceStatus
		}
	case CmdSetIntensity:
		return OpSetIntensity
	case CmdGetIntensity:
		return OpGetIntensity
	case CmdSetMode:
		return OpSetMode
	case CmdGetMode:
		return OpGetMode
	case CmdGetBattery:
		return OpGetBattery
	case CmdSetWorkTime:
		return OpSetWorkTime
	case CmdSetClimbingTime:
		return OpSetClimbingTime
	case CmdSetPeakTime:
		return OpSetPeakTime
	case CmdSetStopTime:
		return OpSetStopTime
	case CmdGetDeviceInfo:
		return OpGetDeviceInfo
	default:
		return OpUnknown
	}
}

func classifyReply(cmd CommandType, data []byte) Operation {
	switch cmd {
	case CmdGetVersion:
		return OpVersionReport
	case CmdGetDeviceInfo:
		if len(data) == 0 {
			return OpUnknown
		}
		switch SubCommand(data[0]) {
		case SubDeviceStatus:
			return OpStatusReport
		case SubIntensity:
			return OpIntensityReport
		case SubMode:
			return OpModeReport
		case SubBattery:
			return OpBatteryReport
		case SubWorkTime:
			return OpWorkTimeReport
		}
	}
	return OpUnknown
}
