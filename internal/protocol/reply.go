package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidResult is returned by ParseReply for results that failed decoding.
var ErrInvalidResult = errors.New("result is not valid")

// Reply is a typed device response.
type Reply interface {
	Operation() Operation
	String() string
}

// VersionReply answers GET_VERSION.
type VersionReply struct {
	Major byte
	Minor byte
}

func (r *VersionReply) Operation() Operation { return OpVersionReport }

func (r *VersionReply) String() string {
	return fmt.Sprintf("Version{%d.%d}", r.Major, r.Minor)
}

// IntensityReply reports a channel's stimulation level.
type IntensityReply struct {
	Channel Channel
	Level   byte
}

func (r *IntensityReply) Operation() Operation { return OpIntensityReport }

func (r *IntensityReply) String() string {
	return fmt.Sprintf("Intensity{ch=%s, level=%d}", r.Channel, r.Level)
}

// ModeReply reports the active program.
type ModeReply struct {
	Mode DeviceMode
}

func (r *ModeReply) Operation() Operation { return OpModeReport }

func (r *ModeReply) String() string {
	return fmt.Sprintf("Mode{%s}", r.Mode)
}

// WorkTimeReply reports session minutes.
type WorkTimeReply struct {
	Minutes uint16
}

func (r *WorkTimeReply) Operation() Operation { return OpWorkTimeReport }

func (r *WorkTimeReply) String() string {
	return fmt.Sprintf("WorkTime{%d min}", r.Minutes)
}

// DeviceStatusReply reports whether a channel is running.
type DeviceStatusReply struct {
	Channel Channel
	Status  TherapyAction
}

func (r *DeviceStatusReply) Operation() Operation { return OpStatusReport }

// Running is true when the device reports the start action.
func (r *DeviceStatusReply) Running() bool { return r.Status == TherapyStart }

func (r *DeviceStatusReply) String() string {
	return fmt.Sprintf("DeviceStatus{ch=%s, status=%s}", r.Channel, r.Status)
}

// BatteryReply reports the battery percentage.
type BatteryReply struct {
	Percent byte
}

func (r *BatteryReply) Operation() Operation { return OpBatteryReport }

func (r *BatteryReply) String() string {
	return fmt.Sprintf("Battery{%d%%}", r.Percent)
}

// RawReply is a valid frame with no typed interpretation.
type RawReply struct {
	Command CommandType
	Data    []byte
}

func (r *RawReply) Operation() Operation { return OpUnknown }

func (r *RawReply) String() string {
	return fmt.Sprintf("Raw{cmd=%s, data=%s}", r.Command, hex.EncodeToString(r.Data))
}

// ParseReply interprets a valid device-to-app result. Frames it does not
// recognise come back as *RawReply; truncated known replies are an error.
func ParseReply(res Result) (Reply, error) {
	if !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResult, res.Reason)
	}
	if res.Direction != DeviceToApp {
		return &RawReply{Command: res.Command, Data: res.Data}, nil
	}

	switch Classify(res.Direction, res.Command, res.Data) {
	case OpVersionReport:
		return parseVersionReply(res.Data)
	case OpIntensityReport:
		return parseIntensityReply(res.Data)
	case OpModeReport:
		return parseModeReply(res.Data)
	case OpWorkTimeReport:
		return parseWorkTimeReply(res.Data)
	case OpStatusReport:
		return parseDeviceStatusReply(res.Data)
	case OpBatteryReport:
		return parseBatteryReply(res.Data)
	default:
		return &RawReply{Command: res.Command, Data: res.Data}, nil
	}
}

func parseVersionReply(data []byte) (Reply, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("version reply too short: %d bytes (minimum 2)", len(data))
	}
	return &VersionReply{Major: data[0], Minor: data[1]}, nil
}

func parseIntensityReply(data []byte) (Reply, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("intensity reply too short: %d bytes (minimum 3)", len(data))
	}
	return &IntensityReply{Channel: Channel(data[1]), Level: data[2]}, nil
}

func parseModeReply(data []byte) (Reply, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("mode reply too short: %d bytes (minimum 2)", len(data))
	}
	return &ModeReply{Mode: DeviceMode(data[1])}, nil
}

func parseWorkTimeReply(data []byte) (Reply, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("work time reply too short: %d bytes (minimum 3)", len(data))
	}
	return &WorkTimeReply{Minutes: binary.BigEndian.Uint16(data[1:3])}, nil
}

func parseDeviceStatusReply(data []byte) (Reply, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("device status reply too short: %d bytes (minimum 3)", len(data))
	}
	return &DeviceStatusReply{Channel: Channel(data[1]), Status: TherapyAction(data[2])}, nil
}

func parseBatteryReply(data []byte) (Reply, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("battery reply too short: %d bytes (minimum 2)", len(data))
	}
	return &BatteryReply{Percent: data[1]}, nil
}
