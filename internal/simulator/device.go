package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/protocol"
	"go.uber.org/zap"
)

// ErrPoweredOff is returned for writes after the device received POWER_OFF.
var ErrPoweredOff = errors.New("device powered off")

// Defaults for a freshly booted device
const (
	DefaultBattery       = 100
	DefaultFirmwareMajor = 1
	DefaultFirmwareMinor = 0
	DefaultWorkTime      = 15
	DefaultMode          = protocol.ModeKneading
)

// State is a snapshot of the simulated device.
type State struct {
	Channels      protocol.Channel
	FirmwareMajor byte
	FirmwareMinor byte
	Battery       byte
	Mode          protocol.DeviceMode
	WorkTime      uint16
	ClimbingTime  byte
	PeakTime      byte
	StopTime      byte
	Intensity     map[protocol.Channel]byte
	Running       map[protocol.Channel]bool
	PoweredOff    bool

	// Frames accepted and rejected since boot
	Handled  int
	Rejected int
}

// Option configures a Device.
type Option func(*Device)

// WithBattery sets the battery percentage reported by the device.
func WithBattery(percent byte) Option {
	return func(d *Device) { d.state.Battery = percent }
}

// WithFirmware sets the version reported to GET_VERSION.
func WithFirmware(major, minor byte) Option {
	return func(d *Device) {
		d.state.FirmwareMajor = major
		d.state.FirmwareMinor = minor
	}
}

// WithChannels sets the channel count (1, 2 or 4) of the device.
func WithChannels(ch protocol.Channel) Option {
	return func(d *Device) { d.state.Channels = ch }
}

// WithMode sets the program active at boot.
func WithMode(mode protocol.DeviceMode) Option {
	return func(d *Device) { d.state.Mode = mode }
}

// WithName labels the device in log output.
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// Device is a simulated peripheral. It is safe for concurrent use.
type Device struct {
	name string

	mu    sync.Mutex
	state State
}

// New returns a powered-on device.
func New(opts ...Option) *Device {
	d := &Device{
		name: "simulator",
		state: State{
			Channels:      protocol.ChannelOne,
			FirmwareMajor: DefaultFirmwareMajor,
			FirmwareMinor: DefaultFirmwareMinor,
			Battery:       DefaultBattery,
			Mode:          DefaultMode,
			WorkTime:      DefaultWorkTime,
			Intensity:     make(map[protocol.Channel]byte),
			Running:       make(map[protocol.Channel]bool),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Snapshot returns a copy of the current state.
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.state
	s.Intensity = make(map[protocol.Channel]byte, len(d.state.Intensity))
	for ch, v := range d.state.Intensity {
		s.Intensity[ch] = v
	}
	s.Running = make(map[protocol.Channel]bool, len(d.state.Running))
	for ch, v := range d.state.Running {
		s.Running[ch] = v
	}
	return s
}

// SetBattery changes the reported battery level.
func (d *Device) SetBattery(percent byte) {
	d.mu.Lock()
	d.state.Battery = percent
	d.mu.Unlock()
}

// HandleWrite implements transport.Peripheral. Replies are emitted through
// notify before it returns.
func (d *Device) HandleWrite(ctx context.Context, payload string, notify func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := protocol.Decode(payload)

	d.mu.Lock()
	if d.state.PoweredOff {
		d.mu.Unlock()
		return ErrPoweredOff
	}
	if !res.Valid || res.Direction != protocol.AppToDevice {
		d.state.Rejected++
		d.mu.Unlock()
		logging.Warn("Simulator ignoring frame",
			zap.String("device", d.name),
			zap.String("reason", res.Reason.String()),
			zap.String("direction", res.Direction.String()),
		)
		return nil
	}
	d.state.Handled++
	replies, err := d.apply(res)
	d.mu.Unlock()

	if err != nil {
		logging.Warn("Simulator rejected command",
			zap.String("device", d.name),
			zap.String("command", res.Command.String()),
			zap.Error(err),
		)
		return nil
	}

	for _, r := range replies {
		notify(r)
	}
	return nil
}

// apply mutates state for one valid request and returns the encoded replies.
// Called with d.mu held.
func (d *Device) apply(res protocol.Result) ([]string, error) {
	ch := res.Channel
	if !ch.Valid() {
		ch = protocol.DefaultChannel
	}
	data := res.Data
	op := protocol.Classify(res.Direction, res.Command, data)

	logging.Debug("Simulator handling request",
		zap.String("device", d.name),
		zap.String("operation", op.String()),
		zap.String("channel", ch.String()),
	)

	var out replies
	switch op {
	case protocol.OpGetVersion:
		out.add(protocol.ReplyVersion(d.state.FirmwareMajor, d.state.FirmwareMinor, protocol.DefaultChannel))

	case protocol.OpPowerOff:
		d.state.PoweredOff = true
		for k := range d.state.Running {
			d.state.Running[k] = false
		}

	case protocol.OpStartTherapy, protocol.OpStopTherapy:
		target := protocol.Channel(data[0])
		if !target.Valid() {
			return nil, fmt.Errorf("invalid therapy channel 0x%02x", data[0])
		}
		action := protocol.TherapyAction(data[1])
		d.state.Running[target] = action == protocol.TherapyStart
		out.add(protocol.ReplyDeviceStatus(action, target))

	case protocol.OpDeviceStatus:
		out.add(protocol.ReplyDeviceStatus(d.status(ch), ch))

	case protocol.OpSetIntensity:
		if len(data) < 2 {
			return nil, fmt.Errorf("set intensity payload too short: %d bytes", len(data))
		}
		target := protocol.Channel(data[0])
		if !target.Valid() {
			return nil, fmt.Errorf("invalid intensity channel 0x%02x", data[0])
		}
		d.state.Intensity[target] = data[1]
		out.add(protocol.ReplyIntensity(data[1], target))

	case protocol.OpGetIntensity:
		out.add(protocol.ReplyIntensity(d.state.Intensity[ch], ch))

	case protocol.OpSetMode:
		if len(data) < 1 {
			return nil, errors.New("set mode payload empty")
		}
		mode := protocol.DeviceMode(data[0])
		if !mode.Valid() {
			return nil, fmt.Errorf("unsupported mode %s", mode)
		}
		d.state.Mode = mode
		out.add(protocol.ReplyMode(mode, ch))

	case protocol.OpGetMode:
		out.add(protocol.ReplyMode(d.state.Mode, ch))

	case protocol.OpGetBattery:
		out.add(protocol.ReplyBattery(d.state.Battery, ch))

	case protocol.OpSetWorkTime:
		if len(data) < 3 {
			return nil, fmt.Errorf("set work time payload too short: %d bytes", len(data))
		}
		d.state.WorkTime = binary.BigEndian.Uint16(data[1:3])
		out.add(protocol.ReplyWorkTime(d.state.WorkTime, ch))

	case protocol.OpSetClimbingTime, protocol.OpSetPeakTime, protocol.OpSetStopTime:
		if len(data) < 1 {
			return nil, fmt.Errorf("%s payload empty", op)
		}
		switch op {
		case protocol.OpSetClimbingTime:
			d.state.ClimbingTime = data[0]
		case protocol.OpSetPeakTime:
			d.state.PeakTime = data[0]
		default:
			d.state.StopTime = data[0]
		}

	case protocol.OpGetDeviceInfo:
		out.add(protocol.ReplyDeviceStatus(d.status(ch), ch))
		out.add(protocol.ReplyIntensity(d.state.Intensity[ch], ch))
		out.add(protocol.ReplyMode(d.state.Mode, ch))
		out.add(protocol.ReplyBattery(d.state.Battery, ch))
		out.add(protocol.ReplyWorkTime(d.state.WorkTime, ch))

	default:
		return nil, fmt.Errorf("unsupported command %s", res.Command)
	}

	return out.frames, out.err
}

func (d *Device) status(ch protocol.Channel) protocol.TherapyAction {
	if d.state.Running[ch] {
		return protocol.TherapyStart
	}
	return protocol.TherapyStop
}

// replies collects encoded frames, keeping the first encoding error.
type replies struct {
	frames []string
	err    error
}

func (r *replies) add(frame string, err error) {
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.frames = append(r.frames, frame)
}
