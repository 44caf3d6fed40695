package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/transport"
)

// CurrentVersion is the config schema version this build reads and writes.
const CurrentVersion = 1

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int                `yaml:"version"`
	Bridge      *Bridge            `yaml:"bridge,omitempty"`
	GATT        *transport.Profile `yaml:"gatt,omitempty"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by a user-chosen device name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Bridge holds connection settings for the BLE-to-WebSocket bridge.
type Bridge struct {
	URL        string `yaml:"url,omitempty"`         // ws:// or wss:// endpoint; empty means discover
	Instance   string `yaml:"instance,omitempty"`    // mDNS instance to prefer when discovering
	AckTimeout int    `yaml:"ack_timeout,omitempty"` // Seconds to wait for a write ack
}

// Device represents what the user knows about one massage device.
type Device struct {
	Nickname string             `yaml:"nickname,omitempty"`
	Channels int                `yaml:"channels,omitempty"`  // Output count: 1, 2 or 4
	Firmware string             `yaml:"firmware,omitempty"`  // Last reported version
	LastSeen time.Time          `yaml:"last_seen,omitempty"` // Last successful session
	Presets  map[string]*Preset `yaml:"presets,omitempty"`
}

// Preset is a named combination of program settings.
type Preset struct {
	Mode      string `yaml:"mode"`
	Intensity int    `yaml:"intensity"`
	WorkTime  int    `yaml:"work_time,omitempty"` // Minutes, 1-99
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DefaultChannel  int    `yaml:"default_channel"`     // 1, 2 or 4
	DiscoverTimeout int    `yaml:"discover_timeout"`    // mDNS discovery timeout in seconds
	LogLevel        string `yaml:"log_level,omitempty"` // Overridden by EMSLINK_LOG_LEVEL
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	profile := transport.DefaultProfile()
	return &Registry{
		Version: CurrentVersion,
		Bridge: &Bridge{
			AckTimeout: 5,
		},
		GATT:        &profile,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

func defaultPreferences() *Preferences {
	return &Preferences{
		DefaultChannel:  int(protocol.DefaultChannel),
		DiscoverTimeout: 5,
	}
}

// Validate checks values the codec and transport would reject later.
func (r *Registry) Validate() error {
	if r.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", r.Version, CurrentVersion)
	}
	if r.GATT != nil {
		if err := r.GATT.Validate(); err != nil {
			return fmt.Errorf("gatt: %w", err)
		}
	}
	if r.Preferences != nil {
		if _, err := protocol.ParseChannel(r.Preferences.DefaultChannel); err != nil {
			return fmt.Errorf("preferences.default_channel: %w", err)
		}
	}
	for _, name := range r.DeviceNames() {
		d := r.Devices[name]
		if d.Channels != 0 {
			if _, err := protocol.ParseChannel(d.Channels); err != nil {
				return fmt.Errorf("devices.%s.channels: %w", name, err)
			}
		}
		for presetName, p := range d.Presets {
			if err := p.Validate(); err != nil {
				return fmt.Errorf("devices.%s.presets.%s: %w", name, presetName, err)
			}
		}
	}
	return nil
}

// Validate checks the preset against the mode table and app limits.
func (p *Preset) Validate() error {
	if _, err := protocol.ParseMode(p.Mode); err != nil {
		return err
	}
	if p.Intensity < 0 || p.Intensity > 0xFF {
		return fmt.Errorf("intensity %d out of range 0-255", p.Intensity)
	}
	if p.WorkTime != 0 && (p.WorkTime < 1 || p.WorkTime > 99) {
		return fmt.Errorf("work time %d out of range 1-99", p.WorkTime)
	}
	return nil
}

// Profile returns the configured GATT layout, or the default one.
func (r *Registry) Profile() transport.Profile {
	if r.GATT == nil {
		return transport.DefaultProfile()
	}
	return r.GATT.Normalize()
}

// DefaultChannel returns the preferred channel, falling back to channel one.
func (r *Registry) DefaultChannel() protocol.Channel {
	if r.Preferences == nil {
		return protocol.DefaultChannel
	}
	ch, err := protocol.ParseChannel(r.Preferences.DefaultChannel)
	if err != nil {
		return protocol.DefaultChannel
	}
	return ch
}

// DeviceNames returns the configured device names in sorted order.
func (r *Registry) DeviceNames() []string {
	names := make([]string, 0, len(r.Devices))
	for name := range r.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDevice retrieves device metadata by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{
		Channels: int(protocol.ChannelOne),
		Presets:  make(map[string]*Preset),
	}
	r.Devices[name] = device
	return device
}

// UpdateDeviceLastSeen records a successful session with a device.
func (r *Registry) UpdateDeviceLastSeen(name, firmware string) {
	device := r.EnsureDevice(name)
	device.LastSeen = time.Now()
	if firmware != "" {
		device.Firmware = firmware
	}
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(name, nickname string) {
	device := r.EnsureDevice(name)
	device.Nickname = nickname
}

// SetDeviceChannels records how many outputs a device has.
func (r *Registry) SetDeviceChannels(name string, channels int) error {
	if _, err := protocol.ParseChannel(channels); err != nil {
		return err
	}
	r.EnsureDevice(name).Channels = channels
	return nil
}

// SetPreset stores a named preset for a device after validating it.
func (r *Registry) SetPreset(device, preset string, p *Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d := r.EnsureDevice(device)
	if d.Presets == nil {
		d.Presets = make(map[string]*Preset)
	}
	d.Presets[preset] = p
	return nil
}

// GetPreset looks a preset up on a device.
func (r *Registry) GetPreset(device, preset string) (*Preset, bool) {
	d := r.GetDevice(device)
	if d == nil || d.Presets == nil {
		return nil, false
	}
	p, ok := d.Presets[preset]
	return p, ok
}
