package protocol

// Command catalog: stateless builders mapping an intent to a
// (command, payload, channel) triple and running it through the encoder.
// Every builder returns the base64 frame ready for the transport.

// SetIntensity sets the stimulation level of a channel.
// Payload: [channel, level]
func SetIntensity(level byte, ch Channel) (string, error) {
	return Encode(CmdSetIntensity, []byte{byte(ch), level}, ch)
}

// GetIntensity queries the current level.
func GetIntensity(ch Channel) (string, error) {
	return Encode(CmdGetIntensity, nil, ch)
}

// SetMode selects a stimulation program.
// Payload: [mode]
func SetMode(mode DeviceMode, ch Channel) (string, error) {
	return Encode(CmdSetMode, []byte{byte(mode)}, ch)
}

// GetMode queries the active program.
func GetMode(ch Channel) (string, error) {
	return Encode(CmdGetMode, nil, ch)
}

// StartTherapy starts stimulation on a channel. Start and stop share the
// DEVICE_STATUS command byte and differ only in the action byte.
// Payload: [channel, 0x01]
func StartTherapy(ch Channel) (string, error) {
	return Encode(CmdDeviceStatus, []byte{byte(ch), byte(TherapyStart)}, ch)
}

// StopTherapy stops stimulation on a channel.
// Payload: [channel, 0x02]
func StopTherapy(ch Channel) (string, error) {
	return Encode(CmdDeviceStatus, []byte{byte(ch), byte(TherapyStop)}, ch)
}

// PowerOff asks the device to switch off. It reuses 0x02 with no payload.
func PowerOff(ch Channel) (string, error) {
	return Encode(CmdPowerOff, nil, ch)
}

// GetBattery queries the battery level. value is echoed by the firmware.
// Payload: [value]
func GetBattery(ch Channel, value byte) (string, error) {
	return Encode(CmdGetBattery, []byte{value}, ch)
}

// GetVersion queries the firmware version. The encoder sends channel 0x00
// whatever ch is.
// Payload: [0x00]
func GetVersion(ch Channel) (string, error) {
	return Encode(CmdGetVersion, []byte{0x00}, ch)
}

// SetWorkTime sets the session length in minutes, split big-endian.
// Range checks (1-99 in the app) belong to the caller.
// Payload: [channel, hi, lo]
func SetWorkTime(minutes uint16, ch Channel) (string, error) {
	hi, lo := splitUint16(minutes)
	return Encode(CmdSetWorkTime, []byte{byte(ch), hi, lo}, ch)
}

// SetClimbingTime sets the ramp-up time of a pulse cycle.
// Payload: [value]
func SetClimbingTime(value byte, ch Channel) (string, error) {
	return Encode(CmdSetClimbingTime, []byte{value}, ch)
}

// SetPeakTime sets how long a pulse cycle holds its peak.
// Payload: [value]
func SetPeakTime(value byte, ch Channel) (string, error) {
	return Encode(CmdSetPeakTime, []byte{value}, ch)
}

// SetStopTime sets the rest time between pulse cycles.
// Payload: [value]
func SetStopTime(value byte, ch Channel) (string, error) {
	return Encode(CmdSetStopTime, []byte{value}, ch)
}

// GetDeviceInfo asks for the device info block.
// Payload: [0x00]
func GetDeviceInfo(ch Channel) (string, error) {
	return Encode(CmdGetDeviceInfo, []byte{0x00}, ch)
}

// Reply builders produce device-to-app frames the way the firmware does. All
// but ReplyVersion nest a sub-command byte under GET_DEVICE_INFO. They exist
// for tests and the simulator.

// ReplyIntensity reports a channel's level.
// Payload: [0x03, channel, level]
func ReplyIntensity(level byte, ch Channel) (string, error) {
	return encode(DeviceToApp, CmdGetDeviceInfo, []byte{byte(SubIntensity), byte(ch), level}, ch)
}

// ReplyMode reports the active program.
// Payload: [0x05, mode]
func ReplyMode(mode DeviceMode, ch Channel) (string, error) {
	return encode(DeviceToApp, CmdGetDeviceInfo, []byte{byte(SubMode), byte(mode)}, ch)
}

// ReplyWorkTime reports the remaining session minutes.
// Payload: [0x08, hi, lo]
func ReplyWorkTime(minutes uint16, ch Channel) (string, error) {
	hi, lo := splitUint16(minutes)
	return encode(DeviceToApp, CmdGetDeviceInfo, []byte{byte(SubWorkTime), hi, lo}, ch)
}

// ReplyDeviceStatus reports whether a channel is running.
// Payload: [0x02, channel, status]
func ReplyDeviceStatus(status TherapyAction, ch Channel) (string, error) {
	return encode(DeviceToApp, CmdGetDeviceInfo, []byte{byte(SubDeviceStatus), byte(ch), byte(status)}, ch)
}

// ReplyBattery reports the battery percentage.
// Payload: [0x07, percent]
func ReplyBattery(percent byte, ch Channel) (string, error) {
	return encode(DeviceToApp, CmdGetDeviceInfo, []byte{byte(SubBattery), percent}, ch)
}

// ReplyVersion answers GET_VERSION.
// Payload: [major, minor]
func ReplyVersion(major, minor byte, ch Channel) (string, error) {
	return encode(DeviceToApp, CmdGetVersion, []byte{major, minor}, ch)
}

func splitUint16(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// Entry describes one named catalog operation.
type Entry struct {
	Name      string
	Command   CommandType
	Direction Direction
	Payload   string
}

// Catalog lists the named operations in wire order, for help output.
func Catalog() []Entry {
	return []Entry{
		{"get-version", CmdGetVersion, AppToDevice, "[0x00], channel forced 0x00"},
		{"start-therapy", CmdDeviceStatus, AppToDevice, "[channel, 0x01]"},
		{"stop-therapy", CmdDeviceStatus, AppToDevice, "[channel, 0x02]"},
		{"power-off", CmdPowerOff, AppToDevice, "[]"},
		{"set-intensity", CmdSetIntensity, AppToDevice, "[channel, level]"},
		{"get-intensity", CmdGetIntensity, AppToDevice, "[]"},
		{"set-mode", CmdSetMode, AppToDevice, "[mode]"},
		{"get-mode", CmdGetMode, AppToDevice, "[]"},
		{"get-battery", CmdGetBattery, AppToDevice, "[value]"},
		{"set-work-time", CmdSetWorkTime, AppToDevice, "[channel, hi, lo]"},
		{"set-climbing-time", CmdSetClimbingTime, AppToDevice, "[value]"},
		{"set-peak-time", CmdSetPeakTime, AppToDevice, "[value]"},
		{"set-stop-time", CmdSetStopTime, AppToDevice, "[value]"},
		{"get-device-info", CmdGetDeviceInfo, AppToDevice, "[0x00]"},
		{"reply-version", CmdGetVersion, DeviceToApp, "[major, minor]"},
		{"reply-device-status", CmdGetDeviceInfo, DeviceToApp, "[0x02, channel, status]"},
		{"reply-intensity", CmdGetDeviceInfo, DeviceToApp, "[0x03, channel, level]"},
		{"reply-mode", CmdGetDeviceInfo, DeviceToApp, "[0x05, mode]"},
		{"reply-battery", CmdGetDeviceInfo, DeviceToApp, "[0x07, percent]"},
		{"reply-work-time", CmdGetDeviceInfo, DeviceToApp, "[0x08, hi, lo]"},
	}
}
