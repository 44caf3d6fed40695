package protocol

import (
	"encoding/hex"
	"fmt"
)

// Frame layout constants
const (
	// FrameHeader is the sentinel byte at offset 0 of every frame
	FrameHeader = 0x5A

	// HeaderSize is header + direction + channel + command + length
	HeaderSize = 5

	// FrameOverhead is every byte that is not payload (header fields + checksum)
	FrameOverhead = HeaderSize + 1

	// MinFrameSize is the size of a frame with an empty payload
	MinFrameSize = FrameOverhead

	// MaxPayloadSize is the largest payload the one-byte length field can describe
	MaxPayloadSize = 255
)

// Byte offsets within a frame
const (
	offsetHeader    = 0
	offsetDirection = 1
	offsetChannel   = 2
	offsetCommand   = 3
	offsetLength    = 4
	offsetPayload   = 5
)

// Direction tells which way a frame travels.
type Direction byte

const (
	AppToDevice Direction = 0x01
	DeviceToApp Direction = 0x02
)

func (d Direction) String() string {
	switch d {
	case AppToDevice:
		return "app->device"
	case DeviceToApp:
		return "device->app"
	default:
		return fmt.Sprintf("Direction(0x%02x)", byte(d))
	}
}

// Valid reports whether d is one of the enumerated directions.
func (d Direction) Valid() bool {
	return d == AppToDevice || d == DeviceToApp
}

// Channel selects the physical stimulation output a command addresses.
// The numeric value doubles as the channel count of the device (1/2/4-way).
type Channel byte

const (
	// ChannelNone only appears on the wire, in GET_VERSION frames.
	ChannelNone Channel = 0x00
	ChannelOne  Channel = 0x01
	ChannelTwo  Channel = 0x02
	ChannelFour Channel = 0x04

	// DefaultChannel is used when a caller does not pick one.
	DefaultChannel = ChannelOne
)

func (c Channel) String() string {
	switch c {
	case ChannelNone:
		return "none"
	case ChannelOne:
		return "CH1"
	case ChannelTwo:
		return "CH2"
	case ChannelFour:
		return "CH4"
	default:
		return fmt.Sprintf("Channel(0x%02x)", byte(c))
	}
}

// Valid reports whether c can be passed to the encoder.
func (c Channel) Valid() bool {
	return c == ChannelOne || c == ChannelTwo || c == ChannelFour
}

// ParseChannel maps 1, 2 or 4 to a Channel.
func ParseChannel(n int) (Channel, error) {
	c := Channel(n)
	if n < 0 || n > 0xFF || !c.Valid() {
		return ChannelNone, newEncodingError(KindInvalidChannel, fmt.Sprintf("channel %d is not one of 1, 2, 4", n))
	}
	return c, nil
}

// Frame is one complete protocol message, header through checksum.
// Frames are values: the encoder returns a fresh one and nothing mutates it
// afterwards. Payload is owned by the frame; callers must not modify it.
type Frame struct {
	Header    byte
	Direction Direction
	Channel   Channel
	Command   CommandType
	Length    byte
	Payload   []byte
	Checksum  byte
}

// Size returns the total wire size of the frame.
func (f Frame) Size() int {
	return FrameOverhead + len(f.Payload)
}

// Bytes serialises the frame to its wire form.
func (f Frame) Bytes() []byte {
	buf := make([]byte, 0, f.Size())
	buf = append(buf, f.Header, byte(f.Direction), byte(f.Channel), byte(f.Command), f.Length)
	buf = append(buf, f.Payload...)
	return append(buf, f.Checksum)
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{dir=%s, ch=%s, cmd=%s, len=%d, payload=%s, sum=0x%02x}",
		f.Direction, f.Channel, f.Command, f.Length, hex.EncodeToString(f.Payload), f.Checksum)
}
