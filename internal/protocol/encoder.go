package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/muurk/emslink/internal/logging"
)

// Encode builds an app-to-device frame and returns it base64 encoded, the
// form the BLE write primitive accepts.
//
// Frame Structure:
//
//	[0]      0x5A       Header (FrameHeader)
//	[1]      0x01       Direction (AppToDevice)
//	[2]      channel    Channel, forced to 0x00 for GET_VERSION
//	[3]      command    Command code
//	[4]      N          Payload length
//	[5..5+N) payload    Payload bytes
//	[5+N]    checksum   Sum of bytes [0, 5+N) mod 256
//
// Returns an *EncodingError if payload exceeds MaxPayloadSize or command or
// channel fall outside their enumerations.
func Encode(cmd CommandType, payload []byte, ch Channel) (string, error) {
	return encode(AppToDevice, cmd, payload, ch)
}

// EncodeFrame is Encode without the base64 step. The returned Payload is a
// fresh copy, never the caller's slice and never shared between frames. It
// belongs to the frame: treat it as read-only, since Length and Checksum were
// computed over it.
func EncodeFrame(cmd CommandType, payload []byte, ch Channel) (Frame, error) {
	return buildFrame(AppToDevice, cmd, payload, ch)
}

// EncodeToBase64 wraps raw frame bytes for the transport.
func EncodeToBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func encode(dir Direction, cmd CommandType, payload []byte, ch Channel) (string, error) {
	frame, err := buildFrame(dir, cmd, payload, ch)
	if err != nil {
		return "", err
	}

	raw := frame.Bytes()
	encoded := EncodeToBase64(raw)
	logging.LogFrame("Encoded frame", raw, encoded)

	return encoded, nil
}

// buildFrame validates the arguments and assembles a Frame value.
func buildFrame(dir Direction, cmd CommandType, payload []byte, ch Channel) (Frame, error) {
	if len(payload) > MaxPayloadSize {
		return Frame{}, newEncodingError(KindPayloadTooLong,
			fmt.Sprintf("%d bytes (max %d)", len(payload), MaxPayloadSize))
	}
	if !cmd.Known() {
		return Frame{}, newEncodingError(KindUnknownCommand, fmt.Sprintf("0x%02x", byte(cmd)))
	}
	if !ch.Valid() {
		return Frame{}, newEncodingError(KindInvalidChannel, fmt.Sprintf("0x%02x", byte(ch)))
	}

	wireChannel := ch
	if cmd == CmdGetVersion {
		// Firmware expects channel 0 on version requests.
		wireChannel = ChannelNone
	}

	body := make([]byte, len(payload))
	copy(body, payload)

	frame := Frame{
		Header:    FrameHeader,
		Direction: dir,
		Channel:   wireChannel,
		Command:   cmd,
		Length:    byte(len(body)),
		Payload:   body,
	}

	raw := frame.Bytes()
	frame.Checksum = Checksum(raw[:len(raw)-1])

	return frame, nil
}
