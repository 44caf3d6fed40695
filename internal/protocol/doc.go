// Package protocol implements the wire codec for EMS massage devices.
//
// This package builds outgoing command frames, computes and verifies
// checksums, parses response frames, and maps between typed domain values
// (commands, channels, modes) and raw bytes. It performs no I/O.
//
// # Frame Format
//
//	offset 0       : header        = 0x5A
//	offset 1       : direction     (0x01 app->device, 0x02 device->app)
//	offset 2       : channel       (0x01/0x02/0x04), 0x00 for GET_VERSION
//	offset 3       : command       (CommandType)
//	offset 4       : payload length N (0-255)
//	offset 5..5+N-1: payload bytes
//	offset 5+N     : checksum = sum(bytes[0..5+N-1]) mod 256
//
// The whole frame is base64 encoded at the transport boundary in both
// directions, so Encode returns a string and Decode takes one.
//
// # Usage Example - Sending
//
//	frame, err := protocol.SetIntensity(8, protocol.ChannelOne)
//	if err != nil {
//	    return err // *EncodingError, a caller bug
//	}
//	err = t.Write(ctx, transport.ServiceUUID, transport.WriteCharUUID, frame)
//
// # Usage Example - Receiving
//
//	res := protocol.Decode(notification)
//	if !res.Valid {
//	    // res.Reason says why; the link is lossy, carry on
//	    return
//	}
//	reply, err := protocol.ParseReply(res)
//
// # Overlapping Command Codes
//
// The firmware reuses 0x02 for POWER_OFF, DEVICE_STATUS and start/stop
// therapy, and nests every reply under GET_DEVICE_INFO with a leading
// sub-command byte. Classify resolves a (direction, command, payload)
// triple to an Operation; the numbering itself is left untouched.
//
// # Error Handling
//
// Encoding errors are returned as *EncodingError and wrap ErrPayloadTooLong,
// ErrUnknownCommand or ErrInvalidChannel. Decoding never returns an error:
// Result.Valid and Result.Reason carry the outcome.
//
// # Thread Safety
//
// Every function in this package is stateless and safe for concurrent use.
package protocol
