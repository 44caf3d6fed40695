package protocol

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
)

// Reason says why a decoded frame is not valid.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonBadBase64
	ReasonTooShort
	ReasonBadHeader
	ReasonLengthMismatch
	ReasonBadChecksum
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonBadBase64:
		return "bad-base64"
	case ReasonTooShort:
		return "too-short"
	case ReasonBadHeader:
		return "bad-header"
	case ReasonLengthMismatch:
		return "length-mismatch"
	case ReasonBadChecksum:
		return "bad-checksum"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Result is what the decoder extracted from a response.
//
// Decoding never fails with an error. Device responses arrive over a lossy
// radio link, so every malformed input yields a Result with Valid false and
// a Reason. What survives depends on how far parsing got:
//
//   - bad base64, too short, bad header: sentinel values
//     (DeviceToApp, DefaultChannel, CmdUnknown, empty Data)
//   - length mismatch: Direction and Channel as read, Command is CmdUnknown
//   - bad checksum: every field as read, only Valid is false
type Result struct {
	Direction Direction
	Channel   Channel
	Command   CommandType
	Data      []byte
	Valid     bool
	Reason    Reason
}

// Operation classifies the result. Invalid results are OpUnknown.
func (r Result) Operation() Operation {
	if !r.Valid {
		return OpUnknown
	}
	return Classify(r.Direction, r.Command, r.Data)
}

// String returns a debug representation of the result
func (r Result) String() string {
	return fmt.Sprintf("Result{valid=%v, reason=%s, dir=%s, ch=%s, cmd=%s, data=%s}",
		r.Valid, r.Reason, r.Direction, r.Channel, r.Command, hex.EncodeToString(r.Data))
}

func invalidResult(reason Reason) Result {
	return Result{
		Direction: DeviceToApp,
		Channel:   DefaultChannel,
		Command:   CmdUnknown,
		Data:      []byte{},
		Reason:    reason,
	}
}

// DecodeBase64 unwraps transport text into raw frame bytes without
// parsing them.
func DecodeBase64(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// Decode parses base64 text received from the transport.
func Decode(text string) Result {
	raw, err := DecodeBase64(text)
	if err != nil {
		logging.Debug("Discarding response: base64 decode failed",
			zap.Int("text_length", len(text)),
			zap.Error(err),
		)
		return invalidResult(ReasonBadBase64)
	}
	return DecodeBytes(raw)
}

// DecodeBytes parses a raw frame. The returned Data never aliases raw.
func DecodeBytes(raw []byte) Result {
	res := decodeBytes(raw)
	if !res.Valid {
		logging.Debug("Invalid frame",
			zap.String("reason", res.Reason.String()),
			zap.Int("length", len(raw)),
			zap.String("hex", hex.EncodeToString(raw)),
		)
	}
	return res
}

func decodeBytes(raw []byte) Result {
	if len(raw) < MinFrameSize {
		return invalidResult(ReasonTooShort)
	}
	if raw[offsetHeader] != FrameHeader {
		return invalidResult(ReasonBadHeader)
	}

	res := Result{
		Direction: Direction(raw[offsetDirection]),
		Channel:   Channel(raw[offsetChannel]),
		Command:   CommandType(raw[offsetCommand]),
		Data:      []byte{},
	}
	declared := int(raw[offsetLength])

	if len(raw) != FrameOverhead+declared {
		res.Command = CmdUnknown
		res.Reason = ReasonLengthMismatch
		return res
	}

	data := make([]byte, declared)
	copy(data, raw[offsetPayload:offsetPayload+declared])
	res.Data = data

	if !VerifyChecksum(raw) {
		res.Reason = ReasonBadChecksum
		return res
	}

	res.Valid = true
	return res
}
