package protocol

import (
	"encoding/hex"

	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
)

// ReplyHandler receives typed replies from HandleNotification.
type ReplyHandler interface {
	HandleReply(res Result, reply Reply)
}

// ReplyHandlerFunc adapts a function to ReplyHandler.
type ReplyHandlerFunc func(res Result, reply Reply)

func (f ReplyHandlerFunc) HandleReply(res Result, reply Reply) { f(res, reply) }

// HandleNotification decodes one notification from the device, logs it and
// hands valid replies to h. It returns the decode result so callers can
// count failures. Corrupt input is logged and dropped, never returned as an
// error.
func HandleNotification(source string, payload string, h ReplyHandler) Result {
	res := Decode(payload)
	if !res.Valid {
		logging.Warn("Dropping invalid frame from device",
			zap.String("source", source),
			zap.String("reason", res.Reason.String()),
			zap.String("direction", res.Direction.String()),
			zap.String("channel", res.Channel.String()),
			zap.String("command", res.Command.String()),
		)
		return res
	}

	reply, err := ParseReply(res)
	if err != nil {
		logging.Warn("Failed to interpret reply",
			zap.String("source", source),
			zap.String("command", res.Command.String()),
			zap.String("data_hex", hex.EncodeToString(res.Data)),
			zap.Error(err),
		)
		return res
	}

	logging.Info("Decoded device reply",
		zap.String("source", source),
		zap.String("operation", reply.Operation().String()),
		zap.String("reply", reply.String()),
	)

	if h != nil {
		h.HandleReply(res, reply)
	}
	return res
}
