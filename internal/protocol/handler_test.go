package protocol

import (
	"testing"

	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandleNotification(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	var got []Reply
	h := ReplyHandlerFunc(func(_ Result, r Reply) { got = append(got, r) })

	battery, _ := ReplyBattery(42, ChannelOne)
	res := HandleNotification("test", battery, h)
	if !res.Valid {
		t.Fatalf("valid = false (%s)", res.Reason)
	}
	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if b, ok := got[0].(*BatteryReply); !ok || b.Percent != 42 {
		t.Errorf("reply = %v, want battery 42", got[0])
	}

	res = HandleNotification("test", "WgI=", h)
	if res.Valid || res.Reason != ReasonTooShort {
		t.Errorf("got %s, want too-short", res)
	}
	if len(got) != 1 {
		t.Errorf("handler called for invalid frame")
	}

	if n := logs.FilterMessage("Dropping invalid frame from device").Len(); n != 1 {
		t.Errorf("logged %d drop warnings, want 1", n)
	}
	if n := logs.FilterMessage("Decoded device reply").Len(); n != 1 {
		t.Errorf("logged %d decoded replies, want 1", n)
	}
}

func TestHandleNotificationNilHandler(t *testing.T) {
	mode, _ := ReplyMode(ModePulse, ChannelOne)
	if res := HandleNotification("test", mode, nil); !res.Valid {
		t.Errorf("valid = false (%s)", res.Reason)
	}
}
