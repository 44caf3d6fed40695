package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/transport"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is a connection to one device channel. It is safe for concurrent
// use.
type Session struct {
	tr          transport.Transport
	profile     transport.Profile
	channel     protocol.Channel
	handler     protocol.ReplyHandler
	now         func() time.Time
	unsubscribe func()

	mu      sync.Mutex
	state   State
	waiters []*waiter
	closed  bool
}

type waiter struct {
	op    protocol.Operation
	reply chan protocol.Reply
}

// Option configures a Session.
type Option func(*Session)

// WithReplyHandler forwards every valid reply to h after the state has
// been updated.
func WithReplyHandler(h protocol.ReplyHandler) Option {
	return func(s *Session) { s.handler = h }
}

// Open subscribes to the device's notifications and returns a session
// addressing channel ch.
func Open(tr transport.Transport, profile transport.Profile, ch protocol.Channel, opts ...Option) (*Session, error) {
	if _, err := protocol.ParseChannel(int(ch)); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	s := &Session{
		tr:      tr,
		profile: profile.Normalize(),
		channel: ch,
		now:     time.Now,
		state: State{
			Intensity: make(map[protocol.Channel]byte),
			Running:   make(map[protocol.Channel]bool),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	cancel, err := tr.Subscribe(s.profile.Service, s.profile.NotifyChar, s.onNotify)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	s.unsubscribe = cancel

	logging.Info("Device session opened",
		zap.String("service", s.profile.Service),
		zap.String("channel", ch.String()),
	)
	return s, nil
}

// Channel returns the channel the session addresses.
func (s *Session) Channel() protocol.Channel {
	return s.channel
}

// State returns a snapshot of everything the device has reported.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Close unsubscribes from notifications and fails pending reads. It does
// not close the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		close(w.reply)
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	logging.Info("Device session closed", zap.String("channel", s.channel.String()))
	return nil
}

// SetIntensity sets the stimulation level of the session channel.
func (s *Session) SetIntensity(ctx context.Context, level byte) error {
	return s.send(ctx, "set intensity", func() (string, error) {
		return protocol.SetIntensity(level, s.channel)
	})
}

// SetMode selects a stimulation program.
func (s *Session) SetMode(ctx context.Context, mode protocol.DeviceMode) error {
	if !mode.Valid() {
		return fmt.Errorf("set mode: unknown mode %s", mode)
	}
	return s.send(ctx, "set mode", func() (string, error) {
		return protocol.SetMode(mode, s.channel)
	})
}

// StartTherapy starts stimulation on the session channel.
func (s *Session) StartTherapy(ctx context.Context) error {
	return s.send(ctx, "start therapy", func() (string, error) {
		return protocol.StartTherapy(s.channel)
	})
}

// StopTherapy stops stimulation on the session channel.
func (s *Session) StopTherapy(ctx context.Context) error {
	return s.send(ctx, "stop therapy", func() (string, error) {
		return protocol.StopTherapy(s.channel)
	})
}

// PowerOff switches the device off. The device does not answer.
func (s *Session) PowerOff(ctx context.Context) error {
	return s.send(ctx, "power off", func() (string, error) {
		return protocol.PowerOff(s.channel)
	})
}

// SetWorkTime sets the session length. minutes is clamped to the 1-99
// range the companion app allows.
func (s *Session) SetWorkTime(ctx context.Context, minutes int) error {
	clamped := ClampWorkTime(minutes)
	if int(clamped) != minutes {
		logging.Debug("Work time clamped",
			zap.Int("requested", minutes),
			zap.Uint16("sent", clamped),
		)
	}
	return s.send(ctx, "set work time", func() (string, error) {
		return protocol.SetWorkTime(clamped, s.channel)
	})
}

// SetClimbingTime sets the ramp-up time of a pulse cycle.
func (s *Session) SetClimbingTime(ctx context.Context, value byte) error {
	return s.send(ctx, "set climbing time", func() (string, error) {
		return protocol.SetClimbingTime(value, s.channel)
	})
}

// SetPeakTime sets the hold time of a pulse cycle.
func (s *Session) SetPeakTime(ctx context.Context, value byte) error {
	return s.send(ctx, "set peak time", func() (string, error) {
		return protocol.SetPeakTime(value, s.channel)
	})
}

// SetStopTime sets the rest time between pulse cycles.
func (s *Session) SetStopTime(ctx context.Context, value byte) error {
	return s.send(ctx, "set stop time", func() (string, error) {
		return protocol.SetStopTime(value, s.channel)
	})
}

// RequestDeviceInfo asks for the full info block. Replies arrive
// asynchronously and update State.
func (s *Session) RequestDeviceInfo(ctx context.Context) error {
	return s.send(ctx, "get device info", func() (string, error) {
		return protocol.GetDeviceInfo(s.channel)
	})
}

// ReadBattery queries the battery and waits for the report.
func (s *Session) ReadBattery(ctx context.Context) (byte, error) {
	reply, err := s.Request(ctx, protocol.OpBatteryReport, func() (string, error) {
		return protocol.GetBattery(s.channel, 0x00)
	})
	if err != nil {
		return 0, err
	}
	return reply.(*protocol.BatteryReply).Percent, nil
}

// ReadVersion queries the firmware version and waits for the report.
func (s *Session) ReadVersion(ctx context.Context) (major, minor byte, err error) {
	reply, err := s.Request(ctx, protocol.OpVersionReport, func() (string, error) {
		return protocol.GetVersion(s.channel)
	})
	if err != nil {
		return 0, 0, err
	}
	v := reply.(*protocol.VersionReply)
	return v.Major, v.Minor, nil
}

// ReadIntensity queries the channel level and waits for the report.
func (s *Session) ReadIntensity(ctx context.Context) (byte, error) {
	reply, err := s.Request(ctx, protocol.OpIntensityReport, func() (string, error) {
		return protocol.GetIntensity(s.channel)
	})
	if err != nil {
		return 0, err
	}
	return reply.(*protocol.IntensityReply).Level, nil
}

// ReadMode queries the active program and waits for the report.
func (s *Session) ReadMode(ctx context.Context) (protocol.DeviceMode, error) {
	reply, err := s.Request(ctx, protocol.OpModeReport, func() (string, error) {
		return protocol.GetMode(s.channel)
	})
	if err != nil {
		return 0, err
	}
	return reply.(*protocol.ModeReply).Mode, nil
}

// Request writes the frame produced by build and waits for the first reply
// classified as want. The waiter is registered before the write so replies
// delivered synchronously are not missed.
func (s *Session) Request(ctx context.Context, want protocol.Operation, build func() (string, error)) (protocol.Reply, error) {
	w, err := s.expect(want)
	if err != nil {
		return nil, err
	}
	defer s.forget(w)

	if err := s.send(ctx, want.String(), build); err != nil {
		return nil, err
	}
	return s.wait(ctx, w)
}

// Await blocks until the device reports op or ctx is done.
func (s *Session) Await(ctx context.Context, op protocol.Operation) (protocol.Reply, error) {
	w, err := s.expect(op)
	if err != nil {
		return nil, err
	}
	defer s.forget(w)
	return s.wait(ctx, w)
}

// Write sends a pre-encoded frame to the device.
func (s *Session) Write(ctx context.Context, frame string) error {
	return s.send(ctx, "write", func() (string, error) { return frame, nil })
}

func (s *Session) send(ctx context.Context, what string, build func() (string, error)) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	frame, err := build()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	if err := s.tr.Write(ctx, s.profile.Service, s.profile.WriteChar, frame); err != nil {
		logging.Error("Failed to write frame",
			zap.String("request", what),
			zap.String("frame", frame),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", what, err)
	}

	logging.Debug("Frame written",
		zap.String("request", what),
		zap.String("frame", frame),
	)
	return nil
}

func (s *Session) expect(op protocol.Operation) (*waiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	w := &waiter{op: op, reply: make(chan protocol.Reply, 1)}
	s.waiters = append(s.waiters, w)
	return w, nil
}

func (s *Session) forget(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.waiters {
		if cur == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *Session) wait(ctx context.Context, w *waiter) (protocol.Reply, error) {
	select {
	case reply, ok := <-w.reply:
		if !ok {
			return nil, ErrSessionClosed
		}
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", w.op, ctx.Err())
	}
}

// onNotify runs on the transport's delivery goroutine.
func (s *Session) onNotify(payload string) {
	res := protocol.HandleNotification(s.profile.NotifyChar, payload, s)
	if !res.Valid {
		s.mu.Lock()
		s.state.InvalidFrames++
		s.mu.Unlock()
	}
}

// HandleReply implements protocol.ReplyHandler.
func (s *Session) HandleReply(res protocol.Result, reply protocol.Reply) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state.apply(reply, s.now())

	op := reply.Operation()
	remaining := s.waiters[:0]
	var matched []*waiter
	for _, w := range s.waiters {
		if w.op == op && onChannel(reply, s.channel) {
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	s.waiters = remaining
	s.mu.Unlock()

	for _, w := range matched {
		w.reply <- reply
	}
	if s.handler != nil {
		s.handler.HandleReply(res, reply)
	}
}

// onChannel reports whether reply belongs to ch. Replies that carry no
// channel byte match any channel.
func onChannel(reply protocol.Reply, ch protocol.Channel) bool {
	switch r := reply.(type) {
	case *protocol.IntensityReply:
		return r.Channel == ch
	case *protocol.DeviceStatusReply:
		return r.Channel == ch
	default:
		return true
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
