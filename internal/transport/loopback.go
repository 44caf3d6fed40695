package transport

import (
	"context"
	"sync"

	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
)

// Loopback connects a client to an in-process Peripheral. Notifications are
// delivered synchronously, before Write returns.
type Loopback struct {
	profile    Profile
	peripheral Peripheral
	subs       subscribers

	mu     sync.Mutex
	closed bool
}

// NewLoopback wires a peripheral behind the given GATT profile.
func NewLoopback(profile Profile, p Peripheral) *Loopback {
	return &Loopback{
		profile:    profile.Normalize(),
		peripheral: p,
	}
}

// Write implements Transport
func (l *Loopback) Write(ctx context.Context, serviceID, characteristicID, payload string) error {
	if l.isClosed() {
		return &TransportError{Op: "write", Characteristic: characteristicID, Err: ErrClosed}
	}
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "write", Characteristic: characteristicID, Err: err}
	}
	if !SameID(serviceID, l.profile.Service) || !SameID(characteristicID, l.profile.WriteChar) {
		return &TransportError{Op: "write", Characteristic: characteristicID, Err: ErrUnknownCharacteristic}
	}

	logging.LogBridgeMessage("loopback", "sent", "write", characteristicID, payload)

	notify := func(value string) {
		if l.isClosed() {
			return
		}
		logging.LogBridgeMessage("loopback", "received", "notify", l.profile.NotifyChar, value)
		if n := l.subs.dispatch(l.profile.Service, l.profile.NotifyChar, value); n == 0 {
			logging.Debug("Notification dropped, no subscribers",
				zap.String("characteristic", l.profile.NotifyChar),
			)
		}
	}

	if err := l.peripheral.HandleWrite(ctx, payload, notify); err != nil {
		return &TransportError{Op: "write", Characteristic: characteristicID, Err: err}
	}
	return nil
}

// Subscribe implements Transport
func (l *Loopback) Subscribe(serviceID, characteristicID string, fn func(string)) (func(), error) {
	if l.isClosed() {
		return nil, &TransportError{Op: "subscribe", Characteristic: characteristicID, Err: ErrClosed}
	}
	if !SameID(serviceID, l.profile.Service) || !SameID(characteristicID, l.profile.NotifyChar) {
		return nil, &TransportError{Op: "subscribe", Characteristic: characteristicID, Err: ErrUnknownCharacteristic}
	}
	return l.subs.add(serviceID, characteristicID, fn), nil
}

// Close implements Transport
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.subs.clear()
	return nil
}

func (l *Loopback) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
