package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Default GATT identifiers of the device's serial-style service. The codec
// never sees these; they belong to whoever drives the transport.
const (
	DefaultServiceUUID    = "0000fff0-0000-1000-8000-00805f9b34fb"
	DefaultNotifyCharUUID = "0000fff1-0000-1000-8000-00805f9b34fb"
	DefaultWriteCharUUID  = "0000fff2-0000-1000-8000-00805f9b34fb"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrUnknownCharacteristic is returned for writes to a characteristic
	// the peripheral does not expose.
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
)

// Transport is the BLE capability the device session drives. Payloads are
// base64 text in both directions.
type Transport interface {
	// Write sends one frame and returns once the peripheral accepted it.
	Write(ctx context.Context, serviceID, characteristicID, payload string) error

	// Subscribe registers fn for notifications on a characteristic. The
	// returned cancel func removes the subscription.
	Subscribe(serviceID, characteristicID string, fn func(payload string)) (cancel func(), err error)

	Close() error
}

// Peripheral is the device side of a Loopback transport.
type Peripheral interface {
	// HandleWrite processes one written frame and may emit any number of
	// notifications through notify before returning.
	HandleWrite(ctx context.Context, payload string, notify func(payload string)) error
}

// Profile names the service and characteristics used to talk to a device.
type Profile struct {
	Service    string `yaml:"service"`
	WriteChar  string `yaml:"write_characteristic"`
	NotifyChar string `yaml:"notify_characteristic"`
}

// DefaultProfile returns the stock GATT layout.
func DefaultProfile() Profile {
	return Profile{
		Service:    DefaultServiceUUID,
		WriteChar:  DefaultWriteCharUUID,
		NotifyChar: DefaultNotifyCharUUID,
	}
}

// Validate checks every identifier parses as a UUID.
func (p Profile) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"service", p.Service},
		{"write characteristic", p.WriteChar},
		{"notify characteristic", p.NotifyChar},
	}
	for _, f := range fields {
		if _, err := uuid.Parse(f.value); err != nil {
			return fmt.Errorf("invalid %s UUID %q: %w", f.name, f.value, err)
		}
	}
	return nil
}

// Normalize lower-cases the identifiers into canonical UUID form.
func (p Profile) Normalize() Profile {
	return Profile{
		Service:    normalizeID(p.Service),
		WriteChar:  normalizeID(p.WriteChar),
		NotifyChar: normalizeID(p.NotifyChar),
	}
}

// SameID compares two GATT identifiers ignoring case and formatting.
func SameID(a, b string) bool {
	return normalizeID(a) == normalizeID(b)
}

func normalizeID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return strings.ToLower(id)
}

// TransportError describes a failed transport operation.
type TransportError struct {
	Op             string // "write", "subscribe", "dial"
	Characteristic string
	Err            error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Characteristic != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Characteristic, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransportError) Unwrap() error {
	return e.Err
}
