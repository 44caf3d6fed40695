package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against an *EncodingError.
var (
	ErrPayloadTooLong = errors.New("payload too long")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidChannel = errors.New("invalid channel")
)

// EncodingErrorKind is the category of an encode failure.
type EncodingErrorKind int

const (
	KindPayloadTooLong EncodingErrorKind = iota
	KindUnknownCommand
	KindInvalidChannel
)

// String returns a human-readable name for the error kind
func (k EncodingErrorKind) String() string {
	switch k {
	case KindPayloadTooLong:
		return "payload too long"
	case KindUnknownCommand:
		return "unknown command"
	case KindInvalidChannel:
		return "invalid channel"
	default:
		return fmt.Sprintf("EncodingErrorKind(%d)", int(k))
	}
}

// EncodingError is returned when the caller passes arguments the encoder
// cannot represent on the wire. These are programmer errors; the encoder
// never degrades them into a partially built frame.
type EncodingError struct {
	Kind   EncodingErrorKind
	Detail string
}

// Error implements the error interface
func (e *EncodingError) Error() string {
	if e.Detail == "" {
		return "encode: " + e.Kind.String()
	}
	return fmt.Sprintf("encode: %s: %s", e.Kind, e.Detail)
}

// Unwrap maps the kind to its sentinel so errors.Is works.
func (e *EncodingError) Unwrap() error {
	switch e.Kind {
	case KindPayloadTooLong:
		return ErrPayloadTooLong
	case KindUnknownCommand:
		return ErrUnknownCommand
	case KindInvalidChannel:
		return ErrInvalidChannel
	default:
		return nil
	}
}

// IsEncodingError returns true if err is or wraps an *EncodingError.
func IsEncodingError(err error) bool {
	var encErr *EncodingError
	return errors.As(err, &encErr)
}

func newEncodingError(kind EncodingErrorKind, detail string) *EncodingError {
	return &EncodingError{Kind: kind, Detail: detail}
}
