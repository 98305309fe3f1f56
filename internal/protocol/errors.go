package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionLost       = errors.New("protocol: connection lost")
	ErrMalformedMessage     = errors.New("protocol: malformed message")
	ErrMalformedArray       = errors.New("protocol: malformed array")
	ErrUnknownTag           = errors.New("protocol: unknown tag")
	ErrInvalidAddressOrPort = errors.New("protocol: invalid address or port")
	ErrFrameTooLarge        = errors.New("protocol: frame too large")
	ErrUnsupportedValue     = errors.New("protocol: unsupported value")
	// ErrSourceRead means the local source of a raw stream failed mid-send.
	ErrSourceRead = errors.New("protocol: source read failed")
)

// ConnectionLostError reports that the peer closed the stream or a socket
// read/write failed. Identity names the connection (usually addr:port).
type ConnectionLostError struct {
	Identity string
	Cause    error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("protocol: connection lost (%s)", e.Identity)
	}
	return fmt.Sprintf("protocol: connection lost (%s): %v", e.Identity, e.Cause)
}

func (e *ConnectionLostError) Is(target error) bool {
	return target == ErrConnectionLost
}

func (e *ConnectionLostError) Unwrap() error {
	return e.Cause
}

// InvalidEndpoint builds an ErrInvalidAddressOrPort error for address/port.
func InvalidEndpoint(address string, port int) error {
	return fmt.Errorf("%w: address=%q port=%d", ErrInvalidAddressOrPort, address, port)
}

// Fatal reports whether err leaves a connection unusable. Every protocol
// violation desynchronizes the stream, so only non-protocol errors are not fatal.
func Fatal(err error) bool {
	switch {
	case errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrMalformedMessage),
		errors.Is(err, ErrMalformedArray),
		errors.Is(err, ErrUnknownTag),
		errors.Is(err, ErrSourceRead):
		return true
	default:
		return false
	}
}
