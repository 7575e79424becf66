package devicelink

import (
	"errors"
	"fmt"
)

var (
	// ErrPortClosed is wrapped by TransportError when the link was closed.
	ErrPortClosed = errors.New("serial port closed")
	// ErrReadTimeout is wrapped by TransportError when no response line arrived in time.
	ErrReadTimeout = errors.New("timed out waiting for response")
	// ErrShortWrite is wrapped by TransportError when the port accepted fewer bytes than sent.
	ErrShortWrite = errors.New("short write to serial port")
	// ErrLineTooLong is wrapped by TransportError when a response exceeds MaxLineLength.
	ErrLineTooLong = errors.New("response line too long")
)

// TransportError reports a failed open, flush, write or read on the port.
// It is fatal to the current operation and never retried.
type TransportError struct {
	Op      string
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("devicelink %s %q: %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("devicelink %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandshakeError reports that the device on the port did not identify as
// the expected controller. Got holds the payload it returned instead; Err is
// set when nothing came back at all.
type HandshakeError struct {
	Want string
	Got  string
	Err  error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("devicelink handshake: no identity returned, want %q: %v", e.Want, e.Err)
	}
	return fmt.Sprintf("devicelink handshake: device identified as %q, want %q", e.Got, e.Want)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
