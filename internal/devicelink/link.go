// Package devicelink is the line-oriented request/response transport to the
// lens/laser controller. Commands are single text lines terminated by '\n';
// a query is answered with exactly one line terminated by "\r\n".
package devicelink

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/scopecam/internal/monitoring"
)

// DefaultIdentity is what the controller firmware answers to the identify query.
const DefaultIdentity = "cheesoSPIM"

// IdentifyCommand asks the controller for its identity string.
const IdentifyCommand = "Y"

// MaxLineLength caps a single response line.
const MaxLineLength = 4096

var logf = monitoring.Component("devicelink")

// CommandRecord describes one completed exchange. It is handed to the
// observer after every Send, successful or not.
type CommandRecord struct {
	Command  string
	Response string
	Expected bool
	Err      error
	Started  time.Time
	Duration time.Duration
}

// LinkOptions configures a Link.
type LinkOptions struct {
	// Identity is the expected answer to the identify query. Empty means
	// DefaultIdentity.
	Identity string
	// Observer, when set, is called synchronously after every exchange.
	Observer func(CommandRecord)
	// Verbose logs every command and response.
	Verbose bool
}

// Sender is the part of a Link the command set depends on.
type Sender interface {
	Send(command string, expectResponse bool) (string, error)
}

// Link owns exclusive access to one serial port. Calls are serialised: a
// command is never written before the previous exchange has completed.
type Link struct {
	port     SerialPorter
	identity string
	observer func(CommandRecord)
	verbose  bool

	mu     sync.Mutex
	closed bool
}

// New wraps port and performs the identification handshake. If the device
// does not answer with the expected identity the port is closed and a
// *HandshakeError is returned.
func New(port SerialPorter, opts LinkOptions) (*Link, error) {
	want := opts.Identity
	if want == "" {
		want = DefaultIdentity
	}
	l := &Link{
		port:     port,
		observer: opts.Observer,
		verbose:  opts.Verbose,
	}

	got, err := l.Send(IdentifyCommand, true)
	if err != nil {
		l.Close()
		if errors.Is(err, ErrReadTimeout) || errors.Is(err, io.EOF) {
			return nil, &HandshakeError{Want: want, Err: err}
		}
		return nil, err
	}
	if got != want {
		logf("device identified as %q, want %q; disconnecting", got, want)
		l.Close()
		return nil, &HandshakeError{Want: want, Got: got}
	}

	l.identity = got
	return l, nil
}

// Identity returns the identity confirmed during the handshake.
func (l *Link) Identity() string {
	return l.identity
}

// Send writes command followed by '\n'. When expectResponse is true it then
// blocks for exactly one response line and returns it with the trailing
// "\r\n" stripped. Stale buffered data is discarded before every write.
func (l *Link) Send(command string, expectResponse bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := CommandRecord{
		Command:  command,
		Expected: expectResponse,
		Started:  time.Now(),
	}

	if l.closed {
		rec.Err = &TransportError{Op: "send", Command: command, Err: ErrPortClosed}
	} else {
		rec.Response, rec.Err = l.exchange(command, expectResponse)
	}
	rec.Duration = time.Since(rec.Started)

	if l.verbose {
		logf("%q -> %q (%v)", command, rec.Response, rec.Err)
	}
	if l.observer != nil {
		l.observer(rec)
	}
	return rec.Response, rec.Err
}

func (l *Link) exchange(command string, expectResponse bool) (string, error) {
	if f, ok := l.port.(Flusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			return "", &TransportError{Op: "flush", Command: command, Err: err}
		}
		if err := f.ResetOutputBuffer(); err != nil {
			return "", &TransportError{Op: "flush", Command: command, Err: err}
		}
	}

	line := []byte(strings.TrimRight(command, "\r\n") + "\n")
	n, err := l.port.Write(line)
	if err != nil {
		return "", &TransportError{Op: "write", Command: command, Err: err}
	}
	if n != len(line) {
		return "", &TransportError{Op: "write", Command: command, Err: ErrShortWrite}
	}

	if !expectResponse {
		return "", nil
	}

	resp, err := l.readLine()
	if err != nil {
		return "", &TransportError{Op: "read", Command: command, Err: err}
	}
	return resp, nil
}

// readLine reads byte by byte up to and including '\n' so nothing past the
// response is consumed. A read returning no data and no error is the port's
// read timeout expiring.
func (l *Link) readLine() (string, error) {
	var buf bytes.Buffer
	b := make([]byte, 1)
	for {
		n, err := l.port.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				break
			}
			if buf.Len() >= MaxLineLength {
				return "", ErrLineTooLong
			}
			buf.WriteByte(b[0])
			continue
		}
		if err != nil {
			return "", err
		}
		return "", ErrReadTimeout
	}
	return strings.ToValidUTF8(strings.TrimRight(buf.String(), "\r\n"), "�"), nil
}

// Close closes the underlying port. It is safe to call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

// Closed reports whether Close has been called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
