package devicelink

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// Responder is consulted by TestableSerialPort for every complete line
// written to it. A reply with ok set is queued for reading.
type Responder func(line string) (reply string, ok bool)

// TestableSerialPort implements SerialPorter and Flusher with configurable
// behaviour for testing. Reads on an empty buffer return (0, nil), the same
// thing a real port does when its read timeout expires.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Responder, when set, answers each written line
	Responder Responder

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes the next Write accept one byte fewer than offered
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// Flushes counts ResetInputBuffer calls
	Flushes int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	pending []byte
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}

	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write records p and feeds complete lines to the Responder.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	if t.ShortWrite && len(p) > 0 {
		t.ShortWrite = false
		p = p[:len(p)-1]
	}

	t.WriteBuffer.Write(p)
	t.pending = append(t.pending, p...)
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			break
		}
		line := string(t.pending[:i])
		t.pending = t.pending[i+1:]
		if t.Responder == nil {
			continue
		}
		if reply, ok := t.Responder(line); ok {
			t.ReadBuffer.WriteString(reply + "\r\n")
		}
	}
	return len(p), nil
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// ResetInputBuffer discards anything waiting to be read.
func (t *TestableSerialPort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Flushes++
	t.ReadBuffer.Reset()
	return nil
}

// ResetOutputBuffer discards a partially written line.
func (t *TestableSerialPort) ResetOutputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = nil
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return bytes.Clone(t.WriteBuffer.Bytes())
}

// IsClosed reports whether Close was called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.Closed
}

// MockSerialPortOpener returns a SerialPortOpener that hands out port and
// records the paths it was asked to open.
type MockSerialPortOpener struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// Paths records all Open calls
	Paths []string
}

// Open implements SerialPortOpener.
func (o *MockSerialPortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Paths = append(o.Paths, path)
	if o.Error != nil {
		return nil, o.Error
	}
	if _, err := opts.Normalise(); err != nil {
		return nil, err
	}
	return o.Port, nil
}
