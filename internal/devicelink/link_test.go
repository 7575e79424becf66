package devicelink

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLink(t *testing.T) (*Link, *TestableSerialPort, *Emulator) {
	t.Helper()
	port, emu := NewEmulatedPort("")
	link, err := New(port, LinkOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { link.Close() })
	return link, port, emu
}

func TestNew_Handshake(t *testing.T) {
	link, port, _ := newTestLink(t)

	assert.Equal(t, DefaultIdentity, link.Identity())
	assert.Equal(t, "Y\n", string(port.GetWrittenData()))
	assert.False(t, port.IsClosed())
}

func TestNew_WrongDeviceClosesPort(t *testing.T) {
	port, _ := NewEmulatedPort("wrongDevice")

	link, err := New(port, LinkOptions{Identity: "cheesoSPIM"})
	require.Error(t, err)
	assert.Nil(t, link)

	var hsErr *HandshakeError
	require.True(t, errors.As(err, &hsErr))
	assert.Equal(t, "cheesoSPIM", hsErr.Want)
	assert.Equal(t, "wrongDevice", hsErr.Got)
	assert.Contains(t, err.Error(), "wrongDevice")
	assert.True(t, port.IsClosed())
}

func TestNew_SilentDevice(t *testing.T) {
	port := NewTestableSerialPort()

	_, err := New(port, LinkOptions{})
	require.Error(t, err)

	var hsErr *HandshakeError
	require.True(t, errors.As(err, &hsErr))
	assert.Empty(t, hsErr.Got)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.True(t, port.IsClosed())
}

func TestNew_WriteFailure(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = errors.New("device unplugged")

	_, err := New(port, LinkOptions{})
	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "write", tErr.Op)
	assert.True(t, port.IsClosed())
}

func TestSend_FireAndForgetDoesNotRead(t *testing.T) {
	link, port, _ := newTestLink(t)
	readsBefore := port.ReadCalls

	resp, err := link.Send("M -100", false)
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.True(t, strings.HasSuffix(string(port.GetWrittenData()), "M -100\n"))
	assert.Equal(t, readsBefore, port.ReadCalls)
}

func TestSend_QueryStripsTerminator(t *testing.T) {
	link, _, emu := newTestLink(t)
	emu.Respond("F 25")

	resp, err := link.Send("? F", true)
	require.NoError(t, err)
	assert.Equal(t, "10025", resp)
}

func TestSend_FlushesStaleInput(t *testing.T) {
	link, port, _ := newTestLink(t)
	port.AddReadData([]byte("stale\r\n"))
	flushes := port.Flushes

	resp, err := link.Send("? L", true)
	require.NoError(t, err)
	assert.Equal(t, "0", resp)
	assert.Equal(t, flushes+1, port.Flushes)
}

func TestSend_LeavesFollowingDataUnread(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte(DefaultIdentity + "\r\n"))
	link := &Link{port: port}

	got, err := link.readLine()
	require.NoError(t, err)
	assert.Equal(t, DefaultIdentity, got)

	port.AddReadData([]byte("next\n"))
	got, err = link.readLine()
	require.NoError(t, err)
	assert.Equal(t, "next", got)
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(p *TestableSerialPort)
		expect  bool
		op      string
		is      error
	}{
		{
			name:    "short write",
			prepare: func(p *TestableSerialPort) { p.ShortWrite = true },
			op:      "write",
			is:      ErrShortWrite,
		},
		{
			name:    "read failure",
			prepare: func(p *TestableSerialPort) { p.ReadError = io.EOF },
			expect:  true,
			op:      "read",
			is:      io.EOF,
		},
		{
			name:    "no response",
			prepare: func(p *TestableSerialPort) { p.Responder = nil },
			expect:  true,
			op:      "read",
			is:      ErrReadTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, port, _ := newTestLink(t)
			tt.prepare(port)

			_, err := link.Send("? F", tt.expect)
			var tErr *TransportError
			require.True(t, errors.As(err, &tErr))
			assert.Equal(t, tt.op, tErr.Op)
			assert.Equal(t, "? F", tErr.Command)
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func TestSend_LineTooLong(t *testing.T) {
	link, port, _ := newTestLink(t)
	port.Responder = func(string) (string, bool) {
		return strings.Repeat("x", MaxLineLength+1), true
	}

	_, err := link.Send("? F", true)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestSend_AfterClose(t *testing.T) {
	link, port, _ := newTestLink(t)
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.True(t, link.Closed())
	assert.True(t, port.IsClosed())

	_, err := link.Send("N", false)
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestSend_Observer(t *testing.T) {
	port, _ := NewEmulatedPort("")
	var recs []CommandRecord
	link, err := New(port, LinkOptions{Observer: func(r CommandRecord) { recs = append(recs, r) }})
	require.NoError(t, err)

	_, err = link.Send("P 300", false)
	require.NoError(t, err)
	_, err = link.Send("? L", true)
	require.NoError(t, err)

	require.Len(t, recs, 3)
	assert.Equal(t, "Y", recs[0].Command)
	assert.Equal(t, DefaultIdentity, recs[0].Response)
	assert.Equal(t, "P 300", recs[1].Command)
	assert.False(t, recs[1].Expected)
	assert.Equal(t, "300", recs[2].Response)
	assert.NoError(t, recs[2].Err)
}

func TestSend_InvalidUTF8IsReplaced(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{'o', 'k', 0xff, '\r', '\n'})
	link := &Link{port: port}

	got, err := link.readLine()
	require.NoError(t, err)
	assert.Equal(t, "ok�", got)
}
