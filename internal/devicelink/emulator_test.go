package devicelink

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestEmulator_CommandVocabulary(t *testing.T) {
	emu := NewEmulator("")
	steps := []struct {
		line  string
		reply string
		ok    bool
	}{
		{"Y", "cheesoSPIM", true},
		{"V", "", false},
		{"? F", "0", true},
		{"E", "", false},
		{"E", "", false},
		{"? F", "20", true},
		{"Q", "", false},
		{"F 500", "", false},
		{"? F", "510", true},
		{"F -100000", "", false},
		{"? F", "0", true},
		{"B", "", false},
		{"? F", "20000", true},
		{"N", "", false},
		{"P 70000", "", false},
		{"? L", "65535", true},
		{"K", "", false},
		{"? L", "65279", true},
		{"I", "", false},
		{"I", "", false},
		{"? L", "65535", true},
		{"M -100", "", false},
		{"D", "", false},
		{"Z", "\x15", true},
		{"F", "\x15", true},
		{"P abc", "\x15", true},
		{"? X", "\x15", true},
	}
	for _, s := range steps {
		reply, ok := emu.Respond(s.line)
		assert.Equal(t, s.ok, ok, s.line)
		assert.Equal(t, s.reply, reply, s.line)
	}

	want := State{Lens: 20000, LaserOn: true, LaserPower: 65535, Motor: -100, Demos: 1}
	if diff := cmp.Diff(want, emu.State()); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, emu.Received(), len(steps))
}

func TestTestableSerialPort_PartialLines(t *testing.T) {
	port, emu := NewEmulatedPort("")

	port.Write([]byte("? "))
	assert.Empty(t, emu.Received())
	port.Write([]byte("F\nY\n"))
	assert.Equal(t, []string{"? F", "Y"}, emu.Received())
	assert.Equal(t, "10000\r\ncheesoSPIM\r\n", port.ReadBuffer.String())

	port.Write([]byte("? "))
	port.ResetOutputBuffer()
	port.Write([]byte("L\n"))
	assert.Equal(t, []string{"? F", "Y", "L"}, emu.Received())
}
