package devicelink

import (
	"strconv"
	"strings"
	"sync"
)

// NAK is the byte the controller firmware answers unknown commands with.
const NAK = 0x15

// Emulator is a scripted stand-in for the lens/laser controller firmware.
// Its Respond method is a Responder, so it can be plugged into a
// TestableSerialPort for tests or for running without hardware.
type Emulator struct {
	mu sync.Mutex

	Identity   string
	LensTravel int
	LensStep   int
	LaserStep  int

	lens       int
	laserOn    bool
	laserPower int
	motor      int
	demos      int
	log        []string
}

// NewEmulator returns an Emulator reporting identity, with the lens parked
// mid-travel and the laser off.
func NewEmulator(identity string) *Emulator {
	if identity == "" {
		identity = DefaultIdentity
	}
	return &Emulator{
		Identity:   identity,
		LensTravel: 20000,
		LensStep:   10,
		LaserStep:  256,
		lens:       10000,
	}
}

// NewEmulatedPort returns a TestableSerialPort wired to a fresh Emulator.
func NewEmulatedPort(identity string) (*TestableSerialPort, *Emulator) {
	emu := NewEmulator(identity)
	port := NewTestableSerialPort()
	port.Responder = emu.Respond
	return port, emu
}

// Respond handles one command line.
func (e *Emulator) Respond(line string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	line = strings.TrimSpace(line)
	e.log = append(e.log, line)

	letter, arg, hasArg := strings.Cut(line, " ")
	switch letter {
	case "Y":
		return e.Identity, true
	case "D":
		e.demos++
	case "V":
		e.lens = 0
	case "B":
		e.lens = e.LensTravel
	case "E":
		e.moveLens(e.LensStep)
	case "Q":
		e.moveLens(-e.LensStep)
	case "N":
		e.laserOn = true
	case "O":
		e.laserOn = false
	case "I":
		e.laserPower = clampInt(e.laserPower+e.LaserStep, 0, 65535)
	case "K":
		e.laserPower = clampInt(e.laserPower-e.LaserStep, 0, 65535)
	case "F", "P", "M":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if !hasArg || err != nil {
			return string(rune(NAK)), true
		}
		switch letter {
		case "F":
			e.moveLens(n)
		case "P":
			e.laserPower = clampInt(n, 0, 65535)
		case "M":
			e.motor += n
		}
	case "?":
		switch strings.TrimSpace(arg) {
		case "F":
			return strconv.Itoa(e.lens), true
		case "L":
			return strconv.Itoa(e.laserPower), true
		}
		return string(rune(NAK)), true
	default:
		return string(rune(NAK)), true
	}
	return "", false
}

func (e *Emulator) moveLens(delta int) {
	e.lens = clampInt(e.lens+delta, 0, e.LensTravel)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// State is a point-in-time view of the emulated hardware.
type State struct {
	Lens       int
	LaserOn    bool
	LaserPower int
	Motor      int
	Demos      int
}

// State returns the emulated hardware state.
func (e *Emulator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Lens:       e.lens,
		LaserOn:    e.laserOn,
		LaserPower: e.laserPower,
		Motor:      e.motor,
		Demos:      e.demos,
	}
}

// Received returns every command line seen so far.
func (e *Emulator) Received() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}
