// Package scope is the typed lens, laser and motor command set spoken to the
// controller over a devicelink.Link.
package scope

import (
	"strconv"
)

// MaxLaserPower is the top of the controller's unsigned 16-bit power range.
const MaxLaserPower = 65535

// Command is one controller instruction: a single letter, optionally
// followed by a space and an argument. Query commands are answered with
// exactly one line.
type Command struct {
	Letter string
	Arg    string
	Query  bool
}

// String renders the command as it appears on the wire, without the
// terminator.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Letter
	}
	return c.Letter + " " + c.Arg
}

func simple(letter string) Command { return Command{Letter: letter} }
func withInt(letter string, n int) Command {
	return Command{Letter: letter, Arg: strconv.Itoa(n)}
}
func query(what string) Command { return Command{Letter: "?", Arg: what, Query: true} }

// IdentifyCmd is "Y", answered with the controller's identity string.
func IdentifyCmd() Command { return Command{Letter: "Y", Query: true} }

// DemoCmd is "D", the firmware demonstration routine.
func DemoCmd() Command { return simple("D") }

// LensAllOutCmd is "V", drive the lens to its outer end stop.
func LensAllOutCmd() Command { return simple("V") }

// LensAllInCmd is "B", drive the lens to its inner end stop.
func LensAllInCmd() Command { return simple("B") }

// LensStepInCmd is "E", one firmware-sized step in.
func LensStepInCmd() Command { return simple("E") }

// LensStepOutCmd is "Q", one firmware-sized step out.
func LensStepOutCmd() Command { return simple("Q") }

// MoveLensCmd is "F <delta>", a relative lens move.
func MoveLensCmd(delta int) Command { return withInt("F", delta) }

// LaserOnCmd is "N".
func LaserOnCmd() Command { return simple("N") }

// LaserOffCmd is "O".
func LaserOffCmd() Command { return simple("O") }

// LaserUpCmd is "I", one power step up.
func LaserUpCmd() Command { return simple("I") }

// LaserDownCmd is "K", one power step down.
func LaserDownCmd() Command { return simple("K") }

// SetLaserPowerCmd clamps n into [0, MaxLaserPower].
func SetLaserPowerCmd(n int) Command { return withInt("P", ClampLaserPower(n)) }

// SpinMotorCmd moves the motor n steps; the sign selects the direction.
func SpinMotorCmd(n int) Command { return withInt("M", n) }

// QueryFocusCmd is "? F", answered with the lens position.
func QueryFocusCmd() Command { return query("F") }

// QueryLaserPowerCmd is "? L", answered with the laser power.
func QueryLaserPowerCmd() Command { return query("L") }

// ClampLaserPower maps n onto the unsigned 16-bit range the controller accepts.
func ClampLaserPower(n int) int {
	return max(0, min(n, MaxLaserPower))
}
