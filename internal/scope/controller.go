package scope

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/scopecam/internal/devicelink"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

// DefaultSettleTime is how long FindLimits waits after driving the lens to
// an end stop before reading its position.
const DefaultSettleTime = time.Second

// Direction of a jog.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// StepSize selects between the big and small jog increments.
type StepSize int

const (
	Small StepSize = iota
	Big
)

// StepSizes are the jog increments for the lens and motor.
type StepSizes struct {
	LensBig    int
	LensSmall  int
	MotorBig   int
	MotorSmall int
}

// DefaultStepSizes matches the controller's stock configuration.
var DefaultStepSizes = StepSizes{LensBig: 100, LensSmall: 10, MotorBig: 100, MotorSmall: 5}

// Limits are the focus readings at the two lens end stops.
type Limits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ResponseError reports a query answer that could not be parsed.
type ResponseError struct {
	Command  string
	Response string
	Err      error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("scope: unexpected response %q to %q: %v", e.Response, e.Command, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Options configures a Controller.
type Options struct {
	Clock      timeutil.Clock
	SettleTime time.Duration
	Steps      StepSizes
	// LensPosition seeds the tracked lens position.
	LensPosition int
}

// Controller issues typed commands through a devicelink.Sender. Set
// operations are fire-and-forget; queries wait for one response line.
type Controller struct {
	link   devicelink.Sender
	clock  timeutil.Clock
	settle time.Duration
	steps  StepSizes

	mu         sync.Mutex
	lensPos    int
	laserPower int
	laserOn    bool
}

// NewController returns a Controller sending through link.
func NewController(link devicelink.Sender, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.SettleTime <= 0 {
		opts.SettleTime = DefaultSettleTime
	}
	if opts.Steps == (StepSizes{}) {
		opts.Steps = DefaultStepSizes
	}
	return &Controller{
		link:    link,
		clock:   opts.Clock,
		settle:  opts.SettleTime,
		steps:   opts.Steps,
		lensPos: opts.LensPosition,
	}
}

// Exec sends cmd and returns the response for queries.
func (c *Controller) Exec(cmd Command) (string, error) {
	return c.link.Send(cmd.String(), cmd.Query)
}

func (c *Controller) exec(cmd Command) error {
	_, err := c.Exec(cmd)
	return err
}

func (c *Controller) queryInt(cmd Command) (int, error) {
	resp, err := c.Exec(cmd)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, &ResponseError{Command: cmd.String(), Response: resp, Err: err}
	}
	return n, nil
}

// Identify asks the controller for its identity string.
func (c *Controller) Identify() (string, error) {
	return c.Exec(IdentifyCmd())
}

// Demo starts the firmware's demonstration routine.
func (c *Controller) Demo() error { return c.exec(DemoCmd()) }

// LensAllOut drives the lens fully out. The tracked position is stale
// until the next QueryFocus, since the travel takes time.
func (c *Controller) LensAllOut() error { return c.exec(LensAllOutCmd()) }

// LensAllIn drives the lens fully in. See LensAllOut.
func (c *Controller) LensAllIn() error { return c.exec(LensAllInCmd()) }

// LensStepIn moves the lens in by the firmware's fixed step, then reads
// the focus position back so LensPosition stays in sync.
func (c *Controller) LensStepIn() error { return c.stepLens(LensStepInCmd()) }

// LensStepOut is LensStepIn in the other direction.
func (c *Controller) LensStepOut() error { return c.stepLens(LensStepOutCmd()) }

// stepLens resyncs with "? F" because the step size lives in the firmware.
func (c *Controller) stepLens(cmd Command) error {
	if err := c.exec(cmd); err != nil {
		return err
	}
	_, err := c.QueryFocus()
	return err
}

// MoveLens moves the lens by delta steps relative to where it is.
func (c *Controller) MoveLens(delta int) error {
	if err := c.exec(MoveLensCmd(delta)); err != nil {
		return err
	}
	c.mu.Lock()
	c.lensPos += delta
	c.mu.Unlock()
	return nil
}

// LaserOn switches the laser on at its current power.
func (c *Controller) LaserOn() error {
	if err := c.exec(LaserOnCmd()); err != nil {
		return err
	}
	c.mu.Lock()
	c.laserOn = true
	c.mu.Unlock()
	return nil
}

// LaserOff switches the laser off.
func (c *Controller) LaserOff() error {
	if err := c.exec(LaserOffCmd()); err != nil {
		return err
	}
	c.mu.Lock()
	c.laserOn = false
	c.mu.Unlock()
	return nil
}

// LaserUp raises the laser power by the firmware's step. The tracked power
// is not updated; QueryLaserPower reads the new value.
func (c *Controller) LaserUp() error { return c.exec(LaserUpCmd()) }

// LaserDown lowers the laser power by the firmware's step.
func (c *Controller) LaserDown() error { return c.exec(LaserDownCmd()) }

// SetLaserPower sends n clamped to [0, 65535] and returns the value sent.
func (c *Controller) SetLaserPower(n int) (int, error) {
	cmd := SetLaserPowerCmd(n)
	if err := c.exec(cmd); err != nil {
		return 0, err
	}
	sent := ClampLaserPower(n)
	c.mu.Lock()
	c.laserPower = sent
	c.mu.Unlock()
	return sent, nil
}

// SpinMotor turns the motor steps; negative values reverse it.
func (c *Controller) SpinMotor(steps int) error { return c.exec(SpinMotorCmd(steps)) }

// MoveMotor is SpinMotor.
func (c *Controller) MoveMotor(steps int) error { return c.SpinMotor(steps) }

// QueryFocus returns the lens position reported by the controller and
// resynchronises the tracked position with it.
func (c *Controller) QueryFocus() (int, error) {
	n, err := c.queryInt(QueryFocusCmd())
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.lensPos = n
	c.mu.Unlock()
	return n, nil
}

// QueryLaserPower returns the laser power reported by the controller.
func (c *Controller) QueryLaserPower() (int, error) {
	n, err := c.queryInt(QueryLaserPowerCmd())
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.laserPower = n
	c.mu.Unlock()
	return n, nil
}

// FindLimits drives the lens fully out then fully in, waiting the settle
// time after each move before reading the focus position.
func (c *Controller) FindLimits(ctx context.Context) (Limits, error) {
	var lim Limits
	var err error

	if lim.Min, err = c.driveAndRead(ctx, c.LensAllOut); err != nil {
		return Limits{}, fmt.Errorf("find lower limit: %w", err)
	}
	if lim.Max, err = c.driveAndRead(ctx, c.LensAllIn); err != nil {
		return Limits{}, fmt.Errorf("find upper limit: %w", err)
	}
	return lim, nil
}

func (c *Controller) driveAndRead(ctx context.Context, drive func() error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := drive(); err != nil {
		return 0, err
	}
	c.clock.Sleep(c.settle)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.QueryFocus()
}

// JogLens moves the lens one big or small increment in dir.
func (c *Controller) JogLens(dir Direction, size StepSize) (int, error) {
	n := c.steps.LensSmall
	if size == Big {
		n = c.steps.LensBig
	}
	delta := int(dir) * n
	return delta, c.MoveLens(delta)
}

// JogMotor turns the motor one big or small increment in dir.
func (c *Controller) JogMotor(dir Direction, size StepSize) (int, error) {
	n := c.steps.MotorSmall
	if size == Big {
		n = c.steps.MotorBig
	}
	steps := int(dir) * n
	return steps, c.SpinMotor(steps)
}

// Steps returns the configured jog increments.
func (c *Controller) Steps() StepSizes { return c.steps }

// LensPosition is the tracked lens position: the last focus reading plus
// every relative move since.
func (c *Controller) LensPosition() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lensPos
}

// State is the controller's view of the hardware.
type State struct {
	LensPosition int  `json:"lens_position"`
	LaserPower   int  `json:"laser_power"`
	LaserOn      bool `json:"laser_on"`
}

// State returns the last known lens and laser state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{LensPosition: c.lensPos, LaserPower: c.laserPower, LaserOn: c.laserOn}
}
