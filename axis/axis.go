// Package axis holds the machine's static data model: the six logical
// axes and the up to six physical motors slaved to them. It is adapted
// from the donor's standalone.AxisConfig (millimeters-only, single
// motor per axis) generalized to six logical axes, many-to-one
// motor-to-axis slaving, and the full per-axis limit set the planner's
// look-ahead pass needs (velocity, feed, jerk, junction deviation).
package axis

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"cncfw/core"
)

// Mode is an axis's operating mode.
type Mode int

const (
	Disabled Mode = iota
	Standard
	Inhibited
	RadiusRotary
)

// Name identifies one of the six logical axes.
type Name int

const (
	X Name = iota
	Y
	Z
	A
	B
	C
	NumAxes
)

func (n Name) String() string {
	names := [NumAxes]string{"X", "Y", "Z", "A", "B", "C"}
	if n < 0 || n >= NumAxes {
		return "?"
	}
	return names[n]
}

// SwitchMode describes how a homing/limit switch behaves. Homing
// itself is out of scope; these fields are carried as configuration
// only so a future homing cycle has somewhere to read them from.
type SwitchMode int

const (
	SwitchNone SwitchMode = iota
	SwitchNormallyOpen
	SwitchNormallyClosed
)

// HomingParams groups the homing-only configuration fields. Stored but
// not acted on by this core.
type HomingParams struct {
	SearchVelocity float64
	LatchVelocity  float64
	Backoff        float64
	Switch         SwitchMode
	Jerk           float64
}

// Axis is one of the six logical machine axes.
type Axis struct {
	Name Name
	Mode Mode

	VelocityMax float64 // length/time, canonical mm/min
	FeedMax     float64 // length/time, canonical mm/min
	TravelMax   float64 // canonical mm
	JerkMax     float64 // canonical mm/min^3

	JunctionDeviation float64 // canonical mm

	Radius float64 // for RadiusRotary mode, mm

	Homing HomingParams
}

// Enabled reports whether the axis participates in motion.
func (a *Axis) Enabled() bool {
	return a.Mode != Disabled
}

// Validate checks the invariants from the data model: feed_max <=
// velocity_max, and jerk_max > 0 when the axis is enabled.
func (a *Axis) Validate() error {
	var errs error
	if a.FeedMax > a.VelocityMax {
		errs = multierr.Append(errs, errors.Errorf("axis %s: feed_max %.3f exceeds velocity_max %.3f", a.Name, a.FeedMax, a.VelocityMax))
	}
	if a.Enabled() && a.JerkMax <= 0 {
		errs = multierr.Append(errs, errors.Errorf("axis %s: jerk_max must be > 0 when enabled", a.Name))
	}
	return errs
}

// PowerMode is a motor's idle-power behavior.
type PowerMode int

const (
	AlwaysOn PowerMode = iota
	IdleOffAfterTimeout
)

// allowedMicrosteps is the supported microstep divisor set from the
// data model; anything else is accepted (per the boundary-behavior
// test "microsteps not in {1,2,4,8} is set but emits a warning") but
// flagged by Validate as a warning-class error rather than rejected.
var allowedMicrosteps = map[int]bool{1: true, 2: true, 4: true, 8: true}

// Motor is a physical stepper slaved to one logical axis.
type Motor struct {
	ID   int
	Axis Name

	StepAngleDeg   float64 // degrees per full step
	TravelPerRev   float64 // canonical mm per revolution (or deg for direct-rotary motors)
	Microsteps     int     // microstep divisor
	InvertDir      bool
	Power          PowerMode
	IdleTimeoutSec float64

	stepsPerUnit float64

	// DriverBus, if non-nil, is an SPI connection to a smart stepper
	// driver (TMC-style) used to push the microstep divisor and ramp
	// registers directly into hardware instead of relying solely on a
	// GPIO microstep-select triplet. See targets/tmcdriver.
	DriverBus core.SPIDriver
}

// StepsPerUnit returns the motor's current steps-per-canonical-unit,
// recomputed by Recompute whenever a contributing field changes.
func (m *Motor) StepsPerUnit() float64 {
	return m.stepsPerUnit
}

// Recompute derives steps_per_unit = 360 / (step_angle / microsteps) / travel_per_rev,
// per the data model's invariant. Call after changing StepAngleDeg,
// Microsteps, or TravelPerRev.
func (m *Motor) Recompute() {
	if m.StepAngleDeg == 0 || m.TravelPerRev == 0 || m.Microsteps == 0 {
		m.stepsPerUnit = 0
		return
	}
	stepsPerRev := 360.0 / (m.StepAngleDeg / float64(m.Microsteps))
	m.stepsPerUnit = stepsPerRev / m.TravelPerRev
}

// Validate checks motor-level invariants and warns (without rejecting)
// about a non-power-of-two-in-{1,2,4,8} microstep divisor.
func (m *Motor) Validate() error {
	var errs error
	if m.StepAngleDeg <= 0 {
		errs = multierr.Append(errs, errors.Errorf("motor %d: step_angle_deg must be > 0", m.ID))
	}
	if m.TravelPerRev <= 0 {
		errs = multierr.Append(errs, errors.Errorf("motor %d: travel_per_rev must be > 0", m.ID))
	}
	if m.Microsteps <= 0 {
		errs = multierr.Append(errs, errors.Errorf("motor %d: microsteps must be > 0", m.ID))
	} else if !allowedMicrosteps[m.Microsteps] {
		// Not rejected: the data model says this is set but warned about.
		errs = multierr.Append(errs, errors.Errorf("motor %d: microsteps=%d is outside {1,2,4,8} (warning)", m.ID, m.Microsteps))
	}
	return errs
}

// Machine is the full static axis/motor configuration.
type Machine struct {
	Axes   [NumAxes]Axis
	Motors []*Motor
}

// NewMachine returns a Machine with every axis disabled and no motors,
// ready for config.Registry-driven configuration.
func NewMachine() *Machine {
	m := &Machine{}
	for i := range m.Axes {
		m.Axes[i].Name = Name(i)
		m.Axes[i].Mode = Disabled
	}
	return m
}

// MotorsForAxis returns every motor slaved to the given logical axis
// (many-to-one slaving, e.g. dual-Z gantries).
func (m *Machine) MotorsForAxis(a Name) []*Motor {
	var out []*Motor
	for _, mo := range m.Motors {
		if mo.Axis == a {
			out = append(out, mo)
		}
	}
	return out
}

// Validate aggregates every axis's and motor's validation errors so a
// single config load reports every problem at once, rather than
// stopping at the first.
func (m *Machine) Validate() error {
	var errs error
	for i := range m.Axes {
		errs = multierr.Append(errs, m.Axes[i].Validate())
	}
	for _, mo := range m.Motors {
		errs = multierr.Append(errs, mo.Validate())
	}
	return errs
}
