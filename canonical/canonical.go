// Package canonical implements the canonical machine (the design
// notes' "cm"): the single entry point the gcode layer and any other
// command source submit motion primitives through. It owns the
// units-mode boundary conversion (everything downstream of here is
// canonical millimeters), work coordinate offsets, and the conversion
// from a programmed feed rate plus per-axis limits into the
// CruiseVmax/Jerk/JunctionDeviation triple the planner needs.
//
// It is grounded in the donor's standalone/planner.Planner.QueueMove,
// which centralized limit-checking and move submission ahead of the
// queue; here that responsibility is split out from the queue itself
// so the planner stays a pure look-ahead data structure.
package canonical

import (
	"math"

	"cncfw/arcgen"
	"cncfw/axis"
	"cncfw/block"
	"cncfw/planner"
	"cncfw/statcode"
	"cncfw/units"
)

// WorkOffset is one of the six work coordinate systems (G54-G59).
type WorkOffset int

const (
	G54 WorkOffset = iota
	G55
	G56
	G57
	G58
	G59
	NumWorkOffsets
)

// Machine is the canonical machine: the unit-aware, offset-aware front
// end to the planner queue.
type Machine struct {
	Axes  *axis.Machine
	Queue *planner.Queue

	UnitsMode units.Mode
	Absolute  bool // true = absolute positioning (G90), false = incremental (G91)

	ActiveOffset WorkOffset
	Offsets      [NumWorkOffsets]block.Vec

	// ChordTolerance/MinArcSegment/MaxChordAngle are the arc generator's
	// configured tolerances; exposed here since they are operator
	// configuration, not arc-generator internals.
	ChordTolerance float64
	MinArcSegment  float64
	MaxChordAngle  float64

	// JunctionAcceleration holds the global cornering acceleration
	// limit (the `ja` token). The planner computes junction velocities
	// from per-axis junction deviation and jerk; it does not read this
	// value.
	JunctionAcceleration float64

	// programmedPosition is the last position submitted by the shell,
	// in the active work offset's coordinates and the active units
	// mode - distinct from the planner's own canonical-mm cursor.
	programmedPosition block.Vec

	pendingArc *arcgen.Generator
}

// NewMachine returns a canonical machine with G54 active, absolute
// positioning, and millimeter units - the conventional power-on state.
func NewMachine(axes *axis.Machine, queue *planner.Queue) *Machine {
	return &Machine{
		Axes:           axes,
		Queue:          queue,
		UnitsMode:      units.Millimeters,
		Absolute:       true,
		ChordTolerance:       0.002,
		MinArcSegment:        0.1,
		MaxChordAngle:        0.3,
		JunctionAcceleration: 2_000_000,
	}
}

// toMachine converts a programmed target (in the active units mode and
// work offset) into absolute canonical machine coordinates. specified
// marks which axes were actually present in the command; the rest hold
// their last programmed value.
func (m *Machine) toMachine(programmed block.Vec, specified [block.NumAxes]bool) block.Vec {
	target := m.lastMachineTarget()
	for i := 0; i < block.NumAxes; i++ {
		if !specified[i] {
			continue
		}
		v := units.ToCanonical(m.UnitsMode, programmed[i])
		if m.Absolute {
			target[i] = v + m.Offsets[m.ActiveOffset][i]
		} else {
			target[i] += v
		}
	}
	return target
}

// ToMachineTarget exposes toMachine's units/offset conversion to
// callers (the gcode layer) that need to resolve an arc's absolute
// endpoint before building arcgen.Params, which arcgen requires
// already in canonical machine coordinates.
func (m *Machine) ToMachineTarget(programmed block.Vec, specified [block.NumAxes]bool) block.Vec {
	return m.toMachine(programmed, specified)
}

// LastMachineTarget exposes the planner's current cursor in canonical
// machine coordinates, the arc generator's required starting point.
func (m *Machine) LastMachineTarget() block.Vec {
	return m.lastMachineTarget()
}

func (m *Machine) lastMachineTarget() block.Vec {
	if pos, ok := m.Queue.LastTarget(); ok {
		return pos
	}
	return block.Vec{}
}

// feedLimits derives the move's cruise velocity cap and worst-case
// jerk from the axes actually in motion, per the axis data model: the
// cruise cap can never exceed any participating axis's feed_max, and
// the jerk used for the whole move is the minimum of the participating
// axes' jerk_max (the most restrictive one governs the shared profile).
func (m *Machine) feedLimits(unit block.Vec, feed float64) (cruiseVmax, jerk, junctionDeviation float64) {
	jerk = math.Inf(1)
	junctionDeviation = math.Inf(1)
	cruiseVmax = feed

	for i := 0; i < block.NumAxes; i++ {
		if unit[i] == 0 {
			continue
		}
		a := &m.Axes.Axes[i]
		if !a.Enabled() {
			continue
		}
		if a.FeedMax < cruiseVmax {
			cruiseVmax = a.FeedMax
		}
		if a.JerkMax < jerk {
			jerk = a.JerkMax
		}
		if a.JunctionDeviation < junctionDeviation {
			junctionDeviation = a.JunctionDeviation
		}
	}
	if math.IsInf(jerk, 1) {
		jerk = 0
	}
	if math.IsInf(junctionDeviation, 1) {
		junctionDeviation = 0
	}
	return
}

// SubmitLine queues a straight-line move. specified marks which
// components of target were actually programmed; unprogrammed axes
// hold their last position.
func (m *Machine) SubmitLine(target block.Vec, specified [block.NumAxes]bool, feed float64) (*block.Block, error) {
	dest := m.toMachine(target, specified)
	return m.submitAbsoluteLine(dest, feed)
}

// submitAbsoluteLine queues a line whose target is already expressed in
// canonical machine coordinates, with no units or work-offset
// conversion applied. Used for the gcode-facing SubmitLine (after it
// has done that conversion) and for arc chords, which arcgen computes
// directly in canonical space.
func (m *Machine) submitAbsoluteLine(dest block.Vec, feed float64) (*block.Block, error) {
	last := m.lastMachineTarget()
	delta := dest.Sub(last)
	length := vecLength(delta)
	if length == 0 {
		return nil, statcode.Wrap(statcode.ZeroLengthMove, "target equals current position")
	}
	var unit block.Vec
	for i := range unit {
		unit[i] = delta[i] / length
	}

	cruiseVmax, jerk, jd := m.feedLimits(unit, feed)
	return m.Queue.QueueLine(planner.LineParams{
		Target:            dest,
		CruiseVmax:        cruiseVmax,
		Jerk:              jerk,
		JunctionDeviation: jd,
	})
}

// SubmitArc decomposes an arc into chords and queues each as a line,
// driving the arc generator to completion (or EAGAIN on a momentarily
// full queue, in which case the caller should retry SubmitArc with the
// same Params later to resume the in-progress arc). Params.Start,
// .Center, and .End are already canonical absolute coordinates; the
// caller (the gcode layer) resolves units and work offsets before
// calling in, the same way it must for SubmitLine's target.
func (m *Machine) SubmitArc(p arcgen.Params) (statcode.Code, error) {
	if m.pendingArc == nil {
		g, err := arcgen.New(p)
		if err != nil {
			return statcode.ArcSpecificationError, err
		}
		if g.Degenerate() {
			_, err := m.submitAbsoluteLine(p.End, p.Feed)
			return statcode.COMPLETE, err
		}
		m.pendingArc = g
	}

	sink := func(target block.Vec, feed float64) error {
		_, err := m.submitAbsoluteLine(target, feed)
		return err
	}

	code, err := m.pendingArc.Step(sink)
	if code != statcode.EAGAIN {
		m.pendingArc = nil
	}
	return code, err
}

// SubmitDwell queues a pause of the given duration.
func (m *Machine) SubmitDwell(seconds float64) (*block.Block, error) {
	return m.Queue.QueueDwell(seconds)
}

// SubmitCommand queues a synchronous command (e.g. a spindle or
// coolant M-code) to run once every motion ahead of it has completed.
func (m *Machine) SubmitCommand(cb block.CommandCallback, values, flags block.Vec) (*block.Block, error) {
	return m.Queue.QueueCommand(cb, values, flags)
}

// SetPlannerPosition rebases the planner's cursor to the given
// programmed position (in the active units mode and work offset)
// without queueing a move - the canonical-machine counterpart of a
// G92 "set position" command.
func (m *Machine) SetPlannerPosition(programmed block.Vec, specified [block.NumAxes]bool) {
	pos := m.toMachine(programmed, specified)
	m.Queue.SetPosition(pos)
}

// FlushPlanner discards every queued-but-not-yet-running block, for an
// abort or reset.
func (m *Machine) FlushPlanner() {
	m.Queue.Flush()
}

// SetWorkOffset installs a new origin for the given coordinate system
// relative to the machine's native (absolute) coordinates.
func (m *Machine) SetWorkOffset(which WorkOffset, offset block.Vec) {
	m.Offsets[which] = offset
}

// SetActiveOffset selects which work coordinate system subsequent
// absolute moves are measured against (G54-G59).
func (m *Machine) SetActiveOffset(which WorkOffset) {
	m.ActiveOffset = which
}

func vecLength(v block.Vec) float64 {
	var sum float64
	for _, c := range v {
		sum += c * c
	}
	return math.Sqrt(sum)
}
