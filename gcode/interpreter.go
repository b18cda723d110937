package gcode

import (
	"errors"
	"math"

	"cncfw/arcgen"
	"cncfw/block"
	"cncfw/canonical"
	"cncfw/statcode"
	"cncfw/units"
)

// axisLetters maps a gcode word letter to its block.Vec index.
var axisLetters = [block.NumAxes]byte{'X', 'Y', 'Z', 'A', 'B', 'C'}

func axisIndex(letter byte) (int, bool) {
	for i, l := range axisLetters {
		if l == letter {
			return i, true
		}
	}
	return 0, false
}

// Hooks lets the embedding program react to spindle/coolant M-codes.
// Both fields are optional; a nil hook is simply skipped.
type Hooks struct {
	Spindle func(on, clockwise bool, speedRPM float64)
	Coolant func(flood, mist bool)
}

// Interpreter turns parsed Commands into canonical.Machine calls. It
// holds the modal state a line of G-code can leave behind for the
// next one: positioning mode, units, active plane, and feed rate.
//
// Grounded on the donor's standalone/gcode.Interpreter, whose
// MachineState held exactly this kind of modal carry-over
// (AbsoluteMode, FeedRate, ExtrudeMode); generalized here from a
// 3D-printer's four axes to a six-axis mill/router and from
// temperature M-codes to spindle/coolant M-codes.
type Interpreter struct {
	machine *canonical.Machine
	hooks   Hooks

	plane    arcgen.Plane
	feedRate float64 // canonical mm/min, last programmed F word
}

// NewInterpreter returns an Interpreter bound to the given canonical
// machine, with the conventional power-on modal state: plane XY, feed
// rate zero until the first F word.
func NewInterpreter(m *canonical.Machine, hooks Hooks) *Interpreter {
	return &Interpreter{machine: m, hooks: hooks, plane: arcgen.PlaneXY}
}

// Execute dispatches one parsed command. A blank or comment-only line
// (cmd == nil, or cmd.Type == 0) is a no-op.
func (ip *Interpreter) Execute(cmd *Command) (statcode.Code, error) {
	if cmd == nil || cmd.Type == 0 {
		return statcode.COMPLETE, nil
	}
	switch cmd.Type {
	case 'G':
		return ip.executeG(cmd)
	case 'M':
		return ip.executeM(cmd)
	case 'T':
		// Tool selection is carried as state by the embedding program,
		// not this core; nothing to do here.
		return statcode.COMPLETE, nil
	}
	return statcode.COMPLETE, nil
}

func (ip *Interpreter) specifiedTarget(cmd *Command) (block.Vec, [block.NumAxes]bool) {
	var target block.Vec
	var specified [block.NumAxes]bool
	for i, letter := range axisLetters {
		if cmd.HasParameter(letter) {
			target[i] = cmd.GetParameter(letter, 0)
			specified[i] = true
		}
	}
	return target, specified
}

func (ip *Interpreter) executeG(cmd *Command) (statcode.Code, error) {
	switch cmd.Number {
	case 0, 1: // linear move, rapid (G0) and feed (G1) alike
		return ip.doLine(cmd)
	case 2, 3: // arc move, CW (G2) / CCW (G3)
		return ip.doArc(cmd, cmd.Number == 2)
	case 4: // dwell
		seconds := cmd.GetParameter('P', 0)
		_, err := ip.machine.SubmitDwell(seconds)
		return statcode.COMPLETE, err
	case 17:
		ip.plane = arcgen.PlaneXY
	case 18:
		ip.plane = arcgen.PlaneXZ
	case 19:
		ip.plane = arcgen.PlaneYZ
	case 20:
		ip.machine.UnitsMode = units.Inches
	case 21:
		ip.machine.UnitsMode = units.Millimeters
	case 28:
		// Homing is out of scope for this core; accepted as a no-op so
		// a homing-cycle line in a program does not abort the run.
	case 90:
		ip.machine.Absolute = true
	case 91:
		ip.machine.Absolute = false
	case 92:
		target, specified := ip.specifiedTarget(cmd)
		ip.machine.SetPlannerPosition(target, specified)
	case 54, 55, 56, 57, 58, 59:
		ip.machine.SetActiveOffset(canonical.WorkOffset(cmd.Number - 54))
	}
	return statcode.COMPLETE, nil
}

func (ip *Interpreter) doLine(cmd *Command) (statcode.Code, error) {
	if cmd.HasParameter('F') {
		ip.feedRate = cmd.GetParameter('F', ip.feedRate)
	}
	target, specified := ip.specifiedTarget(cmd)
	_, err := ip.machine.SubmitLine(target, specified, ip.feedRate)
	if err != nil && errors.Is(err, statcode.ZeroLengthMove) {
		// A move with no net displacement (e.g. a line that only
		// carried an F word) is not an error worth surfacing.
		return statcode.COMPLETE, nil
	}
	return statcode.COMPLETE, err
}

// doArc builds the arc's absolute center and endpoint in canonical
// machine coordinates and hands it to the canonical machine, resolving
// either the I/J/K (center offset from start) or R (radius) forms.
func (ip *Interpreter) doArc(cmd *Command, clockwise bool) (statcode.Code, error) {
	if cmd.HasParameter('F') {
		ip.feedRate = cmd.GetParameter('F', ip.feedRate)
	}

	target, specified := ip.specifiedTarget(cmd)
	end := ip.machine.ToMachineTarget(target, specified)
	start := ip.machine.LastMachineTarget()

	uIdx, vIdx := planeAxes(ip.plane)

	var center block.Vec
	if cmd.HasParameter('R') {
		c, err := arcCenterFromRadius(start, end, cmd.GetParameter('R', 0), uIdx, vIdx, clockwise)
		if err != nil {
			return statcode.ArcSpecificationError, err
		}
		center = c
	} else {
		center = start
		if cmd.HasParameter('I') {
			center[uIdx] = start[uIdx] + cmd.GetParameter('I', 0)
		}
		if cmd.HasParameter('J') {
			center[vIdx] = start[vIdx] + cmd.GetParameter('J', 0)
		}
		if cmd.HasParameter('K') {
			depthIdx := 3 - uIdx - vIdx
			center[depthIdx] = start[depthIdx] + cmd.GetParameter('K', 0)
		}
	}

	code, err := ip.machine.SubmitArc(arcgen.Params{
		Start: start, End: end, Center: center,
		Plane: ip.plane, CW: clockwise, Feed: ip.feedRate,
		ChordTolerance: ip.machine.ChordTolerance,
		MinArcSegment:  ip.machine.MinArcSegment,
		MaxChordAngle:  ip.machine.MaxChordAngle,
	})
	if err != nil && errors.Is(err, statcode.ZeroLengthMove) {
		return statcode.COMPLETE, nil
	}
	return code, err
}

func planeAxes(p arcgen.Plane) (u, v int) {
	switch p {
	case arcgen.PlaneXZ:
		return 0, 2
	case arcgen.PlaneYZ:
		return 1, 2
	default:
		return 0, 1
	}
}

// arcCenterFromRadius derives the arc center from the R-word form: the
// center lies on the perpendicular bisector of the start/end chord, at
// distance R from both. A positive R selects the center on the side
// that sweeps less than a half circle; negative R selects the other.
func arcCenterFromRadius(start, end block.Vec, r float64, uIdx, vIdx int, clockwise bool) (block.Vec, error) {
	du, dv := end[uIdx]-start[uIdx], end[vIdx]-start[vIdx]
	chord := math.Hypot(du, dv)
	if chord == 0 {
		return block.Vec{}, statcode.Wrap(statcode.ArcSpecificationError, "R-form arc start equals end")
	}
	absR := math.Abs(r)
	if chord/2 > absR {
		return block.Vec{}, statcode.Wrap(statcode.ArcSpecificationError, "R-form radius too small for the programmed chord")
	}

	midU, midV := start[uIdx]+du/2, start[vIdx]+dv/2
	h := math.Sqrt(absR*absR - (chord/2)*(chord/2))
	// unit vector perpendicular to the chord
	perpU, perpV := -dv/chord, du/chord

	sign := 1.0
	if (r < 0) != clockwise {
		sign = -1.0
	}

	center := start
	center[uIdx] = midU + sign*h*perpU
	center[vIdx] = midV + sign*h*perpV
	return center, nil
}

func (ip *Interpreter) executeM(cmd *Command) (statcode.Code, error) {
	switch cmd.Number {
	case 3: // spindle on, clockwise
		return ip.submitSpindle(true, true, cmd.GetParameter('S', 0))
	case 4: // spindle on, counterclockwise
		return ip.submitSpindle(true, false, cmd.GetParameter('S', 0))
	case 5: // spindle stop
		return ip.submitSpindle(false, false, 0)
	case 7: // mist coolant on
		return ip.submitCoolant(false, true)
	case 8: // flood coolant on
		return ip.submitCoolant(true, false)
	case 9: // coolant off
		return ip.submitCoolant(false, false)
	}
	return statcode.COMPLETE, nil
}

func (ip *Interpreter) submitSpindle(on, clockwise bool, speed float64) (statcode.Code, error) {
	cb := func(block.Vec, block.Vec) {
		if ip.hooks.Spindle != nil {
			ip.hooks.Spindle(on, clockwise, speed)
		}
	}
	_, err := ip.machine.SubmitCommand(cb, block.Vec{}, block.Vec{})
	return statcode.COMPLETE, err
}

func (ip *Interpreter) submitCoolant(flood, mist bool) (statcode.Code, error) {
	cb := func(block.Vec, block.Vec) {
		if ip.hooks.Coolant != nil {
			ip.hooks.Coolant(flood, mist)
		}
	}
	_, err := ip.machine.SubmitCommand(cb, block.Vec{}, block.Vec{})
	return statcode.COMPLETE, err
}
