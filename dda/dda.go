// Package dda implements the step pulse generator: a Bresenham-style
// multi-axis digital differential analyzer that converts the runtime's
// per-axis canonical-position segments into per-motor step pulses. It
// is grounded in two donor idioms combined: standalone/stepgen's
// core.Timer-per-axis step scheduling (here collapsed to one shared
// tick driving every motor, per the design notes), and
// core.Scheduler's two-priority timer-queue model, of which this
// package owns the high-priority instance.
//
// Load (segment commit, low-priority) and Tick (step emission,
// high-priority) are kept as two explicit halves so a caller on real
// hardware can bind Tick to a hardware timer ISR and Load to the
// software-interrupt context the design notes describe, while a host
// simulation can simply call both from one loop.
package dda

import (
	"math"

	"github.com/pkg/errors"

	"cncfw/axis"
	"cncfw/block"
	"cncfw/core"
	"cncfw/statcode"
)

// TickUsec is the DDA's shared tick period. It must evenly divide the
// runtime's segment duration for the Bresenham accumulator to land
// exactly on the segment boundary.
const TickUsec = 50

// MotorBinding associates one physical motor with the hardware stepper
// backend that actually pulses it and the logical axis it is slaved
// to.
type MotorBinding struct {
	Motor   *axis.Motor
	Stepper *core.Stepper
	Axis    axis.Name
}

// Engine is the multi-axis step pulse generator.
type Engine struct {
	motors []MotorBinding

	ticksTotal uint32
	ticksDone  uint32

	stepsNeeded []int32 // signed steps remaining to emit this segment, per motor
	accum       []int32 // Bresenham error accumulator, per motor
	residual    []int64 // cumulative rounded step position already emitted, per motor

	lastActivityUsec []uint64
	nowUsec          uint64

	// PowerControl, if set, is invoked when a motor crosses its
	// configured idle timeout (power down) or resumes motion (power
	// up). Motors with PowerMode AlwaysOn never trigger the power-down
	// call.
	PowerControl func(motorID int, enabled bool)

	powered []bool

	// fault fans a step-overflow assertion out to every registered
	// listener (a status reporter, an emergency-stop relay) in the same
	// tick it is detected, adapted from the donor's homing-only trsync
	// protocol into a general hard-stop broadcast.
	fault *core.TriggerSync
}

// NewEngine binds a DDA engine to a fixed set of motors, in the order
// the runtime's RuntimePosition axis components are laid out.
func NewEngine(bindings []MotorBinding) *Engine {
	e := &Engine{
		motors:           bindings,
		stepsNeeded:      make([]int32, len(bindings)),
		accum:            make([]int32, len(bindings)),
		residual:         make([]int64, len(bindings)),
		lastActivityUsec: make([]uint64, len(bindings)),
		powered:          make([]bool, len(bindings)),
		fault:            core.NewTriggerSync(0),
	}
	for i := range e.powered {
		e.powered[i] = true
	}
	return e
}

// LoadSegment commits a new segment's per-motor step counts and
// direction bits. Direction is latched once per segment, per the
// contract's "direction bits... into the active timer registers" - a
// segment is assumed monotonic per axis, consistent with the runtime
// never reversing direction mid-segment.
func (e *Engine) LoadSegment(seg block.Segment) error {
	if seg.SegmentUsec == 0 {
		e.ticksTotal = 0
		e.ticksDone = 0
		return nil
	}

	ticks := seg.SegmentUsec / TickUsec
	if ticks == 0 {
		ticks = 1
	}

	for i, m := range e.motors {
		rawSteps := seg.Target[m.Axis] * m.Motor.StepsPerUnit()
		rounded := int64(math.Round(rawSteps))
		delta := rounded - e.residual[i]
		e.residual[i] = rounded

		if delta > int64(ticks) || -delta > int64(ticks) {
			core.TriggerSyncDoTrigger(e.fault, uint8(statcode.StepperAssertionFailure))
			return statcode.Wrapf(statcode.StepperAssertionFailure,
				"motor %d needs %d steps in %d ticks, exceeds one step per tick", m.Motor.ID, delta, ticks)
		}

		e.stepsNeeded[i] = int32(delta)
		e.accum[i] = 0

		reverse := delta < 0
		m.Stepper.SetDirection(reverse)

		e.setPowered(i, delta != 0)
	}

	e.ticksTotal = ticks
	e.ticksDone = 0
	core.RecordTiming(core.EvtLoadMove, 0, uint32(e.nowUsec), uint32(ticks), 0)
	return nil
}

// setPowered enforces each motor's idle-power policy, invoking
// PowerControl on a power-state transition.
func (e *Engine) setPowered(i int, active bool) {
	if active {
		e.lastActivityUsec[i] = e.nowUsec
		if !e.powered[i] {
			e.powered[i] = true
			if e.PowerControl != nil {
				e.PowerControl(e.motors[i].Motor.ID, true)
			}
		}
	}
}

// Tick advances the Bresenham accumulators by one tick period, issuing
// a step pulse for any motor whose accumulator has overflowed. Returns
// true while the current segment still has ticks remaining; false once
// it is exhausted, signaling the caller (the low-priority exec path) to
// load the next prepared segment.
func (e *Engine) Tick() bool {
	if e.ticksTotal == 0 || e.ticksDone >= e.ticksTotal {
		return false
	}

	for i, m := range e.motors {
		steps := e.stepsNeeded[i]
		mag := steps
		if mag < 0 {
			mag = -mag
		}
		e.accum[i] += mag
		for e.accum[i] >= int32(e.ticksTotal) {
			m.Stepper.Step()
			e.accum[i] -= int32(e.ticksTotal)
			core.AddStepCount(1)
			core.RecordTiming(core.EvtTimerFire, uint8(m.Motor.ID), uint32(e.nowUsec), 0, 0)
		}
	}

	e.ticksDone++
	e.nowUsec += TickUsec
	return e.ticksDone < e.ticksTotal
}

// PollIdleTimeouts checks every motor's configured idle timeout against
// how long it has been since its last nonzero step delta, powering it
// down through PowerControl once the timeout elapses. Intended to be
// called from the low-priority exec path, not the tick itself.
func (e *Engine) PollIdleTimeouts(nowUsec uint64) {
	for i, m := range e.motors {
		if m.Motor.Power != axis.IdleOffAfterTimeout || !e.powered[i] {
			continue
		}
		idleUsec := float64(nowUsec-e.lastActivityUsec[i]) / 1e6
		if idleUsec >= m.Motor.IdleTimeoutSec {
			e.powered[i] = false
			if e.PowerControl != nil {
				e.PowerControl(m.Motor.ID, false)
			}
		}
	}
}

// Position returns the current hardware step position for each bound
// motor, in step units.
func (e *Engine) Position() []int64 {
	out := make([]int64, len(e.motors))
	for i, m := range e.motors {
		out[i] = m.Stepper.GetPosition()
	}
	return out
}

var errNoMotors = errors.New("dda: engine has no bound motors")

// OnFault registers a callback invoked when the DDA detects a segment
// overrun (more steps demanded in a segment than ticks available to
// emit them, the "overrun... is an assertion failure" case from the
// contract). Typically bound by the embedding binary to
// runtime.Runtime.HardStop so a pulse-timing fault halts the whole
// machine in the same tick it is detected, not just the motor that
// tripped it.
func (e *Engine) OnFault(cb func(reason uint8)) {
	core.TriggerSyncAddSignal(e.fault, cb)
}

// Validate reports an error if the engine was constructed with no
// motor bindings, a configuration mistake that would otherwise silently
// produce no step output at all.
func (e *Engine) Validate() error {
	if len(e.motors) == 0 {
		return errNoMotors
	}
	return nil
}
