// Package runtime implements the segment-level motion runtime (the
// design notes' "mr"): it reads the planner's running block and emits
// one fixed-duration segment per invocation by evaluating the block's
// five-section jerk-limited velocity profile (head-accel, head-decel,
// body-cruise, tail-accel, tail-decel), using forward-difference
// accumulators rather than re-evaluating the velocity polynomial from
// scratch on every tick. It is the jerk-limited analogue of the donor's
// standalone/planner.Planner.executeNextMove, which used
// core.ScheduleTimer with a recursive completion-handler closure to
// chain one trapezoidal move into the next without blocking; here the
// chaining is expressed as the same cooperative Step/continuation
// pattern instead, since a single block now spans many segments.
package runtime

import (
	"math"

	"cncfw/block"
	"cncfw/core"
	"cncfw/planner"
	"cncfw/statcode"
)

// State is the runtime's block-execution state, per the segment
// runtime's state machine.
type State int

const (
	Off State = iota
	New
	Run
)

// HoldState tracks the feedhold/cycle-start state machine independently
// of the per-block Off/New/Run state, since a hold can be requested and
// released mid-block.
type HoldState int

const (
	HoldOff HoldState = iota
	HoldDecel // decelerating to zero in response to a feedhold request
	HoldHeld  // stopped, waiting for cycle start
	HoldResume // accelerating back to the interrupted velocity
)

const (
	// NomSegmentUsec is the nominal segment duration.
	NomSegmentUsec = 5000
	// MinSegmentUsec floors segment duration to avoid degenerate,
	// vanishingly short segments near zero velocity.
	MinSegmentUsec = 500
	// MinSegmentLen floors segment length in canonical mm for the same
	// reason, at very low feed rates.
	MinSegmentLen = 1e-4
)

type section int

const (
	sectionHeadAccel section = iota
	sectionHeadDecel
	sectionBodyCruise
	sectionTailAccel
	sectionTailDecel
	sectionDone
)

// Runtime owns the segment-level execution of whatever block the
// planner currently has running.
type Runtime struct {
	queue *planner.Queue

	state     State
	hold      HoldState
	preHoldV  float64 // velocity at the instant a feedhold was requested, for cycle-start resume

	block   *block.Block
	section section

	// mr position: tool coordinates as of the end of the last emitted
	// segment, the currently-in-flight segment's target, and the
	// owning block's final endpoint (to correct round-off once a block
	// is exhausted).
	position block.RuntimePosition

	// forward-difference state for the current section
	v       float64 // current velocity, mm/min
	diff1   float64 // velocity increment added each tick (integrates acceleration)
	diff2   float64 // constant second difference, jerk*dt^2
	lenDone float64 // distance consumed within the current section
	lenGoal float64 // total distance of the current section

	segmentUsec uint32
}

// New returns a Runtime bound to the given planner queue, at rest.
func New(q *planner.Queue) *Runtime {
	return &Runtime{queue: q, segmentUsec: NomSegmentUsec, state: Off}
}

// RequestFeedhold begins a jerk-limited deceleration to zero within the
// remaining portion of the current block. A no-op if already holding or
// idle.
func (r *Runtime) RequestFeedhold() {
	if r.state != Run || r.hold != HoldOff {
		return
	}
	r.preHoldV = r.v
	r.hold = HoldDecel
	core.RecordTiming(core.EvtFeedhold, 0, 0, uint32(HoldDecel), 0)
}

// RequestCycleStart reverses a feedhold, accelerating back to the
// velocity that was interrupted. A no-op unless currently held.
func (r *Runtime) RequestCycleStart() {
	if r.hold != HoldHeld {
		return
	}
	r.hold = HoldResume
	core.RecordTiming(core.EvtFeedhold, 0, 0, uint32(HoldResume), 0)
}

// HoldState reports the current feedhold state, e.g. for a status
// report.
func (r *Runtime) HoldState() HoldState { return r.hold }

// dtMinutes converts the configured segment duration to minutes, the
// time unit the velocity/jerk fields are expressed in.
func (r *Runtime) dtMinutes() float64 {
	return float64(r.segmentUsec) / 1e6 / 60.0
}

// PrepareSegment emits the next segment of the running block, loading a
// new block from the planner if none is in flight. Returns
// statcode.NOOP if there is nothing to run, statcode.COMPLETE once a
// segment has been produced, or a fault code.
func (r *Runtime) PrepareSegment() (block.Segment, statcode.Code, error) {
	if r.block == nil {
		b, ok := r.queue.GetRunBuffer()
		if !ok {
			return block.Segment{}, statcode.NOOP, nil
		}
		r.loadBlock(b)
	}

	switch r.block.MoveType {
	case block.Dwell:
		return r.prepareDwell()
	case block.SyncCommand:
		return r.prepareSyncCommand()
	case block.Stop:
		r.retire()
		return block.Segment{}, statcode.COMPLETE, nil
	default:
		return r.prepareLineSegment()
	}
}

func (r *Runtime) loadBlock(b *block.Block) {
	r.block = b
	r.state = New
	r.section = sectionHeadAccel
	r.v = b.EntryVelocity
	r.position.BlockEndpoint = b.Target
	r.startSection(b)
}

// startSection computes the forward-difference accumulators for the
// section the runtime is about to enter, from the block's precomputed
// head/body/tail lengths and entry/cruise/exit velocities.
func (r *Runtime) startSection(b *block.Block) {
	core.RecordTiming(core.EvtSegmentPrep, 0, 0, uint32(r.section), 0)
	dt := r.dtMinutes()
	switch r.section {
	case sectionHeadAccel, sectionHeadDecel:
		r.lenGoal = b.HeadLength / 2
		r.initJerkSection(r.v, midVelocity(b.EntryVelocity, b.CruiseVelocity), b.Jerk, r.section == sectionHeadDecel, dt)
	case sectionBodyCruise:
		r.lenGoal = b.BodyLength
		r.v = b.CruiseVelocity
		r.diff1 = 0
		r.diff2 = 0
	case sectionTailAccel, sectionTailDecel:
		r.lenGoal = b.TailLength / 2
		r.initJerkSection(r.v, midVelocity(b.CruiseVelocity, b.ExitVelocity), b.Jerk, r.section == sectionTailDecel, dt)
	}
	r.lenDone = 0
}

// midVelocity is the velocity at the midpoint of a symmetric two-phase
// jerk ramp between v0 and v1 - the peak (or trough) acceleration
// point where the first sub-phase hands off to the second.
func midVelocity(v0, v1 float64) float64 {
	return (v0 + v1) / 2
}

// initJerkSection seeds the forward-difference accumulators for one
// jerk-constant sub-phase running from vStart to vEnd over dt-minute
// ticks. decel inverts the jerk sign for the second half of a ramp,
// where acceleration magnitude is decreasing rather than increasing.
func (r *Runtime) initJerkSection(vStart, vEnd, jerk float64, decel bool, dt float64) {
	dv := vEnd - vStart
	if jerk <= 0 || dv == 0 {
		r.diff1 = 0
		r.diff2 = 0
		return
	}
	j := jerk
	if (decel && dv > 0) || (!decel && dv < 0) {
		j = -j
	}
	// forward_diff_2 is the constant second difference jerk*dt^2;
	// forward_diff_1 is seeded so the accel implied at the start of
	// this sub-phase matches the ramp's boundary condition.
	r.diff2 = j * dt * dt
	r.diff1 = r.diff2 / 2
}

// prepareLineSegment advances the forward-difference accumulators by
// one segment and emits the resulting per-axis step counts.
func (r *Runtime) prepareLineSegment() (block.Segment, statcode.Code, error) {
	b := r.block
	r.state = Run

	r.applyHold(b)

	dt := r.dtMinutes()
	v0 := r.v
	r.v += r.diff1
	r.diff1 += r.diff2
	if r.v < 0 {
		r.v = 0
	}

	segLen := (v0 + r.v) / 2 * dt
	remaining := r.lenGoal - r.lenDone
	if segLen > remaining {
		segLen = remaining
	}
	if segLen < 0 {
		segLen = 0
	}
	r.lenDone += segLen

	var target block.Vec
	for i := range target {
		target[i] = r.position.Position[i] + b.Unit[i]*segLen
	}

	// Per-motor step counts are derived by dda.Engine from Target using
	// each motor's steps_per_unit and its own preserved rounding
	// residual; the runtime only tracks axis-space canonical position.
	seg := block.Segment{
		Target:      target,
		SegmentUsec: r.segmentUsec,
		PositionEnd: target,
	}
	r.position.Position = target
	r.position.SegmentTarget = target

	if r.lenDone >= r.lenGoal-1e-9 {
		r.advanceSection(b)
	}

	return seg, statcode.COMPLETE, nil
}

// applyHold folds the feedhold/cycle-start state machine into the
// running section's target velocity: while decelerating for a hold,
// the jerk sign is forced negative regardless of which section the
// block profile is nominally in, and the runtime freezes entry into a
// new section until the hold clears.
func (r *Runtime) applyHold(b *block.Block) {
	switch r.hold {
	case HoldDecel:
		r.diff2 = -math.Abs(b.Jerk) * r.dtMinutes() * r.dtMinutes()
		if r.diff1 > 0 {
			r.diff1 = 0
		}
		if r.v <= 0 {
			r.v = 0
			r.hold = HoldHeld
		}
	case HoldResume:
		r.diff2 = math.Abs(b.Jerk) * r.dtMinutes() * r.dtMinutes()
		if r.diff1 < 0 {
			r.diff1 = 0
		}
		if r.v >= r.preHoldV {
			r.hold = HoldOff
		}
	}
}

func (r *Runtime) advanceSection(b *block.Block) {
	r.section++
	if r.section >= sectionDone {
		r.retire()
		return
	}
	// skip sections the profile collapsed to zero length
	for r.section < sectionDone && r.sectionLength(b) <= MinSegmentLen {
		r.section++
	}
	if r.section >= sectionDone {
		r.retire()
		return
	}
	r.startSection(b)
}

func (r *Runtime) sectionLength(b *block.Block) float64 {
	switch r.section {
	case sectionHeadAccel, sectionHeadDecel:
		return b.HeadLength / 2
	case sectionBodyCruise:
		return b.BodyLength
	case sectionTailAccel, sectionTailDecel:
		return b.TailLength / 2
	}
	return 0
}

func (r *Runtime) prepareDwell() (block.Segment, statcode.Code, error) {
	r.state = Run
	// Target must hold the machine's unchanged position, not the zero
	// value: dda.Engine.LoadSegment derives each motor's step delta from
	// Target against its own rounding residual, so a zero Target here
	// would read as "move every axis back to the origin".
	seg := block.Segment{
		Target:      r.position.Position,
		SegmentUsec: uint32(r.block.DwellSeconds * 1e6),
		PositionEnd: r.position.Position,
	}
	r.retire()
	return seg, statcode.COMPLETE, nil
}

func (r *Runtime) prepareSyncCommand() (block.Segment, statcode.Code, error) {
	if r.block.Callback != nil {
		r.block.Callback(r.block.ValueVec, r.block.FlagVec)
	}
	r.retire()
	return block.Segment{}, statcode.COMPLETE, nil
}

func (r *Runtime) retire() {
	r.position.Position = r.position.BlockEndpoint
	r.queue.RetireRunBuffer()
	r.block = nil
	r.state = Off
}

// HardStop immediately halts motion and discards every queued block,
// for an assertion-class fault (stepper overrun, internal error)
// rather than an operator-requested feedhold. Unlike RequestFeedhold,
// velocity snaps to zero without honoring the jerk profile - the
// fault already means the runtime can no longer trust the in-flight
// segment's timing - but the position model is left exactly where the
// last completed segment put it, so it remains consistent for
// whatever recovery the operator attempts next. The fault is reported
// via core.ExceptionChannel.
func (r *Runtime) HardStop(code statcode.Code, message string) {
	r.v = 0
	r.diff1 = 0
	r.diff2 = 0
	r.hold = HoldHeld
	if r.block != nil {
		// Flush keeps a running head block; retire it so nothing survives.
		r.queue.RetireRunBuffer()
	}
	r.block = nil
	r.state = Off
	r.queue.Flush()
	core.ReportException(uint8(code), message)
}

// Position returns the runtime's current position model.
func (r *Runtime) Position() block.RuntimePosition { return r.position }

// SetSegmentUsec overrides the configured segment duration, clamped to
// MinSegmentUsec.
func (r *Runtime) SetSegmentUsec(usec uint32) {
	if usec < MinSegmentUsec {
		usec = MinSegmentUsec
	}
	r.segmentUsec = usec
}
