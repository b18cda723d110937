// Package planner implements the look-ahead motion queue: a fixed-size
// ring buffer of block.Block entries, a forward/backward velocity
// look-ahead pass, and junction/cornering-deviation velocity limits.
// It is the jerk-limited generalization of the donor's
// standalone/planner.Planner, which queued trapezoidal moves in a
// plain slice with no look-ahead (each move planned against a fixed
// entry/exit velocity of zero). Here, per the design notes' "ring with
// back-links" approach, neighbor relationships are computed from the
// index arithmetic rather than stored as pointers, so the buffer never
// needs list-splicing.
package planner

import (
	"math"

	"cncfw/block"
	"cncfw/core"
	"cncfw/statcode"
)

// DefaultSize is the planner ring buffer depth. TinyG-class firmware
// typically runs 24-48 deep; deeper buffers look further ahead at the
// cost of RAM.
const DefaultSize = 32

// Queue is the jerk-limited look-ahead planner buffer.
type Queue struct {
	blocks [DefaultSize]block.Block

	head  int // index of the oldest block (next to run)
	count int // number of occupied slots

	lastTarget  block.Vec // planner's own cursor, the tail block's endpoint
	lastUnit    block.Vec
	haveLastUnit bool

	runningIdx int // index of the block currently executing, -1 if none
}

// NewQueue returns an empty planner buffer seeded at the given starting
// position.
func NewQueue(start block.Vec) *Queue {
	return &Queue{
		lastTarget: start,
		runningIdx: -1,
	}
}

func (q *Queue) next(i int) int { return (i + 1) % DefaultSize }

// Len reports the number of queued (not yet completed) blocks.
func (q *Queue) Len() int { return q.count }

// Full reports whether the buffer has no free slot for a new block.
func (q *Queue) Full() bool { return q.count == DefaultSize }

// at returns the buffer slot for logical position i from the head
// (0 = oldest/head, Len()-1 = newest/tail).
func (q *Queue) at(i int) *block.Block {
	return &q.blocks[(q.head+i)%DefaultSize]
}

// GetAt returns the block at logical position i from the head (0 =
// oldest/next to run). Exposed for introspection by callers such as
// the status reporter and tests; panics like a slice index if i is out
// of [0, Len()) range.
func (q *Queue) GetAt(i int) *block.Block {
	if i < 0 || i >= q.count {
		panic("planner: GetAt index out of range")
	}
	return q.at(i)
}

// LastTarget returns the planner's own cursor: the endpoint of the
// most recently queued move (or the seeded starting position if
// nothing has been queued yet). Callers computing a new move's delta
// should use this rather than the runtime's position, since it already
// accounts for moves still waiting in the look-ahead buffer.
func (q *Queue) LastTarget() (block.Vec, bool) {
	return q.lastTarget, true
}

// SetPosition rebases the planner's cursor without queueing a move,
// for G92-style "set position" commands. It also clears the remembered
// last unit vector, since the next queued move no longer has a real
// predecessor direction to corner against.
func (q *Queue) SetPosition(pos block.Vec) {
	q.lastTarget = pos
	q.haveLastUnit = false
}

// Flush discards every queued block that is not currently running,
// for an abort or reset. The running block (if any) is left alone so
// the runtime currently consuming it is not left referencing a reset
// slot out from under it.
func (q *Queue) Flush() {
	if q.count == 0 {
		return
	}
	if q.runningIdx < 0 {
		for i := 0; i < q.count; i++ {
			q.at(i).Reset()
		}
		q.head = 0
		q.count = 0
		return
	}
	running := *q.at(0)
	for i := 0; i < q.count; i++ {
		q.at(i).Reset()
	}
	*q.at(0) = running
	q.head = 0
	q.count = 1
}

// LineParams carries the per-move limits the canonical machine
// computed from the axis data model; the planner itself holds no
// notion of per-axis feed rates.
type LineParams struct {
	Target     block.Vec
	CruiseVmax float64 // feed-capped cruise speed for this move, mm/min
	Jerk       float64 // worst-case per-axis jerk for this move, mm/min^3
	JunctionDeviation float64
}

// QueueLine appends a straight-line move to the buffer, computing its
// unit vector, length, and junction velocity against the previous
// queued move, then triggers a replan. Returns ZeroLengthMove if the
// target coincides with the planner's current cursor, or
// BufferFullFatal if the ring has no free slot.
func (q *Queue) QueueLine(p LineParams) (*block.Block, error) {
	if q.Full() {
		return nil, statcode.Wrap(statcode.BufferFullFatal, "planner queue is full")
	}

	delta := p.Target.Sub(q.lastTarget)
	length := vecLength(delta)
	if length == 0 {
		return nil, statcode.Wrap(statcode.ZeroLengthMove, "move target equals current position")
	}

	var unit block.Vec
	for i := range unit {
		unit[i] = delta[i] / length
	}

	b := q.at(q.count)
	b.Reset()
	b.MoveType = block.Line
	b.State = block.StateQueued
	b.Target = p.Target
	b.Unit = unit
	b.Length = length
	b.Jerk = p.Jerk
	b.CruiseVmax = p.CruiseVmax
	b.EntryVmax = p.CruiseVmax
	b.ExitVmax = p.CruiseVmax
	b.Replannable = true

	if q.haveLastUnit {
		jv := junctionVelocity(q.lastUnit, unit, p.JunctionDeviation, p.Jerk)
		if jv < b.EntryVmax {
			b.EntryVmax = jv
		}
	} else {
		// first move queued from rest
		b.EntryVmax = 0
	}

	q.count++
	q.lastTarget = p.Target
	q.lastUnit = unit
	q.haveLastUnit = true

	core.RecordTiming(core.EvtBlockCommit, 0, 0, uint32(q.count), 0)
	q.Replan()
	return b, nil
}

// QueueDwell appends a dwell (pause) block that carries no motion.
func (q *Queue) QueueDwell(seconds float64) (*block.Block, error) {
	if q.Full() {
		return nil, statcode.Wrap(statcode.BufferFullFatal, "planner queue is full")
	}
	b := q.at(q.count)
	b.Reset()
	b.MoveType = block.Dwell
	b.State = block.StateQueued
	b.DwellSeconds = seconds
	q.count++
	return b, nil
}

// QueueCommand appends a synchronous command block: a callback that
// must run in queue order, after every motion ahead of it has actually
// completed (not merely been planned).
func (q *Queue) QueueCommand(cb block.CommandCallback, values, flags block.Vec) (*block.Block, error) {
	if q.Full() {
		return nil, statcode.Wrap(statcode.BufferFullFatal, "planner queue is full")
	}
	b := q.at(q.count)
	b.Reset()
	b.MoveType = block.SyncCommand
	b.State = block.StateQueued
	b.Callback = cb
	b.ValueVec = values
	b.FlagVec = flags
	q.count++
	return b, nil
}

// GetRunBuffer returns the head block if one is available to run and
// marks it Running. A head block that is already running is returned
// again. Returns false if the queue is empty or the head block is
// neither queued, pending nor running.
func (q *Queue) GetRunBuffer() (*block.Block, bool) {
	if q.count == 0 {
		return nil, false
	}
	b := q.at(0)
	if b.State == block.StateRunning {
		return b, true
	}
	if b.State != block.StateQueued && b.State != block.StatePending {
		return nil, false
	}
	b.State = block.StateRunning
	q.runningIdx = 0
	return b, true
}

// RetireRunBuffer marks the head block consumed and advances the ring.
// Must only be called once the runtime has emitted the block's final
// segment.
func (q *Queue) RetireRunBuffer() {
	if q.count == 0 {
		return
	}
	q.at(0).Reset()
	q.head = q.next(q.head)
	q.count--
	q.runningIdx = -1
}

// Replan re-runs the backward and forward look-ahead passes over every
// non-running queued block. It is idempotent: running it twice in a row
// with no intervening QueueLine produces the same velocities, since
// each pass is a pure function of EntryVmax/ExitVmax/Length/Jerk and the
// immediately adjacent block's already-settled velocity - it never
// looks at its own previous output.
func (q *Queue) Replan() {
	n := q.count
	if n == 0 {
		return
	}
	core.RecordTiming(core.EvtReplan, 0, 0, uint32(n), 0)

	first := 0
	if q.runningIdx >= 0 {
		first = 1 // never touch the running block
	}
	if first >= n {
		return
	}

	// Backward pass: newest to oldest. Each block's exit velocity is
	// the next block's already-settled entry velocity (or zero for the
	// newest block in the queue, which must be prepared to stop since
	// nothing is queued after it yet).
	for i := n - 1; i >= first; i-- {
		b := q.at(i)
		if b.MoveType != block.Line {
			continue
		}
		var exitLimit float64
		if i == n-1 {
			exitLimit = 0
		} else {
			exitLimit = q.at(i + 1).EntryVelocity
		}
		b.ExitVelocity = exitLimit
		braking := reachableVelocity(exitLimit, b.Length, b.Jerk)
		b.BrakingVelocity = braking
		entry := b.EntryVmax
		if braking < entry {
			entry = braking
		}
		b.EntryVelocity = entry
	}

	// Forward pass: oldest to newest. A newer block can never plan to
	// enter faster than the previous block's settled entry velocity
	// could actually accelerate to over the previous block's length -
	// this is the tie-break rule that keeps replanning idempotent and
	// keeps a later move from outrunning what its predecessor can
	// actually deliver.
	for i := first; i < n; i++ {
		b := q.at(i)
		if b.MoveType != block.Line {
			continue
		}
		if i > first {
			prev := q.at(i - 1)
			if prev.MoveType == block.Line {
				reachable := reachableVelocity(prev.EntryVelocity, prev.Length, prev.Jerk)
				if reachable < b.EntryVelocity {
					b.EntryVelocity = reachable
					// prev.ExitVelocity must stay equal to this block's
					// entry velocity (the queue has no gap between
					// adjacent blocks); re-derive prev's profile since its
					// exit velocity just changed.
					prev.ExitVelocity = reachable
					q.computeProfile(prev)
				}
			}
		}
		q.computeProfile(b)
	}
}

// computeProfile derives the head/body/tail section lengths and cruise
// velocity for a block whose entry and exit velocities have already
// been settled by the look-ahead passes.
func (q *Queue) computeProfile(b *block.Block) {
	cruise := b.CruiseVmax
	if cruise < b.EntryVelocity {
		cruise = b.EntryVelocity
	}
	if cruise < b.ExitVelocity {
		cruise = b.ExitVelocity
	}

	head := rampDistance(b.EntryVelocity, cruise, b.Jerk)
	tail := rampDistance(cruise, b.ExitVelocity, b.Jerk)

	if head+tail > b.Length {
		// Too short to reach the planned cruise velocity: collapse to
		// a triangle profile with no body section.
		cruise = triangleCruise(b.EntryVelocity, b.ExitVelocity, b.Length, b.Jerk)
		head = rampDistance(b.EntryVelocity, cruise, b.Jerk)
		tail = b.Length - head
		if tail < 0 {
			tail = 0
		}
	}

	b.CruiseVelocity = cruise
	b.HeadLength = head
	b.TailLength = tail
	b.BodyLength = b.Length - head - tail
	if b.BodyLength < 0 {
		b.BodyLength = 0
	}
}

func vecLength(v block.Vec) float64 {
	var sum float64
	for _, c := range v {
		sum += c * c
	}
	return math.Sqrt(sum)
}
