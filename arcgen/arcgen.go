// Package arcgen decomposes a circular arc primitive into a sequence
// of short line blocks submitted to the planner, restartable if the
// planner queue is momentarily full. It has no direct donor
// counterpart (amken3d-gopper's standalone/kinematics package only
// does straight-line Cartesian/CoreXY transforms); it follows the
// same cooperative Step/continuation idiom used throughout this
// module's runtime and feedhold handling, persisting its sweep
// progress between calls exactly as the design notes require.
package arcgen

import (
	"math"

	"cncfw/block"
	"cncfw/statcode"
)

// Plane selects which two machine axes the arc sweeps in; the third is
// the linear (helical) axis.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

var planeAxisIndex = map[Plane][2]int{
	PlaneXY: {0, 1},
	PlaneXZ: {0, 2},
	PlaneYZ: {1, 2},
}

// LineSink receives each generated chord as a standard line block
// target; normally planner.Queue.QueueLine via a small adapter closure.
type LineSink func(target block.Vec, feed float64) error

// Params describes one arc submission from the canonical machine.
type Params struct {
	Start  block.Vec
	End    block.Vec
	Center block.Vec // absolute center, in the arc's plane
	Plane  Plane
	CW     bool
	Feed   float64

	ChordTolerance  float64
	MinArcSegment   float64
	MaxChordAngle   float64 // radians
}

// Generator holds persistent state for a single in-progress arc so it
// can resume after a planner-queue-full pause.
type Generator struct {
	p Params

	uIdx, vIdx int
	radius     float64
	startAngle float64
	sweep      float64

	segments   int
	emitted    int

	depthStart float64 // linear axis position at arc start
	depthTotal float64 // total linear travel across the whole arc (helical moves)
}

// New validates and prepares an arc for generation. Returns
// ArcSpecificationError if the start/end radii disagree beyond
// tolerance. A zero or infinite radius degrades to a
// single line block, signaled by Generator.Degenerate().
func New(p Params) (*Generator, error) {
	idx, ok := planeAxisIndex[p.Plane]
	if !ok {
		return nil, statcode.Wrap(statcode.ArcSpecificationError, "unknown arc plane")
	}
	u, v := idx[0], idx[1]

	rStart := math.Hypot(p.Start[u]-p.Center[u], p.Start[v]-p.Center[v])
	rEnd := math.Hypot(p.End[u]-p.Center[u], p.End[v]-p.Center[v])
	if math.Abs(rStart-rEnd) > 1e-3*math.Max(1, rStart) {
		return nil, statcode.Wrapf(statcode.ArcSpecificationError,
			"start radius %.6f and end radius %.6f disagree", rStart, rEnd)
	}

	g := &Generator{p: p, uIdx: u, vIdx: v, radius: rStart}

	depthIdx := 3 - u - v // the remaining axis of {0,1,2} not used by the plane
	g.depthStart = p.Start[depthIdx]
	g.depthTotal = p.End[depthIdx] - p.Start[depthIdx]

	if rStart < 1e-9 || math.IsInf(rStart, 0) {
		g.segments = 0 // degenerate: caller should submit a single line instead
		return g, nil
	}

	startAngle := math.Atan2(p.Start[v]-p.Center[v], p.Start[u]-p.Center[u])
	endAngle := math.Atan2(p.End[v]-p.Center[v], p.End[u]-p.Center[u])

	sweep := endAngle - startAngle
	if p.CW {
		for sweep > 0 {
			sweep -= 2 * math.Pi
		}
	} else {
		for sweep < 0 {
			sweep += 2 * math.Pi
		}
	}
	if sweep == 0 {
		sweep = 2 * math.Pi // full circle, start == end
		if p.CW {
			sweep = -2 * math.Pi
		}
	}

	g.startAngle = startAngle
	g.sweep = sweep

	maxChordLen := 2 * math.Sqrt(math.Max(0, rStart*rStart-math.Pow(rStart-p.ChordTolerance, 2)))
	arcLen := math.Abs(sweep) * rStart

	byLength := 1
	if maxChordLen > 0 {
		byLength = int(math.Ceil(arcLen / maxChordLen))
	}
	byAngle := 1
	if p.MaxChordAngle > 0 {
		byAngle = int(math.Ceil(math.Abs(sweep) / p.MaxChordAngle))
	}

	n := byLength
	if byAngle > n {
		n = byAngle
	}
	if n < 1 {
		n = 1
	}

	// Never let a segment fall below min_arc_segment: if the naive
	// count would produce shorter chords than that floor, reduce the
	// segment count (coarsening, never below 1) rather than emitting a
	// run of degenerate micro-segments.
	if p.MinArcSegment > 0 {
		for n > 1 && arcLen/float64(n) < p.MinArcSegment {
			n--
		}
	}

	g.segments = n
	return g, nil
}

// Degenerate reports whether the arc collapsed to a zero or
// infinite radius and should be submitted as a single
// line from Start to End instead of being stepped through Next.
func (g *Generator) Degenerate() bool { return g.segments == 0 }

// Done reports whether every chord has already been emitted.
func (g *Generator) Done() bool { return g.segments > 0 && g.emitted >= g.segments }

// Next computes the target of the next chord without submitting it,
// letting the caller retry submission (e.g. on a full planner queue)
// without recomputing or skipping a step. Call Advance once the chord
// has actually been queued.
func (g *Generator) Next() block.Vec {
	i := g.emitted + 1
	theta := g.startAngle + g.sweep*float64(i)/float64(g.segments)

	target := g.p.Start
	target[g.uIdx] = g.p.Center[g.uIdx] + g.radius*math.Cos(theta)
	target[g.vIdx] = g.p.Center[g.vIdx] + g.radius*math.Sin(theta)

	depthIdx := 3 - g.uIdx - g.vIdx
	target[depthIdx] = g.depthStart + g.depthTotal*float64(i)/float64(g.segments)

	if i == g.segments {
		// correct accumulated trig round-off by snapping the final
		// chord exactly to the programmed endpoint
		target = g.p.End
	}
	return target
}

// Advance marks the most recently computed chord as queued.
func (g *Generator) Advance() { g.emitted++ }

// Step drives the generator through sink until the queue is full or
// the arc is exhausted, returning statcode.EAGAIN if it stopped on a
// full queue (call again later with the same sink) or statcode.COMPLETE
// once every chord has been submitted.
func (g *Generator) Step(sink LineSink) (statcode.Code, error) {
	for !g.Done() {
		target := g.Next()
		if err := sink(target, g.p.Feed); err != nil {
			if statcodeIsBufferFull(err) {
				return statcode.EAGAIN, nil
			}
			return statcode.InternalError, err
		}
		g.Advance()
	}
	return statcode.COMPLETE, nil
}

func statcodeIsBufferFull(err error) bool {
	se, ok := err.(*statcode.StatError)
	if !ok {
		return false
	}
	return se.Code == statcode.BufferFullFatal || se.Code == statcode.BufferFullNonFatal
}
