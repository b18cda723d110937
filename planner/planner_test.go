package planner

import (
	"errors"
	"math"
	"testing"

	"cncfw/block"
	"cncfw/statcode"
)

func TestQueueLineStraightReachesCruise(t *testing.T) {
	q := NewQueue(block.Vec{})
	b, err := q.QueueLine(LineParams{
		Target:     block.Vec{100, 0, 0},
		CruiseVmax: 1000,
		Jerk:       1e7,
		JunctionDeviation: 0.05,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CruiseVelocity <= 0 {
		t.Errorf("expected a positive cruise velocity, got %v", b.CruiseVelocity)
	}
	if b.HeadLength+b.BodyLength+b.TailLength-b.Length > 1e-6 {
		t.Errorf("section lengths %v+%v+%v should sum to block length %v",
			b.HeadLength, b.BodyLength, b.TailLength, b.Length)
	}
}

func TestQueueLineZeroLength(t *testing.T) {
	q := NewQueue(block.Vec{1, 1, 1})
	_, err := q.QueueLine(LineParams{Target: block.Vec{1, 1, 1}, CruiseVmax: 100, Jerk: 1e6})
	if !errors.Is(err, statcode.ZeroLengthMove) {
		t.Errorf("expected ZeroLengthMove, got %v", err)
	}
}

func TestQueueFullReturnsBufferFullFatal(t *testing.T) {
	q := NewQueue(block.Vec{})
	var last error
	for i := 0; i < DefaultSize+1; i++ {
		_, last = q.QueueLine(LineParams{
			Target:     block.Vec{float64(i + 1), 0, 0},
			CruiseVmax: 100,
			Jerk:       1e6,
		})
	}
	if !errors.Is(last, statcode.BufferFullFatal) {
		t.Errorf("expected BufferFullFatal once the ring is full, got %v", last)
	}
}

func TestCornerSlowsBelowStraightLineCruise(t *testing.T) {
	q := NewQueue(block.Vec{})
	q.QueueLine(LineParams{Target: block.Vec{100, 0, 0}, CruiseVmax: 1000, Jerk: 1e6, JunctionDeviation: 0.05})
	corner, err := q.QueueLine(LineParams{Target: block.Vec{100, 100, 0}, CruiseVmax: 1000, Jerk: 1e6, JunctionDeviation: 0.05})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corner.EntryVelocity >= 1000 {
		t.Errorf("expected a sharp 90 degree corner to cap entry velocity well below cruise, got %v", corner.EntryVelocity)
	}
}

func TestReversalForcesFullStop(t *testing.T) {
	q := NewQueue(block.Vec{})
	q.QueueLine(LineParams{Target: block.Vec{100, 0, 0}, CruiseVmax: 1000, Jerk: 1e6, JunctionDeviation: 0.05})
	reversal, _ := q.QueueLine(LineParams{Target: block.Vec{0, 0, 0}, CruiseVmax: 1000, Jerk: 1e6, JunctionDeviation: 0.05})
	if reversal.EntryVelocity != 0 {
		t.Errorf("expected a 180 degree reversal to force entry velocity to 0, got %v", reversal.EntryVelocity)
	}
}

func TestReplanIsIdempotent(t *testing.T) {
	q := NewQueue(block.Vec{})
	q.QueueLine(LineParams{Target: block.Vec{100, 0, 0}, CruiseVmax: 1000, Jerk: 1e6, JunctionDeviation: 0.05})
	q.QueueLine(LineParams{Target: block.Vec{200, 50, 0}, CruiseVmax: 800, Jerk: 1e6, JunctionDeviation: 0.05})

	before := make([]float64, q.Len())
	for i := 0; i < q.Len(); i++ {
		before[i] = q.at(i).EntryVelocity
	}
	q.Replan()
	for i := 0; i < q.Len(); i++ {
		if math.Abs(q.at(i).EntryVelocity-before[i]) > 1e-9 {
			t.Errorf("replan was not idempotent at block %d: %v -> %v", i, before[i], q.at(i).EntryVelocity)
		}
	}
}

func TestNewerBlockNeverOutrunsPredecessor(t *testing.T) {
	q := NewQueue(block.Vec{})
	// A very short first move can't accelerate to cruise; the second
	// move must not plan an entry velocity faster than the first move
	// could actually deliver by its own end.
	q.QueueLine(LineParams{Target: block.Vec{0.01, 0, 0}, CruiseVmax: 10000, Jerk: 1e6, JunctionDeviation: 0.05})
	second, _ := q.QueueLine(LineParams{Target: block.Vec{1000, 0, 0}, CruiseVmax: 10000, Jerk: 1e6, JunctionDeviation: 0.05})

	first := q.at(0)
	reachable := reachableVelocity(first.EntryVelocity, first.Length, first.Jerk)
	if second.EntryVelocity > reachable+1e-6 {
		t.Errorf("second block entry %v exceeds what the first block could reach %v", second.EntryVelocity, reachable)
	}
}

func TestForwardPassClampResyncsPredecessorExit(t *testing.T) {
	q := NewQueue(block.Vec{})
	// Same short-first-move setup as TestNewerBlockNeverOutrunsPredecessor:
	// the second block's entry gets clamped down to what the first block
	// can actually reach by its own end. That clamp must also update the
	// first block's exit velocity and profile to match, or the queue
	// ends up with block[0].ExitVelocity != block[1].EntryVelocity.
	q.QueueLine(LineParams{Target: block.Vec{0.01, 0, 0}, CruiseVmax: 10000, Jerk: 1e6, JunctionDeviation: 0.05})
	second, _ := q.QueueLine(LineParams{Target: block.Vec{1000, 0, 0}, CruiseVmax: 10000, Jerk: 1e6, JunctionDeviation: 0.05})

	first := q.at(0)
	if math.Abs(first.ExitVelocity-second.EntryVelocity) > 1e-6 {
		t.Errorf("adjacency invariant violated: block[0].ExitVelocity=%v block[1].EntryVelocity=%v",
			first.ExitVelocity, second.EntryVelocity)
	}
	if first.HeadLength+first.BodyLength+first.TailLength-first.Length > 1e-6 {
		t.Errorf("predecessor profile not re-derived after exit velocity changed: %v+%v+%v vs length %v",
			first.HeadLength, first.BodyLength, first.TailLength, first.Length)
	}
}

func TestRetireRunBufferAdvancesRing(t *testing.T) {
	q := NewQueue(block.Vec{})
	q.QueueLine(LineParams{Target: block.Vec{10, 0, 0}, CruiseVmax: 100, Jerk: 1e6})
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued block, got %d", q.Len())
	}
	b, ok := q.GetRunBuffer()
	if !ok || b.State != block.StateRunning {
		t.Fatalf("expected head block to become running")
	}
	q.RetireRunBuffer()
	if q.Len() != 0 {
		t.Errorf("expected queue to be empty after retiring the only block, got %d", q.Len())
	}
}
