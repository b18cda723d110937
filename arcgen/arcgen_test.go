package arcgen

import (
	"errors"
	"testing"

	"cncfw/block"
	"cncfw/statcode"
)

func quarterCircleParams() Params {
	return Params{
		Start:          block.Vec{10, 0, 0},
		End:            block.Vec{0, 10, 0},
		Center:         block.Vec{0, 0, 0},
		Plane:          PlaneXY,
		CW:             false,
		Feed:           500,
		ChordTolerance: 0.01,
		MinArcSegment:  0.05,
		MaxChordAngle:  0.5,
	}
}

func TestNewComputesMultipleSegments(t *testing.T) {
	g, err := New(quarterCircleParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.segments < 2 {
		t.Errorf("expected a quarter circle of radius 10 to split into multiple chords, got %d", g.segments)
	}
}

func TestFinalChordSnapsToProgrammedEndpoint(t *testing.T) {
	g, _ := New(quarterCircleParams())
	var last block.Vec
	for !g.Done() {
		last = g.Next()
		g.Advance()
	}
	if last != g.p.End {
		t.Errorf("expected final chord to land exactly on %v, got %v", g.p.End, last)
	}
}

func TestRadiusMismatchIsArcSpecificationError(t *testing.T) {
	p := quarterCircleParams()
	p.End = block.Vec{0, 50, 0} // inconsistent radius vs start
	_, err := New(p)
	if !errors.Is(err, statcode.ArcSpecificationError) {
		t.Errorf("expected ArcSpecificationError, got %v", err)
	}
}

func TestZeroRadiusIsDegenerate(t *testing.T) {
	p := quarterCircleParams()
	p.Start = block.Vec{5, 5, 0}
	p.Center = block.Vec{5, 5, 0}
	p.End = block.Vec{5, 5, 0}
	g, err := New(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.Degenerate() {
		t.Error("expected a zero-radius arc to be reported as degenerate")
	}
}

func TestStepStopsOnBufferFullAndResumes(t *testing.T) {
	g, _ := New(quarterCircleParams())

	callCount := 0
	failing := func(target block.Vec, feed float64) error {
		callCount++
		if callCount == 2 {
			return statcode.Wrap(statcode.BufferFullFatal, "full")
		}
		return nil
	}

	code, err := g.Step(failing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != statcode.EAGAIN {
		t.Errorf("expected EAGAIN when the sink reports a full queue, got %v", code)
	}
	emittedAfterPause := g.emitted

	succeeding := func(target block.Vec, feed float64) error { return nil }
	code, err = g.Step(succeeding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != statcode.COMPLETE {
		t.Errorf("expected COMPLETE once the arc is resumed to exhaustion, got %v", code)
	}
	if g.emitted <= emittedAfterPause {
		t.Error("expected resuming Step to make forward progress from where it paused")
	}
}
