package canonical

import (
	"testing"

	"cncfw/arcgen"
	"cncfw/axis"
	"cncfw/block"
	"cncfw/planner"
	"cncfw/units"
)

func testMachine() *Machine {
	am := axis.NewMachine()
	for i := range am.Axes {
		am.Axes[i].Mode = axis.Standard
		am.Axes[i].VelocityMax = 5000
		am.Axes[i].FeedMax = 3000
		am.Axes[i].JerkMax = 5e7
		am.Axes[i].JunctionDeviation = 0.05
	}
	q := planner.NewQueue(block.Vec{})
	return NewMachine(am, q)
}

func allSpecified() [block.NumAxes]bool {
	var s [block.NumAxes]bool
	for i := range s {
		s[i] = true
	}
	return s
}

func TestSubmitLineAppliesFeedCap(t *testing.T) {
	m := testMachine()
	b, err := m.SubmitLine(block.Vec{100, 0, 0}, allSpecified(), 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CruiseVmax > 3000 {
		t.Errorf("expected cruise vmax capped to feed_max 3000, got %v", b.CruiseVmax)
	}
}

func TestSubmitLineInchesConvertsToCanonicalMM(t *testing.T) {
	m := testMachine()
	m.UnitsMode = units.Inches
	b, err := m.SubmitLine(block.Vec{1, 0, 0}, allSpecified(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := b.Target[0] - 25.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected 1 inch to become 25.4mm canonical, got %v", b.Target[0])
	}
}

func TestSubmitLineIncrementalAccumulates(t *testing.T) {
	m := testMachine()
	m.Absolute = false
	m.SubmitLine(block.Vec{10, 0, 0}, allSpecified(), 500)
	b, err := m.SubmitLine(block.Vec{10, 0, 0}, allSpecified(), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Target[0] != 20 {
		t.Errorf("expected incremental moves to accumulate to 20, got %v", b.Target[0])
	}
}

func TestWorkOffsetShiftsAbsoluteTarget(t *testing.T) {
	m := testMachine()
	m.SetWorkOffset(G55, block.Vec{50, 0, 0})
	m.SetActiveOffset(G55)
	b, err := m.SubmitLine(block.Vec{10, 0, 0}, allSpecified(), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Target[0] != 60 {
		t.Errorf("expected G55 offset of 50 to shift programmed 10 to machine 60, got %v", b.Target[0])
	}
}

func TestSubmitArcQueuesMultipleChords(t *testing.T) {
	m := testMachine()
	m.Queue = planner.NewQueue(block.Vec{10, 0, 0})

	code, err := m.SubmitArc(arcgen.Params{
		Start:          block.Vec{10, 0, 0},
		End:            block.Vec{0, 10, 0},
		Center:         block.Vec{0, 0, 0},
		Plane:          arcgen.PlaneXY,
		Feed:           500,
		ChordTolerance: 0.01,
		MinArcSegment:  0.05,
		MaxChordAngle:  0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code.String() != "COMPLETE" {
		t.Errorf("expected COMPLETE, got %v", code)
	}
	if m.Queue.Len() < 2 {
		t.Errorf("expected a quarter circle to queue multiple chords, got %d", m.Queue.Len())
	}
}
