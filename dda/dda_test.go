package dda

import (
	"testing"

	"cncfw/axis"
	"cncfw/block"
	"cncfw/core"
)

func newTestEngine(t *testing.T) (*Engine, *axis.Motor) {
	t.Helper()
	motor := &axis.Motor{ID: 1, Axis: axis.X, StepAngleDeg: 1.8, TravelPerRev: 8, Microsteps: 16}
	motor.Recompute()

	stepper, err := core.NewStepper(0, 1, 2, false, 0)
	if err != nil {
		t.Fatalf("unexpected error creating stepper: %v", err)
	}

	e := NewEngine([]MotorBinding{{Motor: motor, Stepper: stepper, Axis: axis.X}})
	return e, motor
}

func TestLoadSegmentAndTickEmitsSteps(t *testing.T) {
	e, motor := newTestEngine(t)

	var target block.Vec
	target[axis.X] = 0.2 // 0.2mm at 400 steps/mm = 80 steps, within the 100-tick segment
	seg := block.Segment{Target: target, SegmentUsec: 5000}

	if err := e.LoadSegment(seg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for e.Tick() {
	}

	want := int64(0.2 * motor.StepsPerUnit())
	pos := e.Position()[0]
	if pos != want {
		t.Errorf("expected %d steps emitted, got %d", want, pos)
	}
}

func TestLoadSegmentRejectsOverrun(t *testing.T) {
	e, _ := newTestEngine(t)

	var target block.Vec
	target[axis.X] = 1000.0 // far more steps than ticks available in one segment
	seg := block.Segment{Target: target, SegmentUsec: 50}

	if err := e.LoadSegment(seg); err == nil {
		t.Error("expected a stepper assertion failure for an overrun segment")
	}
}

func TestOnFaultFiresOnOverrun(t *testing.T) {
	e, _ := newTestEngine(t)

	var reason uint8
	fired := false
	e.OnFault(func(r uint8) {
		fired = true
		reason = r
	})

	var target block.Vec
	target[axis.X] = 1000.0
	seg := block.Segment{Target: target, SegmentUsec: 50}
	_ = e.LoadSegment(seg)

	if !fired {
		t.Fatal("expected OnFault callback to fire on a segment overrun")
	}
	if reason == 0 {
		t.Error("expected a nonzero fault reason code")
	}
}

func TestResidualPreservedAcrossSegments(t *testing.T) {
	e, _ := newTestEngine(t)

	// Two segments with cumulative targets of 1 and 2 whole steps check
	// that the emitted-step residual carries across segments, so the
	// second segment emits only the one step still owed.
	var t1 block.Vec
	t1[axis.X] = 0.0025 // 1 step at 400 steps/mm
	seg1 := block.Segment{Target: t1, SegmentUsec: 5000}
	if err := e.LoadSegment(seg1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for e.Tick() {
	}

	var t2 block.Vec
	t2[axis.X] = 0.0050 // cumulative 2 steps; second segment should emit exactly 1 more
	seg2 := block.Segment{Target: t2, SegmentUsec: 5000}
	if err := e.LoadSegment(seg2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for e.Tick() {
	}

	if pos := e.Position()[0]; pos != 2 {
		t.Errorf("expected cumulative position of 2 steps, got %d", pos)
	}
}

func TestIdleTimeoutPowersDownMotor(t *testing.T) {
	e, motor := newTestEngine(t)
	motor.Power = axis.IdleOffAfterTimeout
	motor.IdleTimeoutSec = 1.0

	var events []bool
	e.PowerControl = func(motorID int, enabled bool) { events = append(events, enabled) }

	var target block.Vec
	target[axis.X] = 1.0
	e.LoadSegment(block.Segment{Target: target, SegmentUsec: 5000})
	for e.Tick() {
	}

	e.PollIdleTimeouts(2_000_000) // 2 seconds later, well past the 1s timeout

	if len(events) == 0 || events[len(events)-1] != false {
		t.Errorf("expected a power-down event after the idle timeout, got %v", events)
	}
}
