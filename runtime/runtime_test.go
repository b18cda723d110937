package runtime

import (
	"testing"

	"cncfw/block"
	"cncfw/core"
	"cncfw/planner"
	"cncfw/statcode"
)

func TestPrepareSegmentNoopWhenQueueEmpty(t *testing.T) {
	q := planner.NewQueue(block.Vec{})
	r := New(q)
	_, code, err := r.PrepareSegment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != statcode.NOOP {
		t.Errorf("expected NOOP on an empty queue, got %v", code)
	}
}

func TestRunLineBlockToCompletion(t *testing.T) {
	q := planner.NewQueue(block.Vec{})
	_, err := q.QueueLine(planner.LineParams{Target: block.Vec{100, 0, 0}, CruiseVmax: 1000, Jerk: 1e7})
	if err != nil {
		t.Fatalf("unexpected error queueing: %v", err)
	}

	r := New(q)
	var lastPos block.Vec
	segments := 0
	for i := 0; i < 100000; i++ {
		seg, code, err := r.PrepareSegment()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if code == statcode.NOOP {
			break
		}
		segments++
		lastPos = seg.Target
	}

	if segments == 0 {
		t.Fatal("expected at least one segment to be emitted")
	}
	if diff := lastPos[0] - 100; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected final position to reach 100, got %v", lastPos[0])
	}
}

func TestDwellCompletesImmediately(t *testing.T) {
	q := planner.NewQueue(block.Vec{})
	q.QueueDwell(0.25)

	r := New(q)
	_, code, err := r.PrepareSegment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != statcode.COMPLETE {
		t.Errorf("expected COMPLETE for a dwell, got %v", code)
	}
	if q.Len() != 0 {
		t.Errorf("expected dwell block to be retired, got queue length %d", q.Len())
	}
}

func TestSyncCommandInvokesCallbackThenRetires(t *testing.T) {
	q := planner.NewQueue(block.Vec{})
	called := false
	q.QueueCommand(func(values, flags block.Vec) { called = true }, block.Vec{1}, block.Vec{})

	r := New(q)
	_, code, err := r.PrepareSegment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected sync command callback to be invoked")
	}
	if code != statcode.COMPLETE || q.Len() != 0 {
		t.Errorf("expected command block to complete and retire immediately")
	}
}

func TestFeedholdDrivesVelocityToZero(t *testing.T) {
	q := planner.NewQueue(block.Vec{})
	q.QueueLine(planner.LineParams{Target: block.Vec{1000, 0, 0}, CruiseVmax: 2000, Jerk: 1e6})

	r := New(q)
	// run a handful of segments to get up to speed, then request a hold
	for i := 0; i < 20; i++ {
		if _, code, _ := r.PrepareSegment(); code == statcode.NOOP {
			t.Fatal("block finished before feedhold could be exercised")
		}
	}
	r.RequestFeedhold()

	reachedHeld := false
	for i := 0; i < 200000 && !reachedHeld; i++ {
		if _, code, _ := r.PrepareSegment(); code == statcode.NOOP {
			break
		}
		if r.HoldState() == HoldHeld {
			reachedHeld = true
		}
	}
	if !reachedHeld {
		t.Error("expected feedhold to eventually bring the runtime to HoldHeld")
	}
}

func TestHardStopFlushesQueueAndReportsException(t *testing.T) {
	q := planner.NewQueue(block.Vec{})
	q.QueueLine(planner.LineParams{Target: block.Vec{100, 0, 0}, CruiseVmax: 1000, Jerk: 1e7})
	q.QueueLine(planner.LineParams{Target: block.Vec{100, 100, 0}, CruiseVmax: 1000, Jerk: 1e7})

	r := New(q)
	if _, code, err := r.PrepareSegment(); err != nil || code == statcode.NOOP {
		t.Fatalf("expected a segment to be preparable before the fault, got code=%v err=%v", code, err)
	}

	r.HardStop(statcode.StepperAssertionFailure, "simulated overrun")

	if q.Len() != 0 {
		t.Errorf("expected HardStop to flush the planner queue, got length %d", q.Len())
	}
	if r.HoldState() != HoldHeld {
		t.Errorf("expected HardStop to leave the runtime in HoldHeld, got %v", r.HoldState())
	}
	if r.state != Off {
		t.Errorf("expected HardStop to clear the running block, got state %v", r.state)
	}

	select {
	case report := <-core.ExceptionChannel:
		if report.Code != uint8(statcode.StepperAssertionFailure) {
			t.Errorf("expected StepperAssertionFailure on the exception channel, got %d", report.Code)
		}
	default:
		t.Error("expected HardStop to emit a report on core.ExceptionChannel")
	}
}
