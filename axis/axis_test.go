package axis

import "testing"

func TestMotorRecompute(t *testing.T) {
	m := &Motor{StepAngleDeg: 1.8, TravelPerRev: 8.0, Microsteps: 16}
	m.Recompute()

	// full steps/rev = 200, * 16 microsteps = 3200 steps/rev, / 8mm = 400 steps/mm
	want := 400.0
	if got := m.StepsPerUnit(); got != want {
		t.Errorf("expected steps_per_unit=%v, got %v", want, got)
	}
}

func TestAxisValidateFeedExceedsVelocity(t *testing.T) {
	a := &Axis{Name: X, Mode: Standard, VelocityMax: 1000, FeedMax: 2000, JerkMax: 1}
	if err := a.Validate(); err == nil {
		t.Error("expected validation error when feed_max exceeds velocity_max")
	}
}

func TestAxisValidateJerkRequired(t *testing.T) {
	a := &Axis{Name: Y, Mode: Standard, VelocityMax: 1000, FeedMax: 500, JerkMax: 0}
	if err := a.Validate(); err == nil {
		t.Error("expected validation error for zero jerk_max on enabled axis")
	}

	a.Mode = Disabled
	if err := a.Validate(); err != nil {
		t.Errorf("disabled axis should not require jerk_max, got %v", err)
	}
}

func TestMotorValidateMicrostepWarning(t *testing.T) {
	m := &Motor{ID: 1, StepAngleDeg: 1.8, TravelPerRev: 8, Microsteps: 3}
	if err := m.Validate(); err == nil {
		t.Error("expected a warning-class error for microsteps outside {1,2,4,8}")
	}
}

func TestMachineValidateAggregatesErrors(t *testing.T) {
	machine := NewMachine()
	machine.Axes[X].Mode = Standard
	machine.Axes[X].VelocityMax = 100
	machine.Axes[X].FeedMax = 200 // invalid
	machine.Axes[X].JerkMax = 0   // invalid

	machine.Motors = append(machine.Motors, &Motor{ID: 1, Axis: X, StepAngleDeg: 0}) // invalid

	err := machine.Validate()
	if err == nil {
		t.Fatal("expected aggregated validation error")
	}
}

func TestMotorsForAxisSlaving(t *testing.T) {
	machine := NewMachine()
	machine.Motors = append(machine.Motors,
		&Motor{ID: 1, Axis: Z, StepAngleDeg: 1.8, TravelPerRev: 8, Microsteps: 16},
		&Motor{ID: 2, Axis: Z, StepAngleDeg: 1.8, TravelPerRev: 8, Microsteps: 16},
		&Motor{ID: 3, Axis: X, StepAngleDeg: 1.8, TravelPerRev: 8, Microsteps: 16},
	)

	zMotors := machine.MotorsForAxis(Z)
	if len(zMotors) != 2 {
		t.Errorf("expected 2 motors slaved to Z, got %d", len(zMotors))
	}
}
