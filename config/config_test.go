package config

import (
	"errors"
	"testing"

	"cncfw/axis"
	"cncfw/block"
	"cncfw/canonical"
	"cncfw/planner"
	"cncfw/statcode"
)

func TestRegisterGetSet(t *testing.T) {
	r := NewRegistry()
	value := 100.0
	r.Register("xvm", KindFloatLengthUnit,
		func() float64 { return value },
		func(v float64) error { value = v; return nil })

	if err := r.Set("xvm", 250); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.Get("xvm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 250 {
		t.Errorf("expected 250, got %v", got)
	}
}

func TestUnknownTokenReturnsParameterNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("bogus")
	if !errors.Is(err, statcode.ParameterNotFound) {
		t.Errorf("expected ParameterNotFound, got %v", err)
	}
}

func TestBindAxisMachineRoundTrips(t *testing.T) {
	r := NewRegistry()
	am := axis.NewMachine()
	BindAxisMachine(r, am)

	if err := r.Set("xvm", 1234); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if am.Axes[axis.X].VelocityMax != 1234 {
		t.Errorf("expected live axis VelocityMax to be updated, got %v", am.Axes[axis.X].VelocityMax)
	}
}

func TestBindMotorStepAngleRecomputes(t *testing.T) {
	r := NewRegistry()
	am := axis.NewMachine()
	am.Motors = append(am.Motors, &axis.Motor{ID: 1, Axis: axis.X, StepAngleDeg: 1.8, TravelPerRev: 8, Microsteps: 16})
	BindAxisMachine(r, am)

	if err := r.Set("1sa", 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if am.Motors[0].StepsPerUnit() <= 400 {
		t.Errorf("expected halving step angle to double steps_per_unit, got %v", am.Motors[0].StepsPerUnit())
	}
}

func TestBindCanonicalMachineWorkOffset(t *testing.T) {
	r := NewRegistry()
	am := axis.NewMachine()
	cm := canonical.NewMachine(am, planner.NewQueue(block.Vec{}))
	BindCanonicalMachine(r, cm)

	if err := r.Set("g55x", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cm.Offsets[canonical.G55][axis.X] != 42 {
		t.Errorf("expected g55x to set the G55 offset's X component, got %v", cm.Offsets[canonical.G55][axis.X])
	}
}
