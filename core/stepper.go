package core

// Per-axis hardware stepper registry. The donor drove each axis from
// its own interval/accel timer queue (Klipper's stepcompress model);
// the DDA engine built on top of this package instead ticks every axis
// from one shared high-priority timer using Bresenham error
// accumulation (see the dda package), so only the hardware backend
// wiring survives here: registration, direction and step dispatch, and
// a software position counter for axes with no external encoder.

import "errors"

// Stepper represents a single axis's hardware backend and step count.
type Stepper struct {
	OID             uint8
	StepPin         uint8
	DirPin          uint8
	InvertStep      bool
	InvertDir       bool
	MinStopInterval uint32 // Minimum interval between steps (safety limit)

	Position int64 // Current position in steps (signed)
	NextDir  uint8 // Direction for next step

	Backend StepperBackend
}

var (
	steppers     [16]*Stepper // Max 16 steppers
	stepperCount uint8

	stepperBackendFactory func() StepperBackend
)

// GetStepper returns a stepper by OID.
func GetStepper(oid uint8) *Stepper {
	if oid >= stepperCount {
		return nil
	}
	return steppers[oid]
}

// NewStepper creates and registers a stepper's hardware backend.
func NewStepper(oid uint8, stepPin, dirPin uint8, invertStep bool, minStopInterval uint32) (*Stepper, error) {
	if oid >= 16 {
		return nil, errors.New("stepper OID exceeds maximum")
	}

	s := &Stepper{
		OID:             oid,
		StepPin:         stepPin,
		DirPin:          dirPin,
		InvertStep:      invertStep,
		MinStopInterval: minStopInterval,
	}

	if stepperBackendFactory != nil {
		if backend := stepperBackendFactory(); backend != nil {
			if err := s.InitBackend(backend); err != nil {
				return nil, err
			}
		}
	}

	steppers[oid] = s
	if oid >= stepperCount {
		stepperCount = oid + 1
	}

	return s, nil
}

// SetStepperBackendFactory sets the factory function for creating stepper backends.
func SetStepperBackendFactory(factory func() StepperBackend) {
	stepperBackendFactory = factory
}

// InitBackend initializes the hardware backend.
func (s *Stepper) InitBackend(backend StepperBackend) error {
	s.Backend = backend
	return backend.Init(s.StepPin, s.DirPin, s.InvertStep, s.InvertDir)
}

// SetDirection issues a direction change to the backend and records it
// for the next Step call's position bookkeeping.
func (s *Stepper) SetDirection(reverse bool) {
	if s.Backend != nil {
		s.Backend.SetDirection(reverse)
	}
	if reverse {
		s.NextDir = 1
	} else {
		s.NextDir = 0
	}
}

// Step issues a single pulse and updates the software position counter.
func (s *Stepper) Step() {
	if s.Backend != nil {
		s.Backend.Step()
	}
	if s.NextDir == 0 {
		s.Position++
	} else {
		s.Position--
	}
}

// GetPosition returns the current position in steps.
func (s *Stepper) GetPosition() int64 {
	return s.Position
}

// Stop immediately halts the backend.
func (s *Stepper) Stop() {
	if s.Backend != nil {
		s.Backend.Stop()
	}
}

// SetPosition overrides the software position counter, e.g. after a
// G92 offset or a homing-equivalent reset.
func (s *Stepper) SetPosition(steps int64) {
	s.Position = steps
}
