// Package relay wires gcode.Hooks to real GPIO outputs via
// core.DigitalOut, the donor's Klipper-style digital-out state
// machine (PWM cycling, max-duration shutdown-safe defaults). It is
// the spindle/coolant counterpart of targets/tmcdriver: both turn an
// M-code hook the gcode interpreter already calls into a concrete
// hardware action, one over SPI register writes and this one over
// plain GPIO pins. Unlike targets/tmcdriver this package has no
// tinygo-only dependency (core.GPIODriver is already an abstract
// interface), so it builds and is tested under the host toolchain.
package relay

import (
	"cncfw/core"
	"cncfw/gcode"
)

// Pins names the GPIO lines a spindle/coolant relay bank uses.
// HasSpindleDir false means the spindle has no direction relay (fixed rotation).
type Pins struct {
	SpindleEnable core.GPIOPin
	SpindleDir    core.GPIOPin
	HasSpindleDir bool
	CoolantFlood  core.GPIOPin
	CoolantMist   core.GPIOPin
}

// Bank owns the configured DigitalOut lines backing one gcode.Hooks.
type Bank struct {
	spindle core.GPIOPin
	hasDir  bool
	dir     core.GPIOPin
	flood   *core.DigitalOut
	mist    *core.DigitalOut
	enable  *core.DigitalOut
}

// NewBank configures the digital outputs for the given pin assignment.
// oidBase is the first object ID to use; it consumes up to three
// consecutive OIDs (enable, flood, mist).
func NewBank(p Pins, oidBase uint8) (*Bank, error) {
	enable, err := core.ConfigureDigitalOut(oidBase, p.SpindleEnable, false, false, 0)
	if err != nil {
		return nil, err
	}
	flood, err := core.ConfigureDigitalOut(oidBase+1, p.CoolantFlood, false, false, 0)
	if err != nil {
		return nil, err
	}
	mist, err := core.ConfigureDigitalOut(oidBase+2, p.CoolantMist, false, false, 0)
	if err != nil {
		return nil, err
	}
	if p.HasSpindleDir {
		if err := core.MustGPIO().ConfigureOutput(p.SpindleDir); err != nil {
			return nil, err
		}
	}
	return &Bank{
		spindle: p.SpindleEnable,
		hasDir:  p.HasSpindleDir,
		dir:     p.SpindleDir,
		enable:  enable,
		flood:   flood,
		mist:    mist,
	}, nil
}

// Hooks returns a gcode.Hooks backed by this bank's relays. speedRPM is
// ignored: PWM-proportional spindle speed control would need a
// variable-frequency drive interface this core doesn't model, so a
// spindle command here is an on/off + direction relay only.
func (b *Bank) Hooks() gcode.Hooks {
	return gcode.Hooks{
		Spindle: func(on, clockwise bool, speedRPM float64) {
			if b.hasDir {
				_ = core.MustGPIO().SetPin(b.dir, !clockwise)
			}
			_ = b.enable.SetNow(on)
		},
		Coolant: func(flood, mist bool) {
			_ = b.flood.SetNow(flood)
			_ = b.mist.SetNow(mist)
		},
	}
}
