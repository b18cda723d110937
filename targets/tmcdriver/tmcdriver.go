// Package tmcdriver is a thin target-specific adapter that drives a
// tinygo.org/x/drivers/tmc5160 smart stepper driver over SPI, for axes
// whose axis.Motor.DriverBus is wired to real hardware instead of a
// plain step/direction pair. It plays the same role as the donor's own
// smart-driver bring-up code - pushing microstep divisor and
// current/ramp registers over a bus - adapted to the tmc5160 package
// the examples vendor rather than a hand-rolled register table, and to
// this core's core.SPIDriver bus abstraction rather than a bare
// machine.SPI handle.
//
// tmc5160.Driver wants a RegisterComm (ReadRegister/WriteRegister) and
// talks to it with its own 40-bit SPI framing; core.SPIDriver only
// offers Transfer(busHandle, tx, rx []byte). Bus below bridges the two:
// it owns the ConfigureBus handle and one chip-select pin per driver
// address, and builds the same 5-byte address+32-bit-value frame the
// donor's SPIComm does.
//
//go:build tinygo

package tmcdriver

import (
	"errors"
	"time"

	"machine"

	"tinygo.org/x/drivers/tmc5160"

	"cncfw/axis"
	"cncfw/core"
)

// Bus adapts a core.SPIDriver into the tmc5160.RegisterComm interface,
// for one or more TMC5160 drivers sharing an SPI bus with distinct
// chip-select pins keyed by driver address.
type Bus struct {
	spi    core.SPIDriver
	handle interface{}
	cs     map[uint8]machine.Pin
}

// NewBus configures the SPI bus at the given parameters and returns a
// Bus ready to register per-address chip-select pins.
func NewBus(spi core.SPIDriver, cfg core.SPIConfig) (*Bus, error) {
	handle, err := spi.ConfigureBus(cfg)
	if err != nil {
		return nil, err
	}
	return &Bus{spi: spi, handle: handle, cs: make(map[uint8]machine.Pin)}, nil
}

// AddDriver registers the chip-select pin for one driver address and
// configures it as an output held high (deselected), mirroring the
// vendored driver's own SPIComm.Setup.
func (b *Bus) AddDriver(address uint8, cs machine.Pin) {
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	b.cs[address] = cs
}

// ReadRegister implements tmc5160.RegisterComm. The TMC5160's SPI read
// protocol returns the PREVIOUS transaction's result, so a read is a
// dummy transfer followed by a real one, per the chip datasheet and
// the vendored driver's own SPIComm.ReadRegister.
func (b *Bus) ReadRegister(register uint8, driverAddress uint8) (uint32, error) {
	cs, ok := b.cs[driverAddress]
	if !ok {
		return 0, errors.New("tmcdriver: unknown driver address")
	}
	cs.Low()
	if _, err := b.transfer(register, 0); err != nil {
		cs.High()
		return 0, err
	}
	cs.High()
	time.Sleep(176 * time.Nanosecond)
	cs.Low()
	value, err := b.transfer(register, 0)
	cs.High()
	return value, err
}

// WriteRegister implements tmc5160.RegisterComm.
func (b *Bus) WriteRegister(register uint8, value uint32, driverAddress uint8) error {
	cs, ok := b.cs[driverAddress]
	if !ok {
		return errors.New("tmcdriver: unknown driver address")
	}
	cs.Low()
	_, err := b.transfer(register|0x80, value)
	cs.High()
	return err
}

func (b *Bus) transfer(register uint8, value uint32) (uint32, error) {
	tx := []byte{register, byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	rx := make([]byte, 5)
	if err := b.spi.Transfer(b.handle, tx, rx); err != nil {
		return 0, err
	}
	return uint32(rx[1])<<24 | uint32(rx[2])<<16 | uint32(rx[3])<<8 | uint32(rx[4]), nil
}

// Config carries the per-axis current/ramp settings a driver needs at
// bring-up time, since the axis data model itself only knows canonical
// motion limits, not motor winding current.
type Config struct {
	Address      uint8
	EnablePin    machine.Pin
	GlobalScaler uint16
	Direction    tmc5160.MotorDirection
}

// DefaultConfig returns conservative defaults good enough for bring-up
// on a NEMA17-class motor; callers tune GlobalScaler for their actual
// motor winding current.
func DefaultConfig(address uint8, enablePin machine.Pin) Config {
	return Config{
		Address:      address,
		EnablePin:    enablePin,
		GlobalScaler: 128,
		Direction:    tmc5160.Clockwise,
	}
}

// Attach brings up one TMC5160 on the given Bus for motor m: it
// wraps the bus as a RegisterComm, runs the vendored driver's init
// sequence, then pushes a VMAX ramp register derived from the axis's
// own canonical velocity limit and the motor's steps-per-unit, so the
// smart driver's internal ramp generator is bounded the same way the
// segment runtime's jerk-limited profile is. axisVelocityMax is the
// owning axis.Axis.VelocityMax in canonical mm/min.
func Attach(bus *Bus, m *axis.Motor, axisVelocityMax float64, cfg Config) (*tmc5160.Driver, error) {
	bus.AddDriver(cfg.Address, cfg.EnablePin)

	stepper := tmc5160.NewStepper(
		float32(m.StepAngleDeg), 1.0, 24.0, 1.2, 0.005, 2.0, 0.1,
		uint8(m.Microsteps), tmc5160.DefaultFclk,
	)
	driver := tmc5160.NewDriver(bus, cfg.Address, cfg.EnablePin, stepper)

	if !driver.Begin(tmc5160.PowerStageParameters{}, tmc5160.MotorParameters{}, cfg.Direction) {
		return nil, errors.New("tmcdriver: driver.Begin failed")
	}

	stepsPerUnit := m.StepsPerUnit()
	if stepsPerUnit > 0 && axisVelocityMax > 0 {
		stepsPerSec := axisVelocityMax / 60.0 * stepsPerUnit
		if err := driver.WriteRegister(tmc5160.VMAX, uint32(stepsPerSec)); err != nil {
			return nil, err
		}
	}

	return driver, nil
}
