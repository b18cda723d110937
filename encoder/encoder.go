// Package encoder implements step-domain position feedback that is
// independent of the DDA's own step-count integrator: a magnetic or
// optical rotary encoder read over I2C, unwrapped across its
// resolution boundary into a continuous canonical-position estimate.
// It exists so a future closed-loop or stall-detection layer has
// something to compare the DDA's open-loop position against; this core
// only samples and unwraps, per the data model's component table.
//
// Grounded directly on core.I2CDriver, the donor's abstract I2C bus
// interface (register-address-then-read transactions, exactly how a
// magnetic encoder such as an AS5600 exposes its angle register).
package encoder

import (
	"github.com/pkg/errors"

	"cncfw/core"
)

// Encoder is one axis's position feedback device.
type Encoder struct {
	Bus  core.I2CDriver
	BusID core.I2CBusID
	Addr core.I2CAddress

	RegAddr []byte // register address bytes written before the read, per I2CDriver.Read

	Resolution    uint32  // raw counts per full revolution (or full travel, for a linear scale)
	CountsPerUnit float64 // raw counts per canonical mm

	lastRaw     uint32
	unwrapped   int64 // accumulated counts, unwrapped across Resolution boundaries
	initialized bool
}

// New returns an Encoder bound to the given I2C bus and device
// address, reporting position in canonical millimeters.
func New(bus core.I2CDriver, busID core.I2CBusID, addr core.I2CAddress, regAddr []byte, resolution uint32, countsPerUnit float64) (*Encoder, error) {
	if resolution == 0 {
		return nil, errors.New("encoder resolution must be > 0")
	}
	if countsPerUnit == 0 {
		return nil, errors.New("encoder counts_per_unit must be > 0")
	}
	return &Encoder{
		Bus: bus, BusID: busID, Addr: addr, RegAddr: regAddr,
		Resolution: resolution, CountsPerUnit: countsPerUnit,
	}, nil
}

// rawToUint16 decodes a big-endian 2-byte raw position register, the
// conventional layout for AS5600-class magnetic encoders.
func rawToUint16(data []byte) uint32 {
	if len(data) < 2 {
		return 0
	}
	return uint32(data[0])<<8 | uint32(data[1])
}

// Sample reads the device once, unwraps it against the previous
// reading, and returns the updated canonical position estimate.
// Unwrapping assumes the axis cannot move more than half a revolution
// between consecutive samples - true as long as Sample is called at
// least once per DDA segment.
func (e *Encoder) Sample() (float64, error) {
	data, err := e.Bus.Read(e.BusID, e.Addr, e.RegAddr, 2)
	if err != nil {
		return 0, errors.WithMessage(err, "encoder read failed")
	}
	raw := rawToUint16(data) % e.Resolution

	if !e.initialized {
		e.lastRaw = raw
		e.unwrapped = int64(raw)
		e.initialized = true
		return e.canonicalPosition(), nil
	}

	delta := int64(raw) - int64(e.lastRaw)
	half := int64(e.Resolution) / 2
	if delta > half {
		delta -= int64(e.Resolution)
	} else if delta < -half {
		delta += int64(e.Resolution)
	}

	e.unwrapped += delta
	e.lastRaw = raw
	return e.canonicalPosition(), nil
}

func (e *Encoder) canonicalPosition() float64 {
	return float64(e.unwrapped) / e.CountsPerUnit
}

// Position returns the most recently sampled canonical position
// without performing a new bus transaction.
func (e *Encoder) Position() float64 {
	return e.canonicalPosition()
}

// Reset rebases the unwrapped accumulator so Position reports the
// given canonical value at the current raw reading - used after a
// work-offset change or a position the operator asserts directly.
func (e *Encoder) Reset(canonicalPos float64) {
	e.unwrapped = int64(canonicalPos * e.CountsPerUnit)
}
