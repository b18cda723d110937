//go:build rp2040

// Package rp2040pio implements core.StepperBackend on top of the
// RP2040's PIO block, for jitter-free step pulse generation at step
// rates core.Stepper's plain bit-banged backend cannot sustain. It is
// adapted nearly verbatim from the donor's targets/pio package, which
// already implemented this exact core.StepperBackend interface - the
// change here is the import path and the package name, since the
// hand-assembled PIO program and state-machine wiring owe nothing to
// axis count, units, or any of this core's new semantics.
package rp2040pio

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"cncfw/core"
)

// PIO program for step pulse generation.
//
// Command word format:
//
//	Bits 0-15:  pulse count minus one (jmp x-- loops X+1 times)
//	Bits 16-23: delay cycles (inter-pulse spacing)
//	Bit 31:     direction (0=forward, 1=reverse)
//
// Program flow:
//  1. Pull 32-bit command from FIFO
//  2. Extract pulse count into X register
//  3. Extract delay cycles into Y register
//  4. Set direction pin
//  5. Generate X+1 pulses with Y cycle delays between them
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 3: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 4: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 5: set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, 4
		// .wrap
	}
}

const stepperPIOOrigin = 0 // load at offset 0 for correct jump addresses

// StepperBackend implements core.StepperBackend using the RP2040 PIO
// block, one state machine per motor.
type StepperBackend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	direction bool
	offset    uint8
	pioNum    uint8
	smNum     uint8
}

// NewStepperBackend returns a backend bound to one PIO state machine.
// pioNum selects PIO0 or PIO1; smNum is the state machine number
// (0-3), which must be distinct per motor sharing a PIO block.
func NewStepperBackend(pioNum, smNum uint8) *StepperBackend {
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}
	return &StepperBackend{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
		smNum:  smNum,
	}
}

// Init implements core.StepperBackend.
func (b *StepperBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)

	// Claim the state machine before configuring it.
	b.sm.TryClaim()

	program := buildStepperProgram()
	offset, err := b.pio.AddProgram(program, stepperPIOOrigin)
	if err != nil {
		return err
	}
	b.offset = offset

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(1000, 0)

	// Pin directions and state machine init order matters: Init must
	// run before SetPindirsConsecutive.
	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, false)

	b.sm.SetEnabled(true)
	return nil
}

// Step implements core.StepperBackend: queues one pulse at the
// currently-set direction.
func (b *StepperBackend) Step() {
	cmd := uint32(0) | (1 << 16) // count field 0 = one pulse, delay=1
	if b.direction {
		cmd |= 1 << 31
	}
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)
}

// QueueSteps queues a run of steps in one FIFO word, for callers that
// can batch several ticks' worth of pulses at once instead of calling
// Step per tick.
func (b *StepperBackend) QueueSteps(count uint16, delayCycles uint8, direction bool) {
	if count == 0 {
		return
	}
	cmd := uint32(count-1) | uint32(delayCycles)<<16
	if direction {
		cmd |= 1 << 31
	}
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)
}

// SetDirection implements core.StepperBackend.
func (b *StepperBackend) SetDirection(dir bool) {
	b.direction = dir
}

// Stop implements core.StepperBackend.
func (b *StepperBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.SetEnabled(true)
}

// GetName implements core.StepperBackend.
func (b *StepperBackend) GetName() string { return "PIO" }

// GetInfo returns the backend's performance characteristics, for a
// status report to distinguish a PIO-backed axis from a bit-banged one.
func (b *StepperBackend) GetInfo() core.StepperBackendInfo {
	return core.StepperBackendInfo{
		Name:          b.GetName(),
		MaxStepRate:   500000,
		MinPulseNs:    64,
		TypicalJitter: 10,
		CPUOverhead:   1,
	}
}
