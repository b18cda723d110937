// Digital output control: motor-enable lines, coolant/mist relays, and
// any other GPIO the canonical machine drives synchronously with motion
// (M3..M9-style commands). Adapted from the donor's Klipper digital_out
// wire protocol: the PWM/max-duration timer state machine is kept
// verbatim, but commands arrive as direct Go calls instead of decoded
// wire frames, since the binary command shell is out of scope here.
package core

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // Current pin state (1=high, 0=low)
	DF_TOGGLING   = 1 << 1 // PWM mode active
	DF_CHECK_END  = 1 << 2 // Monitor max_duration
	DF_DEFAULT_ON = 1 << 3 // Default state for shutdown/power-loss
)

// DigitalOut represents a configured GPIO output pin.
type DigitalOut struct {
	OID   uint8   // Object ID
	Pin   GPIOPin // Hardware pin
	Flags uint8   // State flags (DF_*)

	Timer Timer // Main timer for scheduled updates and PWM

	OnDuration  uint32 // PWM on time in ticks
	OffDuration uint32 // PWM off time in ticks
	CycleTime   uint32 // Total PWM cycle time in ticks
	EndTime     uint32 // Time when max_duration expires

	MaxDuration uint32 // Maximum time pin can be in non-default state
}

// Global registry of digital outputs.
var digitalOutputs = make(map[uint8]*DigitalOut)

// ConfigureDigitalOut configures a pin for digital output and returns the
// new DigitalOut. defaultOn is the state the pin reverts to on shutdown
// or when max_duration (0 = unbounded) elapses without a refresh.
func ConfigureDigitalOut(oid uint8, pin GPIOPin, initialOn, defaultOn bool, maxDuration uint32) (*DigitalOut, error) {
	dout := &DigitalOut{
		OID:         oid,
		Pin:         pin,
		MaxDuration: maxDuration,
	}
	if defaultOn {
		dout.Flags |= DF_DEFAULT_ON
	}

	if err := MustGPIO().ConfigureOutput(dout.Pin); err != nil {
		return nil, err
	}
	if err := MustGPIO().SetPin(dout.Pin, initialOn); err != nil {
		return nil, err
	}
	if initialOn {
		dout.Flags |= DF_ON
	}

	digitalOutputs[oid] = dout
	return dout, nil
}

// SetPWMCycle configures the pin's PWM cycle length; 0 disables PWM.
func (dout *DigitalOut) SetPWMCycle(cycleTicks uint32) {
	dout.CycleTime = cycleTicks
}

// QueueAt schedules a pin state change (or PWM on-time, if a cycle is
// configured) to take effect at the given clock tick.
func (dout *DigitalOut) QueueAt(clock, onTicks uint32) {
	if dout.CycleTime != 0 {
		dout.OnDuration = onTicks
		dout.OffDuration = dout.CycleTime - onTicks
		if dout.OnDuration > dout.CycleTime {
			dout.OnDuration = dout.CycleTime
			dout.OffDuration = 0
		}
		if dout.OnDuration > 0 && dout.OffDuration > 0 {
			dout.Flags |= DF_TOGGLING
		} else {
			dout.Flags &^= DF_TOGGLING
			if dout.OnDuration > 0 {
				dout.Flags |= DF_ON
			} else {
				dout.Flags &^= DF_ON
			}
		}
	} else {
		if onTicks > 0 {
			dout.Flags |= DF_ON
		} else {
			dout.Flags &^= DF_ON
		}
		dout.Flags &^= DF_TOGGLING
	}

	if dout.MaxDuration != 0 {
		newStateOn := (dout.Flags & DF_ON) != 0
		defaultOn := (dout.Flags & DF_DEFAULT_ON) != 0
		if newStateOn != defaultOn {
			dout.EndTime = clock + dout.MaxDuration
			dout.Flags |= DF_CHECK_END
		} else {
			dout.Flags &^= DF_CHECK_END
		}
	}

	dout.Timer.Next = nil
	dout.Timer.WakeTime = clock
	dout.Timer.Handler = digitalOutLoadEvent
	ScheduleTimer(&dout.Timer)
}

// SetNow immediately updates a pin's value, cancelling any PWM toggling.
func (dout *DigitalOut) SetNow(on bool) error {
	if err := MustGPIO().SetPin(dout.Pin, on); err != nil {
		return err
	}
	if on {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_TOGGLING
	return nil
}

// GetDigitalOut retrieves a configured output by OID.
func GetDigitalOut(oid uint8) (*DigitalOut, bool) {
	dout, exists := digitalOutputs[oid]
	return dout, exists
}

func findDigitalOutByTimer(t *Timer) *DigitalOut {
	for _, dPtr := range digitalOutputs {
		if dPtr != nil && &dPtr.Timer == t {
			return dPtr
		}
	}
	return nil
}

// digitalOutLoadEvent is the timer handler for loading scheduled pin updates.
func digitalOutLoadEvent(t *Timer) uint8 {
	dout := findDigitalOutByTimer(t)
	if dout == nil {
		return SF_DONE
	}

	if (dout.Flags & DF_TOGGLING) != 0 {
		if err := MustGPIO().SetPin(dout.Pin, true); err != nil {
			dout.Flags &^= DF_TOGGLING
			return SF_DONE
		}
		t.WakeTime = GetTime() + dout.OnDuration
		t.Handler = digitalOutToggleEvent
		return SF_RESCHEDULE
	}

	state := (dout.Flags & DF_ON) != 0
	if err := MustGPIO().SetPin(dout.Pin, state); err != nil {
		return SF_DONE
	}

	if (dout.Flags & DF_CHECK_END) != 0 {
		t.WakeTime = dout.EndTime
		t.Handler = digitalOutEndEvent
		return SF_RESCHEDULE
	}

	return SF_DONE
}

// digitalOutToggleEvent is the timer handler for PWM toggling.
func digitalOutToggleEvent(t *Timer) uint8 {
	dout := findDigitalOutByTimer(t)
	if dout == nil || (dout.Flags&DF_TOGGLING) == 0 {
		return SF_DONE
	}

	currentState := (dout.Flags & DF_ON) != 0
	newState := !currentState
	if err := MustGPIO().SetPin(dout.Pin, newState); err != nil {
		dout.Flags &^= DF_TOGGLING
		return SF_DONE
	}

	if newState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}

	var nextDuration uint32
	if newState {
		nextDuration = dout.OnDuration
	} else {
		nextDuration = dout.OffDuration
	}

	now := GetTime()
	if (dout.Flags&DF_CHECK_END) != 0 && (now+nextDuration >= dout.EndTime) {
		t.WakeTime = dout.EndTime
		t.Handler = digitalOutLoadEvent
		return SF_RESCHEDULE
	}

	t.WakeTime = now + nextDuration
	return SF_RESCHEDULE
}

// digitalOutEndEvent is the timer handler for max_duration enforcement.
func digitalOutEndEvent(t *Timer) uint8 {
	dout := findDigitalOutByTimer(t)
	if dout == nil {
		return SF_DONE
	}

	defaultState := (dout.Flags & DF_DEFAULT_ON) != 0
	if err := MustGPIO().SetPin(dout.Pin, defaultState); err != nil {
		return SF_DONE
	}
	if defaultState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_TOGGLING | DF_CHECK_END

	return SF_DONE
}

// ShutdownDigitalOut returns a pin to its default state (called during shutdown).
func ShutdownDigitalOut(dout *DigitalOut) {
	defaultState := (dout.Flags & DF_DEFAULT_ON) != 0
	_ = MustGPIO().SetPin(dout.Pin, defaultState)

	if defaultState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_TOGGLING | DF_CHECK_END
	dout.Timer.Next = nil
}

// ShutdownAllDigitalOut returns all pins to their default states.
func ShutdownAllDigitalOut() {
	for _, dout := range digitalOutputs {
		if dout != nil {
			ShutdownDigitalOut(dout)
		}
	}
}

func init() {
	RegisterShutdownHook(ShutdownAllDigitalOut)
}
