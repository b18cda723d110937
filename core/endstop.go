// Endstop handling for GPIO-based limit/hard-stop sensors.
//
// The full homing/probing cycle is an external collaborator and is not
// implemented here (see the module's design notes). What remains is the
// minimal piece the motion core actually needs: a debounced read of a
// limit switch so that runtime.Runtime can fold a physical trip into a
// hard stop without waiting on a homing sequencer.
package core

// Endstop flags
const (
	ESF_PIN_HIGH = 1 << 0 // Expected pin state when triggered (1=high, 0=low)
	ESF_TRIPPED  = 1 << 1 // Trip state, cleared by ClearTrip or by a Poll that reads the pin untriggered
)

// Endstop represents a configured GPIO limit switch input.
type Endstop struct {
	OID           uint8        // Object ID
	Pin           GPIOPin      // GPIO pin for endstop input
	Flags         uint8        // State flags (ESF_*)
	TriggerSync   *TriggerSync // Associated trigger sync, nil if none
	TriggerReason uint8        // Reason code to report when triggered
}

// Global registry of endstops
var endstops = make(map[uint8]*Endstop)

// ConfigureEndstop registers a GPIO pin as a limit switch input.
func ConfigureEndstop(oid uint8, pin GPIOPin, pullUp bool, activeHigh bool) (*Endstop, error) {
	var err error
	if pullUp {
		err = MustGPIO().ConfigureInputPullUp(pin)
	} else {
		err = MustGPIO().ConfigureInputPullDown(pin)
	}
	if err != nil {
		return nil, err
	}

	es := &Endstop{OID: oid, Pin: pin}
	if activeHigh {
		es.Flags |= ESF_PIN_HIGH
	}
	endstops[oid] = es
	return es, nil
}

// Poll reads the current pin state and sets ESF_TRIPPED if it matches
// the configured trigger polarity, firing the associated TriggerSync (if
// any) on the transition; a read that does not match clears
// ESF_TRIPPED. It returns the tripped state after the read.
func (es *Endstop) Poll() bool {
	pinHigh := MustGPIO().ReadPin(es.Pin)
	expectHigh := (es.Flags & ESF_PIN_HIGH) != 0
	triggered := pinHigh == expectHigh

	if triggered && (es.Flags&ESF_TRIPPED) == 0 {
		es.Flags |= ESF_TRIPPED
		if es.TriggerSync != nil {
			TriggerSyncDoTrigger(es.TriggerSync, es.TriggerReason)
		}
	} else if !triggered {
		es.Flags &^= ESF_TRIPPED
	}

	return (es.Flags & ESF_TRIPPED) != 0
}

// ClearTrip resets the latched trip state, e.g. after a hard stop has
// been acknowledged and the axis backed off the switch.
func (es *Endstop) ClearTrip() {
	es.Flags &^= ESF_TRIPPED
}

// GetEndstop retrieves a configured endstop by OID.
func GetEndstop(oid uint8) (*Endstop, bool) {
	es, exists := endstops[oid]
	return es, exists
}
