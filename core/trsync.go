// Trigger synchronization for coordinated hard stops.
//
// Repurposed from the donor's homing-only trsync protocol: here a
// TriggerSync fans a single fault condition (a tripped endstop, a
// stepper assertion failure, an operator feedhold) out to every
// callback registered against it, so runtime.Runtime can halt every
// axis's DDA engine in the same tick rather than one at a time.
package core

// TriggerSync flags
const (
	TSF_CAN_TRIGGER = 1 << 0 // Trigger is enabled
	TSF_TRIGGERED   = 1 << 1 // Trigger has fired
)

// TriggerSignal represents a callback registered with a TriggerSync.
type TriggerSignal struct {
	Callback func(reason uint8) // Called when trigger fires
	Next     *TriggerSignal
}

// TriggerSync coordinates a fan-out of hard-stop callbacks.
type TriggerSync struct {
	OID           uint8          // Object ID
	Flags         uint8          // State flags (TSF_*)
	TriggerReason uint8          // Reason code for the trigger
	Signals       *TriggerSignal // Linked list of registered callbacks
}

// Global registry of trigger sync objects.
var triggerSyncs = make(map[uint8]*TriggerSync)

// NewTriggerSync creates and registers a trigger sync object, armed and
// ready to fire.
func NewTriggerSync(oid uint8) *TriggerSync {
	ts := &TriggerSync{OID: oid, Flags: TSF_CAN_TRIGGER}
	triggerSyncs[oid] = ts
	return ts
}

// Rearm clears a fired trigger so it can be used again, e.g. after a
// hard stop has been acknowledged and cleared.
func (ts *TriggerSync) Rearm() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	ts.Flags = TSF_CAN_TRIGGER
	ts.TriggerReason = 0
}

// TriggerSyncDoTrigger fires a trigger synchronization event. This is
// called by endstops, the DDA engine, or the runtime's assertion path
// when a fault condition is detected.
func TriggerSyncDoTrigger(ts *TriggerSync, reason uint8) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if (ts.Flags & TSF_CAN_TRIGGER) == 0 {
		return
	}

	ts.Flags &^= TSF_CAN_TRIGGER
	ts.Flags |= TSF_TRIGGERED
	ts.TriggerReason = reason

	signal := ts.Signals
	for signal != nil {
		if signal.Callback != nil {
			signal.Callback(reason)
		}
		signal = signal.Next
	}
}

// TriggerSyncAddSignal registers a callback with a trigger sync.
func TriggerSyncAddSignal(ts *TriggerSync, callback func(reason uint8)) *TriggerSignal {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	signal := &TriggerSignal{
		Callback: callback,
		Next:     ts.Signals,
	}
	ts.Signals = signal

	return signal
}

// GetTriggerSync retrieves a trigger sync object by OID.
func GetTriggerSync(oid uint8) (*TriggerSync, bool) {
	ts, exists := triggerSyncs[oid]
	return ts, exists
}
