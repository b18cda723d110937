package core

import "sync/atomic"

var (
	isShutdown   uint32
	shutdownHooks []func()
)

// RegisterShutdownHook adds a callback run by TryShutdown, e.g. to
// disable motor drivers or park the DDA engine. Hooks run in
// registration order; a hook must not block.
func RegisterShutdownHook(hook func()) {
	shutdownHooks = append(shutdownHooks, hook)
}

// TryShutdown puts the firmware into the shutdown state: every
// registered hook runs once, and IsShutdown starts returning true. This
// is the path reached from a Scheduler's timer-in-past fault.
func TryShutdown(reason string) {
	if !atomic.CompareAndSwapUint32(&isShutdown, 0, 1) {
		return // already shut down
	}
	for _, hook := range shutdownHooks {
		hook()
	}
	DebugPrintln("[SHUTDOWN] " + reason)
}

// IsShutdown returns true once TryShutdown has run.
func IsShutdown() bool {
	return atomic.LoadUint32(&isShutdown) != 0
}

// ResetShutdown clears the shutdown state, used by tests and by a
// simulated power-cycle/reconnect.
func ResetShutdown() {
	atomic.StoreUint32(&isShutdown, 0)
}
