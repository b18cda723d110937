package core

// Timer represents a scheduled event.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1

	// Timer in past threshold - if timer is more than 100ms behind, report error
	// At 12MHz, 100ms = 1,200,000 ticks
	TimerPastThreshold = 1200000
)

// Scheduler is a sorted singly-linked timer queue, identical in
// mechanics to Klipper's sched_add_timer/sched_timer_dispatch. The
// package keeps one default instance behind ScheduleTimer and
// TimerDispatch; NewScheduler builds further independent queues.
type Scheduler struct {
	timerList       *Timer
	currentTime     uint32
	timerPastErrors uint32
	onTimerInPast   func(t *Timer, timeDiff int32)
}

// NewScheduler returns an empty Scheduler. onTimerInPast, if non-nil, is
// invoked instead of the package-level shutdown path when a timer falls
// more than TimerPastThreshold behind - callers that want the global
// TryShutdown behavior should pass nil.
func NewScheduler(onTimerInPast func(t *Timer, timeDiff int32)) *Scheduler {
	return &Scheduler{onTimerInPast: onTimerInPast}
}

// Schedule adds a timer to the queue in sorted order.
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	s.insert(t)
}

// insert inserts a timer in sorted order by WakeTime using signed
// comparison so 32-bit wraparound is handled correctly within half the
// address space.
func (s *Scheduler) insert(t *Timer) {
	if s.timerList == nil || int32(t.WakeTime-s.timerList.WakeTime) < 0 {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && int32(current.Next.WakeTime-t.WakeTime) < 0 {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Dispatch runs every timer due at or before now, rescheduling those
// whose handler returns SF_RESCHEDULE. It returns false if a timer was
// found more than TimerPastThreshold behind (the caller should treat
// this as a hard fault).
func (s *Scheduler) Dispatch(now uint32) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.currentTime = now
	for s.timerList != nil && int32(s.currentTime-s.timerList.WakeTime) >= 0 {
		timer := s.timerList
		s.timerList = timer.Next
		timer.Next = nil

		timeDiff := int32(s.currentTime - timer.WakeTime)
		if timeDiff > int32(TimerPastThreshold) {
			s.timerPastErrors++
			if s.onTimerInPast != nil {
				s.onTimerInPast(timer, timeDiff)
			} else {
				TryShutdown("Rescheduled timer in the past")
			}
			return false
		}

		result := timer.Handler(timer)
		if result == SF_RESCHEDULE {
			s.insert(timer)
		}

		// Re-read current time after each handler: a handler may block
		// (e.g. a full driver FIFO), advancing real time enough that
		// timers scheduled for "the future" are now also due.
		s.currentTime = GetTime()
	}
	return true
}

// Pending reports whether any timer is queued.
func (s *Scheduler) Pending() bool {
	return s.timerList != nil
}

// PastErrors returns the count of "timer in past" faults observed.
func (s *Scheduler) PastErrors() uint32 {
	return s.timerPastErrors
}

// --- package-level default scheduler, kept for existing single-queue callers ---

var defaultScheduler = NewScheduler(func(t *Timer, timeDiff int32) {
	DebugPrintln("[SCHED] TIMER IN PAST! Shutting down...")
	RecordTiming(EvtTimerPast, 0, currentTime, t.WakeTime, uint32(timeDiff))
	TryShutdown("Rescheduled timer in the past")
})

var currentTime uint32

// ScheduleTimer adds a timer to the default schedule.
func ScheduleTimer(t *Timer) {
	defaultScheduler.Schedule(t)
}

// TimerDispatch processes due timers on the default schedule.
func TimerDispatch() {
	currentTime = GetTime()
	defaultScheduler.Dispatch(currentTime)
}

// GetTimerPastErrors returns the count of timer-in-past errors on the
// default schedule.
func GetTimerPastErrors() uint32 {
	return defaultScheduler.PastErrors()
}

// ResetTimerPastErrors resets the default schedule's error counter.
func ResetTimerPastErrors() {
	defaultScheduler.timerPastErrors = 0
}
