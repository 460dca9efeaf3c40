package session

import "time"

// TaskHandle cancels a scheduled task.
type TaskHandle interface {
	Cancel()
}

// Scheduler arms a one-shot task after a delay. It abstracts platform timer
// handles so refresh scheduling stays portable and testable.
type Scheduler interface {
	Schedule(delay time.Duration, task func()) TaskHandle
}

type timerScheduler struct{}

// NewTimerScheduler returns the production Scheduler backed by time.AfterFunc.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(delay time.Duration, task func()) TaskHandle {
	return &timerHandle{timer: time.AfterFunc(delay, task)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h *timerHandle) Cancel() {
	h.timer.Stop()
}
