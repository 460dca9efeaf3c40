package gateway

import (
	"sync"
	"time"
)

// Notifier surfaces user-visible error notices.
type Notifier interface {
	Notify(message string)
}

// CoalescingNotifier forwards notices to a sink, suppressing duplicate
// identical messages inside a short window so a burst of failing requests
// cannot flood the UI.
type CoalescingNotifier struct {
	sink   func(string)
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	lastMsg string
	lastAt  time.Time
}

// NewCoalescingNotifier builds a notifier around a sink.
func NewCoalescingNotifier(sink func(string), window time.Duration, now func() time.Time) *CoalescingNotifier {
	if window <= 0 {
		window = 1200 * time.Millisecond
	}
	if now == nil {
		now = time.Now
	}
	return &CoalescingNotifier{sink: sink, window: window, now: now}
}

// Notify emits the message unless an identical one was just emitted.
func (n *CoalescingNotifier) Notify(message string) {
	n.mu.Lock()
	ts := n.now()
	if message == n.lastMsg && ts.Sub(n.lastAt) < n.window {
		n.mu.Unlock()
		return
	}
	n.lastMsg = message
	n.lastAt = ts
	n.mu.Unlock()

	if n.sink != nil {
		n.sink(message)
	}
}
